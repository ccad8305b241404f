package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chonlathan-cloud/ProjectMIABackend/internal/domain"
)

// Compile-time interface assertions.
var (
	_ ShopRepository      = (*PostgresShopRepo)(nil)
	_ MemberRepository    = (*PostgresMemberRepo)(nil)
	_ CustomerRepository  = (*PostgresCustomerRepo)(nil)
	_ ChatEventRepository = (*PostgresChatEventRepo)(nil)
)

// PostgresShopRepo implements ShopRepository over pgx.
type PostgresShopRepo struct {
	db *pgxpool.Pool
}

func NewPostgresShopRepo(db *pgxpool.Pool) *PostgresShopRepo {
	return &PostgresShopRepo{db: db}
}

const getShopSQL = `SELECT shop_id, owner_uid, shop_name, line_config, created_at
FROM shops WHERE shop_id = $1`

func (r *PostgresShopRepo) GetShop(ctx context.Context, shopID string) (domain.Shop, error) {
	var (
		shop       domain.Shop
		lineConfig []byte
	)
	err := r.db.QueryRow(ctx, getShopSQL, shopID).Scan(
		&shop.ShopID,
		&shop.OwnerUID,
		&shop.ShopName,
		&lineConfig,
		&shop.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Shop{}, pgx.ErrNoRows
		}
		return domain.Shop{}, fmt.Errorf("get shop: %w", err)
	}
	if len(lineConfig) > 0 {
		if err := json.Unmarshal(lineConfig, &shop.LineConfig); err != nil {
			return domain.Shop{}, fmt.Errorf("decode line config: %w", err)
		}
	}
	return shop, nil
}

// PostgresMemberRepo implements MemberRepository.
type PostgresMemberRepo struct {
	db *pgxpool.Pool
}

func NewPostgresMemberRepo(db *pgxpool.Pool) *PostgresMemberRepo {
	return &PostgresMemberRepo{db: db}
}

const findMemberSQL = `SELECT id, shop_id, user_id, role, auth_provider, created_at
FROM shop_members WHERE shop_id = $1 AND user_id = $2 AND auth_provider = $3`

func (r *PostgresMemberRepo) FindMember(ctx context.Context, shopID, userID, provider string) (domain.ShopMember, error) {
	var m domain.ShopMember
	err := r.db.QueryRow(ctx, findMemberSQL, shopID, userID, provider).Scan(
		&m.ID, &m.ShopID, &m.UserID, &m.Role, &m.AuthProvider, &m.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.ShopMember{}, pgx.ErrNoRows
		}
		return domain.ShopMember{}, fmt.Errorf("find member: %w", err)
	}
	return m, nil
}

const insertMemberSQL = `INSERT INTO shop_members (id, shop_id, user_id, role, auth_provider)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (shop_id, user_id, auth_provider) DO NOTHING`

// CreateMember inserts a membership row, tolerating a concurrent duplicate:
// the unique constraint absorbs the race and the surviving row is returned.
func (r *PostgresMemberRepo) CreateMember(ctx context.Context, member domain.ShopMember) (domain.ShopMember, error) {
	_, err := r.db.Exec(ctx, insertMemberSQL,
		member.ID, member.ShopID, member.UserID, member.Role, member.AuthProvider,
	)
	if err != nil {
		return domain.ShopMember{}, fmt.Errorf("create member: %w", err)
	}
	return r.FindMember(ctx, member.ShopID, member.UserID, member.AuthProvider)
}

const listMembersSQL = `SELECT id, shop_id, user_id, role, auth_provider, created_at
FROM shop_members WHERE user_id = $1 AND auth_provider = $2
ORDER BY created_at DESC`

func (r *PostgresMemberRepo) ListMembers(ctx context.Context, userID, provider string) ([]domain.ShopMember, error) {
	rows, err := r.db.Query(ctx, listMembersSQL, userID, provider)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []domain.ShopMember
	for rows.Next() {
		var m domain.ShopMember
		if err := rows.Scan(&m.ID, &m.ShopID, &m.UserID, &m.Role, &m.AuthProvider, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

// PostgresCustomerRepo implements CustomerRepository.
type PostgresCustomerRepo struct {
	db *pgxpool.Pool
}

func NewPostgresCustomerRepo(db *pgxpool.Pool) *PostgresCustomerRepo {
	return &PostgresCustomerRepo{db: db}
}

const listCustomersSQL = `SELECT customer_id, shop_id, line_user_id, display_name, picture_url, last_active_at, created_at
FROM customers WHERE shop_id = $1 ORDER BY last_active_at DESC`

func (r *PostgresCustomerRepo) ListByShop(ctx context.Context, shopID string) ([]domain.Customer, error) {
	rows, err := r.db.Query(ctx, listCustomersSQL, shopID)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	var customers []domain.Customer
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.CustomerID, &c.ShopID, &c.LineUserID, &c.DisplayName, &c.PictureURL, &c.LastActiveAt, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	return customers, nil
}

const getCustomerSQL = `SELECT customer_id, shop_id, line_user_id, display_name, picture_url, last_active_at, created_at
FROM customers WHERE customer_id = $1 AND shop_id = $2`

func (r *PostgresCustomerRepo) GetCustomer(ctx context.Context, customerID, shopID string) (domain.Customer, error) {
	var c domain.Customer
	err := r.db.QueryRow(ctx, getCustomerSQL, customerID, shopID).Scan(
		&c.CustomerID, &c.ShopID, &c.LineUserID, &c.DisplayName, &c.PictureURL, &c.LastActiveAt, &c.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Customer{}, pgx.ErrNoRows
		}
		return domain.Customer{}, fmt.Errorf("get customer: %w", err)
	}
	return c, nil
}

// PostgresChatEventRepo implements ChatEventRepository.
type PostgresChatEventRepo struct {
	db *pgxpool.Pool
}

func NewPostgresChatEventRepo(db *pgxpool.Pool) *PostgresChatEventRepo {
	return &PostgresChatEventRepo{db: db}
}

const listHistorySQL = `SELECT id, shop_id, customer_id, role, content, timestamp
FROM chat_events WHERE shop_id = $1 AND customer_id = $2 ORDER BY timestamp ASC`

func (r *PostgresChatEventRepo) ListHistory(ctx context.Context, shopID, customerID string) ([]domain.ChatEvent, error) {
	rows, err := r.db.Query(ctx, listHistorySQL, shopID, customerID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var events []domain.ChatEvent
	for rows.Next() {
		var e domain.ChatEvent
		if err := rows.Scan(&e.ID, &e.ShopID, &e.CustomerID, &e.Role, &e.Content, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return events, nil
}

const lastEventSQL = `SELECT id, shop_id, customer_id, role, content, timestamp
FROM chat_events WHERE customer_id = $1 ORDER BY timestamp DESC LIMIT 1`

func (r *PostgresChatEventRepo) LastEvent(ctx context.Context, customerID string) (domain.ChatEvent, error) {
	var e domain.ChatEvent
	err := r.db.QueryRow(ctx, lastEventSQL, customerID).Scan(
		&e.ID, &e.ShopID, &e.CustomerID, &e.Role, &e.Content, &e.Timestamp,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.ChatEvent{}, pgx.ErrNoRows
		}
		return domain.ChatEvent{}, fmt.Errorf("last event: %w", err)
	}
	return e, nil
}

const insertEventSQL = `INSERT INTO chat_events (id, shop_id, customer_id, role, content, timestamp)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, shop_id, customer_id, role, content, timestamp`

func (r *PostgresChatEventRepo) Insert(ctx context.Context, event domain.ChatEvent) (domain.ChatEvent, error) {
	var inserted domain.ChatEvent
	err := r.db.QueryRow(ctx, insertEventSQL,
		event.ID, event.ShopID, event.CustomerID, event.Role, event.Content, event.Timestamp,
	).Scan(&inserted.ID, &inserted.ShopID, &inserted.CustomerID, &inserted.Role, &inserted.Content, &inserted.Timestamp)
	if err != nil {
		return domain.ChatEvent{}, fmt.Errorf("insert event: %w", err)
	}
	return inserted, nil
}
