package service

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chonlathan-cloud/ProjectMIABackend/internal/adapter/line"
	"github.com/chonlathan-cloud/ProjectMIABackend/internal/config"
	"github.com/chonlathan-cloud/ProjectMIABackend/internal/domain"
	"github.com/chonlathan-cloud/ProjectMIABackend/internal/membership"
	"github.com/chonlathan-cloud/ProjectMIABackend/internal/token"
)

type fakeShopRepo struct {
	shops map[string]domain.Shop
}

func (f *fakeShopRepo) GetShop(_ context.Context, shopID string) (domain.Shop, error) {
	shop, ok := f.shops[shopID]
	if !ok {
		return domain.Shop{}, pgx.ErrNoRows
	}
	return shop, nil
}

type fakeMemberRepo struct {
	mu      sync.Mutex
	rows    []domain.ShopMember
	inserts int
}

func (f *fakeMemberRepo) FindMember(_ context.Context, shopID, userID, provider string) (domain.ShopMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.ShopID == shopID && row.UserID == userID && row.AuthProvider == provider {
			return row, nil
		}
	}
	return domain.ShopMember{}, pgx.ErrNoRows
}

func (f *fakeMemberRepo) CreateMember(_ context.Context, member domain.ShopMember) (domain.ShopMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.ShopID == member.ShopID && row.UserID == member.UserID && row.AuthProvider == member.AuthProvider {
			return row, nil
		}
	}
	f.inserts++
	f.rows = append(f.rows, member)
	return member, nil
}

func (f *fakeMemberRepo) ListMembers(_ context.Context, userID, provider string) ([]domain.ShopMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ShopMember
	// Mirrors the store's created-at-descending ordering.
	for i := len(f.rows) - 1; i >= 0; i-- {
		row := f.rows[i]
		if row.UserID == userID && row.AuthProvider == provider {
			out = append(out, row)
		}
	}
	return out, nil
}

type fakeExchanger struct {
	profile     line.Profile
	exchangeErr error
	lastState   string
}

func (f *fakeExchanger) AuthorizeURL(state string) string {
	f.lastState = state
	return "https://chat.example/authorize?state=" + url.QueryEscape(state)
}

func (f *fakeExchanger) ExchangeCode(_ context.Context, _ string) (*line.Profile, error) {
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	profile := f.profile
	return &profile, nil
}

type fakeStateGuard struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func (f *fakeStateGuard) Consume(_ context.Context, stateID string, _ time.Duration) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	if f.seen[stateID] {
		return false, nil
	}
	f.seen[stateID] = true
	return true, nil
}

type fakeMinter struct {
	lastUID    string
	lastClaims map[string]any
}

func (f *fakeMinter) CustomToken(_ context.Context, uid string, claims map[string]any) (string, error) {
	f.lastUID = uid
	f.lastClaims = claims
	return "custom-token-for-" + uid, nil
}

type sessionFixture struct {
	svc       *SessionService
	codec     *token.Codec
	shops     *fakeShopRepo
	members   *fakeMemberRepo
	exchanger *fakeExchanger
	minter    *fakeMinter
	states    *fakeStateGuard
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	cfg := config.Config{
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		FrontendBaseURL: "https://app.example",
	}
	codec := token.NewCodec([]byte("test-secret"), "mia-core")
	shops := &fakeShopRepo{shops: map[string]domain.Shop{}}
	members := &fakeMemberRepo{}
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	resolver := membership.NewResolver(members, node, zap.NewNop())
	exchanger := &fakeExchanger{}
	minter := &fakeMinter{}
	states := &fakeStateGuard{}
	svc := NewSessionService(codec, shops, resolver, exchanger, states, minter, cfg, zap.NewNop())
	return &sessionFixture{svc: svc, codec: codec, shops: shops, members: members, exchanger: exchanger, minter: minter, states: states}
}

func (f *sessionFixture) addShop(shopID, ownerUID, name string) {
	f.shops.shops[shopID] = domain.Shop{ShopID: shopID, OwnerUID: ownerUID, ShopName: name}
}

func (f *sessionFixture) addMembership(shopID, userID, role string) {
	f.members.rows = append(f.members.rows, domain.ShopMember{
		ID: int64(len(f.members.rows) + 1), ShopID: shopID, UserID: userID, Role: role, AuthProvider: domain.ProviderLine,
	})
}

func TestLoginWithShopCreatesOwnerOnce(t *testing.T) {
	f := newSessionFixture(t)
	f.addShop("S1", "fb-owner", "First Shop")
	profile := line.Profile{UserID: "U1", DisplayName: "Alice"}

	result, err := f.svc.Login(context.Background(), profile, "S1")
	require.NoError(t, err)
	require.False(t, result.RequiresSelection)
	require.NotEmpty(t, result.Token)
	require.NotEmpty(t, result.RefreshToken)
	require.Equal(t, "S1", result.ShopID)
	require.Equal(t, domain.RoleOwner, result.Role)

	again, err := f.svc.Login(context.Background(), profile, "S1")
	require.NoError(t, err)
	require.Equal(t, "S1", again.ShopID)
	require.Equal(t, domain.RoleOwner, again.Role)
	require.Equal(t, 1, f.members.inserts)

	claims, err := f.codec.Verify(result.Token, token.KindAccess)
	require.NoError(t, err)
	require.Equal(t, "U1", claims.Subject)
	require.Equal(t, domain.ProviderLine, claims.Provider)
	require.Equal(t, "S1", claims.ShopID)
}

func TestLoginUnknownShop(t *testing.T) {
	f := newSessionFixture(t)

	_, err := f.svc.Login(context.Background(), line.Profile{UserID: "U1"}, "missing")
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, 404, authErr.Status)
}

func TestLoginWithoutShopHint(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	_, err := f.svc.Login(ctx, line.Profile{UserID: "U1"}, "")
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, 403, authErr.Status)

	f.addShop("S1", "fb-owner", "First Shop")
	f.addMembership("S1", "U1", domain.RoleOwner)

	result, err := f.svc.Login(ctx, line.Profile{UserID: "U1"}, "")
	require.NoError(t, err)
	require.False(t, result.RequiresSelection)
	require.Equal(t, "S1", result.ShopID)

	f.addShop("S2", "fb-owner", "Second Shop")
	f.addMembership("S2", "U1", domain.RoleStaff)

	result, err = f.svc.Login(ctx, line.Profile{UserID: "U1"}, "")
	require.NoError(t, err)
	require.True(t, result.RequiresSelection)
	require.Empty(t, result.Token)
	require.Empty(t, result.RefreshToken)
	require.Len(t, result.Shops, 2)
	byShop := map[string]ShopChoice{}
	for _, choice := range result.Shops {
		byShop[choice.ShopID] = choice
	}
	require.Equal(t, "First Shop", byShop["S1"].ShopName)
	require.Equal(t, domain.RoleStaff, byShop["S2"].Role)
}

func TestSelectCreatesMembershipForExistingShop(t *testing.T) {
	f := newSessionFixture(t)
	f.addShop("S3", "fb-owner", "Third Shop")

	result, err := f.svc.Select(context.Background(), line.Profile{UserID: "U1"}, "S3")
	require.NoError(t, err)
	require.Equal(t, domain.RoleOwner, result.Role)
	require.Equal(t, 1, f.members.inserts)
}

func TestRefreshRotation(t *testing.T) {
	f := newSessionFixture(t)
	f.addShop("S1", "fb-owner", "First Shop")

	login, err := f.svc.Login(context.Background(), line.Profile{UserID: "U1", DisplayName: "Alice"}, "S1")
	require.NoError(t, err)

	rotated, err := f.svc.Refresh(context.Background(), login.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, rotated.Token)
	require.NotEmpty(t, rotated.RefreshToken)
	require.Equal(t, "S1", rotated.ShopID)
	require.Equal(t, "Alice", rotated.DisplayName)

	claims, err := f.codec.Verify(rotated.RefreshToken, token.KindRefresh)
	require.NoError(t, err)
	require.Equal(t, "U1", claims.Subject)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	f := newSessionFixture(t)
	f.addShop("S1", "fb-owner", "First Shop")

	login, err := f.svc.Login(context.Background(), line.Profile{UserID: "U1"}, "S1")
	require.NoError(t, err)

	for _, raw := range []string{"", "garbage", login.Token} {
		result, err := f.svc.Refresh(context.Background(), raw)
		require.Nil(t, result)
		var authErr *AuthError
		require.ErrorAs(t, err, &authErr)
		require.Equal(t, 401, authErr.Status)
	}
}

func TestBootstrapLink(t *testing.T) {
	f := newSessionFixture(t)

	link, err := f.codec.Issue(token.Claims{ShopID: "S1"}, token.KindLoginLink, time.Minute)
	require.NoError(t, err)

	authorizeURL, err := f.svc.BootstrapLink(context.Background(), link)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(authorizeURL, "https://chat.example/authorize?state="))

	state, err := f.codec.Verify(f.exchanger.lastState, token.KindOAuthState)
	require.NoError(t, err)
	require.Equal(t, "S1", state.ShopID)
	require.NotEmpty(t, state.JTI)
}

func TestBootstrapLinkRejectsBadTokens(t *testing.T) {
	f := newSessionFixture(t)

	noShop, err := f.codec.Issue(token.Claims{}, token.KindLoginLink, time.Minute)
	require.NoError(t, err)
	wrongKind, err := f.codec.Issue(token.Claims{ShopID: "S1"}, token.KindAccess, time.Minute)
	require.NoError(t, err)

	for _, raw := range []string{"garbage", noShop, wrongKind} {
		_, err := f.svc.BootstrapLink(context.Background(), raw)
		var authErr *AuthError
		require.ErrorAs(t, err, &authErr)
		require.Equal(t, 401, authErr.Status)
	}
}

func TestCompleteCallbackHappyPath(t *testing.T) {
	f := newSessionFixture(t)
	f.addShop("S1", "fb-owner", "First Shop")
	f.exchanger.profile = line.Profile{UserID: "U1", DisplayName: "Alice"}

	state, err := f.codec.Issue(token.Claims{ShopID: "S1", JTI: "jti-1"}, token.KindOAuthState, time.Minute)
	require.NoError(t, err)

	result, err := f.svc.CompleteCallback(context.Background(), "auth-code", state)
	require.NoError(t, err)
	require.NotEmpty(t, result.RefreshToken)

	redirect, err := url.Parse(result.RedirectURL)
	require.NoError(t, err)
	require.Equal(t, "app.example", redirect.Host)
	require.Equal(t, "S1", redirect.Query().Get("shopId"))
	require.NotEmpty(t, redirect.Query().Get("token"))
	require.Equal(t, 1, f.members.inserts)
}

func TestCompleteCallbackRejectsReplayedState(t *testing.T) {
	f := newSessionFixture(t)
	f.addShop("S1", "fb-owner", "First Shop")
	f.exchanger.profile = line.Profile{UserID: "U1"}

	state, err := f.codec.Issue(token.Claims{ShopID: "S1", JTI: "jti-1"}, token.KindOAuthState, time.Minute)
	require.NoError(t, err)

	_, err = f.svc.CompleteCallback(context.Background(), "auth-code", state)
	require.NoError(t, err)

	_, err = f.svc.CompleteCallback(context.Background(), "auth-code", state)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, 401, authErr.Status)
}

func TestCompleteCallbackInvalidState(t *testing.T) {
	f := newSessionFixture(t)

	expired, err := f.codec.Issue(token.Claims{ShopID: "S1"}, token.KindOAuthState, -time.Minute)
	require.NoError(t, err)
	wrongKind, err := f.codec.Issue(token.Claims{ShopID: "S1"}, token.KindAccess, time.Minute)
	require.NoError(t, err)

	for _, raw := range []string{"garbage", expired, wrongKind} {
		_, err := f.svc.CompleteCallback(context.Background(), "auth-code", raw)
		var authErr *AuthError
		require.ErrorAs(t, err, &authErr)
		require.Equal(t, 401, authErr.Status)
	}
}

func TestCompleteCallbackFallsBackToRecentMembership(t *testing.T) {
	f := newSessionFixture(t)
	f.addShop("S1", "fb-owner", "First Shop")
	f.addShop("S2", "fb-owner", "Second Shop")
	f.addMembership("S1", "U1", domain.RoleOwner)
	f.addMembership("S2", "U1", domain.RoleStaff)
	f.exchanger.profile = line.Profile{UserID: "U1"}

	state, err := f.codec.Issue(token.Claims{JTI: "jti-1"}, token.KindOAuthState, time.Minute)
	require.NoError(t, err)

	result, err := f.svc.CompleteCallback(context.Background(), "auth-code", state)
	require.NoError(t, err)

	redirect, err := url.Parse(result.RedirectURL)
	require.NoError(t, err)
	require.Equal(t, "S2", redirect.Query().Get("shopId"))
}

func TestCompleteCallbackNoAccessRedirect(t *testing.T) {
	f := newSessionFixture(t)
	f.exchanger.profile = line.Profile{UserID: "U-nobody"}

	state, err := f.codec.Issue(token.Claims{JTI: "jti-1"}, token.KindOAuthState, time.Minute)
	require.NoError(t, err)

	result, err := f.svc.CompleteCallback(context.Background(), "auth-code", state)
	require.NoError(t, err)
	require.Empty(t, result.RefreshToken)

	redirect, err := url.Parse(result.RedirectURL)
	require.NoError(t, err)
	require.Equal(t, "no_access", redirect.Query().Get("error"))
}

func TestFirebaseBridge(t *testing.T) {
	f := newSessionFixture(t)
	f.addShop("S1", "fb-owner", "First Shop")

	login, err := f.svc.Login(context.Background(), line.Profile{UserID: "U1"}, "S1")
	require.NoError(t, err)

	custom, err := f.svc.FirebaseBridge(context.Background(), login.Token)
	require.NoError(t, err)
	require.Equal(t, "custom-token-for-line:U1", custom)
	require.Equal(t, "line:U1", f.minter.lastUID)
	require.Equal(t, "S1", f.minter.lastClaims["shop_id"])

	_, err = f.svc.FirebaseBridge(context.Background(), login.RefreshToken)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, 401, authErr.Status)
}
