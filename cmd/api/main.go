package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/chonlathan-cloud/ProjectMIABackend/internal/access"
	cacheadapter "github.com/chonlathan-cloud/ProjectMIABackend/internal/adapter/cache"
	firebaseadapter "github.com/chonlathan-cloud/ProjectMIABackend/internal/adapter/firebase"
	lineadapter "github.com/chonlathan-cloud/ProjectMIABackend/internal/adapter/line"
	"github.com/chonlathan-cloud/ProjectMIABackend/internal/bus"
	"github.com/chonlathan-cloud/ProjectMIABackend/internal/config"
	httptransport "github.com/chonlathan-cloud/ProjectMIABackend/internal/http"
	"github.com/chonlathan-cloud/ProjectMIABackend/internal/http/handler"
	httpmiddleware "github.com/chonlathan-cloud/ProjectMIABackend/internal/http/middleware"
	"github.com/chonlathan-cloud/ProjectMIABackend/internal/membership"
	"github.com/chonlathan-cloud/ProjectMIABackend/internal/repository"
	"github.com/chonlathan-cloud/ProjectMIABackend/internal/server"
	"github.com/chonlathan-cloud/ProjectMIABackend/internal/service"
	"github.com/chonlathan-cloud/ProjectMIABackend/internal/stream"
	"github.com/chonlathan-cloud/ProjectMIABackend/internal/telemetry"
	"github.com/chonlathan-cloud/ProjectMIABackend/internal/token"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newPGXPool,
			newShopRepository,
			newMemberRepository,
			newCustomerRepository,
			newChatEventRepository,
			newRedisClient,
			newStateGuard,
			newTokenCodec,
			newFirebaseClient,
			newLoginExchanger,
			newPusher,
			newBus,
			newStreamBroker,
			newMembershipResolver,
			newSessionService,
			newInboxService,
			newAccessGuard,
			newAuthMiddleware,
			newRateLimiter,
			newAuthHandler,
			newInboxHandler,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newShopRepository(pool *pgxpool.Pool) repository.ShopRepository {
	return repository.NewPostgresShopRepo(pool)
}

func newMemberRepository(pool *pgxpool.Pool) repository.MemberRepository {
	return repository.NewPostgresMemberRepo(pool)
}

func newCustomerRepository(pool *pgxpool.Pool) repository.CustomerRepository {
	return repository.NewPostgresCustomerRepo(pool)
}

func newChatEventRepository(pool *pgxpool.Pool) repository.ChatEventRepository {
	return repository.NewPostgresChatEventRepo(pool)
}

func newRedisClient(lc fx.Lifecycle, cfg config.Config) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func newStateGuard(client redis.UniversalClient) cacheadapter.StateGuard {
	return cacheadapter.NewRedisStateGuard(client)
}

func newTokenCodec(cfg config.Config) *token.Codec {
	return token.NewCodec([]byte(cfg.JWTSecret), cfg.JWTIssuer)
}

func newFirebaseClient(cfg config.Config) (*firebaseadapter.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return firebaseadapter.NewClient(ctx, cfg.FirebaseCredentials)
}

func newLoginExchanger(cfg config.Config) lineadapter.LoginExchanger {
	return lineadapter.NewLoginClient(nil, cfg.LineChannelID, cfg.LineChannelSecret, cfg.LineRedirectURI)
}

func newPusher() lineadapter.Pusher {
	return lineadapter.NewMessagingPusher()
}

func newBus(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (bus.Bus, error) {
	kafkaBus, err := bus.NewKafkaBus(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupPrefix, logger)
	if err != nil {
		return nil, fmt.Errorf("kafka bus: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return kafkaBus.Close()
		},
	})
	return kafkaBus, nil
}

func newStreamBroker(b bus.Bus, cfg config.Config, logger *zap.Logger) *stream.Broker {
	return stream.NewBroker(b, cfg.StreamPollInterval, logger)
}

func newMembershipResolver(members repository.MemberRepository, node *snowflake.Node, logger *zap.Logger) *membership.Resolver {
	return membership.NewResolver(members, node, logger)
}

func newSessionService(codec *token.Codec, shops repository.ShopRepository, memberships *membership.Resolver, exchanger lineadapter.LoginExchanger, states cacheadapter.StateGuard, client *firebaseadapter.Client, cfg config.Config, logger *zap.Logger) *service.SessionService {
	return service.NewSessionService(codec, shops, memberships, exchanger, states, client, cfg, logger)
}

func newInboxService(customers repository.CustomerRepository, events repository.ChatEventRepository, pusher lineadapter.Pusher, b bus.Bus, node *snowflake.Node, logger *zap.Logger) *service.InboxService {
	return service.NewInboxService(customers, events, pusher, b, node, logger)
}

func newAccessGuard(client *firebaseadapter.Client, codec *token.Codec, shops repository.ShopRepository, memberships *membership.Resolver, logger *zap.Logger) *access.Guard {
	return access.NewGuard(client, codec, shops, memberships, logger)
}

func newAuthMiddleware(guard *access.Guard) *httpmiddleware.Auth {
	return &httpmiddleware.Auth{Guard: guard}
}

func newRateLimiter(cfg config.Config) *httpmiddleware.RateLimiter {
	return httpmiddleware.NewRateLimiter(cfg.RateLimitRPM)
}

func newAuthHandler(sessions *service.SessionService, cfg config.Config, logger *zap.Logger) *handler.AuthHandler {
	return &handler.AuthHandler{Sessions: sessions, Config: cfg, Logger: logger}
}

func newInboxHandler(inbox *service.InboxService, guard *access.Guard, broker *stream.Broker, cfg config.Config, logger *zap.Logger) *handler.InboxHandler {
	return &handler.InboxHandler{Inbox: inbox, Guard: guard, Broker: broker, Config: cfg, Logger: logger}
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
