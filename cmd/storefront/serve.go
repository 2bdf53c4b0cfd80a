package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fjod/storefront/internal/blob"
	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/config"
	"github.com/fjod/storefront/internal/events"
	h "github.com/fjod/storefront/internal/http"
	"github.com/fjod/storefront/internal/identity"
	"github.com/fjod/storefront/internal/logger"
	"github.com/fjod/storefront/internal/notify"
	"github.com/fjod/storefront/internal/payment"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/internal/service"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const (
	reconcileInterval = time.Minute
	reconcileAfter    = 15 * time.Minute
	gatewayTimeout    = 15 * time.Second
)

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	// Set up MongoDB connection
	mongoDB, err := repository.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		return err
	}
	defer mongoDB.Client().Disconnect(context.Background())
	if err := repository.CreateIndexes(ctx, mongoDB); err != nil {
		return err
	}
	log.Info("connected to MongoDB", zap.String("db", cfg.MongoDBName))

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	log.Info("redis ping succeeded", zap.String("addr", cfg.RedisAddr))

	products := repository.NewProductRepository(mongoDB)
	orders := repository.NewOrderRepository(mongoDB)
	users := repository.NewUserRepository(mongoDB)

	blobs, err := newBlobStore(cfg, mongoDB)
	if err != nil {
		return err
	}

	carts := cart.NewRegistry(cart.NewRedisStorage(redisClient), cfg.CartIdleTTL, log, cart.WithNotifier(notify.ContextNotifier{}))
	defer carts.Close()

	provider := identity.NewLocalProvider(users, identity.NewRedisRevocations(redisClient), identity.Config{
		Secret:          []byte(cfg.JWTSecret),
		SessionTTL:      cfg.SessionTTL,
		FederatedIssuer: cfg.FederatedIssuer,
		FederatedSecret: []byte(cfg.FederatedSecret),
	}, log)
	defer provider.Close()

	feed := events.NewHub[events.Event]()
	defer feed.Close()
	// With kafka configured the feed is filled by the relay, so events from
	// every instance reach every admin.
	var publisher events.Publisher = events.HubPublisher{Hub: feed}
	var relay *events.KafkaRelay
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher := events.NewKafkaPublisher(events.TopicOrders, cfg.KafkaBrokers...)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
		relay = events.NewKafkaRelay(feed, log, events.TopicOrders, events.FeedGroupID(cfg.InstanceID), cfg.KafkaBrokers...)
		defer relay.Close()
		log.Info("publishing order events to kafka", zap.Strings("brokers", cfg.KafkaBrokers))
	}

	gateway := newGateway(cfg, log)

	var ledger service.Ledger
	if cfg.Payments != nil {
		l, err := openLedger(cfg.Payments)
		if err != nil {
			return err
		}
		defer l.Close()
		ledger = l
		log.Info("payment ledger enabled", zap.String("host", cfg.Payments.Host))
	}

	catalogSvc := service.NewCatalogService(products, cache.NewRedisCache(redisClient, cfg.ProductCacheTTL), log)
	orderSvc := service.NewOrderService(orders, publisher, log)
	checkoutSvc := service.NewCheckoutService(orders, gateway, ledger, publisher, notify.ContextNotifier{}, cfg.PublicBaseURL, log)
	adminSvc := service.NewAdminService(products, orders, blobs, catalogSvc, log)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if relay != nil {
		go relay.Run(ctx)
	}
	if ledger != nil {
		go checkoutSvc.RunReconciler(ctx, reconcileInterval, reconcileAfter)
	}

	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: h.NewRouter(h.Deps{
			Catalog:            catalogSvc,
			Orders:             orderSvc,
			Checkout:           checkoutSvc,
			Admin:              adminSvc,
			Carts:              carts,
			Identity:           provider,
			Blobs:              blobs,
			Feed:               feed,
			Log:                log,
			RequestTimeout:     cfg.RequestTimeout,
			MaxRequestBodySize: cfg.MaxRequestBodySize,
			SecureCookies:      strings.HasPrefix(cfg.PublicBaseURL, "https://"),
		}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("storefront starting", zap.String("port", cfg.HTTPPort), zap.String("payment_mode", cfg.PaymentMode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	// Graceful shutdown
	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	// Hijacked websocket connections are not tracked by Shutdown; closing the
	// hubs ends their streams.
	feed.Close()
	provider.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("server exited")
	return nil
}

func runMigrate(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer log.Sync()

	mongoDB, err := repository.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		return err
	}
	defer mongoDB.Client().Disconnect(context.Background())
	if err := repository.CreateIndexes(ctx, mongoDB); err != nil {
		return err
	}
	log.Info("mongodb indexes created", zap.String("db", cfg.MongoDBName))

	if cfg.Payments == nil {
		log.Info("PAYMENTS_DB_HOST not set, skipping ledger migrations")
		return nil
	}
	ledger, err := openLedger(cfg.Payments)
	if err != nil {
		return err
	}
	defer ledger.Close()
	log.Info("payment ledger migrated", zap.String("path", cfg.Payments.MigrationsDirPath))
	return nil
}

// openLedger connects to the payments database and applies pending migrations.
func openLedger(c *config.Credentials) (*payment.Ledger, error) {
	cred := &payment.Credentials{
		Host:              c.Host,
		Port:              c.Port,
		User:              c.User,
		Password:          c.Password,
		DBName:            c.DBName,
		MigrationsDirPath: c.MigrationsDirPath,
	}
	ledger, err := payment.NewLedger(cred)
	if err != nil {
		return nil, err
	}
	if err := ledger.RunMigrations(cred); err != nil {
		ledger.Close()
		return nil, err
	}
	return ledger, nil
}

func newBlobStore(cfg *config.Config, db *mongo.Database) (blob.Store, error) {
	if cfg.BlobDriver == "fs" {
		return blob.NewFSStore(cfg.UploadsDir)
	}
	return blob.NewGridFSStore(db)
}

func newGateway(cfg *config.Config, log *zap.Logger) payment.Gateway {
	if cfg.PaymentMode != "redirect" {
		log.Warn("payment gateway is simulated; orders are not charged")
		return payment.SimulatedGateway{}
	}
	client := &http.Client{
		Timeout:   gatewayTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	return payment.NewHTTPGateway(cfg.PaymentGatewayURL, client, log)
}
