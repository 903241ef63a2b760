package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/auth"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/checkout"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/config"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/currency"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/db"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/dedup"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/events"
	httpapi "github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/http"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/idempotency"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/inventory"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/metrics"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/money"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/order"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/payment"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/sequence"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/txn"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[checkout-engine] ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	if err := cfg.Validate(); err != nil {
		logger.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatalf("checkout-engine: %v", err)
	}
	logger.Println("stopped")
}

func run(ctx context.Context, cfg config.Config, logger *log.Logger) error {
	// DB
	if cfg.RunMigrations {
		if err := db.RunMigrations(cfg.DatabaseDSN, logger); err != nil {
			return err
		}
	}
	database, err := db.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer database.Close()

	pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("open pgx pool: %w", err)
	}
	defer pool.Close()

	registry, err := currency.LoadRegistry(ctx, database)
	if err != nil {
		return err
	}
	base, err := registry.Lookup(cfg.BaseCurrency)
	if err != nil {
		return fmt.Errorf("base currency: %w", err)
	}

	m := metrics.New()

	// Engine
	runner := txn.NewCoordinator(database, logger,
		txn.WithMaxAttempts(cfg.TxMaxAttempts),
		txn.WithObserver(m),
	)
	rates, err := rateSource(cfg)
	if err != nil {
		return err
	}
	shipping, err := shippingCatalog(cfg, base)
	if err != nil {
		return err
	}
	tax, err := checkout.NewFlatRateTax(cfg.TaxRate)
	if err != nil {
		return err
	}
	gateway, err := paymentGateway(cfg)
	if err != nil {
		return err
	}

	orders := order.NewRepository(database, registry)
	outbox := inventory.NewOutbox()
	ledger := cart.NewLedger(runner, cart.NewRepository(registry), base, cfg.MaxLineQuantity)
	assembler := checkout.NewAssembler(checkout.Deps{
		Runner:   runner,
		Carts:    ledger,
		Orders:   orders,
		Outbox:   outbox,
		Rates:    currency.NewConverter(rates, registry),
		Shipping: shipping,
		Tax:      tax,
		Base:     base,
		Observer: m,
	})
	payments := payment.NewCoordinator(payment.Deps{
		Runner:         runner,
		Orders:         orders,
		Payments:       payment.NewRepository(registry),
		Gateway:        gateway,
		Outbox:         outbox,
		GatewayTimeout: cfg.PaymentGatewayTimeout,
		Observer:       m,
	})

	// RabbitMQ
	var rabbit *amqp.Connection
	if cfg.NeedsRabbit() {
		rabbit, err = events.Dial(cfg.RabbitURL)
		if err != nil {
			return err
		}
		defer rabbit.Close()
	}

	notifier, closeNotifier, err := inventoryNotifier(cfg, rabbit, sequence.NewCounter(database, events.InventoryStream), logger)
	if err != nil {
		return err
	}
	defer closeNotifier()

	g, gctx := errgroup.WithContext(ctx)

	relay := inventory.NewRelay(pool, notifier, logger,
		inventory.WithInterval(cfg.OutboxPollInterval),
		inventory.WithBatchSize(cfg.OutboxBatchSize),
		inventory.WithMaxDeliveries(cfg.OutboxMaxDeliveries),
		inventory.WithRelayObserver(m),
	)
	g.Go(func() error { return relay.Run(gctx) })

	if cfg.ConsumePaymentStatus {
		ch, err := rabbit.Channel()
		if err != nil {
			return fmt.Errorf("open consumer channel: %w", err)
		}
		defer ch.Close()

		handler := events.PaymentStatusHandler(payments, dedup.NewCheckpoints(database, events.PaymentStatusConsumer), logger)
		done, err := events.StartConsumer(gctx, ch, events.PaymentStatusRoutingKey, handler, logger)
		if err != nil {
			return err
		}
		g.Go(func() error {
			<-done
			if gctx.Err() == nil {
				return errors.New("payment status consumer stopped")
			}
			return nil
		})
	}

	// HTTP
	verifier, err := auth.NewJWTVerifier(cfg.JWTSecret)
	if err != nil {
		return err
	}
	var idem idempotency.Store
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		idem = idempotency.NewRedisStore(rdb, cfg.IdempotencyTTL)
	}

	handler := httpapi.NewHandler(httpapi.HandlerDeps{
		Carts:         ledger,
		Checkout:      assembler,
		Orders:        orders,
		Payments:      payments,
		Idempotency:   idem,
		WebhookSecret: cfg.WebhookSecret,
		Logger:        logger,
	})
	router := httpapi.NewRouter(handler, httpapi.RouterConfig{Verifier: verifier, Metrics: m, Logger: logger})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(router, "checkout-engine"),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	g.Go(func() error {
		logger.Printf("checkout-engine listening on :%s (sink=%s, gateway=%s)", cfg.Port, cfg.InventorySink, gateway.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Println("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func rateSource(cfg config.Config) (currency.RateSource, error) {
	if cfg.RatesURL != "" {
		return currency.NewHTTPRateSource(cfg.RatesURL, &http.Client{Timeout: 5 * time.Second})
	}
	return currency.ParseStaticRates(cfg.StaticRates)
}

func shippingCatalog(cfg config.Config, base money.Currency) (*checkout.ShippingCatalog, error) {
	if cfg.ShippingMethods == "" {
		return checkout.DefaultShippingCatalog(base), nil
	}
	return checkout.ParseShippingCatalog(cfg.ShippingMethods, base)
}

func paymentGateway(cfg config.Config) (payment.Gateway, error) {
	if cfg.PaymentGateway == config.GatewayHTTP {
		return payment.NewHTTPGateway(cfg.PaymentGatewayURL, &http.Client{Timeout: cfg.PaymentGatewayTimeout})
	}
	return payment.SandboxGateway{}, nil
}

func inventoryNotifier(cfg config.Config, rabbit *amqp.Connection, seq sequence.Counter, logger *log.Logger) (inventory.Notifier, func(), error) {
	switch cfg.InventorySink {
	case config.SinkRabbitMQ:
		ch, err := rabbit.Channel()
		if err != nil {
			return nil, nil, fmt.Errorf("open publisher channel: %w", err)
		}
		pub, err := events.NewPublisher(ch, seq)
		if err != nil {
			_ = ch.Close()
			return nil, nil, err
		}
		return pub, func() { _ = ch.Close() }, nil
	case config.SinkKafka:
		k := events.NewKafkaNotifier(events.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic))
		return k, func() { closeQuietly(k, logger) }, nil
	default:
		return inventory.NewLogNotifier(logger), func() {}, nil
	}
}

func closeQuietly(c io.Closer, logger *log.Logger) {
	if err := c.Close(); err != nil {
		logger.Printf("close: %v", err)
	}
}
