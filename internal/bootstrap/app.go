// Package bootstrap turns a config.Config into connected stores, a bus, a lock and a mail
// transport, and builds the email service from them.
package bootstrap

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmehdipour/wallet-notifier/internal/broker"
	"github.com/jmehdipour/wallet-notifier/internal/config"
	"github.com/jmehdipour/wallet-notifier/internal/db"
	"github.com/jmehdipour/wallet-notifier/internal/lock"
	"github.com/jmehdipour/wallet-notifier/internal/logger"
	"github.com/jmehdipour/wallet-notifier/internal/mailer"
	"github.com/jmehdipour/wallet-notifier/internal/model"
	"github.com/jmehdipour/wallet-notifier/internal/render"
	"github.com/jmehdipour/wallet-notifier/internal/repository"
	"github.com/jmehdipour/wallet-notifier/internal/tokens"
	"github.com/jmehdipour/wallet-notifier/internal/util"
	"github.com/jmehdipour/wallet-notifier/internal/worker"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type App struct {
	Cfg config.Config
	Log *zap.Logger

	MySQL      *sqlx.DB      // nil with storage.driver=memory
	ClickHouse *sqlx.DB      // nil when clickhouse.dsn is empty
	Redis      *redis.Client // nil unless the bus or lock needs it

	Broker      broker.MessageBroker
	Wallets     repository.WalletsRepository
	Preferences repository.PreferencesRepository
	Outbox      repository.OutboxRepository
	Reports     repository.DeliveryReportsRepository // nil when reporting is disabled
	Locker      lock.Locker
	Transport   mailer.Transport
	Tokens      tokens.Registry
	Templates   render.TemplateSource

	closers []func() error
}

// New connects everything cfg asks for. On error, whatever was opened is closed again.
func New(cfg config.Config, log *zap.Logger) (*App, error) {
	app := &App{Cfg: cfg, Log: logger.Or(log)}
	if err := app.open(); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) open() error {
	if err := a.openStores(); err != nil {
		return err
	}
	if err := a.openRedis(); err != nil {
		return err
	}
	if err := a.openBroker(); err != nil {
		return err
	}
	a.openLock()

	transport, err := BuildTransport(a.Cfg)
	if err != nil {
		return err
	}
	a.Transport = transport

	a.Tokens = tokens.NewStatic(TokenList(a.Cfg.Tokens))
	templates, err := render.LoadTemplatesFile(a.Cfg.Email.TemplatesFile)
	if err != nil {
		return err
	}
	a.Templates = templates
	return nil
}

func (a *App) onClose(fn func() error) { a.closers = append(a.closers, fn) }

func (a *App) openStores() error {
	switch a.Cfg.Storage.Driver {
	case "memory":
		a.Log.Warn("using in-memory storage; outbox is not durable")
		a.Wallets = repository.NewMemoryWallets()
		a.Preferences = repository.NewMemoryPreferences()
		a.Outbox = repository.NewMemoryOutbox()
	default:
		mysqlDB, err := db.NewMySQLConnection(a.Cfg.MySQL.DSN, db.PoolFromConfig(a.Cfg.MySQL))
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		a.MySQL = mysqlDB
		a.onClose(mysqlDB.Close)
		a.Wallets = repository.NewWalletsRepository(mysqlDB)
		a.Preferences = repository.NewPreferencesRepository(mysqlDB)
		a.Outbox = repository.NewOutboxRepository(mysqlDB)
	}

	if a.Cfg.ClickHouse.DSN != "" {
		chDB, err := db.NewClickHouseConnection(a.Cfg.ClickHouse.DSN, db.PoolFromConfig(a.Cfg.ClickHouse))
		if err != nil {
			return fmt.Errorf("clickhouse connect: %w", err)
		}
		a.ClickHouse = chDB
		a.onClose(chDB.Close)
		a.Reports = repository.NewCHDeliveriesRepository(chDB)
	}
	return nil
}

// NewBus connects only the event bus (and Redis when the bus needs it), for publishers.
func NewBus(cfg config.Config, log *zap.Logger) (*App, error) {
	app := &App{Cfg: cfg, Log: logger.Or(log)}
	err := func() error {
		if cfg.Broker.Mode == "redis" {
			if err := app.connectRedis(); err != nil {
				return err
			}
		}
		return app.openBroker()
	}()
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) openRedis() error {
	if a.Cfg.Broker.Mode != "redis" && a.Cfg.Lock.Backend != "redis" {
		return nil
	}
	return a.connectRedis()
}

func (a *App) connectRedis() error {
	rdb, err := db.NewRedisClient(a.Cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis connect: %w", err)
	}
	a.Redis = rdb
	a.onClose(rdb.Close)
	return nil
}

func (a *App) openBroker() error {
	cfg := a.Cfg
	switch cfg.Broker.Mode {
	case "redis":
		a.Broker = broker.NewRedis(a.Redis, cfg.Broker.Topic, a.Log)
	case "kafka":
		a.Broker = broker.NewKafka(broker.KafkaOptions{
			Brokers:        cfg.Kafka.Brokers,
			Topic:          cfg.Broker.Topic,
			GroupID:        cfg.Kafka.GroupPrefix + "-" + strings.ToLower(util.NewID()),
			MinBytes:       cfg.Kafka.MinBytes,
			MaxBytes:       cfg.Kafka.MaxBytes,
			CommitInterval: msDuration(cfg.Kafka.CommitInterval),
		}, a.Log)
	case "nats":
		nb, err := broker.NewNATS(broker.NATSOptions{
			URL:           cfg.NATS.URL,
			Name:          cfg.NATS.Name,
			Subject:       cfg.Broker.Topic,
			ReconnectWait: cfg.NATS.ReconnectWait,
		}, a.Log)
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		a.Broker = nb
	default:
		a.Broker = broker.NewLocal(a.Log)
	}
	a.onClose(a.Broker.Close)
	return nil
}

func (a *App) openLock() {
	if a.Cfg.Lock.Backend == "redis" {
		a.Locker = lock.NewRedis(a.Redis)
		return
	}
	a.Log.Warn("using in-memory delivery lock; not shared across processes")
	a.Locker = lock.NewMemory(lock.NewStore())
}

// BuildTransport wires the enabled providers behind the failover dispatcher.
func BuildTransport(cfg config.Config) (mailer.Transport, error) {
	var provs []mailer.Provider
	for _, pc := range cfg.Providers {
		if !pc.Enabled {
			continue
		}
		switch pc.Kind {
		case "smtp":
			p, err := mailer.NewSMTPProvider(pc.Name, mailer.SMTPOptions{
				Host:          pc.Host,
				Port:          pc.Port,
				Username:      pc.Username,
				Password:      pc.Password,
				TLS:           pc.TLS,
				TimeoutMs:     pc.TimeoutMs,
				FailThreshold: pc.Breaker.FailThreshold,
				OpenForMs:     pc.Breaker.OpenForMs,
			})
			if err != nil {
				return nil, err
			}
			provs = append(provs, p)
		default:
			if strings.TrimSpace(pc.BaseURL) == "" {
				continue
			}
			provs = append(provs, mailer.NewHTTPProvider(
				pc.Name,
				strings.TrimRight(pc.BaseURL, "/"),
				pc.Path,
				pc.APIKey,
				pc.TimeoutMs,
				pc.Breaker.FailThreshold,
				pc.Breaker.OpenForMs,
			))
		}
	}
	if len(provs) == 0 {
		return nil, errors.New("no mail providers enabled in config")
	}
	return mailer.NewDispatcher(provs, cfg.Dispatcher.MaxAttempts), nil
}

// TokenList converts configured tokens to registry descriptors.
func TokenList(in []config.TokenConfig) []model.TokenDescriptor {
	out := make([]model.TokenDescriptor, 0, len(in))
	for _, t := range in {
		out = append(out, model.TokenDescriptor{
			Chain:    strings.ToLower(t.Chain),
			Address:  t.Address,
			Symbol:   t.Symbol,
			Decimals: t.Decimals,
		})
	}
	return out
}

// EmailOptions maps config onto worker options.
func EmailOptions(cfg config.Config) (worker.Options, error) {
	suppress := make([]model.Kind, 0, len(cfg.Recipients.SingleSignerSuppress))
	for _, s := range cfg.Recipients.SingleSignerSuppress {
		k, ok := model.ParseKind(s)
		if !ok {
			return worker.Options{}, fmt.Errorf("recipients.single_signer_suppress: unknown kind %q", s)
		}
		suppress = append(suppress, k)
	}
	return worker.Options{
		From:                   cfg.Email.From,
		SubjectPrefix:          cfg.Email.SubjectPrefix,
		DefaultLanguage:        cfg.Email.DefaultLanguage,
		TxURLTemplates:         cfg.Email.TxURLTemplates,
		MinSignersForProposals: cfg.Recipients.MinSignersForProposals,
		SingleSignerSuppress:   suppress,
		LockPrefix:             cfg.Lock.KeyPrefix,
		LockTTL:                cfg.Lock.TTL,
		SendTimeout:            cfg.Email.SendTimeout,
		Workers:                cfg.Worker.Workers,
		QueueSize:              cfg.Worker.QueueSize,
		RecipientConcurrency:   cfg.Worker.RecipientConcurrency,
	}, nil
}

// EmailService builds the consumer on top of the app's connections. reports may be nil.
func (a *App) EmailService(reports worker.ReportSink) (*worker.EmailService, error) {
	opts, err := EmailOptions(a.Cfg)
	if err != nil {
		return nil, err
	}
	return worker.NewEmailService(worker.Dependencies{
		Broker:      a.Broker,
		Wallets:     a.Wallets,
		Preferences: a.Preferences,
		Transport:   a.Transport,
		Locker:      a.Locker,
		Outbox:      a.Outbox,
		Tokens:      a.Tokens,
		Templates:   a.Templates,
		Reports:     reports,
		Logger:      a.Log,
	}, opts)
}

// Close releases connections in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func msDuration(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }
