package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cwrk-planet/chat-service/config"
	"github.com/cwrk-planet/chat-service/internal/badgerstore"
	"github.com/cwrk-planet/chat-service/internal/broadcast"
	"github.com/cwrk-planet/chat-service/internal/postgres"
	"github.com/cwrk-planet/chat-service/internal/security"
	"github.com/cwrk-planet/chat-service/internal/service"
)

type stores struct {
	rooms    service.RoomStore
	products service.ProductDirectory
	messages service.MessageStore

	ping  func(ctx context.Context) error
	close func()
}

func openStores(ctx context.Context, cfg config.Store, appName string) (*stores, error) {
	switch cfg.Driver {
	case "badger":
		db, err := badgerstore.Open(badgerstore.Config{Dir: cfg.Badger.Dir, InMemory: cfg.Badger.InMemory})
		if err != nil {
			return nil, fmt.Errorf("badger: %w", err)
		}
		return &stores{
			rooms:    badgerstore.NewRoomRepository(db),
			products: badgerstore.NewProductRepository(db),
			messages: badgerstore.NewMessageRepository(db),
			ping:     func(context.Context) error { return db.Ping() },
			close:    func() { _ = db.Close() },
		}, nil

	case "postgres":
		db, err := postgres.New(ctx, postgres.Config{
			DSN:             cfg.Postgres.DSN,
			MaxConns:        cfg.Postgres.MaxConns,
			MinConns:        cfg.Postgres.MinConns,
			MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
			MaxConnIdleTime: cfg.Postgres.MaxConnIdleTime,
			ApplicationName: appName,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if cfg.Postgres.Migrate {
			if err := db.Migrate(ctx); err != nil {
				db.Close()
				return nil, fmt.Errorf("postgres migrate: %w", err)
			}
			slog.Info("postgres schema applied")
		}
		return &stores{
			rooms:    postgres.NewRoomRepository(db.Pool),
			products: postgres.NewProductRepository(db.Pool),
			messages: postgres.NewMessageRepository(db.Pool),
			ping:     db.Ping,
			close:    db.Close,
		}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

func openBroadcaster(ctx context.Context, cfg config.Broadcast) (broadcast.Broadcaster, error) {
	var (
		b   broadcast.Broadcaster
		err error
	)
	switch cfg.Driver {
	case "memory":
		b = broadcast.NewHub(cfg.Buffer)
	case "redis":
		b, err = broadcast.NewRedis(ctx, cfg.RedisURL, cfg.Buffer)
	case "nats":
		b, err = broadcast.NewNATS(cfg.NATSURL, cfg.Buffer)
	default:
		err = fmt.Errorf("unknown broadcast driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	return broadcast.Instrument(b, cfg.Driver), nil
}

func newVerifier(cfg config.Auth) (*security.Verifier, error) {
	var keys security.Keys
	if cfg.PublicKeyPath != "" {
		pub, err := security.LoadRSAPublicKeyFromPEM(cfg.PublicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("auth public key: %w", err)
		}
		keys.Public = pub
	} else {
		keys.Secret = []byte(cfg.Secret)
		slog.Warn("auth: HS256 shared secret in use; configure auth.publicKeyPath in production")
	}
	if keys.Public == nil && len(keys.Secret) == 0 {
		return nil, errors.New("auth: no key")
	}
	return security.NewVerifier(keys, cfg.Issuer, cfg.Audience, cfg.ClockSkew)
}
