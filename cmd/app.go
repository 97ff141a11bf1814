package cmd

import (
	"fmt"

	"github.com/pitr/gemini-ios-sub000/internal/bridge"
	"github.com/pitr/gemini-ios-sub000/internal/identity"
	"github.com/pitr/gemini-ios-sub000/internal/infrastructure/sqlite"
	"github.com/pitr/gemini-ios-sub000/internal/tofu"
	"github.com/pitr/gemini-ios-sub000/internal/tracing"
	"github.com/pitr/gemini-ios-sub000/internal/transport"
)

// app holds the wired services for one command invocation.
type app struct {
	db     *sqlite.DB
	store  *identity.Store
	tofu   *tofu.Cache
	bridge *bridge.Bridge
}

func openStore() (*sqlite.DB, *identity.Store, error) {
	db, err := sqlite.NewDB(cfg.IdentityDB)
	if err != nil {
		return nil, nil, fmt.Errorf("opening identity database: %w", err)
	}
	return db, identity.NewStore(db.IdentityRepository()), nil
}

func openApp() (*app, error) {
	db, store, err := openStore()
	if err != nil {
		return nil, err
	}

	cache := tofu.NewCache()
	client := transport.NewClient(cache,
		transport.WithConfig(cfg.Transport()),
		transport.WithTracer(tracing.Tracer("gemini/transport")),
	)
	b := bridge.New(client,
		bridge.WithIdentities(store),
		bridge.WithDispatch(cfg.Dispatch()),
		bridge.WithTracer(tracing.Tracer("gemini/bridge")),
	)
	return &app{db: db, store: store, tofu: cache, bridge: b}, nil
}

func (a *app) Close() {
	a.bridge.Close()
	_ = a.db.Close()
}
