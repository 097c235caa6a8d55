package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"LIBRA-backend/internal/catalog"
	"LIBRA-backend/internal/ledger"
	"LIBRA-backend/internal/lending"
	"LIBRA-backend/internal/members"
	"LIBRA-backend/internal/platform/auth"
	"LIBRA-backend/internal/platform/clock"
	"LIBRA-backend/internal/platform/config"
	"LIBRA-backend/internal/platform/db"
	"LIBRA-backend/internal/seed"
)

const devSecret = "libra-dev-secret"

// app はサービス一式。serve / seed / member add で共有する
type app struct {
	cfg     *config.Config
	conn    *sql.DB // memory ドライバでは nil
	clock   clock.Clock
	books   *catalog.Service
	members *members.Service
	ledger  *ledger.Ledger
	lending *lending.Service
	tokens  *auth.Issuer
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	fine, err := cfg.Lending.FinePerDayAmount()
	if err != nil {
		return nil, err
	}
	policy := ledger.Policy{
		LoanPeriod:  cfg.Lending.LoanPeriod(),
		FinePerDay:  fine,
		MaxRenewals: cfg.Lending.Renewals(),
	}

	a := &app{cfg: cfg, clock: clock.Real{}}

	var (
		bs catalog.Store
		ms members.Store
		ls ledger.Store
	)
	if cfg.DB.Driver == config.DriverMemory {
		bs, ms, ls = catalog.NewMemStore(), members.NewMemStore(), ledger.NewMemStore()
		log.Printf("[INFO] using in-memory stores (data is lost on exit)")
	} else {
		conn, err := db.Connect(cfg.DB)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx, conn, cfg.DB.Driver); err != nil {
			conn.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		a.conn = conn
		bs, ms, ls = catalog.NewSQLStore(conn), members.NewSQLStore(conn), ledger.NewSQLStore(conn)
		log.Printf("[INFO] connected to DB: driver=%s", cfg.DB.Driver)
	}

	a.books = catalog.NewService(bs, a.clock)
	a.members = members.NewService(ms, a.clock)
	a.ledger = ledger.New(ls, policy, a.clock)
	a.lending = lending.NewService(a.books, a.members, a.ledger, a.clock)

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		log.Printf("[WARN] auth.jwt_secret is empty, using the built-in dev secret")
		secret = devSecret
	}
	a.tokens = auth.NewIssuer([]byte(secret), cfg.Auth.TokenTTL, a.clock)

	if cfg.DB.Driver == config.DriverMemory {
		if _, err := a.seed(ctx); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *app) seed(ctx context.Context) (seed.Result, error) {
	fx, err := seed.Default()
	if err != nil {
		return seed.Result{}, err
	}
	return seed.Apply(ctx, fx, a.books, a.members, a.lending, a.clock.Now().Truncate(time.Second))
}

func (a *app) Close() {
	if a.conn != nil {
		a.conn.Close()
	}
}
