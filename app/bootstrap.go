package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/johnp2003/captify-ai/app/config"
	"github.com/johnp2003/captify-ai/app/generate"
	"github.com/johnp2003/captify-ai/app/logger"
	"github.com/johnp2003/captify-ai/app/store"
	"github.com/johnp2003/captify-ai/auth"
)

// Deps are the long-lived connections shared by the server and the operator CLI.
type Deps struct {
	Store   *store.Store
	Redis   *redis.Client
	Billing *Billing
}

// OpenDeps connects to Postgres and Redis and builds the billing stack.
func OpenDeps(ctx context.Context, cfg *config.Config, log logger.Logger) (*Deps, error) {
	st, err := OpenStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	rdb, err := OpenRedis(ctx, cfg, log)
	if err != nil {
		st.Close()
		return nil, err
	}
	d := &Deps{Store: st, Redis: rdb}
	d.Billing, err = NewBilling(ctx, cfg, st, rdb, log)
	if err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func (d *Deps) Close() error {
	var errs []error
	if d.Redis != nil {
		errs = append(errs, d.Redis.Close())
	}
	if d.Store != nil {
		errs = append(errs, d.Store.Close())
	}
	return errors.Join(errs...)
}

// Bootstrap builds a ready-to-route Server. The returned Deps must be closed by the caller.
func Bootstrap(ctx context.Context, cfg *config.Config, log logger.Logger) (*Server, *Deps, error) {
	deps, err := OpenDeps(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}

	if cfg.Generate.GeminiAPIKey == "" {
		log.Warn("GEMINI_API_KEY not set; generation requests will fail", nil)
	}
	model := generate.NewGeminiClient(
		cfg.Generate.GeminiAPIKey,
		cfg.Generate.Model,
		cfg.Generate.BaseURL,
		cfg.Generate.Timeout,
	)
	generator := generate.NewService(
		model,
		deps.Store,
		cfg.Generate.PointsPerGeneration,
		cfg.Generate.MaxImageBytes,
		log.With(map[string]interface{}{"component": "generate"}),
	)

	s := &Server{
		Users:         deps.Store,
		Generator:     generator,
		Checkout:      deps.Billing.Processor,
		Reconciler:    deps.Billing.Reconciler,
		Plans:         deps.Billing.Plans,
		Log:           log,
		FrontendURL:   cfg.App.FrontendURL,
		SignupPoints:  cfg.Generate.SignupPoints,
		MaxImageBytes: cfg.Generate.MaxImageBytes,
		Ready:         deps.Store.Ping,
	}

	switch {
	case cfg.Auth.Disabled && cfg.IsLocal():
		log.Warn("AUTH_DISABLED set; every request runs as "+auth.LocalSubject, nil)
		s.DisableAuth = true
	default:
		if cfg.Auth.Disabled {
			log.Warn("AUTH_DISABLED ignored outside APP_ENV=local", map[string]interface{}{"env": cfg.App.Env})
		}
		s.Verifier, err = auth.NewVerifier(cfg.Auth.Issuer, cfg.Auth.JWKSURL, cfg.Auth.AuthorizedParties)
		if err != nil {
			deps.Close()
			return nil, nil, fmt.Errorf("clerk verifier: %w", err)
		}
	}

	return s, deps, nil
}
