// Package main is the entry point for the doit CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"doit/internal/backend/doitapi"
	"doit/internal/backend/firebase"
	"doit/internal/backend/googlemaps"
	"doit/internal/cli"
	"doit/internal/commands"
	"doit/internal/config"
	"doit/internal/gateway"
	"doit/internal/location"
	"doit/internal/media"
	"doit/internal/session"
)

// mapsRequestsPerSecond bounds outbound mapping requests.
const mapsRequestsPerSecond = 5

func main() {
	// A missing .env is normal outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	previews := media.NewPreviews(nil)

	factory := func(ctx context.Context, cfg *config.Config, log *slog.Logger, onUnauthorized func()) (*commands.Deps, error) {
		return buildDeps(ctx, cfg, log, onUnauthorized, previews)
	}

	// Create dispatcher
	dispatcher := cli.NewDispatcher(commands.DefaultRegistry, factory)

	// Run and exit with code
	code := dispatcher.Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	previews.Close(context.Background())
	os.Exit(code)
}

// buildDeps wires the backend, identity, storage and mapping providers for
// one command run. Providers without credentials are left out.
func buildDeps(ctx context.Context, cfg *config.Config, log *slog.Logger, onUnauthorized func(), previews *media.Previews) (*commands.Deps, error) {
	deps := &commands.Deps{Log: log, In: os.Stdin, Previews: previews}

	baseURL, err := gateway.ResolveBaseURL(cfg.Env.APIURL, cfg.Env.Origin, cfg.Env.BackendPort)
	if err != nil {
		return nil, err
	}
	tokens := gateway.NewTokenStore(cfg.TokenPath())

	var idp *firebase.Identity
	if cfg.DemoMode() {
		log.Debug("identity provider credentials incomplete, running in demo mode")
	} else {
		idp, err = firebase.NewIdentity(ctx, firebase.IdentityOptions{
			APIKey:      cfg.Env.Firebase.APIKey,
			Tokens:      tokens,
			SessionPath: cfg.SessionPath(),
			Logger:      log.With("component", "identity"),
		})
		switch {
		case errors.Is(err, session.ErrUnavailable):
			log.Warn("identity provider unavailable", "error", err)
			idp = nil
		case err != nil:
			return nil, fmt.Errorf("identity provider: %w", err)
		}
	}

	gwOpts := gateway.Options{
		BaseURL:        baseURL,
		Tokens:         tokens,
		OnUnauthorized: onUnauthorized,
		Logger:         log.With("component", "gateway"),
	}
	if idp != nil {
		// Refresh an expired ID token before it reaches the backend.
		gwOpts.Source = idp
	}
	gw, err := gateway.New(gwOpts)
	if err != nil {
		return nil, err
	}
	log.Debug("backend resolved", "url", gw.BaseURL())
	deps.Service = doitapi.New(gw, deps.Viewer)

	if idp != nil {
		deps.Identity = idp
		store, err := firebase.NewStorage(ctx, firebase.StorageOptions{
			Bucket: cfg.Env.Firebase.StorageBucket,
			Tokens: idp,
			Logger: log.With("component", "storage"),
		})
		if err != nil {
			log.Warn("object storage unavailable", "error", err)
		} else {
			deps.Media = media.NewPipeline(store, log.With("component", "media"))
		}
	}

	var places location.Places
	if cfg.Env.MapsAPIKey != "" {
		maps, err := googlemaps.New(googlemaps.Options{
			APIKey: cfg.Env.MapsAPIKey,
			Region: cfg.Env.Region,
		})
		if err != nil {
			log.Warn("mapping provider unavailable", "error", err)
		} else {
			places = maps
		}
	}

	var locator location.Locator
	if cfg.Env.Position != "" {
		fixed, err := location.ParseFixed(cfg.Env.Position)
		if err != nil {
			log.Warn("ignoring DOIT_POSITION", "error", err)
		} else {
			locator = fixed
		}
	}

	deps.Location = location.NewResolver(places, locator, location.Options{
		Country: cfg.Env.Region,
		Limit:   rate.Limit(mapsRequestsPerSecond),
		Burst:   1,
		Logger:  log.With("component", "location"),
	})

	return deps, nil
}
