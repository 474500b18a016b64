package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/haukened/rr-fwd/internal/dns/common/clock"
	"github.com/haukened/rr-fwd/internal/dns/common/log"
	"github.com/haukened/rr-fwd/internal/dns/config"
	"github.com/haukened/rr-fwd/internal/dns/gateways/transport"
	"github.com/haukened/rr-fwd/internal/dns/gateways/upstream"
	"github.com/haukened/rr-fwd/internal/dns/gateways/wire"
	"github.com/haukened/rr-fwd/internal/dns/repos/blocklist"
	"github.com/haukened/rr-fwd/internal/dns/repos/blocklist/bloom"
	"github.com/haukened/rr-fwd/internal/dns/repos/blocklist/bolt"
	"github.com/haukened/rr-fwd/internal/dns/repos/blocklist/lru"
	"github.com/haukened/rr-fwd/internal/dns/services/forwarder"
)

const (
	// Version information
	version = "0.1.0-dev"
	appName = "rr-fwdd"

	defaultShutdownTimeout = 10 * time.Second
)

// Application holds all the components of the forwarder
type Application struct {
	config    *config.AppConfig
	transport transport.ServerTransport
	forwarder *forwarder.Forwarder
	upstream  upstream.Target
	blocklist blocklist.Repository
	loader    *blocklist.Loader // nil without blocklist files
	closers   []io.Closer
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	if err := applyFlags(cfg, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(2)
	}

	if err := log.Configure(cfg.Env, cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info(map[string]any{
		"version":   version,
		"env":       cfg.Env,
		"log_level": cfg.LogLevel,
		"listen":    cfg.Listen,
		"upstream":  cfg.Upstream,
		"blocklist": cfg.Blocklist.Files,
	}, "Starting "+appName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := buildApplication(ctx, cfg)
	if err != nil {
		log.Fatal(map[string]any{"error": err}, "Failed to build application")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	go func() {
		for sig := range sigChan {
			if sig == syscall.SIGHUP {
				if err := app.ReloadBlocklist(); err != nil {
					log.Error(map[string]any{"error": err}, "Blocklist reload failed, keeping previous rules")
				}
				continue
			}
			log.Info(map[string]any{"signal": sig.String()}, "Shutdown signal received")
			cancel()
			return
		}
	}()

	if err := app.Run(ctx); err != nil {
		log.Fatal(map[string]any{"error": err}, "Server failed")
	}

	log.Info(nil, appName+" stopped gracefully")
}

// applyFlags parses command-line flags over a loaded config.
// --resolver takes precedence over DNS_UPSTREAM.
func applyFlags(cfg *config.AppConfig, args []string) error {
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	resolver := fs.String("resolver", "", "upstream resolver as host:port")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if *resolver == "" {
		return nil
	}
	cfg.Upstream = *resolver
	return config.Validate(cfg)
}

// buildApplication constructs all components and wires them together
func buildApplication(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	clk := clock.RealClock{}
	logger := log.GetLogger()

	target, err := upstream.NewResolver(upstream.Options{}).Resolve(ctx, cfg.Upstream)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve upstream: %w", err)
	}
	if target.Enabled() {
		log.Info(map[string]any{"upstream": target.String()}, "Upstream resolver configured")
	} else {
		log.Warn(nil, "No upstream configured, every query will be answered with REFUSED")
	}

	repo, loader, closers, err := buildBlocklist(cfg, logger, clk)
	if err != nil {
		return nil, fmt.Errorf("failed to build blocklist: %w", err)
	}

	fwd, err := forwarder.New(forwarder.Options{
		Upstream:   target,
		Blocklist:  repo,
		Clock:      clk,
		Logger:     logger,
		PendingTTL: cfg.Pending.TTL,
		MaxPending: cfg.Pending.Max,
	})
	if err != nil {
		closeAll(closers)
		return nil, fmt.Errorf("failed to build forwarder: %w", err)
	}

	codec := wire.NewUDPCodec(logger)
	udp, err := transport.NewTransport(transport.TransportUDP, cfg.Listen, codec, logger)
	if err != nil {
		closeAll(closers)
		return nil, fmt.Errorf("failed to build transport: %w", err)
	}

	return &Application{
		config:    cfg,
		transport: udp,
		forwarder: fwd,
		upstream:  target,
		blocklist: repo,
		loader:    loader,
		closers:   closers,
	}, nil
}

// buildBlocklist opens the rule store and loads the configured files. With
// no files nothing is blocked and no database is opened.
func buildBlocklist(cfg *config.AppConfig, logger log.Logger, clk clock.Clock) (blocklist.Repository, *blocklist.Loader, []io.Closer, error) {
	if len(cfg.Blocklist.Files) == 0 {
		return blocklist.Nop{}, nil, nil, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Blocklist.DB), 0o750); err != nil {
		return nil, nil, nil, fmt.Errorf("create blocklist db directory: %w", err)
	}
	store, err := bolt.New(cfg.Blocklist.DB)
	if err != nil {
		return nil, nil, nil, err
	}
	cache, err := lru.New(cfg.Blocklist.CacheSize)
	if err != nil {
		_ = store.Close()
		return nil, nil, nil, err
	}

	repo := blocklist.NewRepository(store, cache, bloom.NewFactory(), cfg.Blocklist.FPRate, logger)
	loader := blocklist.NewLoader(repo, cfg.Blocklist.Files, logger, clk, nil)
	if _, err := loader.Load(); err != nil {
		_ = store.Close()
		return nil, nil, nil, err
	}
	return repo, loader, []io.Closer{store}, nil
}

// ReloadBlocklist re-reads the blocklist files. On failure the previous rules
// stay in effect.
func (app *Application) ReloadBlocklist() error {
	if app.loader == nil {
		return nil
	}
	_, err := app.loader.Load()
	return err
}

// Start binds the transport and begins forwarding.
func (app *Application) Start(ctx context.Context) error {
	if err := app.transport.Start(ctx, app.forwarder); err != nil {
		return fmt.Errorf("failed to start UDP transport: %w", err)
	}
	log.Info(map[string]any{
		"address":   app.transport.Address(),
		"transport": "UDP",
		"upstream":  app.upstream.String(),
	}, "DNS forwarder started")
	return nil
}

// Shutdown stops the transport and releases the blocklist store.
func (app *Application) Shutdown() error {
	done := make(chan error, 1)
	go func() { done <- app.transport.Stop() }()

	var err error
	select {
	case stopErr := <-done:
		if stopErr != nil {
			log.Warn(map[string]any{"error": stopErr}, "Error during transport shutdown")
		}
	case <-time.After(defaultShutdownTimeout):
		log.Warn(map[string]any{"timeout": defaultShutdownTimeout}, "Shutdown timeout exceeded")
		err = errors.New("shutdown timeout")
	}
	closeAll(app.closers)

	st := app.forwarder.Stats()
	log.Info(map[string]any{
		"queries":       st.Queries,
		"responses":     st.Responses,
		"forwarded":     st.Forwarded,
		"merged":        st.Merged,
		"relayed":       st.Relayed,
		"local_replies": st.LocalReplies,
		"unmatched":     st.Unmatched,
		"collisions":    st.Collisions,
		"expired":       st.Expired,
		"evicted":       st.Evicted,
		"blocked":       st.Blocked,
		"pending":       st.Pending,
	}, "Forwarder statistics")
	return err
}

// Run starts the forwarder and blocks until ctx is cancelled
func (app *Application) Run(ctx context.Context) error {
	if err := app.Start(ctx); err != nil {
		closeAll(app.closers)
		return err
	}
	<-ctx.Done()
	log.Info(nil, "Shutdown initiated")
	return app.Shutdown()
}

func closeAll(closers []io.Closer) {
	for _, c := range closers {
		if err := c.Close(); err != nil {
			log.Warn(map[string]any{"error": err}, "Error closing resource")
		}
	}
}
