package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/isometry/dlsync/internal/config"
	"github.com/isometry/dlsync/internal/directory"
	"github.com/isometry/dlsync/internal/hook"
	"github.com/isometry/dlsync/internal/ldap"
)

func cmdServe(g *globals) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Keep the address snapshot refreshed and answer lookups over HTTP",
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			s, err := newServer(cfg, g)
			if err != nil {
				return err
			}
			defer s.close()
			return s.run(ctx)
		},
	}
}

// server owns the scheduler and the HTTP listener for the serve command.
type server struct {
	g   *globals
	log hclog.Logger

	mu      sync.Mutex
	cfg     *config.Config
	builder *directory.Builder

	sched  *directory.Scheduler
	plugin *hook.Plugin
}

func newServer(cfg *config.Config, g *globals) (*server, error) {
	builder, err := newBuilder(cfg, g.log, nil)
	if err != nil {
		return nil, err
	}

	table := directory.NewLookupTable()
	sched := directory.NewScheduler(builder, table, cfg.RefreshInterval(), ldap.NewHCLogger(g.log, "scheduler"))
	resolver := directory.NewResolver(table, ldap.NewHCLogger(g.log, "resolver"))

	return &server{
		g:       g,
		log:     g.log,
		cfg:     cfg,
		builder: builder,
		sched:   sched,
		plugin:  hook.New(resolver, ldap.NewHCLogger(g.log, "hook")),
	}, nil
}

func (s *server) run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return s.sched.Start(ctx)
	})

	if listen := s.cfg.HTTP.Listen; listen != "" {
		srv := &http.Server{
			Addr:              listen,
			Handler:           newHandler(s.sched, s.plugin, s.log.Named("http")),
			ReadHeaderTimeout: 10 * time.Second,
		}
		eg.Go(func() error {
			s.log.Info("HTTP listener started", "addr", listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		eg.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	eg.Go(func() error {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-hup:
				s.reload()
			}
		}
	})

	err := eg.Wait()
	s.log.Info("Shutting down")
	return err
}

// reload re-reads the configuration and hands the scheduler a new builder.
// The directory session is kept unless connection settings changed. A
// configuration that fails to load leaves everything as it was.
func (s *server) reload() {
	s.log.Info("Reloading configuration", "config", s.g.configPath)

	cfg, err := s.g.loadConfig()
	if err != nil {
		s.log.Error("Reload failed, keeping current configuration", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var reuse ldap.Client
	if !cfg.ConnectionChanged(s.cfg) {
		reuse = s.builder.Client()
	}
	builder, err := newBuilder(cfg, s.log, reuse)
	if err != nil {
		s.log.Error("Reload failed, keeping current configuration", "error", err)
		return
	}

	if cfg.HTTP.Listen != s.cfg.HTTP.Listen {
		s.log.Warn("http.listen changes take effect after a restart", "listen", s.cfg.HTTP.Listen)
	}

	s.cfg = cfg
	s.builder = builder
	s.sched.Reconfigure(cfg.RefreshInterval(), builder)
	s.log.Info("Configuration reloaded", "refresh_interval", cfg.RefreshInterval().String(), "new_session", reuse == nil)
}

func (s *server) close() {
	if err := s.sched.Close(); err != nil {
		s.log.Warn("Closing directory client", "error", err)
	}
}
