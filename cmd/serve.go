package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/skillbase/internal/config"
	skillhttp "github.com/nextlevelbuilder/skillbase/internal/http"
)

const lockPruneInterval = 10 * time.Minute

func serveCmd() *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Run: func(cmd *cobra.Command, args []string) {
			runServe(token)
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "bearer token for API auth (empty disables auth)")
	return cmd
}

func runServe(token string) {
	cfg := loadConfig()
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := buildRuntime(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer rt.close()

	// Reload provider-independent settings when the config file changes.
	if watcher, err := config.NewWatcher(resolveConfigPath()); err == nil {
		watcher.OnChange(func(newCfg *config.Config) {
			cfg.Logging = newCfg.Logging
			setupLogging(cfg)
		})
		if err := watcher.Start(); err == nil {
			defer watcher.Stop()
		}
	}

	// Drop idle conversation locks and stale tool budgets periodically.
	go func() {
		ticker := time.NewTicker(lockPruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rt.router.Prune(time.Hour)
				if rt.toolLimiter != nil {
					rt.toolLimiter.Cleanup()
				}
			}
		}
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := skillhttp.NewServer(addr, skillhttp.ServerDeps{
		Loop:          rt.loop,
		Bus:           rt.bus,
		Router:        rt.router,
		Skills:        rt.skills,
		SkillWriter:   rt.skillWriter,
		Conversations: rt.convs,
		Config:        cfg,
		Token:         token,
	})

	go func() {
		<-ctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
