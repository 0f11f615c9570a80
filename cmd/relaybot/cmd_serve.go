package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/relaybot/internal/amqpsource"
	"github.com/user/relaybot/internal/delivery"
	"github.com/user/relaybot/internal/dialogue"
	"github.com/user/relaybot/internal/gateway"
	"github.com/user/relaybot/internal/notify"
	"github.com/user/relaybot/internal/scheduler"
	"github.com/user/relaybot/internal/state"
	"github.com/user/relaybot/internal/telegram"
	"github.com/user/relaybot/internal/webhook"
	"github.com/user/relaybot/internal/verifier"
	"github.com/user/relaybot/internal/verifier/httpverifier"
)

const pidFileName = "relaybot.pid"

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the relaybot daemon",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func writePIDFile(dataDir string) (string, error) {
	pidPath := filepath.Join(dataDir, pidFileName)
	pid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(cfg)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	pidPath, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	store := state.NewSessionStore()

	adapter, err := telegram.New(cfg.Telegram.Token)
	if err != nil {
		return fmt.Errorf("create telegram adapter: %w", err)
	}

	v := httpverifier.New(&verifier.Config{
		OwnerURL: cfg.Backend.OwnerLoginURL,
		StaffURL: cfg.Backend.StaffLoginURL,
		Timeout:  cfg.Backend.Timeout.Std(),
	})

	// Dialogue inputs and verifier answers share the per-conversation lanes.
	mgr := dialogue.NewManager(store, adapter, v)
	gw := gateway.New(mgr, int64(cfg.MaxConcurrent))
	mgr.SetResubmit(gw.HandleInbound)
	adapter.SetSubmitter(gw.HandleInbound)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw.Start(ctx)
	defer gw.Stop()

	router := notify.NewRouter(store, delivery.NewFanout(adapter, cfg.FanoutLimit))

	sched := scheduler.New()
	for _, job := range []scheduler.Job{
		scheduler.DialogueSweep(mgr, cfg.DialogueTimeout.Std()),
		scheduler.SessionStats(store, mgr, gw.Queue),
	} {
		if err := sched.Add(job); err != nil {
			return err
		}
	}
	if err := sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	if cfg.AMQP.URL != "" {
		consumer := amqpsource.New(amqpsource.Config{
			URL:        cfg.AMQP.URL,
			Queue:      cfg.AMQP.Queue,
			Exchange:   cfg.AMQP.Exchange,
			RoutingKey: cfg.AMQP.RoutingKey,
		}, router)
		if err := consumer.Start(ctx); err != nil {
			return fmt.Errorf("start amqp consumer: %w", err)
		}
		defer consumer.Close()
	}

	srv := webhook.NewServer(router, adapter, store, webhook.Options{
		AdminToken:  cfg.Admin.Token,
		CORSOrigins: cfg.CORSOrigins,
	})
	httpServer := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("http server started", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http shutdown", "error", err)
		}
	}()

	if err := adapter.RegisterWebhook(cfg.WebhookURL); err != nil {
		return err
	}

	slog.Info("relaybot started",
		"bot", adapter.Username(),
		"data_dir", cfg.DataDir,
		"log_level", cfg.LogLevel,
		"max_concurrent", cfg.MaxConcurrent,
		"fanout_limit", cfg.FanoutLimit,
		"dialogue_timeout", cfg.DialogueTimeout.Std(),
		"amqp", cfg.AMQP.URL != "",
		"pid_file", pidPath,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		select {
		case err := <-serveErr:
			return fmt.Errorf("http server: %w", err)
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				slog.Info("received SIGHUP, restarting")
				execPath, err := os.Executable()
				if err != nil {
					slog.Error("failed to get executable path", "error", err)
					continue
				}
				// Clean up PID file before re-exec
				os.Remove(pidPath)
				if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
					slog.Error("failed to re-exec", "error", err)
					// Re-write PID file since we failed to re-exec
					if _, writeErr := writePIDFile(cfg.DataDir); writeErr != nil {
						slog.Error("failed to re-write PID file", "error", writeErr)
					}
					continue
				}
			}
			// SIGINT or SIGTERM
			slog.Info("shutting down", "signal", sig)
			return nil
		}
	}
}
