package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pitr/gemini-ios-sub000/internal/api"
	"github.com/pitr/gemini-ios-sub000/internal/bridge"
	"github.com/pitr/gemini-ios-sub000/internal/config"
	"github.com/pitr/gemini-ios-sub000/internal/log"
	"github.com/pitr/gemini-ios-sub000/internal/watcher"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP preview server",
	Long: `Serve rendered Gemini pages over HTTP so they can be opened in a browser.

Endpoints:
  GET  /load?url=gemini://...   rendered document with its content type
  POST /stop                    cancel the load in progress
  GET  /events                  load events (server-sent events)
  GET  /identities[?host=...]   stored identities
  GET  /health

Example:
  gemini serve                  # Start on serve.addr (default 127.0.0.1:8965)
  gemini serve --addr :9000`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Address to listen on (overrides config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	addr := serveAddr
	if addr == "" {
		addr = cfg.Serve.Addr
	}

	server, err := api.NewServer(api.ServerConfig{
		Addr:    addr,
		Handler: api.NewHandler(api.HandlerConfig{Loader: a.bridge, Identities: a.store}),
	})
	if err != nil {
		return fmt.Errorf("creating preview server: %w", err)
	}

	// Mirror debug log lines to stderr while serving.
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	if entries := log.Subscribe(ctx); entries != nil {
		go func() {
			for ev := range entries {
				_, _ = fmt.Fprint(cmd.ErrOrStderr(), ev.Payload)
			}
		}()
	}

	if path := viper.ConfigFileUsed(); path != "" {
		w, err := watcher.New(watcher.DefaultConfig(path))
		if err != nil {
			return fmt.Errorf("watching config: %w", err)
		}
		defer func() { _ = w.Stop() }()
		changes, err := w.Start()
		if err != nil {
			log.Warn(log.CatConfig, "config hot reload disabled", "path", path, "error", err)
		} else {
			go reloadOnChange(ctx, changes, a.bridge)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Preview server listening on http://%s\n", server.Addr())
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl+C to stop")

	select {
	case sig := <-sigCh:
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

// reloadOnChange re-reads the config file on every change and applies the
// dispatch and theme settings to the bridge. Invalid edits keep the previous
// settings.
func reloadOnChange(ctx context.Context, changes <-chan struct{}, b *bridge.Bridge) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-changes:
			if err := viper.ReadInConfig(); err != nil {
				log.ErrorErr(log.CatConfig, "re-reading config", err)
				continue
			}
			loaded, err := config.Load(viper.GetViper())
			if err != nil {
				log.ErrorErr(log.CatConfig, "reloaded config is invalid", err)
				continue
			}
			b.Reconfigure(loaded.Dispatch())
			log.Info(log.CatConfig, "config reloaded", "path", viper.ConfigFileUsed())
		}
	}
}
