package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/civicsense-gateway/pkg/offline"
	"github.com/spf13/cobra"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	var (
		listen      string
		skipInstall bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen") {
				cfg.Server.Listen = listen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			// Handlers outlive the signal context so shutdown can drain them
			hostCtx, cancelHost := context.WithCancel(context.WithoutCancel(ctx))
			defer cancelHost()
			host := offline.NewHost(hostCtx, a.controller)

			a.tracker.OnReconnect(func(context.Context) {
				host.Dispatch(offline.SyncSignal(cfg.Offline.SyncTag))
			})

			if skipInstall {
				if err := <-host.Dispatch(offline.Signal{Kind: offline.SignalActivate}); err != nil {
					return err
				}
			} else if err := host.Start(); err != nil {
				return fmt.Errorf("start offline controller: %w", err)
			}

			router, err := newRouter(a, host)
			if err != nil {
				return err
			}

			srv := &http.Server{
				Addr:              cfg.Server.Listen,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			serveErr := make(chan error, 1)
			go func() {
				a.logger.Info().
					Str("listen", cfg.Server.Listen).
					Str("origin", cfg.Origin.URL).
					Str("scope", cfg.Offline.Scope).
					Msg("Starting CivicSense gateway")
				serveErr <- srv.ListenAndServe()
			}()

			select {
			case err := <-serveErr:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			a.logger.Info().Msg("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Warn().Err(err).Msg("HTTP shutdown incomplete")
			}

			drained := make(chan struct{})
			go func() {
				host.Wait()
				close(drained)
			}()
			select {
			case <-drained:
			case <-shutdownCtx.Done():
				a.logger.Warn().Msg("Signal handlers still running at shutdown deadline")
				cancelHost()
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides server.listen)")
	cmd.Flags().BoolVar(&skipInstall, "skip-install", false, "skip precaching the shell at startup")
	return cmd
}

func newInstallCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Precache the app shell into the static cache",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				if err := a.controller.Install(ctx); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "installed %d assets into %s\n",
					len(a.cfg.Offline.ShellAssets), a.cfg.Offline.StaticCache)
				return err
			})
		},
	}
}

func newActivateCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "activate",
		Short: "Delete cache generations other than the current ones",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				deleted, err := a.controller.Activate(ctx)
				for _, name := range deleted {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return err
			})
		},
	}
}

func newSyncCmd(flags *globalFlags) *cobra.Command {
	var tag string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Replay report submissions queued while offline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				if tag == "" {
					tag = a.cfg.Offline.SyncTag
				}
				report, err := a.controller.Sync(ctx, tag)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			})
		},
	}

	cmd.Flags().StringVar(&tag, "tag", "", "sync tag (default: offline.sync_tag)")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version)
			return err
		},
	}
}

// withApp runs fn against a freshly wired app and closes it afterwards.
func withApp(cmd *cobra.Command, flags *globalFlags, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}
