package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/jmcleod/kycagent/sandbox"
)

var sandboxAddr string

var sandboxCmd = &cobra.Command{
	Use:   "sandbox",
	Short: "Run a local fake of the identity, KYC and image-host APIs",
	Long: `Serve the backend contract on a local address. Users listed under
sandbox.users in the config file are created at start. Point api_url at the
sandbox and image_host_url at <sandbox>/1/upload (key "sandbox") to use it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := cfg.Sandbox.Addr
		if sandboxAddr != "" {
			addr = sandboxAddr
		}

		opts := []sandbox.Option{sandbox.WithLogger(logger)}
		if cfg.Sandbox.TokenTTL > 0 {
			opts = append(opts, sandbox.WithTokenTTL(cfg.Sandbox.TokenTTL))
		}
		sb, err := sandbox.New(opts...)
		if err != nil {
			return err
		}
		for _, u := range cfg.Sandbox.Users {
			if err := sb.AddUser(u.Username, u.Password, u.Name); err != nil {
				return fmt.Errorf("adding sandbox user %q: %w", u.Username, err)
			}
		}

		r := chi.NewRouter()
		r.Use(middleware.Logger)
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})
		r.Mount("/", sb.Router())

		server := &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		done := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("sandbox failed: %w", err)
				return
			}
			done <- nil
		}()

		out := cmd.OutOrStdout()
		printBanner(out)
		fmt.Fprintf(out, "Sandbox listening on http://%s (%d users, docs at /docs)\n", addr, len(cfg.Sandbox.Users))

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			fmt.Fprintf(out, "\nReceived %s, shutting down...\n", sig)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("sandbox shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(sandboxCmd)
	sandboxCmd.Flags().StringVar(&sandboxAddr, "addr", "", "Address to listen on (overrides sandbox.addr)")
}
