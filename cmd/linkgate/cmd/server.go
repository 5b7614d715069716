package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/awnumar/memguard"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/linkgate/linkgate/api"
	"github.com/linkgate/linkgate/gate"
	"github.com/linkgate/linkgate/shortener"
	boltstore "github.com/linkgate/linkgate/store/bolt"
	memorystore "github.com/linkgate/linkgate/store/memory"
)

const shortenerKeyEnv = "LINKGATE_SHORTENER_KEY"

var (
	port              int
	dataDir           string
	baseURL           string
	sessionTTL        time.Duration
	maxAddresses      int
	sweepInterval     time.Duration
	trustedProxies    []string
	shortenerEndpoint string
	tlsCert           string
	tlsKey            string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the key service server",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

		var store gate.Store
		if dataDir != "" {
			if err := os.MkdirAll(dataDir, 0o700); err != nil {
				return fmt.Errorf("failed to create data directory: %w", err)
			}
			bs, err := boltstore.NewStoreFromFile(dataDir+"/sessions.db", nil)
			if err != nil {
				return fmt.Errorf("failed to open session storage: %w", err)
			}
			defer bs.Close()
			store = bs
		} else {
			store = memorystore.NewStore()
		}

		svc := gate.NewService(store,
			gate.WithTTL(sessionTTL),
			gate.WithMaxAddresses(maxAddresses),
			gate.WithLogger(logger),
		)

		stopSweeper := make(chan struct{})
		defer close(stopSweeper)
		go svc.RunSweeper(stopSweeper, sweepInterval)

		opts := []api.Option{api.WithLogger(logger)}
		if baseURL == "" {
			baseURL = os.Getenv("BASE_URL")
		}
		if baseURL != "" {
			opts = append(opts, api.WithBaseURL(baseURL))
		}
		if apiKey := os.Getenv(shortenerKeyEnv); apiKey != "" {
			// Move the key into an enclave and scrub the environment so it
			// does not leak through /proc or child processes.
			enclave := memguard.NewEnclave([]byte(apiKey))
			os.Unsetenv(shortenerKeyEnv)
			opts = append(opts, api.WithShortener(shortener.New(shortenerEndpoint, enclave)))
		} else {
			fmt.Printf("%s not set; verification links will not be shortened\n", shortenerKeyEnv)
		}
		if len(trustedProxies) > 0 {
			prefixes, err := api.ParseTrustedProxies(trustedProxies)
			if err != nil {
				return fmt.Errorf("invalid --trusted-proxies: %w", err)
			}
			opts = append(opts, api.WithTrustedProxies(prefixes))
		}

		a := api.New(svc, opts...)

		r := chi.NewRouter()
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})

		r.Mount("/api/v1", a.Router())

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		useTLS := tlsCert != "" && tlsKey != ""
		if useTLS {
			cert, err := tls.LoadX509KeyPair(tlsCert, tlsKey)
			if err != nil {
				return fmt.Errorf("failed to load TLS key pair: %w", err)
			}
			server.TLSConfig = &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			}
		}

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			var serveErr error
			if useTLS {
				serveErr = server.ListenAndServeTLS("", "")
			} else {
				serveErr = server.ListenAndServe()
			}
			if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", serveErr)
				return
			}
			done <- nil
		}()

		printBanner()
		storeKind := "memory"
		if dataDir != "" {
			storeKind = "bolt (" + dataDir + ")"
		}
		fmt.Printf("Starting server on port %d (store: %s, ttl: %s)...\n", port, storeKind, sessionTTL)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			fmt.Printf("\nReceived %s, shutting down...\n", sig)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().IntVarP(&port, "port", "p", 8080, "Port to listen on")
	serverCmd.Flags().StringVar(&dataDir, "data-dir", "", "Directory for persistent session data (empty: in-memory)")
	serverCmd.Flags().StringVar(&baseURL, "base-url", "", "External base URL for verify links (default: BASE_URL env or request host)")
	serverCmd.Flags().DurationVar(&sessionTTL, "ttl", gate.DefaultTTL, "Session time-to-live")
	serverCmd.Flags().IntVar(&maxAddresses, "max-addresses", gate.DefaultMaxAddresses, "Distinct client addresses allowed per key")
	serverCmd.Flags().DurationVar(&sweepInterval, "sweep-interval", 5*time.Minute, "Background expiry sweep interval")
	serverCmd.Flags().StringSliceVar(&trustedProxies, "trusted-proxies", nil, "CIDR ranges whose forwarded headers are trusted")
	serverCmd.Flags().StringVar(&shortenerEndpoint, "shortener-endpoint", "https://link4m.co/api-shorten/v2", "Link shortening API endpoint")
	serverCmd.Flags().StringVar(&tlsCert, "tls-cert", "", "Path to TLS certificate file")
	serverCmd.Flags().StringVar(&tlsKey, "tls-key", "", "Path to TLS key file")
}
