// Command relay runs the decentralized storage relay: the HTTP/WebSocket
// surface, its scheduled maintenance tasks, and the admin/key-material CLI
// subcommands, built as a cobra root command over independently testable
// subcommands.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"shogunrelay/internal/auth"
	"shogunrelay/internal/deal"
	"shogunrelay/internal/governor"
	"shogunrelay/internal/httpapi"
	"shogunrelay/internal/ipfsclient"
	"shogunrelay/internal/ledger"
	"shogunrelay/internal/pipeline"
	"shogunrelay/internal/scheduler"
	"shogunrelay/internal/storageadapter"
	"shogunrelay/internal/subscription"
	"shogunrelay/pkg/config"
)

func main() {
	_ = godotenv.Load(".env")

	root := &cobra.Command{Use: "relay"}
	root.AddCommand(serveCmd())
	root.AddCommand(adminCmd())
	root.AddCommand(keysCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *logrus.Logger {
	log := logrus.New()
	if lvl, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		log.SetLevel(lvl)
	}
	if cfg.Logging.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log
}

func serveCmd() *cobra.Command {
	var env string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the relay's HTTP surface and scheduled maintenance tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(env)
			if err != nil {
				return err
			}
			return runServe(cfg)
		},
	}
	cmd.Flags().StringVar(&env, "env", "", "config overlay environment (merges config/<env>.yaml)")
	return cmd
}

func runServe(cfg *config.Config) error {
	log := newLogger(cfg)

	store, err := openLedgerStore(cfg)
	if err != nil {
		return err
	}
	l := ledger.New(store)
	defer l.Close()

	storage, err := openStorageAdapter(cfg)
	if err != nil {
		return err
	}

	ipfs := ipfsclient.New(cfg.IPFS.Gateway, cfg.IPFS.GatewayTimeout, log)

	fails := auth.NewFailCounter(cfg.Auth.FailWindow, cfg.Auth.FailThreshold)
	key, err := auth.LoadRelayKey(cfg.Auth.KeyFile)
	if err != nil {
		log.WithField("error", err).Warn("relay: no signing key material found; session tokens are signed with the admin token")
	}
	signingKey := []byte(cfg.Auth.AdminToken)
	if key != nil {
		signingKey = []byte(key.PrivateKeyHex)
	}
	sessions := auth.NewSessionIssuer(l, signingKey, cfg.Auth.SessionTTL, cfg.Auth.StrictSessionIP)
	mux := auth.NewMultiplexer(l, cfg.Auth.AdminToken, sessions, cfg.Auth.WalletMessage, fails)

	gov := governor.New(cfg.Quota.RelayCapBytes, cfg.Quota.WarningFraction)
	verifier := subscription.NewHTTPVerifier(cfg.Payment.VerifierEndpoint, cfg.Payment.VerifierTimeout)
	subs := subscription.NewManager(l, gov, subscription.DefaultTiers(), verifier)
	deals := deal.NewManager(l, ipfs, verifier, subscription.DefaultDealTiers(), cfg.Scheduler.DealActivationGrace)
	pipe := pipeline.New(l, storage, ipfs, gov, cfg.Upload.MaxRequestBytes, cfg.Upload.DefaultEstimateCap)

	srv := httpapi.New(log, mux, sessions, pipe, subs, deals, storage, ipfs, l, gov, httpapi.Config{
		CORSOrigins:         cfg.Server.CORSOrigins,
		MaxRequestBytes:     cfg.Upload.MaxRequestBytes,
		GlobalRateLimit:     cfg.RateLimit.GlobalPer15Min,
		UploadsPerHourLimit: cfg.RateLimit.UploadsPerHour,
		AdminToken:          cfg.Auth.AdminToken,
		SessionTTL:          cfg.Auth.SessionTTL,
	})

	host, _ := os.Hostname()
	pulse := scheduler.PulseTask(cfg.Scheduler.Pulse, l, gov, host, time.Now(), srv.ActiveConns)
	writePulse := pulse.Run
	pulse.Run = func(ctx context.Context) error {
		if err := writePulse(ctx); err != nil {
			return err
		}
		if p, err := l.GetPulse(host); err == nil && p != nil {
			srv.Broadcast(p)
		}
		return nil
	}
	sched := scheduler.New(log,
		scheduler.DealFastSyncTask(cfg.Scheduler.DealFastSync, l, log),
		scheduler.DealFullSyncTask(cfg.Scheduler.DealFullSync, deals),
		scheduler.OrphanPinSweepTask(cfg.Scheduler.OrphanPinSweep, l, ipfs, log),
		scheduler.LinkExpiryTask(cfg.Scheduler.LinkExpiry, l, log),
		scheduler.CounterReconcileTask(cfg.Scheduler.CounterReconcile, l, log),
		scheduler.SessionReapTask(cfg.Scheduler.SessionReap, l, log),
		pulse,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	sched.Start(ctx)
	defer sched.Stop()

	httpSrv := &http.Server{Addr: cfg.Server.ListenAddr, Handler: srv}
	go func() {
		log.WithField("addr", cfg.Server.ListenAddr).Info("relay: listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithField("error", err).Fatal("relay: server error")
		}
	}()

	<-ctx.Done()
	log.Info("relay: shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownDrain)
	defer shutdownCancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func openLedgerStore(cfg *config.Config) (ledger.KVStore, error) {
	switch cfg.Ledger.Backend {
	case "memory":
		return ledger.NewMemStore(), nil
	default:
		return ledger.OpenBoltStore(cfg.Ledger.Path)
	}
}

func openStorageAdapter(cfg *config.Config) (storageadapter.Adapter, error) {
	switch cfg.Drive.Backend {
	case "s3":
		return storageadapter.NewS3Compatible(cfg.Drive.S3.Bucket, cfg.Drive.S3.Region, cfg.Drive.S3.Endpoint, cfg.Drive.S3.Prefix)
	default:
		return storageadapter.NewLocalFs(cfg.Drive.Root)
	}
}

func adminCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "admin", Short: "admin token utilities"}
	cmd.AddCommand(&cobra.Command{
		Use:   "token",
		Short: "print the admin token this process would load from config/env",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load("")
			if err != nil {
				return err
			}
			if cfg.Auth.AdminToken == "" {
				return fmt.Errorf("no admin token configured (set RELAY_AUTH_ADMIN_TOKEN)")
			}
			fmt.Fprintln(cmd.OutOrStdout(), cfg.Auth.AdminToken)
			return nil
		},
	})
	return cmd
}

func keysCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{Use: "keys", Short: "relay signing-key material utilities"}
	generate := &cobra.Command{
		Use:   "generate",
		Short: "generate the relay's signing keypair (spec §6.2)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load("")
			if err != nil {
				return err
			}
			key, err := auth.GenerateRelayKey()
			if err != nil {
				return err
			}
			if err := auth.SaveRelayKey(cfg.Auth.KeyFile, key, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "generated relay key for address %s at %s\n", key.Address, cfg.Auth.KeyFile)
			return nil
		},
	}
	generate.Flags().BoolVar(&force, "force", false, "overwrite an existing key file")
	cmd.AddCommand(generate)
	return cmd
}
