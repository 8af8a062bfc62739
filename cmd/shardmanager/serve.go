package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dreamware/shardmgr/internal/config"
	"github.com/dreamware/shardmgr/internal/coordinator"
	"github.com/dreamware/shardmgr/internal/storage"
	transport "github.com/dreamware/shardmgr/internal/transport/http"
)

var serveCfg = struct {
	configFile string
}{}

func init() {
	serveCmd.Flags().StringVar(&serveCfg.configFile, "config", "", "path to YAML config file (defaults apply when empty)")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the shard manager",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(serveCfg.configFile)
		if err != nil {
			return err
		}

		lg := logrus.New()
		if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
			lg.SetLevel(level)
		}
		log := lg.WithField("component", "shardmanager")

		contract, err := openContract(cfg)
		if err != nil {
			return err
		}
		defer contract.Close()

		mgr := coordinator.NewManager(coordinator.Config{
			TotalShards:         cfg.TotalShards,
			RebalanceDebounce:   cfg.RebalanceDebounce,
			RebalanceInterval:   cfg.RebalanceInterval,
			MaxMovesPerRound:    cfg.MaxMovesPerRound,
			LivenessThreshold:   cfg.LivenessThreshold,
			ProbeInterval:       cfg.ProbeInterval,
			PingTimeout:         cfg.PingTimeout,
			ProbeConcurrency:    cfg.ProbeConcurrency,
			MaxStrikes:          cfg.MaxStrikes,
			PersistRetryBackoff: cfg.PersistRetryBackoff,
			PersistBacklogBound: cfg.PersistBacklogBound,
			NotificationBuffer:  cfg.NotificationBuffer,
		}, contract, transport.NewPinger(), lg.WithField("component", "coordinator"))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		mgrDone := make(chan error, 1)
		go func() { mgrDone <- mgr.Run(ctx) }()

		srv := transport.NewServer(mgr, lg.WithField("component", "http"))
		httpSrv := &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           srv,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.WithField("addr", cfg.ListenAddr).Info("shard manager listening")
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Fatal("listen failed")
			}
		}()

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		select {
		case <-stop:
			log.Info("signal received, shutting down")
		case err := <-mgrDone:
			// The manager only exits on its own when LoadState fails at
			// startup or a fatal invariant violation stops the loop; a
			// supervisor restart recovers from storage.
			shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutCancel()
			_ = httpSrv.Shutdown(shutCtx)
			return err
		}

		shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutCancel()
		_ = httpSrv.Shutdown(shutCtx)
		cancel()
		return <-mgrDone
	},
}

// openContract picks the storage backend: badger when a data directory is
// configured, the noop backend otherwise.
func openContract(cfg config.Config) (storage.Contract, error) {
	if cfg.DataDir == "" {
		return storage.NoopContract{}, nil
	}
	bs, err := storage.OpenBadgerStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	return storage.NewKVContract(bs), nil
}
