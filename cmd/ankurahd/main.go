// Command ankurahd is the per-node daemon: it embeds a NATS/JetStream
// broker for peer transport, owns the durable SQLite store, and runs the
// reactive core (UpdateApplier, Reactor, Broadcaster) that the ankurah CLI
// and peer connections talk to.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ankurah/ankurah/internal/config"
	"github.com/ankurah/ankurah/internal/daemon"
	"github.com/ankurah/ankurah/internal/entity"
	"github.com/ankurah/ankurah/internal/eventbus"
	"github.com/ankurah/ankurah/internal/lockfile"
	"github.com/ankurah/ankurah/internal/metrics"
	"github.com/ankurah/ankurah/internal/reactor"
	"github.com/ankurah/ankurah/internal/storage/sqlitestore"
	"github.com/ankurah/ankurah/internal/subscription"
	"github.com/spf13/cobra"
)

var logJSON bool

var rootCmd = &cobra.Command{
	Use:   "ankurahd",
	Short: "ankurahd - Ankurah node daemon",
	Long: `ankurahd runs the reactive core for one Ankurah node: durable storage,
the NATS/JetStream peer transport, and the live-query reactor that turns
committed entity changes into subscription notifications.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the daemon in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func main() {
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "emit structured JSON logs instead of text")
	rootCmd.AddCommand(serveCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if logJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func serve(ctx context.Context) error {
	log := newLogger()

	if err := config.Initialize(); err != nil {
		return fmt.Errorf("ankurahd: load config: %w", err)
	}

	dataDir := config.GetString("data-dir")
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return fmt.Errorf("ankurahd: create data dir: %w", err)
	}

	lockPath := filepath.Join(dataDir, "ankurahd.lock")
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("ankurahd: open lock file: %w", err)
	}
	defer lockFile.Close()
	if err := lockfile.FlockExclusiveNonBlocking(lockFile); err != nil {
		if lockfile.IsLocked(err) {
			return fmt.Errorf("ankurahd: already running against %s", dataDir)
		}
		return fmt.Errorf("ankurahd: acquire lock: %w", err)
	}
	defer lockfile.FlockUnlock(lockFile)

	runCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	metricsShutdown, err := metrics.Init(runCtx)
	if err != nil {
		return fmt.Errorf("ankurahd: init metrics: %w", err)
	}
	defer metricsShutdown(context.Background())

	natsCfg := daemon.NATSConfigFromEnv(dataDir)
	natsCfg.Port = config.GetInt("nats-port")
	ns, err := daemon.StartNATSServer(natsCfg)
	if err != nil {
		return fmt.Errorf("ankurahd: start NATS: %w", err)
	}
	defer ns.Shutdown()
	if err := ns.WriteConnectionInfo(natsCfg.Token); err != nil {
		log.Warn("could not write NATS connection info", "err", err)
	}
	defer ns.RemoveConnectionInfo()
	log.Info("NATS server ready", "port", ns.Port())

	js, err := ns.Conn().JetStream()
	if err != nil {
		return fmt.Errorf("ankurahd: jetstream context: %w", err)
	}
	if err := eventbus.EnsureStreams(js); err != nil {
		return fmt.Errorf("ankurahd: ensure streams: %w", err)
	}

	dbPath := filepath.Join(dataDir, "ankurah.sqlite3")
	store, err := sqlitestore.New(dbPath)
	if err != nil {
		return fmt.Errorf("ankurahd: open store: %w", err)
	}
	defer store.Close()
	log.Info("opened durable store", "path", dbPath)

	rct := reactor.NewReactor()
	entities := entity.NewWeakEntitySet(10*time.Minute, 100_000)

	bus := eventbus.New()
	bus.SetJetStream(js)

	applier := &subscription.UpdateApplier{
		Entities:  entities,
		Events:    store,
		Saver:     store,
		GetEvents: store,
		OnChange: (&subscription.ReactorNotifier{Reactor: rct}).Handle,
	}
	bus.Register(eventbus.HandlerFunc{Name: "metrics", Fn: func(ctx context.Context, env *eventbus.Envelope) error {
		metrics.RecordUpdateApplied(ctx)
		return nil
	}})
	bus.Register(eventbus.NewApplierHandler("applier", applier))

	for _, collection := range config.GetStringSlice("collections") {
		actor := config.GetString("actor")
		if actor == "" {
			actor = "ankurahd"
		}
		if err := bus.Subscribe(runCtx, collection, actor); err != nil {
			return fmt.Errorf("ankurahd: subscribe to %s: %w", collection, err)
		}
		log.Info("subscribed to collection updates", "collection", collection)
	}

	log.Info("ankurahd ready", "actor", config.GetString("actor"))
	<-runCtx.Done()
	log.Info("shutting down")
	return nil
}
