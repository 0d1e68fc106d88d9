package main

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/cs2kz-org/cs2kz-api/internal/accesskeys"
	"github.com/cs2kz-org/cs2kz-api/internal/auth"
	"github.com/cs2kz-org/cs2kz-api/internal/catalog"
	"github.com/cs2kz-org/cs2kz-api/internal/config"
	"github.com/cs2kz-org/cs2kz-api/internal/db"
	"github.com/cs2kz-org/cs2kz-api/internal/events"
	"github.com/cs2kz-org/cs2kz-api/internal/httpapi"
	"github.com/cs2kz-org/cs2kz-api/internal/monitor"
	"github.com/cs2kz-org/cs2kz-api/internal/points"
	"github.com/cs2kz-org/cs2kz-api/internal/protocol"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "cs2kz-api",
		Short: "CS2KZ record submission and points API",
		RunE:  run,
	}

	f := rootCmd.Flags()
	f.String("listen-addr", ":8080", "address the HTTP/WebSocket server listens on")
	f.String("db-path", "cs2kz.db", "path to the SQLite database file")
	f.String("signing-key", "", "ES256 private key (PEM or base64 DER) for server bearer tokens; generated and printed if empty")
	f.Int("session-max-age-hours", 168, "browser session cookie lifetime in hours")
	f.Int("heartbeat-seconds", 10, "server protocol heartbeat interval handed out at handshake")
	f.Int("stale-check-interval-minutes", 5, "how often the monitor sweeps for stale server check-ins")
	f.Int("stale-threshold-minutes", 15, "how long a server can go without checking in before its key is revoked")
	f.Bool("verbose", false, "enable verbose logging")

	bindFlag := func(viperKey, flagName string) {
		_ = viper.BindPFlag(viperKey, f.Lookup(flagName))
	}
	bindFlag("listen_addr", "listen-addr")
	bindFlag("db_path", "db-path")
	bindFlag("signing_key", "signing-key")
	bindFlag("session_max_age_hours", "session-max-age-hours")
	bindFlag("heartbeat_seconds", "heartbeat-seconds")
	bindFlag("stale_check_interval_minutes", "stale-check-interval-minutes")
	bindFlag("stale_threshold_minutes", "stale-threshold-minutes")
	bindFlag("verbose", "verbose")

	// CS2KZ_LISTEN_ADDR, CS2KZ_DB_PATH, CS2KZ_SIGNING_KEY, etc.
	viper.SetEnvPrefix("CS2KZ")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	fmt.Printf("cs2kz-api %s starting\n", config.Version)
	fmt.Printf("  Listen:    %s\n", cfg.ListenAddr)
	fmt.Printf("  Database:  %s\n", cfg.DBPath)
	fmt.Printf("  Heartbeat: %ds\n", cfg.HeartbeatSeconds)
	fmt.Println()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database, err := db.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close() //nolint:errcheck

	signingKey, err := resolveSigningKey(cfg.SigningKey)
	if err != nil {
		return err
	}

	servers := catalog.NewServers(database)
	maps := catalog.NewMaps(database)
	players := catalog.NewPlayers(database)
	pluginVersions := catalog.NewPluginVersions(database)
	serverSessions := catalog.NewServerSessions(database)
	users := catalog.NewUsers(database)
	sessions := auth.NewSessions(database)

	bus := events.New()
	daemon := points.NewDaemon(database)
	mon := monitor.New(servers, bus, nil)

	server := httpapi.New(httpapi.Deps{
		Minter:   accesskeys.NewMinter(signingKey, servers, pluginVersions),
		Sessions: sessions,
		Servers:  servers,
		Users:    users,
		Monitor:  mon,
		ProtocolDeps: &protocol.Deps{
			Servers:           servers,
			Maps:              maps,
			Players:           players,
			PluginVersions:    pluginVersions,
			ServerSessions:    serverSessions,
			Submissions:       points.NewSubmissions(database),
			Daemon:            daemon,
			Monitor:           mon,
			Events:            bus,
			HeartbeatInterval: time.Duration(cfg.HeartbeatSeconds) * time.Second,
		},
		SessionMaxAge: time.Duration(cfg.SessionMaxAgeHours) * time.Hour,
		ListenAddr:    cfg.ListenAddr,
	})

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return daemon.Run(gctx)
	})
	group.Go(func() error {
		return mon.RunSweeper(gctx,
			time.Duration(cfg.StaleCheckIntervalMins)*time.Minute,
			time.Duration(cfg.StaleThresholdMins)*time.Minute,
		)
	})
	group.Go(func() error {
		if err := server.Start(); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	group.Go(func() error {
		select {
		case sig := <-sigCh:
			log.Printf("received %s, shutting down...", sig)
		case <-gctx.Done():
		}
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

// resolveSigningKey loads the ES256 key the operator configured, or mints
// one for this process and prints its base64-DER form so it can be pinned
// into --signing-key on the next restart — otherwise every restart would
// invalidate every connected server's bearer token.
func resolveSigningKey(configured string) (*ecdsa.PrivateKey, error) {
	if configured != "" {
		return accesskeys.ParseSigningKey(configured)
	}

	key, encoded, err := accesskeys.GenerateSigningKey()
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	log.Printf("no --signing-key configured; generated one for this run (set --signing-key=%s to persist it)", encoded)
	return key, nil
}
