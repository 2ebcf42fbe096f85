// Command beadhub runs the multi-workspace coordination server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/beadhub/beadhub/internal/api"
	"github.com/beadhub/beadhub/internal/auth"
	"github.com/beadhub/beadhub/internal/config"
	"github.com/beadhub/beadhub/internal/database"
	"github.com/beadhub/beadhub/internal/ephemeral"
	"github.com/beadhub/beadhub/internal/events"
	"github.com/beadhub/beadhub/internal/notify"
	"github.com/beadhub/beadhub/internal/policy"
)

// version is stamped by the build.
var version = "dev"

// Exit codes: 1 for configuration and startup failures, 2 when a backing
// dependency is unreachable, 130 on interrupt.
const (
	exitConfig     = 1
	exitDependency = 2
	exitInterrupt  = 130
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	var configPath string

	root := &cobra.Command{
		Use:           "beadhub",
		Short:         "Coordination server for bead-tracking agents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and background workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the server version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	})

	mintKey := &cobra.Command{
		Use:   "mint-key <project-slug>",
		Short: "Mint a project-scoped API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			return mintProjectKey(configPath, args[0], name)
		},
	}
	mintKey.Flags().String("name", "", "label stored with the key")
	root.AddCommand(mintKey)

	if err := root.Execute(); err != nil {
		log.Printf("[Main] %v", err)
		os.Exit(exitConfig)
	}
}

// serve wires the components and runs until interrupted.
func serve(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("[Main] Configuration error: %v", err)
		os.Exit(exitConfig)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, cfg.Database.URL,
		cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnLifetime)
	if err != nil {
		log.Printf("[Main] Database unavailable: %v", err)
		os.Exit(exitDependency)
	}
	defer db.Close()

	store, err := ephemeral.New(ctx, cfg.Redis.URL)
	if err != nil {
		log.Printf("[Main] Redis unavailable: %v", err)
		os.Exit(exitDependency)
	}
	defer store.Close()

	var bus events.Bus
	switch cfg.Events.Backend {
	case "nats":
		bus, err = events.NewNatsBus(cfg.Events.NatsURL)
		if err != nil {
			log.Printf("[Main] NATS unavailable: %v", err)
			os.Exit(exitDependency)
		}
	case "", "redis":
		bus = events.NewRedisBus(store.Client())
	default:
		log.Printf("[Main] Unknown event bus backend %q", cfg.Events.Backend)
		os.Exit(exitConfig)
	}
	defer bus.Close()

	hub := events.NewHub()
	if err := bus.Start(ctx, hub.Dispatch); err != nil {
		log.Printf("[Main] Failed to start event bus: %v", err)
		os.Exit(exitDependency)
	}

	policies, err := policy.NewEngine(db, cfg.Policy.AssetDir)
	if err != nil {
		log.Printf("[Main] Failed to load policy defaults: %v", err)
		os.Exit(exitConfig)
	}
	if err := policies.Watch(ctx); err != nil {
		log.Printf("[Main] Policy watcher disabled: %v", err)
	}

	server := api.NewServer(cfg, db, store, bus, hub, policies)
	dispatcher := notify.NewDispatcher(db, server.Mail(),
		cfg.Outbox.BatchSize, cfg.Outbox.MaxAttempts,
		cfg.Outbox.PollInterval, cfg.Outbox.BackoffBase, cfg.Outbox.BackoffCap)

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("[Main] beadhub %s listening on %s", version, cfg.Addr())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return dispatcher.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.DrainTimeout)
		defer cancel()
		log.Printf("[Main] Shutting down (drain %s)", cfg.Server.DrainTimeout)
		return httpServer.Shutdown(drainCtx)
	})

	err = g.Wait()
	if ctx.Err() != nil {
		log.Printf("[Main] Interrupted")
		os.Exit(exitInterrupt)
	}
	if err != nil {
		log.Printf("[Main] Server error: %v", err)
		os.Exit(exitConfig)
	}
	return nil
}

// mintProjectKey creates a project-scoped credential for an existing project
// and prints the plaintext once.
func mintProjectKey(configPath, slug, name string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("[Main] Configuration error: %v", err)
		os.Exit(exitConfig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.New(ctx, cfg.Database.URL,
		cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnLifetime)
	if err != nil {
		log.Printf("[Main] Database unavailable: %v", err)
		os.Exit(exitDependency)
	}
	defer db.Close()

	project, err := db.GetProjectBySlug(ctx, slug)
	if err != nil {
		return fmt.Errorf("project %q: %w", slug, err)
	}
	plaintext, err := auth.MintKey()
	if err != nil {
		return err
	}
	keyID := uuid.NewString()
	if err := db.InsertKey(ctx, keyID, project.ID, nil, name, auth.HashKey(plaintext)); err != nil {
		return err
	}

	fmt.Printf("key_id:  %s\n", keyID)
	fmt.Printf("project: %s (%s)\n", project.Slug, project.ID)
	fmt.Printf("api_key: %s\n", plaintext)
	fmt.Println("Store the api_key now; it is not retrievable later.")
	return nil
}
