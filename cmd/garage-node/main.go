package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/garagevoting/garage-node/access"
	"github.com/garagevoting/garage-node/access/mongodirectory"
	"github.com/garagevoting/garage-node/api"
	"github.com/garagevoting/garage-node/ballot"
	"github.com/garagevoting/garage-node/circuits/semaphore"
	"github.com/garagevoting/garage-node/db/metadb"
	"github.com/garagevoting/garage-node/events"
	"github.com/garagevoting/garage-node/log"
	"github.com/garagevoting/garage-node/poll"
	"github.com/garagevoting/garage-node/prover"
	"github.com/garagevoting/garage-node/service"
	"github.com/garagevoting/garage-node/storage"
)

// Services holds all the running services
type Services struct {
	Storage    *storage.Storage
	Bus        *events.Bus
	Directory  access.Directory
	Controller *poll.Controller
	PollMon    *service.PollMonitor
	API        *service.APIService

	closeDirectory func(context.Context) error
}

func main() {
	// Load configuration
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logging
	var errorOutput io.Writer
	if cfg.Log.ErrorFile != "" {
		f, err := os.OpenFile(cfg.Log.ErrorFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening log error file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		errorOutput = f
	}
	log.Init(cfg.Log.Level, cfg.Log.Output, errorOutput)
	log.Infow("starting garage-node", "version", Version)

	// Validate configuration
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	services, err := setupServices(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to setup services: %v", err)
	}
	defer shutdownServices(services)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.Infow("received signal, shutting down", "signal", sig.String())
}

// setupServices initializes and starts all required services
func setupServices(ctx context.Context, cfg *Config) (*Services, error) {
	services := &Services{}
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Initialize storage database
	log.Infow("initializing storage", "datadir", cfg.Datadir, "type", cfg.DB.Type)
	storagedb, err := metadb.New(cfg.DB.Type, cfg.Datadir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	services.Storage = storage.New(storagedb)

	// Vote cipher
	secret := []byte(cfg.Cipher.Secret)
	if len(secret) == 0 {
		if secret, err = services.Storage.FetchOrGenerateCipherSecret(ballot.GenerateSecret); err != nil {
			return services, fmt.Errorf("failed to load cipher secret: %w", err)
		}
		log.Infow("using the vote cipher secret kept in storage, administrators can read it with garage-cli cipher-key")
	}
	cipher, err := ballot.NewCipher(secret)
	if err != nil {
		return services, fmt.Errorf("failed to create vote cipher: %w", err)
	}

	// Member directory
	if err := setupDirectory(ctx, cfg, services); err != nil {
		return services, err
	}

	// Circuit keys for the configured depth and the stored one, if different
	depths := []int{cfg.Tree.Depth}
	if settings, err := services.Storage.Settings(); err == nil {
		depths = append(depths, settings.MerkleTreeDepth)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return services, fmt.Errorf("failed to read settings: %w", err)
	}
	slices.Sort(depths)
	depths = slices.Compact(depths)
	artifacts := service.ArtifactsConfig{
		Dir:     cfg.Artifacts.Dir,
		BaseURL: cfg.Artifacts.URL,
		Setup:   cfg.Artifacts.Setup,
		Depths:  depths,
		Timeout: cfg.Artifacts.Timeout,
	}
	if strings.HasPrefix(cfg.Artifacts.URL, "s3://") {
		if artifacts.S3, err = semaphore.NewS3Store(ctx, cfg.Artifacts.S3); err != nil {
			return services, fmt.Errorf("failed to create s3 client: %w", err)
		}
	}
	keys, err := service.PrepareArtifacts(ctx, artifacts)
	if err != nil {
		return services, fmt.Errorf("failed to prepare circuit artifacts: %w", err)
	}

	// Poll controller
	services.Bus = events.NewBus(registry)
	services.Controller, err = poll.New(poll.Config{
		Storage:        services.Storage,
		Verifier:       prover.NewVerifier(keys),
		Checker:        access.NewDirectoryChecker(services.Directory, 0),
		Cipher:         cipher,
		Bus:            services.Bus,
		Registry:       registry,
		TreeDepth:      cfg.Tree.Depth,
		Implementation: cfg.Poll.Implementation,
	})
	if err != nil {
		return services, fmt.Errorf("failed to create poll controller: %w", err)
	}
	services.Bus.SubscribeFunc(poll.EventPollPhaseChanged, func(evt events.Event) {
		change := evt.Data.(poll.PollPhaseChanged)
		log.Infow("poll phase changed", "poll", change.PollID, "from", change.Old.String(), "to", change.New.String())
	})

	// Start poll monitor
	log.Infow("starting poll monitor", "interval", cfg.Poll.MonitorInterval.String())
	services.PollMon = service.NewPollMonitor(services.Controller, cfg.Poll.MonitorInterval)
	if err := services.PollMon.Start(ctx); err != nil {
		return services, fmt.Errorf("failed to start poll monitor: %w", err)
	}

	// Start API service
	log.Infow("starting API service", "host", cfg.API.Host, "port", cfg.API.Port)
	services.API = service.NewAPI(api.APIConfig{
		Host:           cfg.API.Host,
		Port:           cfg.API.Port,
		Controller:     services.Controller,
		Directory:      services.Directory,
		VerifierLoader: api.VerifierFromKeys,
		Gatherer:       registry,
	}, false)
	if err := services.API.Start(ctx); err != nil {
		return services, fmt.Errorf("failed to start API service: %w", err)
	}

	settings := services.Controller.Settings()
	log.Infow("garage-node is running, ready to accept votes!",
		"treeDepth", settings.MerkleTreeDepth,
		"implementation", settings.Implementation,
		"verifier", settings.VerifierID.String())
	return services, nil
}

// setupDirectory connects the MongoDB member directory, or builds an in
// memory one holding a single admin when no MongoDB URL is configured.
func setupDirectory(ctx context.Context, cfg *Config, services *Services) error {
	if cfg.Directory.MongoURL == "" {
		log.Warnw("no member directory configured, using a local admin token")
		services.Directory = access.NewMemoryDirectory(&access.User{
			ID:        "admin",
			Name:      "local admin",
			Role:      access.RoleAdmin,
			TokenHash: access.HashToken(cfg.Directory.AdminToken),
		})
		return nil
	}
	log.Infow("connecting member directory", "database", cfg.Directory.MongoDB)
	dir, err := mongodirectory.New(ctx, cfg.Directory.MongoURL, cfg.Directory.MongoDB)
	if err != nil {
		return fmt.Errorf("failed to connect member directory: %w", err)
	}
	if cfg.Directory.AdminToken != "" {
		log.Warnw("directory.adminToken is ignored when a MongoDB directory is used")
	}
	services.Directory = dir
	services.closeDirectory = dir.Close
	return nil
}

// shutdownServices gracefully shuts down all services
func shutdownServices(services *Services) {
	if services == nil {
		return
	}

	// Stop services in reverse order of startup
	if services.API != nil {
		services.API.Stop()
	}
	if services.PollMon != nil {
		services.PollMon.Stop()
	}
	if services.Bus != nil {
		services.Bus.Stop()
	}
	if services.closeDirectory != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := services.closeDirectory(ctx); err != nil {
			log.Warnw("failed to close member directory", "error", err.Error())
		}
	}
	if services.Storage != nil {
		services.Storage.Close()
	}
}
