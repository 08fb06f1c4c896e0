package main

import (
	"fmt"
	"log/slog"

	"stockpix/internal/blobstore"
	"stockpix/internal/config"
	"stockpix/internal/daemon"
	"stockpix/internal/fetch"
	"stockpix/internal/logging"
	"stockpix/internal/pipeline"
	"stockpix/internal/registry"
	"stockpix/internal/services/classifier"
	"stockpix/internal/services/validator"
	"stockpix/internal/transform"
)

// runtime bundles the wired pipeline for the run and once commands.
type runtime struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *registry.Store
	manager *pipeline.Manager
	daemon  *daemon.Daemon
}

func loadConfig(configFlag *string) (*config.Config, string, error) {
	path := ""
	if configFlag != nil {
		path = *configFlag
	}
	cfg, resolvedPath, _, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, resolvedPath, nil
}

func buildRuntime(configFlag *string) (*runtime, error) {
	cfg, _, err := loadConfig(configFlag)
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	store, err := registry.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}

	blobs := blobstore.New(cfg.Paths.StoreDir, cfg.Fetch.Extension)
	scheduler := fetch.NewScheduler(cfg, store, blobs, logger)
	manager := pipeline.NewManager(cfg, pipeline.StageSet{
		Fetch:    fetch.NewStage(scheduler),
		Classify: transform.NewClassifyStage(cfg, classifier.NewService(cfg, logger), logger),
		Verify:   transform.NewVerifyStage(cfg, store, blobs, validator.NewService(cfg, logger), logger),
	}, logger)

	d, err := daemon.New(cfg, store, manager, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	return &runtime{cfg: cfg, logger: logger, store: store, manager: manager, daemon: d}, nil
}
