package daemon_test

import (
	"context"
	"testing"

	"stockpix/internal/blobstore"
	"stockpix/internal/daemon"
	"stockpix/internal/fetch"
	"stockpix/internal/pipeline"
	"stockpix/internal/services/classifier"
	"stockpix/internal/services/validator"
	"stockpix/internal/testsupport"
	"stockpix/internal/transform"
)

func newDaemon(t *testing.T) *daemon.Daemon {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRegistry(t, cfg)
	blobs := blobstore.New(cfg.Paths.StoreDir, cfg.Fetch.Extension)
	manager := pipeline.NewManager(cfg, pipeline.StageSet{
		Fetch:    fetch.NewStage(fetch.NewScheduler(cfg, store, blobs, nil)),
		Classify: transform.NewClassifyStage(cfg, classifier.NewService(cfg, nil), nil),
		Verify:   transform.NewVerifyStage(cfg, store, blobs, validator.NewService(cfg, nil), nil),
	}, nil)

	d, err := daemon.New(cfg, store, manager, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d
}

func TestStartStopLifecycle(t *testing.T) {
	d := newDaemon(t)
	ctx := context.Background()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	status := d.Status(ctx)
	if !status.Running || status.SessionID == "" || len(status.Stages) == 0 {
		t.Fatalf("unexpected status %+v", status)
	}

	if err := d.Start(ctx); err == nil {
		t.Fatal("second Start must fail")
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("daemon should report stopped")
	}
	// Stop is idempotent.
	d.Stop()
}

func TestStatsSurface(t *testing.T) {
	d := newDaemon(t)
	stats, err := d.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 0 {
		t.Fatalf("fresh registry should be empty, got %+v", stats)
	}
}
