package transform_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"sync/atomic"
	"testing"

	"stockpix/internal/blobstore"
	"stockpix/internal/identity"
	"stockpix/internal/registry"
	"stockpix/internal/services"
	"stockpix/internal/stage"
	"stockpix/internal/testsupport"
	"stockpix/internal/transform"
)

type fakeValidator struct {
	healthErr error
	verdict   registry.Validation
	verifyErr error
	calls     int64
}

func (v *fakeValidator) Health(context.Context) error { return v.healthErr }

func (v *fakeValidator) Verify(context.Context, []byte, string, string) (registry.Validation, error) {
	atomic.AddInt64(&v.calls, 1)
	if v.verifyErr != nil {
		return registry.Validation{}, v.verifyErr
	}
	return v.verdict, nil
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestVerifyStageRecordsVerdicts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRegistry(t, cfg)
	blobs := blobstore.New(cfg.Paths.StoreDir, cfg.Fetch.Extension)
	ctx := context.Background()

	good := "https://cdn.example.com/good.jpg"
	missing := "https://cdn.example.com/missing.jpg"
	goodID := identity.NewID(good)
	if err := store.RecordFetchOutcomes(ctx, []registry.FetchOutcome{
		{ID: goodID, SourceURL: good, Success: true, HTTPCode: 200, StoragePath: goodID.ShardPath("jpg")},
	}); err != nil {
		t.Fatalf("seed registry: %v", err)
	}
	if _, err := blobs.Write(goodID, pngBytes(t)); err != nil {
		t.Fatalf("seed blob: %v", err)
	}

	batchPath := testsupport.WriteFile(t, t.TempDir(), "feed-simplificado.csv",
		"titulo;descripcion;cuerpo_Es;atributos;imagenes_producto;categoria\n"+
			"Mesa;d;c;{};"+good+";hogar/salon\n"+
			"Silla;d;c;{};"+missing+";hogar/salon\n")

	fake := &fakeValidator{verdict: registry.Validation{IsValid: true, Confidence: 0.9}}
	verify := transform.NewVerifyStage(cfg, store, blobs, fake, nil)
	if err := verify.Prepare(ctx); err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	result, err := verify.Execute(ctx, stage.Batch{Path: batchPath, Name: "feed-simplificado.csv"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.OutputPath != "" {
		t.Fatalf("verify must not rewrite the batch, got %+v", result)
	}

	entry, err := store.Lookup(ctx, goodID)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if entry.Status != registry.StatusValidated || entry.Validation == nil || entry.Validation.Confidence != 0.9 {
		t.Fatalf("verdict not recorded: %#v", entry)
	}
	if atomic.LoadInt64(&fake.calls) != 1 {
		t.Fatalf("expected one verification call, got %d", fake.calls)
	}

	// Second pass skips the resolved row entirely.
	if _, err := verify.Execute(ctx, stage.Batch{Path: batchPath, Name: "feed-simplificado.csv"}); err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if atomic.LoadInt64(&fake.calls) != 1 {
		t.Fatalf("resolved row re-verified, calls %d", fake.calls)
	}
}

func TestVerifyStageRejectionMarksFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRegistry(t, cfg)
	blobs := blobstore.New(cfg.Paths.StoreDir, cfg.Fetch.Extension)
	ctx := context.Background()

	url := "https://cdn.example.com/bad.jpg"
	id := identity.NewID(url)
	if err := store.RecordFetchOutcomes(ctx, []registry.FetchOutcome{
		{ID: id, SourceURL: url, Success: true, HTTPCode: 200, StoragePath: id.ShardPath("jpg")},
	}); err != nil {
		t.Fatalf("seed registry: %v", err)
	}
	if _, err := blobs.Write(id, pngBytes(t)); err != nil {
		t.Fatalf("seed blob: %v", err)
	}

	batchPath := testsupport.WriteFile(t, t.TempDir(), "b.csv",
		"titulo;descripcion;cuerpo_Es;atributos;imagenes_producto;categoria\n"+
			"Mesa;d;c;{};"+url+";hogar\n")

	fake := &fakeValidator{verdict: registry.Validation{IsValid: false, Confidence: 0.3,
		Scores: registry.DetectorScores{WatermarkText: 0.8}}}
	verify := transform.NewVerifyStage(cfg, store, blobs, fake, nil)
	if _, err := verify.Execute(ctx, stage.Batch{Path: batchPath, Name: "b.csv"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	entry, err := store.Lookup(ctx, id)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if entry.Status != registry.StatusValidationFailed {
		t.Fatalf("expected VALIDATION_FAILED, got %s", entry.Status)
	}
	if entry.Validation.Scores.WatermarkText != 0.8 {
		t.Fatalf("scores not stored: %#v", entry.Validation)
	}
}

func TestVerifyStageTransportErrorLeavesUnresolved(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRegistry(t, cfg)
	blobs := blobstore.New(cfg.Paths.StoreDir, cfg.Fetch.Extension)
	ctx := context.Background()

	url := "https://cdn.example.com/flaky.jpg"
	id := identity.NewID(url)
	if err := store.RecordFetchOutcomes(ctx, []registry.FetchOutcome{
		{ID: id, SourceURL: url, Success: true, HTTPCode: 200, StoragePath: id.ShardPath("jpg")},
	}); err != nil {
		t.Fatalf("seed registry: %v", err)
	}
	if _, err := blobs.Write(id, pngBytes(t)); err != nil {
		t.Fatalf("seed blob: %v", err)
	}

	batchPath := testsupport.WriteFile(t, t.TempDir(), "b.csv",
		"titulo;descripcion;cuerpo_Es;atributos;imagenes_producto;categoria\n"+
			"Mesa;d;c;{};"+url+";hogar\n")

	fake := &fakeValidator{verifyErr: errors.New("boom")}
	verify := transform.NewVerifyStage(cfg, store, blobs, fake, nil)
	if _, err := verify.Execute(ctx, stage.Batch{Path: batchPath, Name: "b.csv"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	resolved, err := store.ResolvedForStage(ctx, id, registry.StageValidate)
	if err != nil {
		t.Fatalf("ResolvedForStage: %v", err)
	}
	if resolved {
		t.Fatal("transport error must leave the row unresolved")
	}
}

func TestVerifyStagePrepareFailsWhenServiceDown(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRegistry(t, cfg)
	blobs := blobstore.New(cfg.Paths.StoreDir, cfg.Fetch.Extension)

	healthErr := services.Wrap(services.ErrPrecondition, "validate", "health", "validator unreachable", nil)
	verify := transform.NewVerifyStage(cfg, store, blobs, &fakeValidator{healthErr: healthErr}, nil)

	err := verify.Prepare(context.Background())
	if !errors.Is(err, services.ErrPrecondition) {
		t.Fatalf("expected precondition error, got %v", err)
	}
	if health := verify.HealthCheck(context.Background()); health.Ready {
		t.Fatal("health check should report the outage")
	}
}
