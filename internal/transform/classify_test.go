package transform_test

import (
	"context"
	"os"
	"strings"
	"testing"

	"stockpix/internal/catalog"
	"stockpix/internal/stage"
	"stockpix/internal/testsupport"
	"stockpix/internal/transform"
)

type recordingClassifier struct {
	category string
}

func (c recordingClassifier) Classify(_ context.Context, title, _, _ string) string {
	if strings.TrimSpace(title) == "" {
		return ""
	}
	return c.category
}

func TestClassifyStageRewritesBatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	dir := t.TempDir()
	path := testsupport.WriteFile(t, dir, "feed.csv",
		"nombre_es;descripcion_es;cuerpo_es;imagenes_producto;tipo\n"+
			"Mesa;Madera;<b>maciza</b>;https://a.example/1.jpg,https://a.example/2.jpg;P\n")

	classify := transform.NewClassifyStage(cfg, recordingClassifier{category: "hogar/salon"}, nil)
	if classify.Name() != "classify" {
		t.Fatalf("unexpected stage name %q", classify.Name())
	}
	if err := classify.Prepare(context.Background()); err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	result, err := classify.Execute(context.Background(), stage.Batch{Path: path, Name: "feed.csv"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.OutputPath == "" || result.OutputName != "feed-simplificado.csv" {
		t.Fatalf("unexpected result %+v", result)
	}
	t.Cleanup(func() { os.Remove(result.OutputPath) })

	out, err := catalog.Read(result.OutputPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if len(out.Rows) != 2 {
		t.Fatalf("expected exploded rows, got %d", len(out.Rows))
	}
	for _, row := range out.Rows {
		if row[catalog.OutCategory] != "hogar/salon" {
			t.Fatalf("category missing: %#v", row)
		}
		if row[catalog.OutBody] != "maciza" {
			t.Fatalf("body not cleaned: %#v", row)
		}
	}

	// The input stays where it was; placement is not the stage's job.
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("input moved by stage: %v", err)
	}
}

func TestClassifyStageHealthAlwaysReady(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	classify := transform.NewClassifyStage(cfg, recordingClassifier{}, nil)
	if health := classify.HealthCheck(context.Background()); !health.Ready {
		t.Fatalf("classify stage should stay ready, got %+v", health)
	}
}
