package services_test

import (
	"context"
	"testing"

	"reelup/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithFilePath(ctx, "/clips/a.mov")
	ctx = services.WithStage(ctx, "merge")
	ctx = services.WithRequestID(ctx, "req-123")

	if path, ok := services.FilePathFromContext(ctx); !ok || path != "/clips/a.mov" {
		t.Fatalf("unexpected file path: %v %v", path, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "merge" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	ctx = services.WithFilePath(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage")
	}
	if _, ok := services.FilePathFromContext(ctx); ok {
		t.Fatal("expected no file path")
	}
}
