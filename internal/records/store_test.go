package records_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"reelup/internal/records"
	"reelup/internal/testsupport"
)

func TestPutAndLatest(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRecords(t, cfg)
	ctx := context.Background()

	older := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)
	if err := store.Put(ctx, records.Record{AssetID: "a1", SourcePath: "/media/clip.mov", SizeBytes: 10, UploadedAt: older}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Put(ctx, records.Record{AssetID: "a2", SourcePath: "/media/clip.mov", SizeBytes: 12, UploadedAt: newer}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	latest, err := store.Latest(ctx, "/media/clip.mov")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest == nil || latest.AssetID != "a2" || !latest.UploadedAt.Equal(newer) || latest.SizeBytes != 12 {
		t.Fatalf("unexpected latest record %#v", latest)
	}

	missing, err := store.Latest(ctx, "/media/other.mov")
	if err != nil || missing != nil {
		t.Fatalf("expected no record, got %#v err %v", missing, err)
	}
}

func TestPutIsIdempotentPerAsset(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRecords(t, cfg)
	ctx := context.Background()

	rec := records.Record{AssetID: "a1", SourcePath: "/media/clip.mov"}
	for i := 0; i < 3; i++ {
		if err := store.Put(ctx, rec); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	list, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected one record, got %d", len(list))
	}
}

func TestPutValidatesFields(t *testing.T) {
	store := testsupport.MustOpenRecords(t, testsupport.NewConfig(t))
	if err := store.Put(context.Background(), records.Record{SourcePath: "/x"}); err == nil {
		t.Fatal("expected error for missing asset id")
	}
	if err := store.Put(context.Background(), records.Record{AssetID: "a"}); err == nil {
		t.Fatal("expected error for missing source path")
	}
}

func TestListHonoursLimitNewestFirst(t *testing.T) {
	store := testsupport.MustOpenRecords(t, testsupport.NewConfig(t))
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		if err := store.Put(ctx, records.Record{AssetID: id, SourcePath: "/m/" + id, UploadedAt: base.Add(time.Duration(i) * time.Minute)}); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	list, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].AssetID != "c" || list[1].AssetID != "b" {
		t.Fatalf("unexpected list %#v", list)
	}
}

func TestReopenKeepsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.db")
	store, err := records.OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	if err := store.Put(context.Background(), records.Record{AssetID: "a", SourcePath: "/m/a"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	store.Close()

	reopened, err := records.OpenPath(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	rec, err := reopened.Latest(context.Background(), "/m/a")
	if err != nil || rec == nil {
		t.Fatalf("expected persisted record, got %#v err %v", rec, err)
	}
}
