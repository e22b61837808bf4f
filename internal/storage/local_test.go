package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func TestLocalStorage_PutGet(t *testing.T) {
	baseDir := t.TempDir()
	storage, err := NewLocalStorage(baseDir)
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}

	ctx := context.Background()
	objectPath := ScriptPath("0b6b1c2e")
	content := []byte("CREATE TABLE events_2024 PARTITION OF events FOR VALUES FROM (1) TO (2);\n")

	etag, err := storage.Put(ctx, objectPath, content)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if etag == "" {
		t.Error("expected non-empty ETag")
	}
	if got, ok := storage.GetETag(objectPath); !ok || got != etag {
		t.Errorf("GetETag = %q, %v; want %q", got, ok, etag)
	}

	if _, err := os.Stat(filepath.Join(baseDir, "plans", "0b6b1c2e.sql")); err != nil {
		t.Errorf("expected script on disk: %v", err)
	}

	exists, err := storage.Exists(ctx, objectPath)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !exists {
		t.Error("expected object to exist")
	}

	got, err := storage.Get(ctx, objectPath)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q, want %q", got, content)
	}

	// Overwrite changes the ETag.
	etag2, err := storage.Put(ctx, objectPath, []byte("-- empty\n"))
	if err != nil {
		t.Fatalf("Put (overwrite) failed: %v", err)
	}
	if etag2 == etag {
		t.Error("expected ETag to change with content")
	}

	if err := storage.Delete(ctx, objectPath); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	exists, err = storage.Exists(ctx, objectPath)
	if err != nil {
		t.Fatalf("Exists after delete failed: %v", err)
	}
	if exists {
		t.Error("expected object to not exist after delete")
	}

	// Deleting again is a no-op.
	if err := storage.Delete(ctx, objectPath); err != nil {
		t.Errorf("second Delete failed: %v", err)
	}
}

func TestLocalStorage_GetNotFound(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}

	_, err = storage.Get(context.Background(), "plans/missing.sql")
	if !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestLocalStorage_ListObjects(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	ctx := context.Background()

	for _, p := range []string{"plans/a.sql", "plans/b.sql", "other/c.txt"} {
		if _, err := storage.Put(ctx, p, []byte(p)); err != nil {
			t.Fatalf("Put(%s): %v", p, err)
		}
	}

	objects, err := storage.ListObjects(ctx, ScriptPrefix)
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}
	sort.Strings(objects)
	if len(objects) != 2 || objects[0] != "plans/a.sql" || objects[1] != "plans/b.sql" {
		t.Errorf("unexpected objects %v", objects)
	}

	empty, err := storage.ListObjects(ctx, "nothing/")
	if err != nil {
		t.Fatalf("ListObjects on missing prefix failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected no objects, got %v", empty)
	}
}

func TestLocalStorage_CancelledContext(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := storage.Put(ctx, "plans/x.sql", nil); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
