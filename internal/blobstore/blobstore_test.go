package blobstore_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"stockpix/internal/blobstore"
	"stockpix/internal/identity"
)

func TestWriteReadRoundTrip(t *testing.T) {
	store := blobstore.New(t.TempDir(), "jpg")
	id := identity.NewID("https://cdn.example.com/product.jpg")

	if store.Exists(id) {
		t.Fatal("fresh store must not report the blob")
	}

	rel, err := store.Write(id, []byte("jpeg-bytes"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if rel != id.ShardPath("jpg") {
		t.Fatalf("unexpected relative path %q", rel)
	}
	if !store.Exists(id) {
		t.Fatal("blob should exist after write")
	}

	data, err := store.Read(id)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != "jpeg-bytes" {
		t.Fatalf("unexpected payload %q", data)
	}
}

func TestWriteShardsByPrefix(t *testing.T) {
	root := t.TempDir()
	store := blobstore.New(root, "jpg")
	id := identity.NewID("https://cdn.example.com/shard.jpg")

	if _, err := store.Write(id, []byte("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	want := filepath.Join(root, string(id)[:2], string(id)[2:4], string(id)+".jpg")
	if store.Path(id) != want {
		t.Fatalf("Path = %q, want %q", store.Path(id), want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("blob not at shard path: %v", err)
	}
}

func TestWriteIsIdempotent(t *testing.T) {
	store := blobstore.New(t.TempDir(), "jpg")
	id := identity.NewID("https://cdn.example.com/again.jpg")

	if _, err := store.Write(id, []byte("first")); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if _, err := store.Write(id, []byte("second")); err != nil {
		t.Fatalf("second write: %v", err)
	}

	data, err := store.Read(id)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != "second" {
		t.Fatalf("rewrite should replace content, got %q", data)
	}

	// No temp residue in the shard dir.
	entries, err := os.ReadDir(filepath.Dir(store.Path(id)))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			t.Fatalf("leftover temp file %s", e.Name())
		}
	}
}

func TestReadMissingBlob(t *testing.T) {
	store := blobstore.New(t.TempDir(), "jpg")
	if _, err := store.Read(identity.NewID("https://cdn.example.com/missing.jpg")); err == nil {
		t.Fatal("expected error for missing blob")
	}
}
