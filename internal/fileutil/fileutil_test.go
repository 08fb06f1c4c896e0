package fileutil_test

import (
	"os"
	"path/filepath"
	"testing"

	"stockpix/internal/fileutil"
)

func TestMoveFileCreatesParents(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "src.csv")
	if err := os.WriteFile(src, []byte("a;b;c\n"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	target := filepath.Join(base, "nested", "deep", "dst.csv")
	if err := fileutil.MoveFile(src, target); err != nil {
		t.Fatalf("MoveFile: %v", err)
	}

	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatal("source should be gone after move")
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read target: %v", err)
	}
	if string(data) != "a;b;c\n" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestCopyFilePreservesContent(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "src.bin")
	if err := os.WriteFile(src, []byte{0xff, 0xd8, 0xff}, 0o600); err != nil {
		t.Fatalf("write source: %v", err)
	}

	dst := filepath.Join(base, "dst.bin")
	if err := fileutil.CopyFile(src, dst); err != nil {
		t.Fatalf("CopyFile: %v", err)
	}

	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read copy: %v", err)
	}
	if len(data) != 3 || data[0] != 0xff {
		t.Fatalf("unexpected copy content %v", data)
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatal("source must survive a copy")
	}
}

func TestMoveFileMissingSource(t *testing.T) {
	base := t.TempDir()
	err := fileutil.MoveFile(filepath.Join(base, "absent"), filepath.Join(base, "dst"))
	if err == nil {
		t.Fatal("expected error for missing source")
	}
}
