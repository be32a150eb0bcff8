package badger

import (
	"context"
	"testing"

	"github.com/jmcleod/healthseal/storage/storagetest"
)

func TestBadgerStorage(t *testing.T) {
	s, err := OpenInMemory()
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer s.Close()
	storagetest.Run(t, s)
}

func TestBadgerStorage_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := s.Put(ctx, "profile/a/medications", "sealed"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s, err = Open(dir, nil)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()
	got, err := s.Get(ctx, "profile/a/medications")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "sealed" {
		t.Errorf("expected %q, got %q", "sealed", got)
	}
}
