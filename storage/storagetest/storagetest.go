// Package storagetest holds the behaviour every storage.Repository backend
// must share. Backend tests call Run with a fresh, empty repository.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/jmcleod/healthseal/storage"
)

// Run exercises repo against the storage.Repository contract.
func Run(t *testing.T, repo storage.Repository) {
	t.Helper()
	ctx := context.Background()

	t.Run("PutGet", func(t *testing.T) {
		if err := repo.Put(ctx, "profile/a/conditions", "envelope-1"); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		got, err := repo.Get(ctx, "profile/a/conditions")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got != "envelope-1" {
			t.Errorf("expected %q, got %q", "envelope-1", got)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		if err := repo.Put(ctx, "profile/a/conditions", "envelope-2"); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		got, err := repo.Get(ctx, "profile/a/conditions")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got != "envelope-2" {
			t.Errorf("expected overwritten value, got %q", got)
		}
	})

	t.Run("EmptyValue", func(t *testing.T) {
		if err := repo.Put(ctx, "profile/a/empty", ""); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		got, err := repo.Get(ctx, "profile/a/empty")
		if err != nil {
			t.Fatalf("empty value must be stored, got error: %v", err)
		}
		if got != "" {
			t.Errorf("expected empty value, got %q", got)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, err := repo.Get(ctx, "profile/missing/conditions")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		for _, k := range []string{"profile/b/medications", "profile/b/allergies", "profile/c/allergies", "other/x"} {
			if err := repo.Put(ctx, k, "v"); err != nil {
				t.Fatalf("Put %s failed: %v", k, err)
			}
		}
		keys, err := repo.List(ctx, "profile/b/")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		want := []string{"profile/b/allergies", "profile/b/medications"}
		if !slices.Equal(keys, want) {
			t.Errorf("expected %v, got %v", want, keys)
		}

		all, err := repo.List(ctx, "profile/")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if !slices.IsSorted(all) {
			t.Errorf("expected sorted keys, got %v", all)
		}
		if slices.Contains(all, "other/x") {
			t.Errorf("prefix filter leaked %q", "other/x")
		}

		none, err := repo.List(ctx, "nothing/")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(none) != 0 {
			t.Errorf("expected no keys, got %v", none)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := repo.Delete(ctx, "profile/c/allergies"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := repo.Get(ctx, "profile/c/allergies"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
		if err := repo.Delete(ctx, "profile/c/allergies"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound deleting twice, got %v", err)
		}
	})

	t.Run("CancelledContext", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		if err := repo.Put(cctx, "profile/z/conditions", "v"); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("Concurrent", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				k := fmt.Sprintf("concurrent/%d", i)
				if err := repo.Put(ctx, k, k); err != nil {
					t.Errorf("Put failed: %v", err)
					return
				}
				if v, err := repo.Get(ctx, k); err != nil || v != k {
					t.Errorf("Get %s: %q, %v", k, v, err)
				}
			}()
		}
		wg.Wait()
		keys, err := repo.List(ctx, "concurrent/")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(keys) != 8 {
			t.Errorf("expected 8 keys, got %d", len(keys))
		}
	})
}
