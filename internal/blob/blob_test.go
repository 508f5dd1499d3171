package blob

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	fsStore, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilesystem: %v", err)
	}
	return map[string]Store{
		"memory": NewMemory(),
		"fs":     fsStore,
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			info, err := store.Put(ctx, "audit/2026/entry.json", strings.NewReader(`{"op":"assign"}`),
				PutOptions{ContentType: "application/json", Metadata: map[string]string{"actor": "staff1"}})
			if err != nil {
				t.Fatalf("Put: %v", err)
			}
			if info.Size != int64(len(`{"op":"assign"}`)) {
				t.Fatalf("unexpected size %d", info.Size)
			}
			got, rc, err := store.Get(ctx, "audit/2026/entry.json")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			defer rc.Close()
			body, err := io.ReadAll(rc)
			if err != nil {
				t.Fatalf("read body: %v", err)
			}
			if string(body) != `{"op":"assign"}` {
				t.Fatalf("unexpected body %q", body)
			}
			if got.ContentType != "application/json" || got.Metadata["actor"] != "staff1" {
				t.Fatalf("metadata lost: %+v", got)
			}
		})
	}
}

func TestPutRejectsExistingKey(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := store.Put(ctx, "k", strings.NewReader("a"), PutOptions{}); err != nil {
				t.Fatalf("first Put: %v", err)
			}
			_, err := store.Put(ctx, "k", strings.NewReader("b"), PutOptions{})
			var exists *KeyExistsError
			if !errors.As(err, &exists) {
				t.Fatalf("expected KeyExistsError, got %v", err)
			}
		})
	}
}

func TestGetMissingKey(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if _, _, err := store.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestDeleteReportsExistence(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := store.Put(ctx, "gone", strings.NewReader("x"), PutOptions{}); err != nil {
				t.Fatalf("Put: %v", err)
			}
			ok, err := store.Delete(ctx, "gone")
			if err != nil || !ok {
				t.Fatalf("Delete existing: ok=%v err=%v", ok, err)
			}
			ok, err = store.Delete(ctx, "gone")
			if err != nil || ok {
				t.Fatalf("Delete missing: ok=%v err=%v", ok, err)
			}
		})
	}
}

func TestListFiltersByPrefix(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, key := range []string{"audit/a.json", "audit/b.json", "other/c.json"} {
				if _, err := store.Put(ctx, key, strings.NewReader("{}"), PutOptions{}); err != nil {
					t.Fatalf("Put %s: %v", key, err)
				}
			}
			infos, err := store.List(ctx, "audit/")
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(infos) != 2 {
				t.Fatalf("expected 2 entries, got %d", len(infos))
			}
			if infos[0].Key != "audit/a.json" || infos[1].Key != "audit/b.json" {
				t.Fatalf("unexpected order: %+v", infos)
			}
		})
	}
}

func TestFilesystemRejectsTraversalKeys(t *testing.T) {
	store, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilesystem: %v", err)
	}
	for _, key := range []string{"", "../escape", "/absolute"} {
		if _, err := store.Put(context.Background(), key, strings.NewReader("x"), PutOptions{}); err == nil {
			t.Fatalf("key %q accepted", key)
		}
	}
}

func TestOpenSelectsDriverFromEnv(t *testing.T) {
	t.Setenv("SHELTERCORE_BLOB_DRIVER", "memory")
	store, err := Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if store.Driver() != DriverMemory {
		t.Fatalf("unexpected driver %s", store.Driver())
	}

	t.Setenv("SHELTERCORE_BLOB_DRIVER", "bogus")
	if _, err := Open(context.Background()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
