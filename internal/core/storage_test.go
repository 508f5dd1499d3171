package core_test

import (
	"path/filepath"
	"testing"

	"sheltercore/internal/core"
	"sheltercore/internal/infra/persistence/memory"
	"sheltercore/internal/infra/persistence/sqlite"
)

func TestOpenPersistentStoreSelectsMemory(t *testing.T) {
	t.Setenv("SHELTERCORE_STORAGE_DRIVER", string(core.StorageMemory))
	store, err := core.OpenPersistentStore(core.NewDefaultRulesEngine())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := store.(*memory.Store); !ok {
		t.Fatalf("store = %T, want memory", store)
	}
}

func TestOpenPersistentStoreDefaultsToSQLite(t *testing.T) {
	t.Setenv("SHELTERCORE_STORAGE_DRIVER", "")
	t.Setenv("SHELTERCORE_SQLITE_PATH", filepath.Join(t.TempDir(), "shelter.db"))
	store, err := core.OpenPersistentStore(nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sqliteStore, ok := store.(*sqlite.Store)
	if !ok {
		t.Fatalf("store = %T, want sqlite", store)
	}
	if err := sqliteStore.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestOpenPersistentStoreRejectsUnknownDriver(t *testing.T) {
	t.Setenv("SHELTERCORE_STORAGE_DRIVER", "etcd")
	if _, err := core.OpenPersistentStore(nil); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
