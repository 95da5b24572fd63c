package persistence

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

func TestServerStateStore(t *testing.T) {
	t.Run("SaveAndLoad", func(t *testing.T) {
		dir := t.TempDir()
		store := NewServerStateStore(filepath.Join(dir, "state.json"))

		id := uuid.New()
		if err := store.Save(&ServerState{UUID: id, Name: "Incubator"}); err != nil {
			t.Fatalf("Save() error = %v", err)
		}

		got, err := store.Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got.Version != StateVersion {
			t.Errorf("Version = %d, want %d", got.Version, StateVersion)
		}
		if got.UUID != id {
			t.Errorf("UUID = %s, want %s", got.UUID, id)
		}
		if got.Name != "Incubator" {
			t.Errorf("Name = %q, want %q", got.Name, "Incubator")
		}
		if got.SavedAt.IsZero() {
			t.Error("SavedAt not set")
		}
	})

	t.Run("LoadNonExistent", func(t *testing.T) {
		store := NewServerStateStore(filepath.Join(t.TempDir(), "nonexistent.json"))

		got, err := store.Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got != nil {
			t.Errorf("Load() = %v, want nil for non-existent file", got)
		}
	})

	t.Run("CreatesParentDirectory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "a", "b", "state.json")
		store := NewServerStateStore(path)

		if err := store.Save(&ServerState{UUID: uuid.New()}); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		if _, err := os.Stat(path); err != nil {
			t.Errorf("state file missing: %v", err)
		}
		if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
			t.Errorf("temporary file left behind: %v", err)
		}
	})

	t.Run("Corrupt", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state.json")
		if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
			t.Fatal(err)
		}

		if _, err := NewServerStateStore(path).Load(); err == nil {
			t.Error("Load() should fail on a corrupt file")
		}
	})

	t.Run("NewerVersion", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state.json")
		if err := os.WriteFile(path, []byte(`{"version": 99}`), 0644); err != nil {
			t.Fatal(err)
		}

		_, err := NewServerStateStore(path).Load()
		if !errors.Is(err, ErrUnsupportedVersion) {
			t.Errorf("Load() error = %v, want ErrUnsupportedVersion", err)
		}
	})

	t.Run("Clear", func(t *testing.T) {
		store := NewServerStateStore(filepath.Join(t.TempDir(), "state.json"))
		if err := store.Save(&ServerState{UUID: uuid.New()}); err != nil {
			t.Fatalf("Save() error = %v", err)
		}

		if err := store.Clear(); err != nil {
			t.Fatalf("Clear() error = %v", err)
		}
		if got, _ := store.Load(); got != nil {
			t.Error("state should be gone after Clear()")
		}

		// Clearing twice is fine.
		if err := store.Clear(); err != nil {
			t.Errorf("second Clear() error = %v", err)
		}
	})
}

func TestLoadOrCreate(t *testing.T) {
	store := NewServerStateStore(filepath.Join(t.TempDir(), "state.json"))

	first, err := store.LoadOrCreate("Shaker")
	if err != nil {
		t.Fatalf("LoadOrCreate() error = %v", err)
	}
	if first.UUID == uuid.Nil {
		t.Fatal("LoadOrCreate() did not assign a UUID")
	}
	if first.Name != "Shaker" {
		t.Errorf("Name = %q, want %q", first.Name, "Shaker")
	}

	second, err := store.LoadOrCreate("Other")
	if err != nil {
		t.Fatalf("LoadOrCreate() error = %v", err)
	}
	if second.UUID != first.UUID {
		t.Errorf("UUID changed across runs: %s != %s", second.UUID, first.UUID)
	}
	if second.Name != "Shaker" {
		t.Errorf("Name = %q, stored name should win", second.Name)
	}
}

func TestSetName(t *testing.T) {
	store := NewServerStateStore(filepath.Join(t.TempDir(), "state.json"))

	state, err := store.LoadOrCreate("Shaker")
	if err != nil {
		t.Fatalf("LoadOrCreate() error = %v", err)
	}
	if err := store.SetName("Shaker 2"); err != nil {
		t.Fatalf("SetName() error = %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Name != "Shaker 2" {
		t.Errorf("Name = %q, want %q", got.Name, "Shaker 2")
	}
	if got.UUID != state.UUID {
		t.Errorf("UUID = %s, want %s", got.UUID, state.UUID)
	}
}
