package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestFileStore_LoadMissing(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "record.yaml"))

	rec, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if rec != nil {
		t.Errorf("Load() = %+v, want nil for a missing file", rec)
	}
}

func TestFileStore_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "record.yaml")
	store := NewFileStore(path)

	want := Record{
		WiFiSSID:        "Home",
		WiFiPass:        "secret",
		CloudToken:      testToken,
		CloudHost:       "cloud.example.com",
		CloudPort:       8443,
		StaticIP:        "10.0.0.2",
		StaticMask:      "255.255.255.0",
		Flags:           FlagValid | FlagStaticIP,
		LastError:       ErrNetwork,
		FirmwareVersion: "1.2.3",
	}

	if err := store.Save(&want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got == nil || *got != want {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file should not remain after Save()")
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("Stat() error = %v", err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("record permissions = %v, want 0600", info.Mode().Perm())
		}
	}
}

func TestFileStore_RejectsUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "record.yaml")
	if err := os.WriteFile(path, []byte("version: 9\nrecord: {}\n"), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := NewFileStore(path).Load()
	if err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Errorf("Load() error = %v, want unsupported version error", err)
	}
}

func TestFileStore_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "record.yaml")
	if err := os.WriteFile(path, []byte("{{{ not yaml"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := NewFileStore(path).Load(); err == nil {
		t.Error("Load() should fail on a corrupt file")
	}
}

func TestFileStore_Remove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "record.yaml")
	store := NewFileStore(path)

	if err := store.Remove(); err != nil {
		t.Fatalf("Remove() on missing file error = %v", err)
	}

	if err := store.Save(&Record{WiFiSSID: "x"}); err != nil {
		t.Fatal(err)
	}
	if err := store.Remove(); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	rec, err := store.Load()
	if err != nil || rec != nil {
		t.Errorf("Load() after Remove() = %+v, %v", rec, err)
	}
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore(nil)

	rec, err := store.Load()
	if err != nil || rec != nil {
		t.Fatalf("empty MemoryStore Load() = %+v, %v", rec, err)
	}

	in := Record{WiFiSSID: "Home"}
	if err := store.Save(&in); err != nil {
		t.Fatal(err)
	}
	in.WiFiSSID = "mutated"

	out, _ := store.Load()
	if out.WiFiSSID != "Home" {
		t.Errorf("MemoryStore must copy on Save, got %q", out.WiFiSSID)
	}
	if store.Saves() != 1 {
		t.Errorf("Saves() = %d, want 1", store.Saves())
	}

	store.Err = errors.New("flash worn out")
	if err := store.Save(&in); err == nil {
		t.Error("Save() should return the injected error")
	}
}
