package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/muurk/edgent/internal/config"
	"github.com/muurk/edgent/internal/machine"
	"github.com/muurk/edgent/internal/state"
)

func TestResetRecord(t *testing.T) {
	tests := []struct {
		name  string
		saved bool
	}{
		{name: "provisioned record", saved: true},
		{name: "no record yet", saved: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "record.yaml")
			store := config.NewFileStore(path)
			if tt.saved {
				rec := &config.Record{WiFiSSID: "Home", CloudToken: strings.Repeat("a", 32)}
				rec.SetFlag(config.FlagValid, true)
				if err := store.Save(rec); err != nil {
					t.Fatal(err)
				}
			}

			if err := resetRecord(store); err != nil {
				t.Fatalf("resetRecord() error = %v", err)
			}
			if _, err := os.Stat(path); !os.IsNotExist(err) {
				t.Errorf("record file still present (stat err = %v)", err)
			}
			rec, err := store.Load()
			if err != nil || rec != nil {
				t.Fatalf("Load() after reset = %+v, %v", rec, err)
			}
			if mode := machine.InitialMode(rec); mode != state.WaitConfig {
				t.Errorf("InitialMode() after reset = %v, want %v", mode, state.WaitConfig)
			}
		})
	}
}
