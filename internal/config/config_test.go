package config

import (
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Pool.Size != Default().Pool.Size {
		t.Fatalf("Pool.Size = %d; want default %d", cfg.Pool.Size, Default().Pool.Size)
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	want := Default()
	want.Backend.Kind = "onnx"
	want.Pipeline.QueueCapacity = 32

	if err := Save(want, path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Backend.Kind != "onnx" || got.Pipeline.QueueCapacity != 32 {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
}
