package mockbackend

import (
	"testing"

	"github.com/tutu-network/inferrt/internal/tensor"
)

func TestBackend_RoundTrip(t *testing.T) {
	b := New("t", 0, 64, 64, nil)
	set, err := b.AllocateBufferSet()
	if err != nil {
		t.Fatalf("AllocateBufferSet: %v", err)
	}

	if ok, err := b.Preprocess(set, "hello"); err != nil || !ok {
		t.Fatalf("Preprocess: ok=%v err=%v", ok, err)
	}
	if ok, err := b.Infer(set, "test"); err != nil || !ok {
		t.Fatalf("Infer: ok=%v err=%v", ok, err)
	}
	out, ok, err := b.Postprocess(set)
	if err != nil || !ok {
		t.Fatalf("Postprocess: ok=%v err=%v", ok, err)
	}
	if out != "mock-inference-result" {
		t.Fatalf("Postprocess result = %q", out)
	}

	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := b.Preprocess(set, "x"); err == nil {
		t.Fatal("Preprocess after Close = nil error")
	}
}

func TestBackend_UnknownBlobOnEmptySet(t *testing.T) {
	set := tensor.NewSet(nil, nil)
	b := New("t", 0, 8, 8, nil)
	if _, err := b.Preprocess(set, "x"); err == nil {
		t.Fatal("Preprocess against a set without an input blob = nil error")
	}
}
