package registry

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/tutu-network/inferrt/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "models.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_UpsertGetList(t *testing.T) {
	s := newTestStore(t)

	d := domain.ModelDescriptor{
		Name: "detector-v1", Task: domain.TaskDetection, Backend: domain.BackendONNX,
		ModelPath: "/models/detector.onnx", ShapeOverrides: map[string][]int{"input": {1, 3, 640, 640}},
	}
	if err := s.UpsertDescriptor(d); err != nil {
		t.Fatalf("UpsertDescriptor: %v", err)
	}

	got, err := s.GetDescriptor("detector-v1")
	if err != nil {
		t.Fatalf("GetDescriptor: %v", err)
	}
	if got.ModelPath != d.ModelPath || got.Backend != d.Backend {
		t.Fatalf("GetDescriptor = %+v; want %+v", got, d)
	}
	if len(got.ShapeOverrides["input"]) != 4 {
		t.Fatalf("ShapeOverrides not round-tripped: %+v", got.ShapeOverrides)
	}

	list, err := s.ListDescriptors()
	if err != nil || len(list) != 1 {
		t.Fatalf("ListDescriptors = %v, %v", list, err)
	}

	if err := s.DeleteDescriptor("detector-v1"); err != nil {
		t.Fatalf("DeleteDescriptor: %v", err)
	}
	if _, err := s.GetDescriptor("detector-v1"); !errors.Is(err, domain.ErrModelNotRegistered) {
		t.Fatalf("GetDescriptor after delete = %v; want ErrModelNotRegistered", err)
	}
}

func TestStore_DeleteUnknownIsError(t *testing.T) {
	s := newTestStore(t)
	if err := s.DeleteDescriptor("nope"); !errors.Is(err, domain.ErrModelNotRegistered) {
		t.Fatalf("DeleteDescriptor(unknown) = %v; want ErrModelNotRegistered", err)
	}
}

func TestValidate_SuffixMismatch(t *testing.T) {
	d := domain.ModelDescriptor{Backend: domain.BackendONNX, ModelPath: "/models/detector.rknn"}
	if err := Validate(d, nil); !errors.Is(err, domain.ErrModelSuffixMismatch) {
		t.Fatalf("Validate = %v; want ErrModelSuffixMismatch", err)
	}
}

func TestValidate_UnknownShapeOverride(t *testing.T) {
	d := domain.ModelDescriptor{
		Backend: domain.BackendONNX, ModelPath: "/models/detector.onnx",
		ShapeOverrides: map[string][]int{"ghost": {1}},
	}
	if err := Validate(d, map[string]bool{"input": true}); !errors.Is(err, domain.ErrUnknownShapeOverride) {
		t.Fatalf("Validate = %v; want ErrUnknownShapeOverride", err)
	}
}

func TestValidate_OKForMockBackend(t *testing.T) {
	d := domain.ModelDescriptor{Backend: domain.BackendMock, ModelPath: "anything"}
	if err := Validate(d, nil); err != nil {
		t.Fatalf("Validate(mock) = %v", err)
	}
}
