package registry

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tutu-network/inferrt/internal/domain"
)

// suffixesFor lists the acceptable model file extensions for a backend
// kind (spec.md §6's backend-to-file-suffix mapping).
func suffixesFor(kind domain.BackendKind) []string {
	switch kind {
	case domain.BackendONNX:
		return []string{".onnx"}
	case domain.BackendGPU:
		return []string{".plan", ".engine"}
	case domain.BackendNPU:
		return []string{".rknn"}
	default:
		return nil
	}
}

// Validate checks that d is self-consistent before it is persisted:
// the model path's suffix matches the declared backend, and every
// shape override names a blob actually declared in knownBlobs.
func Validate(d domain.ModelDescriptor, knownBlobs map[string]bool) error {
	if d.Backend != domain.BackendMock {
		suffixes := suffixesFor(d.Backend)
		ext := strings.ToLower(filepath.Ext(d.ModelPath))
		matched := false
		for _, s := range suffixes {
			if ext == s {
				matched = true
				break
			}
		}
		if !matched {
			return fmt.Errorf("%w: %q has suffix %q, backend %q expects one of %v",
				domain.ErrModelSuffixMismatch, d.ModelPath, ext, d.Backend, suffixes)
		}
	}

	for blob := range d.ShapeOverrides {
		if knownBlobs != nil && !knownBlobs[blob] {
			return fmt.Errorf("%w: %q", domain.ErrUnknownShapeOverride, blob)
		}
	}

	return nil
}
