package tensor

import (
	"fmt"

	"github.com/tutu-network/inferrt/internal/domain"
)

// Set is an immutable-membership mapping from blob name to Tensor,
// constructed once by a backend adapter's AllocateBufferSet. Shapes and
// contents of the contained tensors mutate freely; the set of names
// never changes after construction, matching
// original_source/.../blob_buffer.h's BlobsTensor.
type Set struct {
	tensors map[string]*Tensor
	order   []string // construction order, for stable iteration
}

// NewSet builds a tensor-set from a name->Tensor map. The map is taken
// by value into the Set's own storage; further mutation of the caller's
// map has no effect on the Set.
func NewSet(tensors map[string]*Tensor, order []string) *Set {
	s := &Set{tensors: make(map[string]*Tensor, len(tensors)), order: append([]string(nil), order...)}
	for name, t := range tensors {
		s.tensors[name] = t
	}
	return s
}

// Get returns the tensor stored under name, or ErrUnknownBlob if no such
// blob exists in this set.
func (s *Set) Get(name string) (*Tensor, error) {
	t, ok := s.tensors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownBlob, name)
	}
	return t, nil
}

// Size returns the number of blobs in the set.
func (s *Set) Size() int { return len(s.tensors) }

// Names returns the blob names in construction order.
func (s *Set) Names() []string { return append([]string(nil), s.order...) }

// Reset returns every tensor in the set to its default shape and host
// location, called when a pooled handle is released back to its pool.
func (s *Set) Reset() {
	for _, t := range s.tensors {
		t.Reset()
	}
}

// TensorSetPtr implements domain.TensorSetHolder trivially for Set
// itself, so a bare *Set can serve as a pipeline package.
func (s *Set) TensorSetPtr() any { return s }
