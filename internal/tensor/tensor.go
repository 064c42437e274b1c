// Package tensor implements the backend-agnostic view over one named
// model I/O buffer (Tensor) and the set of such buffers for one model
// (Set). It is grounded on original_source/deploy_core/include/
// deploy_core/blob_buffer.h's ITensor/BlobsTensor pair: a host region is
// always present, a device region is optional, and a Location tag tracks
// which side currently holds the readable copy.
package tensor

import (
	"fmt"

	"github.com/tutu-network/inferrt/internal/domain"
)

// Location names where a tensor's bytes currently live.
type Location int

const (
	// Unknown means neither side has been declared readable yet. Raw
	// pointer access at this location is a programmer error.
	Unknown Location = iota
	Host
	Device
)

func (l Location) String() string {
	switch l {
	case Host:
		return "host"
	case Device:
		return "device"
	default:
		return "unknown"
	}
}

// DeviceRegion abstracts a backend's device-memory allocation for one
// tensor. Host-only backends (plain ONNX CPU execution) never construct
// one; GPU/NPU backends implement it against their own buffer handles.
type DeviceRegion interface {
	// Bytes exposes the device allocation as a host-addressable byte
	// slice for copy purposes. Backends that require an explicit
	// upload/download (rather than a mapped pointer) implement this by
	// staging through an internal buffer.
	Bytes() []byte
	// CopyFromHost copies len(host) bytes from the host slice into the
	// device allocation.
	CopyFromHost(host []byte) error
	// CopyToHost copies the device allocation's bytes into host.
	CopyToHost(host []byte) error
}

// Tensor is a named, typed buffer for a single model input or output.
type Tensor struct {
	name          string
	elementBytes  int
	defaultShape  []int
	shape         []int
	host          []byte
	device        DeviceRegion
	location      Location
}

// New constructs a tensor with a host region sized to defaultShape's
// maximum byte footprint. device may be nil for host-only backends.
func New(name string, elementBytes int, defaultShape []int, device DeviceRegion) *Tensor {
	maxElems := product(defaultShape)
	t := &Tensor{
		name:         name,
		elementBytes: elementBytes,
		defaultShape: append([]int(nil), defaultShape...),
		shape:        append([]int(nil), defaultShape...),
		host:         make([]byte, maxElems*elementBytes),
		device:       device,
		location:     Host,
	}
	return t
}

func product(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Name returns the blob name this tensor is bound to.
func (t *Tensor) Name() string { return t.name }

// ElementByteSize returns the fixed per-element byte size.
func (t *Tensor) ElementByteSize() int { return t.elementBytes }

// DefaultShape returns the maximum shape this tensor was allocated for.
func (t *Tensor) DefaultShape() []int { return append([]int(nil), t.defaultShape...) }

// Shape returns the current shape.
func (t *Tensor) Shape() []int { return append([]int(nil), t.shape...) }

// DefaultByteSize returns elementBytes * product(defaultShape).
func (t *Tensor) DefaultByteSize() int { return t.elementBytes * product(t.defaultShape) }

// ByteSize returns elementBytes * product(current shape).
func (t *Tensor) ByteSize() int { return t.elementBytes * product(t.shape) }

// Location reports where the caller should currently read this tensor's
// bytes from.
func (t *Tensor) Location() Location { return t.location }

// HasDevice reports whether this tensor owns a device-memory region.
func (t *Tensor) HasDevice() bool { return t.device != nil }

// Device returns the tensor's device region, or nil for a host-only
// tensor. Backends that need to rebind a native device handle (e.g. a
// GPU backend's bind group) recover their own region type from this via
// a type assertion.
func (t *Tensor) Device() DeviceRegion { return t.device }

// SetShape changes the current shape. Rejected if the new shape's byte
// footprint would exceed the default (maximum) footprint (spec.md §3
// Shape-budget invariant).
func (t *Tensor) SetShape(shape []int) error {
	newSize := t.elementBytes * product(shape)
	if newSize > t.DefaultByteSize() {
		return fmt.Errorf("%w: tensor %q wants %d bytes, budget is %d",
			domain.ErrShapeOverBudget, t.name, newSize, t.DefaultByteSize())
	}
	t.shape = append([]int(nil), shape...)
	return nil
}

// SetLocation declares where the caller has just written data, without
// copying any bytes.
func (t *Tensor) SetLocation(loc Location) {
	t.location = loc
}

// RawPointer returns the byte slice backing the tensor's current
// location. Calling this while the location is Unknown is a programmer
// error per spec.md §4.5, surfaced as ErrLocationUnknown.
func (t *Tensor) RawPointer() ([]byte, error) {
	switch t.location {
	case Host:
		return t.host[:t.ByteSize()], nil
	case Device:
		if t.device == nil {
			return nil, domain.ErrNoDeviceRegion
		}
		return t.device.Bytes()[:t.ByteSize()], nil
	default:
		return nil, domain.ErrLocationUnknown
	}
}

// ToLocation ensures the tensor is readable at loc. If the current
// location differs and both regions exist, it copies across and updates
// the tag — this is the only operation in the package that copies bytes
// across the host/device boundary. For a host-only tensor, requesting
// Host is a no-op and requesting Device is an error.
func (t *Tensor) ToLocation(loc Location) error {
	if t.location == loc {
		return nil
	}
	switch loc {
	case Host:
		if t.device == nil {
			return domain.ErrNoDeviceRegion
		}
		if err := t.device.CopyToHost(t.host[:t.ByteSize()]); err != nil {
			return err
		}
	case Device:
		if t.device == nil {
			return domain.ErrNoDeviceRegion
		}
		if err := t.device.CopyFromHost(t.host[:t.ByteSize()]); err != nil {
			return err
		}
	default:
		return fmt.Errorf("to_location: cannot target %v", loc)
	}
	t.location = loc
	return nil
}

// ZeroCopy adopts other's underlying region as this tensor's active
// region without copying bytes. Only valid when other is at a readable
// (non-Unknown) location; this tensor's location tag becomes other's.
func (t *Tensor) ZeroCopy(other *Tensor) error {
	if _, err := other.RawPointer(); err != nil {
		return err
	}
	switch other.location {
	case Host:
		t.host = other.host
	case Device:
		t.device = other.device
	}
	t.location = other.location
	t.shape = append([]int(nil), other.shape...)
	return nil
}

// DeepCopy memcpys other's bytes into this tensor's own region,
// preserving other's location tag on this tensor.
func (t *Tensor) DeepCopy(other *Tensor) error {
	src, err := other.RawPointer()
	if err != nil {
		return err
	}
	if err := t.SetShape(other.shape); err != nil {
		return err
	}
	switch other.location {
	case Host:
		copy(t.host, src)
		t.location = Host
	case Device:
		if t.device == nil {
			return domain.ErrNoDeviceRegion
		}
		if err := t.device.CopyFromHost(src); err != nil {
			return err
		}
		t.location = Device
	}
	return nil
}

// Reset returns the tensor to its default shape and host location, as
// done between pipeline iterations when a pooled tensor-set is released.
func (t *Tensor) Reset() {
	t.shape = append([]int(nil), t.defaultShape...)
	t.location = Host
}
