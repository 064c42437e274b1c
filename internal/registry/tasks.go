// Registry builds typed per-task entry points (detect/compute
// disparity/segment) on top of a driver.Driver, supplementing spec.md's
// generic "detection, stereo, segmentation, …" task list with the
// closed set named in original_source's base_detection.hpp/
// base_stereo.hpp.
package registry

import (
	"fmt"

	"github.com/tutu-network/inferrt/internal/backend"
	"github.com/tutu-network/inferrt/internal/domain"
	"github.com/tutu-network/inferrt/internal/driver"
	"github.com/tutu-network/inferrt/internal/logging"
)

// Registry resolves named models (by domain.ModelDescriptor.Name) to a
// running driver.Driver, built from a Store plus a backend.Factory that
// knows how to construct an Adapter for a given descriptor.
type Registry struct {
	store   domain.ModelStore
	factory backend.Factory
	log     logging.Logger

	drivers map[string]*driver.Driver
}

// New builds a Registry over store, lazily constructing drivers on
// first use via factory.
func New(store domain.ModelStore, factory backend.Factory, log logging.Logger) *Registry {
	if log == nil {
		log = logging.Global()
	}
	return &Registry{store: store, factory: factory, log: log, drivers: make(map[string]*driver.Driver)}
}

// Register validates and persists a model descriptor. knownBlobs names
// the blobs the resolved backend will actually declare, used to reject
// shape overrides for names that do not exist.
func (r *Registry) Register(d domain.ModelDescriptor, knownBlobs map[string]bool) error {
	if err := Validate(d, knownBlobs); err != nil {
		return err
	}
	return r.store.UpsertDescriptor(d)
}

// driverFor returns the running driver for a registered model name,
// constructing it (and its backend adapter) on first use.
func (r *Registry) driverFor(name string, cfg driver.Config) (*driver.Driver, error) {
	if d, ok := r.drivers[name]; ok {
		return d, nil
	}

	desc, err := r.store.GetDescriptor(name)
	if err != nil {
		return nil, err
	}

	adapter, err := r.factory.Create(*desc)
	if err != nil {
		return nil, fmt.Errorf("registry: creating adapter for %q: %w", name, err)
	}

	d, err := driver.New(adapter, cfg, r.log)
	if err != nil {
		return nil, fmt.Errorf("registry: creating driver for %q: %w", name, err)
	}
	r.drivers[name] = d
	return d, nil
}

func (r *Registry) requireTask(name string, want domain.TaskKind) (*domain.ModelDescriptor, error) {
	desc, err := r.store.GetDescriptor(name)
	if err != nil {
		return nil, err
	}
	if desc.Task != want {
		return nil, fmt.Errorf("%w: %q is registered as %q, not %q", domain.ErrTaskKindMismatch, name, desc.Task, want)
	}
	return desc, nil
}

// DetectSync runs a synchronous detection inference against the named
// model.
func (r *Registry) DetectSync(modelName string, cfg driver.Config, input any) (any, error) {
	if _, err := r.requireTask(modelName, domain.TaskDetection); err != nil {
		return nil, err
	}
	d, err := r.driverFor(modelName, cfg)
	if err != nil {
		return nil, err
	}
	return d.RunSync(input)
}

// DetectAsync runs an asynchronous detection inference against the
// named model, returning a future that resolves once all three stages
// have run. coverOldest selects the non-blocking acquire/submit
// posture (driver.Driver.RunAsync); an unregistered or mismatched
// model name fails fast with an error rather than returning an invalid
// future, since that failure is known before any buffer is touched.
func (r *Registry) DetectAsync(modelName string, cfg driver.Config, input any, coverOldest bool) (*driver.Future, error) {
	if _, err := r.requireTask(modelName, domain.TaskDetection); err != nil {
		return nil, err
	}
	d, err := r.driverFor(modelName, cfg)
	if err != nil {
		return nil, err
	}
	return d.RunAsync(input, coverOldest), nil
}

// ComputeDisparitySync runs a synchronous stereo-disparity inference
// against the named model.
func (r *Registry) ComputeDisparitySync(modelName string, cfg driver.Config, input any) (any, error) {
	if _, err := r.requireTask(modelName, domain.TaskStereo); err != nil {
		return nil, err
	}
	d, err := r.driverFor(modelName, cfg)
	if err != nil {
		return nil, err
	}
	return d.RunSync(input)
}

// ComputeDisparityAsync runs an asynchronous stereo-disparity inference
// against the named model, returning a future (see DetectAsync).
func (r *Registry) ComputeDisparityAsync(modelName string, cfg driver.Config, input any, coverOldest bool) (*driver.Future, error) {
	if _, err := r.requireTask(modelName, domain.TaskStereo); err != nil {
		return nil, err
	}
	d, err := r.driverFor(modelName, cfg)
	if err != nil {
		return nil, err
	}
	return d.RunAsync(input, coverOldest), nil
}

// SegmentSync runs a synchronous segmentation inference against the
// named model.
func (r *Registry) SegmentSync(modelName string, cfg driver.Config, input any) (any, error) {
	if _, err := r.requireTask(modelName, domain.TaskSegmentation); err != nil {
		return nil, err
	}
	d, err := r.driverFor(modelName, cfg)
	if err != nil {
		return nil, err
	}
	return d.RunSync(input)
}

// SegmentAsync runs an asynchronous segmentation inference against the
// named model, returning a future (see DetectAsync).
func (r *Registry) SegmentAsync(modelName string, cfg driver.Config, input any, coverOldest bool) (*driver.Future, error) {
	if _, err := r.requireTask(modelName, domain.TaskSegmentation); err != nil {
		return nil, err
	}
	d, err := r.driverFor(modelName, cfg)
	if err != nil {
		return nil, err
	}
	return d.RunAsync(input, coverOldest), nil
}

// Close tears down every driver this registry has constructed.
func (r *Registry) Close() error {
	var firstErr error
	for name, d := range r.drivers {
		if err := d.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("registry: closing driver %q: %w", name, err)
		}
	}
	return firstErr
}
