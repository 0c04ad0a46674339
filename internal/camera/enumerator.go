package camera

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/smazurov/boothcam/internal/driver"
	"github.com/smazurov/boothcam/internal/logging"
)

// Query is the driver-side metadata lookup used by the Enumerator.
// driver.Driver satisfies it.
type Query interface {
	DeviceIDs(ctx context.Context) ([]string, error)
	Metadata(ctx context.Context, id string) (driver.Metadata, error)
}

// Enumerator lists camera devices and classifies their facing.
type Enumerator struct {
	query  Query
	policy FacingPolicy
	logger *slog.Logger
}

// EnumeratorOption configures an Enumerator.
type EnumeratorOption func(*Enumerator)

// WithPolicy replaces the facing classification policy.
func WithPolicy(policy FacingPolicy) EnumeratorOption {
	return func(e *Enumerator) {
		if policy != nil {
			e.policy = policy
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) EnumeratorOption {
	return func(e *Enumerator) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEnumerator creates an enumerator over query.
func NewEnumerator(query Query, opts ...EnumeratorOption) *Enumerator {
	e := &Enumerator{
		query:  query,
		policy: DefaultPolicy,
		logger: logging.GetLogger("camera"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ListDevices returns every device whose metadata could be read. A failing
// device is logged and skipped.
func (e *Enumerator) ListDevices(ctx context.Context) ([]Descriptor, error) {
	descs, _, err := e.scan(ctx)
	return descs, err
}

// Resolve returns the descriptor and metadata for id.
func (e *Enumerator) Resolve(ctx context.Context, id string) (Descriptor, driver.Metadata, error) {
	descs, metas, err := e.scan(ctx)
	if err != nil {
		return Descriptor{}, driver.Metadata{}, err
	}
	for i, d := range descs {
		if d.ID == id {
			return d, metas[i], nil
		}
	}
	return Descriptor{}, driver.Metadata{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
}

func (e *Enumerator) scan(ctx context.Context) ([]Descriptor, []driver.Metadata, error) {
	ids, err := e.query.DeviceIDs(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list camera devices: %w", err)
	}

	metas := make([]driver.Metadata, 0, len(ids))
	for _, id := range ids {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		meta, metaErr := e.query.Metadata(ctx, id)
		if metaErr != nil {
			e.logger.Warn("Skipping camera with unreadable metadata", "device_id", id, "error", metaErr)
			continue
		}
		if meta.ID == "" {
			meta.ID = id
		}
		metas = append(metas, meta)
	}

	facings := e.policy(metas)
	descs := make([]Descriptor, len(metas))
	for i, meta := range metas {
		facing := FacingUnknown
		if i < len(facings) {
			facing = facings[i]
		}
		descs[i] = Descriptor{ID: meta.ID, Name: meta.Name, Facing: facing}
		descs[i].Name = descs[i].DisplayName()
		if facing == FacingExternal && meta.Facing != driver.LensFacingExternal {
			e.logger.Debug("Reclassified camera as external",
				"device_id", meta.ID, "reported_facing", meta.Facing.String())
		}
	}
	return descs, metas, nil
}
