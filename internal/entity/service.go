package entity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/koltyakov/fbxos/internal/client"
)

// Transport is the subset of the device client used by the object model.
type Transport interface {
	Get(ctx context.Context, path string, opts ...client.RequestOption) (*client.Envelope, error)
	Put(ctx context.Context, path string, body any, opts ...client.RequestOption) (*client.Envelope, error)
	Post(ctx context.Context, path string, body any, opts ...client.RequestOption) (*client.Envelope, error)
	Delete(ctx context.Context, path string, body any, opts ...client.RequestOption) (*client.Envelope, error)
	DeviceAddress() string
}

// Service performs CRUD-by-id on any declared kind. It caches the last
// known copy of every entity it has seen so that writes of unchanged
// values are skipped.
type Service struct {
	t   Transport
	log *slog.Logger

	mu    sync.Mutex
	cache map[string]*Entity
}

// NewService returns a Service using t.
func NewService(t Transport, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{t: t, log: logger, cache: map[string]*Entity{}}
}

// FetchByID loads one entity from {URI}{id}.
func (s *Service) FetchByID(ctx context.Context, kind *Kind, id string) (*Entity, error) {
	if !kind.Fetchable() {
		return nil, fmt.Errorf("%s cannot be fetched by id", kind.Name)
	}
	env, err := s.t.Get(ctx, kind.ItemPath(id))
	if err != nil {
		return nil, err
	}
	var obj map[string]any
	if err := env.DecodeResult(&obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("%s %s: empty result", kind.Name, id)
	}
	e, err := FromWireObject(kind, obj, s.t.DeviceAddress())
	if err != nil {
		return nil, err
	}
	s.remember(e)
	return e, nil
}

// ListAll loads the whole collection from the kind's URI. A null or absent
// result is an empty collection.
func (s *Service) ListAll(ctx context.Context, kind *Kind) (*Collection, error) {
	if kind.URI == "" {
		return nil, fmt.Errorf("%s has no listing endpoint", kind.Name)
	}
	return s.List(ctx, kind, kind.URI)
}

// List loads a collection of kind from an arbitrary endpoint.
func (s *Service) List(ctx context.Context, kind *Kind, path string) (*Collection, error) {
	env, err := s.t.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	var objs []map[string]any
	if err := env.DecodeResult(&objs); err != nil {
		return nil, err
	}
	out := NewCollection(kind)
	src := s.t.DeviceAddress()
	for _, obj := range objs {
		e, err := FromWireObject(kind, obj, src)
		if err != nil {
			return nil, err
		}
		if err := out.Append(e); err != nil {
			return nil, err
		}
		s.remember(e)
	}
	s.log.Debug("listed", "kind", kind.Name, "path", path, "count", out.Len())
	return out, nil
}

// UpdateField sets one mutable column with a PUT on the item. It is a
// no-op, and reports false, when the cached copy already holds value; the
// item is fetched first if it has not been seen yet.
func (s *Service) UpdateField(ctx context.Context, kind *Kind, id, field string, value any) (bool, error) {
	col, ok := kind.Column(field)
	if !ok {
		return false, fmt.Errorf("%s has no column %s", kind.Name, field)
	}
	if !col.Mutable {
		return false, fmt.Errorf("%s.%s is read-only", kind.Name, field)
	}
	want, err := col.Normalize(value)
	if err != nil {
		return false, fmt.Errorf("%s.%s: %w", kind.Name, field, err)
	}

	current := s.cached(kind, id)
	if current == nil {
		if current, err = s.FetchByID(ctx, kind, id); err != nil {
			return false, err
		}
	}
	if current.Get(field) == want {
		s.log.Debug("value unchanged, skipping update", "kind", kind.Name, "id", id, "field", field)
		return false, nil
	}

	env, err := s.t.Put(ctx, kind.ItemPath(id), col.WireBody(want))
	if err != nil {
		return false, err
	}
	updated := current.Clone()
	updated.children = current.children
	var obj map[string]any
	if env.DecodeResult(&obj) == nil && obj != nil {
		if fresh, err := FromWireObject(kind, obj, s.t.DeviceAddress()); err == nil {
			updated = fresh
		}
	}
	if updated.Get(field) != want {
		if err := updated.Set(field, want); err != nil {
			return false, err
		}
	}
	s.remember(updated)
	return true, nil
}

// Create posts e to the kind's URI using its Create columns and returns
// the object the device created.
func (s *Service) Create(ctx context.Context, e *Entity) (*Entity, error) {
	kind := e.Kind()
	if kind.URI == "" {
		return nil, fmt.Errorf("%s cannot be created", kind.Name)
	}
	env, err := s.t.Post(ctx, kind.URI, e.CreateBody())
	if err != nil {
		return nil, err
	}
	var obj map[string]any
	if err := env.DecodeResult(&obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return e.Clone(), nil
	}
	created, err := FromWireObject(kind, obj, s.t.DeviceAddress())
	if err != nil {
		return nil, err
	}
	s.remember(created)
	return created, nil
}

// Delete removes one item.
func (s *Service) Delete(ctx context.Context, kind *Kind, id string) error {
	if !kind.Fetchable() {
		return fmt.Errorf("%s cannot be deleted by id", kind.Name)
	}
	if _, err := s.t.Delete(ctx, kind.ItemPath(id), nil); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.cache, cacheKey(kind, id))
	s.mu.Unlock()
	return nil
}

func (s *Service) remember(e *Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[cacheKey(e.kind, e.Key())] = e
}

func (s *Service) cached(kind *Kind, id string) *Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache[cacheKey(kind, id)]
}

func cacheKey(kind *Kind, id string) string {
	return kind.Name + "\x00" + id
}
