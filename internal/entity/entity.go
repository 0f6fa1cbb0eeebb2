package entity

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Fields maps column names to canonical values. It is the one intermediate
// representation produced by both the wire decoder and the mirror.
type Fields map[string]any

// Provenance tells where an entity was loaded from.
type Provenance int

// Provenances.
const (
	FromDevice Provenance = iota
	FromMirror
)

func (p Provenance) String() string {
	if p == FromMirror {
		return "mirror"
	}
	return "device"
}

// Entity is one remote object.
type Entity struct {
	kind   *Kind
	fields Fields
	// Source is the device address the object came from.
	Source     string
	Provenance Provenance
	children   map[string][]*Entity
}

// New builds an entity of kind from fields. Every declared column is
// normalized; missing ones take their zero value.
func New(kind *Kind, fields Fields, source string, prov Provenance) (*Entity, error) {
	e := &Entity{kind: kind, fields: make(Fields, len(kind.Columns)), Source: source, Provenance: prov}
	for _, c := range kind.Columns {
		v, err := c.Normalize(fields[c.Name])
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", kind.Name, c.Name, err)
		}
		e.fields[c.Name] = v
	}
	return e, nil
}

// FromWireObject builds a live entity and its declared children from a
// decoded JSON object.
func FromWireObject(kind *Kind, obj map[string]any, source string) (*Entity, error) {
	fields, err := kind.FromWire(obj)
	if err != nil {
		return nil, err
	}
	e := &Entity{kind: kind, fields: fields, Source: source, Provenance: FromDevice}
	for _, ch := range kind.Children {
		items, _ := obj[ch.Key].([]any)
		for _, item := range items {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			child, err := FromWireObject(ch.Kind, m, source)
			if err != nil {
				return nil, err
			}
			e.AddChild(child)
		}
	}
	return e, nil
}

// Kind returns the entity's kind.
func (e *Entity) Kind() *Kind {
	return e.kind
}

// Key returns the canonical identity: the identifying column values joined
// with "/".
func (e *Entity) Key() string {
	ids := e.kind.IDColumns()
	parts := make([]string, 0, len(ids))
	for _, c := range ids {
		parts = append(parts, toText(e.fields[c.Name]))
	}
	return strings.Join(parts, "/")
}

// Get returns the canonical value of a column, or nil.
func (e *Entity) Get(name string) any {
	return e.fields[name]
}

// Int returns an Integer column.
func (e *Entity) Int(name string) int64 {
	n, _ := e.fields[name].(int64)
	return n
}

// Bool returns a Boolean column.
func (e *Entity) Bool(name string) bool {
	b, _ := e.fields[name].(bool)
	return b
}

// Text returns a column as text.
func (e *Entity) Text(name string) string {
	return toText(e.fields[name])
}

// Time returns a Timestamp column; ok is false when unset.
func (e *Entity) Time(name string) (time.Time, bool) {
	n, ok := e.fields[name].(int64)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(n, 0), true
}

// Set normalizes and stores a column value.
func (e *Entity) Set(name string, v any) error {
	c, ok := e.kind.Column(name)
	if !ok {
		return fmt.Errorf("%s has no column %s", e.kind.Name, name)
	}
	nv, err := c.Normalize(v)
	if err != nil {
		return fmt.Errorf("%s.%s: %w", e.kind.Name, name, err)
	}
	e.fields[name] = nv
	return nil
}

// Fields returns a copy of the canonical values.
func (e *Entity) Fields() Fields {
	out := make(Fields, len(e.fields))
	for k, v := range e.fields {
		out[k] = v
	}
	return out
}

// Equal reports whether both entities have the same kind and equal values
// on every declared column. Provenance and source are ignored.
func (e *Entity) Equal(other *Entity) bool {
	if other == nil || e.kind != other.kind {
		return false
	}
	for _, c := range e.kind.Columns {
		if e.fields[c.Name] != other.fields[c.Name] {
			return false
		}
	}
	return true
}

// Clone returns a deep copy without children.
func (e *Entity) Clone() *Entity {
	return &Entity{kind: e.kind, fields: e.Fields(), Source: e.Source, Provenance: e.Provenance}
}

// AddChild attaches a sub-record.
func (e *Entity) AddChild(child *Entity) {
	if e.children == nil {
		e.children = map[string][]*Entity{}
	}
	e.children[child.kind.Name] = append(e.children[child.kind.Name], child)
}

// Children returns the sub-records of the given kind.
func (e *Entity) Children(kind *Kind) []*Entity {
	return e.children[kind.Name]
}

// MarshalJSON renders the declared columns plus src.
func (e *Entity) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.fields)+1)
	for k, v := range e.fields {
		out[k] = v
	}
	out[SourceColumn] = e.Source
	return json.Marshal(out)
}

// CreateBody returns the JSON body recreating the entity on the device.
func (e *Entity) CreateBody() map[string]any {
	body := map[string]any{}
	for _, c := range e.kind.Columns {
		if !c.Create {
			continue
		}
		mergeBody(body, c.WireBody(e.fields[c.Name]))
	}
	return body
}

func mergeBody(dst, src map[string]any) {
	for k, v := range src {
		if sub, ok := v.(map[string]any); ok {
			if existing, ok := dst[k].(map[string]any); ok {
				mergeBody(existing, sub)
				continue
			}
		}
		dst[k] = v
	}
}

// ParseID converts a textual id into the canonical value of the kind's
// single identifying column.
func (k *Kind) ParseID(id string) (any, error) {
	ids := k.IDColumns()
	if len(ids) != 1 {
		return nil, fmt.Errorf("kind %s has a composite key", k.Name)
	}
	if ids[0].Type == Integer {
		n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s id %q is not an integer", k.Name, id)
		}
		return n, nil
	}
	return ids[0].Normalize(id)
}
