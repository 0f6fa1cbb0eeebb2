// Package entity maps device JSON objects onto typed, schema-driven
// entities. Each kind declares its columns once; fetching, listing,
// updating, joining and mirroring are all derived from that declaration.
package entity

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ColumnType is the storage type tag of a column.
type ColumnType int

// Column types.
const (
	Text ColumnType = iota
	Integer
	Boolean
	Timestamp
)

func (t ColumnType) String() string {
	switch t {
	case Text:
		return "text"
	case Integer:
		return "integer"
	case Boolean:
		return "boolean"
	case Timestamp:
		return "timestamp"
	}
	return fmt.Sprintf("ColumnType(%d)", int(t))
}

// Column declares one field of a kind.
type Column struct {
	// Name is the storage and display name.
	Name string
	// Key is the wire path, dotted for nested objects ("host.reachable").
	// Empty means Name.
	Key  string
	Type ColumnType
	// ID marks identifying columns; together they form the primary key.
	ID bool
	// Mutable columns may be changed with a PUT on the item.
	Mutable bool
	// Create columns are sent when the object is created again.
	Create bool
}

// WireKey returns the JSON path of the column.
func (c Column) WireKey() string {
	if c.Key != "" {
		return c.Key
	}
	return c.Name
}

// Child declares a nested array of sub-records, such as a contact's
// phone numbers.
type Child struct {
	Key  string
	Kind *Kind
	// ParentKey is the child column holding the parent's id.
	ParentKey string
}

// Kind is the schema of one entity type.
type Kind struct {
	Name string
	// URI is the collection endpoint with a trailing slash. Items live at
	// URI + id. Empty for kinds that cannot be fetched directly.
	URI      string
	Columns  []Column
	Children []Child
}

// Column looks up a column by storage name.
func (k *Kind) Column(name string) (Column, bool) {
	for _, c := range k.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// IDColumns returns the identifying columns in declaration order.
func (k *Kind) IDColumns() []Column {
	var out []Column
	for _, c := range k.Columns {
		if c.ID {
			out = append(out, c)
		}
	}
	return out
}

// MutableColumns returns the columns that can be written back.
func (k *Kind) MutableColumns() []Column {
	var out []Column
	for _, c := range k.Columns {
		if c.Mutable {
			out = append(out, c)
		}
	}
	return out
}

// Fetchable reports whether items can be addressed by id.
func (k *Kind) Fetchable() bool {
	return k.URI != "" && len(k.IDColumns()) == 1
}

// Creatable reports whether new items can be posted to the kind's URI.
func (k *Kind) Creatable() bool {
	if k.URI == "" {
		return false
	}
	for _, c := range k.Columns {
		if c.Create {
			return true
		}
	}
	return false
}

// ItemPath returns the endpoint of one item.
func (k *Kind) ItemPath(id string) string {
	return k.URI + url.PathEscape(id)
}

// Validate checks that the declaration is usable.
func (k *Kind) Validate() error {
	if k.Name == "" {
		return errors.New("kind without name")
	}
	if len(k.IDColumns()) == 0 {
		return fmt.Errorf("kind %s: no identifying column", k.Name)
	}
	seen := map[string]bool{}
	for _, c := range k.Columns {
		if c.Name == "" {
			return fmt.Errorf("kind %s: column without name", k.Name)
		}
		if seen[c.Name] {
			return fmt.Errorf("kind %s: duplicate column %s", k.Name, c.Name)
		}
		if c.Name == SourceColumn || c.Name == UpdatedColumn {
			return fmt.Errorf("kind %s: column name %s is reserved", k.Name, c.Name)
		}
		seen[c.Name] = true
	}
	return nil
}

// Reserved column names managed by the mirror.
const (
	SourceColumn  = "src"
	UpdatedColumn = "UpdatedInDB"
)

// FromWire extracts the declared columns from a decoded JSON object.
// Missing keys yield the column's zero value.
func (k *Kind) FromWire(obj map[string]any) (Fields, error) {
	fields := make(Fields, len(k.Columns))
	for _, c := range k.Columns {
		raw, _ := lookupPath(obj, c.WireKey())
		v, err := c.Normalize(raw)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", k.Name, c.Name, err)
		}
		fields[c.Name] = v
	}
	return fields, nil
}

// WireBody builds the JSON body that sets column c to v, nesting dotted
// keys.
func (c Column) WireBody(v any) map[string]any {
	parts := strings.Split(c.WireKey(), ".")
	body := map[string]any{}
	cur := body
	for _, p := range parts[:len(parts)-1] {
		next := map[string]any{}
		cur[p] = next
		cur = next
	}
	cur[parts[len(parts)-1]] = c.WireValue(v)
	return body
}

func lookupPath(obj map[string]any, path string) (any, bool) {
	var cur any = obj
	for _, p := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
