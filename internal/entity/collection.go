package entity

import "fmt"

// Collection is an ordered list of entities of one kind. Lookups are
// linear; device listings hold at most a few hundred entries.
type Collection struct {
	kind  *Kind
	items []*Entity
}

// NewCollection returns a collection holding items. Every item must be of
// kind; it panics otherwise. Use [Collection.Append] for unchecked input.
func NewCollection(kind *Kind, items ...*Entity) *Collection {
	c := &Collection{kind: kind}
	for _, e := range items {
		if err := c.Append(e); err != nil {
			panic("entity: " + err.Error())
		}
	}
	return c
}

// Kind returns the collection's kind.
func (c *Collection) Kind() *Kind {
	return c.kind
}

// Len returns the number of entities.
func (c *Collection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.items)
}

// All returns the entities in order.
func (c *Collection) All() []*Entity {
	if c == nil {
		return nil
	}
	return append([]*Entity(nil), c.items...)
}

// Append adds e. It rejects entities of another kind.
func (c *Collection) Append(e *Entity) error {
	if e.kind != c.kind {
		return fmt.Errorf("cannot add %s to a %s collection", e.kind.Name, c.kind.Name)
	}
	c.items = append(c.items, e)
	return nil
}

// ByID returns the first entity whose key is id, or nil.
func (c *Collection) ByID(id string) *Entity {
	for _, e := range c.All() {
		if e.Key() == id {
			return e
		}
	}
	return nil
}

// ByAttr returns every entity whose column name equals value after
// normalization. An unknown column or unconvertible value matches nothing.
func (c *Collection) ByAttr(name string, value any) []*Entity {
	col, ok := c.kind.Column(name)
	if !ok {
		return nil
	}
	want, err := col.Normalize(value)
	if err != nil {
		return nil
	}
	var out []*Entity
	for _, e := range c.All() {
		if e.fields[name] == want {
			out = append(out, e)
		}
	}
	return out
}

// Children flattens the sub-records of the given kind across the
// collection.
func (c *Collection) Children(kind *Kind) *Collection {
	out := &Collection{kind: kind}
	for _, e := range c.All() {
		out.items = append(out.items, e.Children(kind)...)
	}
	return out
}
