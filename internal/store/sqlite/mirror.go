package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/koltyakov/fbxos/internal/domain"
	"github.com/koltyakov/fbxos/internal/entity"
)

// Upsert inserts or replaces one row. Each call is its own transaction.
func (s *Store) Upsert(ctx context.Context, e *entity.Entity) error {
	k := e.Kind()
	args := make([]any, 0, len(k.Columns)+1)
	for _, c := range k.Columns {
		args = append(args, storageValue(c, e.Get(c.Name)))
	}
	args = append(args, e.Source)
	if _, err := s.db.ExecContext(ctx, upsertSQL(k), args...); err != nil {
		return fmt.Errorf("upsert %s %s: %w", k.Name, e.Key(), err)
	}
	return nil
}

// SaveCollection upserts every entity of col and their sub-records. A
// failure stops at the failing row; earlier rows stay saved.
func (s *Store) SaveCollection(ctx context.Context, col *entity.Collection) (int, error) {
	saved := 0
	for _, e := range col.All() {
		if err := s.Upsert(ctx, e); err != nil {
			return saved, err
		}
		saved++
		for _, ch := range col.Kind().Children {
			for _, child := range e.Children(ch.Kind) {
				if err := s.Upsert(ctx, child); err != nil {
					return saved, err
				}
			}
		}
	}
	s.log.Debug("mirror saved", "kind", col.Kind().Name, "rows", saved)
	return saved, nil
}

// SelectAll returns every row of kind as mirror entities.
func (s *Store) SelectAll(ctx context.Context, kind *entity.Kind) ([]*entity.Entity, error) {
	rows, err := s.db.QueryContext(ctx, selectSQL(kind, false))
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", kind.Name, err)
	}
	defer rows.Close()
	return scanEntities(rows, kind)
}

// SelectByID returns the row of kind whose key is id, or
// [domain.ErrNotFound].
func (s *Store) SelectByID(ctx context.Context, kind *entity.Kind, id string) (*entity.Entity, error) {
	idv, err := kind.ParseID(id)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, selectSQL(kind, true), idv)
	if err != nil {
		return nil, fmt.Errorf("select %s %s: %w", kind.Name, id, err)
	}
	defer rows.Close()
	out, err := scanEntities(rows, kind)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s %s: %w", kind.Name, id, domain.ErrNotFound)
	}
	return out[0], nil
}

// LoadCollection rebuilds a collection of kind from the mirror, attaching
// sub-records to their parents.
func (s *Store) LoadCollection(ctx context.Context, kind *entity.Kind) (*entity.Collection, error) {
	items, err := s.SelectAll(ctx, kind)
	if err != nil {
		return nil, err
	}
	col := entity.NewCollection(kind, items...)
	for _, ch := range kind.Children {
		if ch.ParentKey == "" {
			continue
		}
		children, err := s.SelectAll(ctx, ch.Kind)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			if parent := col.ByID(child.Text(ch.ParentKey)); parent != nil {
				parent.AddChild(child)
			}
		}
	}
	return col, nil
}

// Count returns the number of rows of kind.
func (s *Store) Count(ctx context.Context, kind *entity.Kind) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, countSQL(kind)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", kind.Name, err)
	}
	return n, nil
}

func scanEntities(rows *sql.Rows, kind *entity.Kind) ([]*entity.Entity, error) {
	var out []*entity.Entity
	for rows.Next() {
		raw := make([]any, len(kind.Columns)+1)
		dest := make([]any, len(raw))
		for i := range raw {
			dest[i] = &raw[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		fields := make(entity.Fields, len(kind.Columns))
		for i, c := range kind.Columns {
			fields[c.Name] = raw[i]
		}
		var src string
		switch v := raw[len(raw)-1].(type) {
		case string:
			src = v
		case []byte:
			src = string(v)
		}
		e, err := entity.New(kind, fields, src, entity.FromMirror)
		if err != nil {
			return nil, fmt.Errorf("decode %s row: %w", kind.Name, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
