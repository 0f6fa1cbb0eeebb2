package entity

import "fmt"

// JoinField copies column From of the matched entity into column To of the
// result.
type JoinField struct {
	From string
	To   string
}

// JoinSpec describes a construction-time join.
type JoinSpec struct {
	// Kind of the resulting entities. It must declare every base column.
	Kind     *Kind
	BaseKey  string
	OtherKey string
	Fields   []JoinField
	// When, if set, limits the join to base entities it accepts. Others are
	// copied unchanged.
	When func(base *Entity) bool
}

// Join decorates every entity of base with values from the first entity of
// other whose OtherKey equals its BaseKey. Values are snapshotted: the
// result holds no reference to other.
func Join(base, other *Collection, j JoinSpec) (*Collection, error) {
	if j.Kind == nil {
		j.Kind = base.Kind()
	}
	for _, c := range base.Kind().Columns {
		if _, ok := j.Kind.Column(c.Name); !ok {
			return nil, fmt.Errorf("join into %s: missing base column %s", j.Kind.Name, c.Name)
		}
	}
	index := map[any]*Entity{}
	for _, e := range other.All() {
		k := e.Get(j.OtherKey)
		if _, seen := index[k]; !seen {
			index[k] = e
		}
	}

	out := NewCollection(j.Kind)
	for _, b := range base.All() {
		fields := b.Fields()
		if j.When == nil || j.When(b) {
			if match := index[b.Get(j.BaseKey)]; match != nil {
				for _, f := range j.Fields {
					fields[f.To] = match.Get(f.From)
				}
			}
		}
		e, err := New(j.Kind, fields, b.Source, b.Provenance)
		if err != nil {
			return nil, err
		}
		e.children = b.children
		if err := out.Append(e); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// JoinStaticLeaseTimes decorates static leases with the remaining lease
// time and assign/refresh times of the dynamic lease with the same MAC.
func JoinStaticLeaseTimes(static, dynamic *Collection) (*Collection, error) {
	return Join(static, dynamic, JoinSpec{
		Kind:     StaticLeaseDetail,
		BaseKey:  "mac",
		OtherKey: "mac",
		Fields: []JoinField{
			{From: "lease_remaining", To: "lease_remaining"},
			{From: "assign_time", To: "assign_time"},
			{From: "refresh_time", To: "refresh_time"},
		},
	})
}

// JoinDynamicLeaseComments copies the comment of the matching static lease
// onto dynamic leases flagged as static.
func JoinDynamicLeaseComments(dynamic, static *Collection) (*Collection, error) {
	return Join(dynamic, static, JoinSpec{
		Kind:     DynamicLease,
		BaseKey:  "mac",
		OtherKey: "mac",
		Fields:   []JoinField{{From: "comment", To: "comment"}},
		When:     func(e *Entity) bool { return e.Bool("is_static") },
	})
}
