package filter

import (
	"maps"

	"crashmap/internal/types"
)

type valueSet map[string]struct{}

// Selection is the set of active values per attribute. It is an immutable
// value: Toggle returns a new Selection and shares every untouched set with
// the receiver, so a reader holding an older Selection never sees a change.
type Selection struct {
	domains Domains
	active  map[types.Attribute]valueSet
}

// Initial selects every observed value of every attribute.
func Initial(d Domains) Selection {
	active := make(map[types.Attribute]valueSet, len(d.attrs))
	for _, a := range d.attrs {
		set := make(valueSet, len(d.values[a]))
		for _, v := range d.values[a] {
			set[v] = struct{}{}
		}
		active[a] = set
	}
	return Selection{domains: d, active: active}
}

// NewSelection builds a selection with exactly the given active values.
// Attributes absent from the map keep their full domain.
func NewSelection(d Domains, active map[types.Attribute][]string) (Selection, error) {
	sel := Initial(d)
	for attr, values := range active {
		if !d.Has(attr) {
			return Selection{}, &types.SchemaMismatchError{Attribute: attr}
		}
		set := make(valueSet, len(values))
		for _, v := range values {
			if !d.Contains(attr, v) {
				return Selection{}, &types.InvalidFilterValueError{Attribute: attr, Value: v}
			}
			set[v] = struct{}{}
		}
		sel.active[attr] = set
	}
	return sel, nil
}

// Toggle removes value from attr's active set if present and adds it
// otherwise. Toggling the same pair twice yields a selection equal to the
// receiver.
func (s Selection) Toggle(attr types.Attribute, value string) (Selection, error) {
	if !s.domains.Has(attr) {
		return s, &types.SchemaMismatchError{Attribute: attr}
	}
	if !s.domains.Contains(attr, value) {
		return s, &types.InvalidFilterValueError{Attribute: attr, Value: value}
	}

	set := maps.Clone(s.active[attr])
	if set == nil {
		set = make(valueSet)
	}
	if _, on := set[value]; on {
		delete(set, value)
	} else {
		set[value] = struct{}{}
	}

	active := maps.Clone(s.active)
	active[attr] = set
	return Selection{domains: s.domains, active: active}, nil
}

// Domains returns the domains the selection was built against.
func (s Selection) Domains() Domains {
	return s.domains
}

// Attributes lists the attributes the selection constrains, in panel order.
func (s Selection) Attributes() []types.Attribute {
	return s.domains.Attributes()
}

// IsActive reports whether value is currently selected for attr.
func (s Selection) IsActive(attr types.Attribute, value string) bool {
	_, ok := s.active[attr][value]
	return ok
}

// Active lists attr's selected values in domain order.
func (s Selection) Active(attr types.Attribute) []string {
	out := make([]string, 0, len(s.active[attr]))
	for _, v := range s.domains.values[attr] {
		if s.IsActive(attr, v) {
			out = append(out, v)
		}
	}
	return out
}

// Equal reports whether both selections constrain the same attributes to
// the same values.
func (s Selection) Equal(o Selection) bool {
	if len(s.active) != len(o.active) {
		return false
	}
	for attr, set := range s.active {
		other, ok := o.active[attr]
		if !ok || !maps.Equal(set, other) {
			return false
		}
	}
	return true
}
