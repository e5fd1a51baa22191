// Package filter holds the per-attribute filter domains, the keyed filter
// selection the UI toggles, and the scan that applies a selection to a
// record set.
package filter

import (
	"slices"

	"crashmap/internal/types"
)

// Domains maps each filterable attribute to the distinct values observed in
// the loaded records, in order of first appearance. A Domains value is
// immutable once built.
type Domains struct {
	attrs  []types.Attribute
	values map[types.Attribute][]string
	index  map[types.Attribute]map[string]struct{}
}

// DomainBuilder accumulates Domains during the store's load scan.
type DomainBuilder struct {
	d Domains
}

// NewDomainBuilder returns a builder for the given attributes, kept in the
// given order.
func NewDomainBuilder(attrs []types.Attribute) *DomainBuilder {
	d := Domains{
		attrs:  slices.Clone(attrs),
		values: make(map[types.Attribute][]string, len(attrs)),
		index:  make(map[types.Attribute]map[string]struct{}, len(attrs)),
	}
	for _, a := range attrs {
		d.index[a] = make(map[string]struct{})
	}
	return &DomainBuilder{d: d}
}

// Observe records the values a record carries for every attribute.
func (b *DomainBuilder) Observe(rec types.CrashRecord) {
	for _, a := range b.d.attrs {
		v, ok := rec.Value(a)
		if !ok {
			continue
		}
		if _, seen := b.d.index[a][v]; seen {
			continue
		}
		b.d.index[a][v] = struct{}{}
		b.d.values[a] = append(b.d.values[a], v)
	}
}

// Domains returns the accumulated domains. The builder must not be used
// afterwards.
func (b *DomainBuilder) Domains() Domains {
	return b.d
}

// Attributes lists the attributes in panel order.
func (d Domains) Attributes() []types.Attribute {
	return slices.Clone(d.attrs)
}

// Has reports whether the attribute is part of the domain set.
func (d Domains) Has(attr types.Attribute) bool {
	_, ok := d.index[attr]
	return ok
}

// Values returns the attribute's distinct values in first-appearance order.
func (d Domains) Values(attr types.Attribute) []string {
	return slices.Clone(d.values[attr])
}

// Contains reports whether value was observed for attr.
func (d Domains) Contains(attr types.Attribute, value string) bool {
	_, ok := d.index[attr][value]
	return ok
}
