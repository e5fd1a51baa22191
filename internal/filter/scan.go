package filter

import (
	"runtime"
	"sync"

	"crashmap/internal/types"
)

// Source is the read-only view of a record store the scan needs.
type Source interface {
	Records() []types.CrashRecord
	HasAttribute(attr types.Attribute) bool
}

// ParallelThreshold is the record count from which Records partitions the
// scan across CPUs.
var ParallelThreshold = 50_000

type constraint struct {
	attr types.Attribute
	set  valueSet
}

// Records returns, in load order, the records whose value for every
// attribute in sel is one of that attribute's active values. An attribute
// with nothing active matches no record.
func Records(src Source, sel Selection) ([]types.CrashRecord, error) {
	for _, attr := range sel.domains.attrs {
		if !src.HasAttribute(attr) {
			return nil, &types.SchemaMismatchError{Attribute: attr}
		}
	}

	constraints := make([]constraint, 0, len(sel.domains.attrs))
	for _, attr := range sel.domains.attrs {
		set := sel.active[attr]
		if len(set) == 0 {
			return []types.CrashRecord{}, nil
		}
		constraints = append(constraints, constraint{attr: attr, set: set})
	}

	recs := src.Records()
	if len(recs) < ParallelThreshold {
		return scan(recs, constraints), nil
	}

	workers := runtime.NumCPU()
	chunk := (len(recs) + workers - 1) / workers
	parts := make([][]types.CrashRecord, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo := w * chunk
		if lo >= len(recs) {
			break
		}
		hi := min(lo+chunk, len(recs))
		wg.Add(1)
		go func() {
			defer wg.Done()
			parts[w] = scan(recs[lo:hi], constraints)
		}()
	}
	wg.Wait()

	total := 0
	for _, p := range parts {
		total += len(p)
	}
	out := make([]types.CrashRecord, 0, total)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out, nil
}

func scan(recs []types.CrashRecord, constraints []constraint) []types.CrashRecord {
	out := make([]types.CrashRecord, 0, len(recs))
	for _, r := range recs {
		if matches(r, constraints) {
			out = append(out, r)
		}
	}
	return out
}

func matches(r types.CrashRecord, constraints []constraint) bool {
	for _, c := range constraints {
		v, _ := r.Value(c.attr)
		if _, ok := c.set[v]; !ok {
			return false
		}
	}
	return true
}
