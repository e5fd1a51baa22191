package records

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"crashmap/internal/types"
)

// rowError is a parse failure at a 1-based data record number.
type rowError struct {
	record int
	err    error
}

func (e *rowError) Error() string { return fmt.Sprintf("record %d: %v", e.record, e.err) }

func (e *rowError) Unwrap() error { return e.err }

// readCSV reads a header row followed by data rows.
func readCSV(r io.Reader, delim rune) ([]types.CrashRecord, error) {
	cr := csv.NewReader(r)
	cr.Comma = delim
	cr.ReuseRecord = false

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		index[h] = i
	}
	if err := checkColumns(func(c string) bool { _, ok := index[c]; return ok }); err != nil {
		return nil, err
	}

	var rows [][]string
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, &rowError{record: len(rows) + 1, err: pe}
			}
			return nil, err
		}
		rows = append(rows, row)
	}

	return parseParallel(len(rows), func(i int) getter {
		row := rows[i]
		return func(col string) (string, bool) {
			j, ok := index[col]
			if !ok || j >= len(row) {
				return "", ok
			}
			return row[j], true
		}
	})
}

// readJSON reads a JSON array of objects keyed by column name. Values may be
// strings, numbers or null.
func readJSON(r io.Reader) ([]types.CrashRecord, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	tok, err := dec.Token()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, fmt.Errorf("expected a JSON array, got %v", tok)
	}

	var objs []map[string]any
	for dec.More() {
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			return nil, &rowError{record: len(objs) + 1, err: err}
		}
		objs = append(objs, obj)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if len(objs) == 0 {
		return nil, nil
	}

	if err := checkColumns(func(c string) bool { _, ok := objs[0][c]; return ok }); err != nil {
		return nil, err
	}

	return parseParallel(len(objs), func(i int) getter {
		obj := objs[i]
		return func(col string) (string, bool) {
			v, ok := obj[col]
			if !ok {
				return "", false
			}
			switch t := v.(type) {
			case nil:
				return "", true
			case string:
				return t, true
			case json.Number:
				return t.String(), true
			case bool:
				return fmt.Sprint(t), true
			}
			return fmt.Sprintf("%v", v), true
		}
	})
}

// parseParallel parses n rows across CPU workers. Each worker owns a
// contiguous chunk and writes by index, so output keeps input order. The
// reported error is the one with the lowest record number.
func parseParallel(n int, row func(i int) getter) ([]types.CrashRecord, error) {
	out := make([]types.CrashRecord, n)
	if n == 0 {
		return out, nil
	}

	workers := min(runtime.NumCPU(), n)
	chunk := (n + workers - 1) / workers
	errs := make([]error, workers)

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		lo := w * chunk
		if lo >= n {
			break
		}
		hi := min(lo+chunk, n)
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				rec, err := parseRecord(row(i))
				if err != nil {
					errs[w] = &rowError{record: i + 1, err: err}
					return errs[w]
				}
				out[i] = rec
			}
			return nil
		})
	}
	if err := g.Wait(); err == nil {
		return out, nil
	}
	// Wait reports whichever worker failed first in time; chunks are in
	// record order, so the first non-nil slot is the earliest bad row.
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
