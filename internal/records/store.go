// Package records loads the crash dataset into an immutable in-memory store.
package records

import (
	"bufio"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"crashmap/internal/filter"
	"crashmap/internal/regions"
	"crashmap/internal/types"
)

// sentinelLatitude marks a known bad row in the published dataset.
const (
	sentinelLatitude  = -0.0000095141966955
	sentinelTolerance = 1e-12
)

// Store owns every loaded CrashRecord. Nothing in it changes after
// construction, so it is safe for concurrent readers.
type Store struct {
	source  string
	records []types.CrashRecord
	schema  []types.Attribute
	domains filter.Domains
	dropped int
}

type options struct {
	delimiter rune
	regions   regions.Tagger
	logger    *slog.Logger
}

// Option configures Load and FromRecords.
type Option func(*options)

// WithDelimiter sets the field separator for delimited files.
func WithDelimiter(r rune) Option {
	return func(o *options) { o.delimiter = r }
}

// WithRegions tags each record with its region and adds the region
// attribute to the schema.
func WithRegions(t regions.Tagger) Option {
	return func(o *options) { o.regions = t }
}

// WithLogger sets the logger used to report load statistics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func applyOptions(opts []Option) options {
	o := options{delimiter: ',', logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Load reads the dataset at path. A ".json" file is a JSON array of objects;
// anything else is delimited text with a header row. A trailing ".zst" is
// decompressed first.
func Load(path string, opts ...Option) (*Store, error) {
	o := applyOptions(opts)
	start := time.Now()

	f, err := os.Open(path)
	if err != nil {
		kind := types.LoadMalformed
		if errors.Is(err, fs.ErrNotExist) {
			kind = types.LoadMissing
		}
		return nil, &types.DataLoadError{Kind: kind, Path: path, Err: err}
	}
	defer f.Close()

	var r io.Reader = bufio.NewReaderSize(f, 1<<20)
	name := strings.ToLower(path)
	if strings.HasSuffix(name, ".zst") {
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, &types.DataLoadError{Kind: types.LoadMalformed, Path: path, Err: err}
		}
		defer dec.Close()
		r = dec
		name = strings.TrimSuffix(name, ".zst")
	}

	var recs []types.CrashRecord
	if filepath.Ext(name) == ".json" {
		recs, err = readJSON(r)
	} else {
		recs, err = readCSV(r, o.delimiter)
	}
	if err != nil {
		dle := &types.DataLoadError{Kind: types.LoadMalformed, Path: path, Err: err}
		var re *rowError
		if errors.As(err, &re) {
			dle.Line = re.record
			dle.Err = re.err
		}
		return nil, dle
	}

	s, err := build(path, recs, o)
	if err != nil {
		return nil, err
	}
	o.logger.Info("dataset loaded",
		"path", path,
		"records", len(s.records),
		"dropped", s.dropped,
		"took", time.Since(start).Truncate(time.Millisecond))
	return s, nil
}

// FromRecords builds a store from rows that were parsed elsewhere, such as a
// database query. The same cleaning rules as Load apply. recs is not
// modified.
func FromRecords(source string, recs []types.CrashRecord, opts ...Option) (*Store, error) {
	o := applyOptions(opts)
	s, err := build(source, slices.Clone(recs), o)
	if err != nil {
		return nil, err
	}
	o.logger.Info("dataset loaded", "source", source, "records", len(s.records), "dropped", s.dropped)
	return s, nil
}

// build drops the sentinel row, validates coordinates and counts, applies
// region tags and computes the filter domains in one pass. It takes
// ownership of recs.
func build(source string, recs []types.CrashRecord, o options) (*Store, error) {
	schema := slices.Clone(types.BaseAttributes)
	if o.regions != nil {
		schema = append(schema, types.AttrRegion)
	}

	s := &Store{source: source, schema: schema}
	domains := filter.NewDomainBuilder(schema)
	kept := recs[:0]
	for i, r := range recs {
		if isSentinel(r.Latitude) {
			s.dropped++
			continue
		}
		if err := validate(r); err != nil {
			return nil, &types.DataLoadError{Kind: types.LoadMalformed, Path: source, Line: i + 1, Err: err}
		}
		if o.regions != nil {
			name, ok := o.regions.Lookup(r.Latitude, r.Longitude)
			if !ok || name == "" {
				name = regions.Unknown
			}
			r.Region = name
		}
		kept = append(kept, r)
		domains.Observe(r)
	}
	if len(kept) == 0 {
		return nil, &types.DataLoadError{Kind: types.LoadEmpty, Path: source}
	}

	s.records = slices.Clip(kept)
	s.domains = domains.Domains()
	return s, nil
}

func isSentinel(lat float64) bool {
	return math.Abs(lat-sentinelLatitude) < sentinelTolerance
}

func validate(r types.CrashRecord) error {
	if math.IsNaN(r.Latitude) || math.IsInf(r.Latitude, 0) || r.Latitude < -90 || r.Latitude > 90 {
		return errors.New("latitude out of range")
	}
	if math.IsNaN(r.Longitude) || math.IsInf(r.Longitude, 0) || r.Longitude < -180 || r.Longitude > 180 {
		return errors.New("longitude out of range")
	}
	if r.Casualties < 0 || r.Fatalities < 0 || r.Hospitalised < 0 || r.MedicallyTreated < 0 || r.MinorInjuries < 0 {
		return errors.New("negative casualty count")
	}
	return nil
}

// Source is the path or description the store was loaded from.
func (s *Store) Source() string { return s.source }

// Len is the number of records kept after cleaning.
func (s *Store) Len() int { return len(s.records) }

// Dropped is the number of sentinel rows removed at load.
func (s *Store) Dropped() int { return s.dropped }

// Records returns the records in load order. The slice is shared; callers
// must not modify it.
func (s *Store) Records() []types.CrashRecord { return s.records }

// Record returns the i-th record.
func (s *Store) Record(i int) types.CrashRecord { return s.records[i] }

// Schema lists the filterable attributes the store carries.
func (s *Store) Schema() []types.Attribute { return slices.Clone(s.schema) }

// HasAttribute reports whether attr is part of the schema.
func (s *Store) HasAttribute(attr types.Attribute) bool {
	return slices.Contains(s.schema, attr)
}

// Domains returns the filter domain of every schema attribute.
func (s *Store) Domains() filter.Domains { return s.domains }

// Domain returns one attribute's distinct values in first-appearance order.
func (s *Store) Domain(attr types.Attribute) []string { return s.domains.Values(attr) }
