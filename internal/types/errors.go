package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks. Every typed error below matches
// exactly one of them.
var (
	ErrDataLoad           = errors.New("data load failed")
	ErrInvalidFilterValue = errors.New("invalid filter value")
	ErrSchemaMismatch     = errors.New("schema mismatch")
	ErrAcquisition        = errors.New("acquisition failed")
)

// LoadErrorKind categorizes DataLoadError.
type LoadErrorKind string

const (
	LoadMissing   LoadErrorKind = "missing"
	LoadMalformed LoadErrorKind = "malformed"
	LoadEmpty     LoadErrorKind = "empty"
)

// DataLoadError reports a missing, corrupt or empty source file.
type DataLoadError struct {
	Kind LoadErrorKind
	Path string
	// Line is the 1-based line (CSV) or element (JSON) number, 0 if unknown.
	Line int
	Err  error
}

func (e *DataLoadError) Error() string {
	msg := fmt.Sprintf("load %s: %s", e.Path, e.Kind)
	if e.Line > 0 {
		msg += fmt.Sprintf(" at record %d", e.Line)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DataLoadError) Unwrap() error { return e.Err }

func (e *DataLoadError) Is(target error) bool { return target == ErrDataLoad }

// InvalidFilterValueError is returned when a toggle names a value outside the
// attribute's domain, which means the caller holds stale domain state.
type InvalidFilterValueError struct {
	Attribute Attribute
	Value     string
}

func (e *InvalidFilterValueError) Error() string {
	return fmt.Sprintf("value %q is not in the %s domain", e.Value, e.Attribute)
}

func (e *InvalidFilterValueError) Is(target error) bool { return target == ErrInvalidFilterValue }

// SchemaMismatchError is returned when a selection names an attribute the
// record store does not carry.
type SchemaMismatchError struct {
	Attribute Attribute
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("attribute %q is not in the record schema", e.Attribute)
}

func (e *SchemaMismatchError) Is(target error) bool { return target == ErrSchemaMismatch }

// AcquisitionError reports a failed or cancelled download. Any partial
// output has already been removed when it is returned.
type AcquisitionError struct {
	URL string
	// StatusCode is set for non-2xx responses.
	StatusCode int
	Err        error
}

func (e *AcquisitionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("acquire %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("acquire %s: %v", e.URL, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

func (e *AcquisitionError) Is(target error) bool { return target == ErrAcquisition }
