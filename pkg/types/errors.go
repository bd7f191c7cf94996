package types

import (
	"errors"
	"fmt"
)

// Error classes. Every error returned by the pipeline matches exactly one of
// these through errors.Is.
var (
	ErrConfig            = errors.New("invalid configuration")
	ErrIO                = errors.New("i/o failure")
	ErrParse             = errors.New("malformed input")
	ErrInconsistentShape = errors.New("chunk artifacts disagree on shape")
	ErrStorageCollision  = errors.New("chunk directory already populated")
	ErrPlanMismatch      = errors.New("source does not match chunk plan")
)

// Upload errors.
var (
	ErrAuth     = errors.New("object storage authentication failed")
	ErrNetwork  = errors.New("object storage request failed")
	ErrNotFound = errors.New("object storage target not found")
)

// ConfigError reports an invalid configuration field. It is returned before
// any file is opened.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

// IOError wraps a filesystem failure with the operation and path involved.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Is(target error) bool { return target == ErrIO }

func (e *IOError) Unwrap() error { return e.Err }

// ParseError reports a record whose field count differs from the width fixed
// by the first record. Row is the zero-based record index, Line the 1-based
// line in the source file where the record starts.
type ParseError struct {
	Path string
	Row  int
	Line int
	Want int
	Got  int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s: row %d (line %d): %v", e.Path, e.Row, e.Line, e.Err)
	}
	return fmt.Sprintf("parse %s: row %d (line %d) has %d fields, want %d", e.Path, e.Row, e.Line, e.Got, e.Want)
}

func (e *ParseError) Is(target error) bool { return target == ErrParse }

func (e *ParseError) Unwrap() error { return e.Err }

// ShapeError reports a chunk artifact whose row count disagrees with the
// other artifacts at reassembly.
type ShapeError struct {
	Artifact string
	Want     int
	Got      int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("artifact %s has %d rows, want %d", e.Artifact, e.Got, e.Want)
}

func (e *ShapeError) Is(target error) bool { return target == ErrInconsistentShape }

// CollisionError reports a chunk directory holding entries from another run.
type CollisionError struct {
	Dir     string
	Entries int
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("chunk directory %s holds %d entries from a previous run", e.Dir, e.Entries)
}

func (e *CollisionError) Is(target error) bool { return target == ErrStorageCollision }
