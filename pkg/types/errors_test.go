package types

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClasses(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		class   error
		message string
	}{
		{
			name:    "config",
			err:     &ConfigError{Field: "chunksize", Reason: "must be greater than 0"},
			class:   ErrConfig,
			message: "config chunksize: must be greater than 0",
		},
		{
			name:    "io",
			err:     &IOError{Op: "open", Path: "/x.csv", Err: fs.ErrNotExist},
			class:   ErrIO,
			message: "open /x.csv: file does not exist",
		},
		{
			name:    "parse",
			err:     &ParseError{Path: "in.csv", Row: 4, Line: 5, Want: 3, Got: 2},
			class:   ErrParse,
			message: "parse in.csv: row 4 (line 5) has 2 fields, want 3",
		},
		{
			name:    "shape",
			err:     &ShapeError{Artifact: "chunk_x_000002.csv", Want: 10, Got: 9},
			class:   ErrInconsistentShape,
			message: "artifact chunk_x_000002.csv has 9 rows, want 10",
		},
		{
			name:    "collision",
			err:     &CollisionError{Dir: "chunks_x", Entries: 3},
			class:   ErrStorageCollision,
			message: "chunk directory chunks_x holds 3 entries from a previous run",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, errors.Is(tt.err, tt.class))
			assert.Equal(t, tt.message, tt.err.Error())

			for _, other := range []error{ErrConfig, ErrIO, ErrParse, ErrInconsistentShape, ErrStorageCollision} {
				if other != tt.class {
					assert.False(t, errors.Is(tt.err, other), "%v must not match %v", tt.err, other)
				}
			}
		})
	}
}

func TestIOErrorUnwrap(t *testing.T) {
	err := &IOError{Op: "read", Path: "a", Err: fs.ErrPermission}
	assert.True(t, errors.Is(err, fs.ErrPermission))
}
