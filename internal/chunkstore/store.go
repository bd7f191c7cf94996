// Package chunkstore manages the directory of per-chunk transpose artifacts
// owned by a single run.
package chunkstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/jlehrer1/big-csv/internal/tabular"
	"github.com/jlehrer1/big-csv/pkg/types"
)

// Artifact is one chunk transpose on disk.
type Artifact struct {
	Index int
	Path  string
}

// artifactPattern matches chunk_<stem>_<index>.csv. The stem may itself
// contain underscores; the index is the last underscore-separated field.
var artifactPattern = regexp.MustCompile(`^chunk_(.*)_([0-9]+)\.csv$`)

// tempPattern matches the temporary file tabular.Create uses for an artifact.
var tempPattern = regexp.MustCompile(`^\.chunk_(.*)_[0-9]+\.csv\..*\.tmp$`)

// Store names, writes, lists and purges the artifacts of one run. Workers
// may call Write concurrently as long as each owns a distinct index.
type Store struct {
	dir  string
	stem string
}

// New returns a Store rooted at dir whose artifacts are named after stem.
func New(dir, stem string) *Store {
	return &Store{dir: dir, stem: stem}
}

// Dir returns the store directory.
func (s *Store) Dir() string { return s.dir }

// Ensure creates the directory if it does not exist. Idempotent.
func (s *Store) Ensure() error {
	info, err := os.Stat(s.dir)
	if err == nil {
		if !info.IsDir() {
			return &types.IOError{Op: "ensure", Path: s.dir, Err: errors.New("exists and is not a directory")}
		}
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return &types.IOError{Op: "stat", Path: s.dir, Err: err}
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return &types.IOError{Op: "mkdir", Path: s.dir, Err: err}
	}
	return nil
}

// CheckEmpty returns a CollisionError if the directory already holds
// entries, so that a previous run's artifacts are never mixed into this one.
func (s *Store) CheckEmpty() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return &types.IOError{Op: "readdir", Path: s.dir, Err: err}
	}
	if len(entries) > 0 {
		return &types.CollisionError{Dir: s.dir, Entries: len(entries)}
	}
	return nil
}

// Name returns the artifact file name for a chunk index. Indices are zero
// padded to six digits so names also sort correctly as plain strings.
func (s *Store) Name(index int) string {
	return fmt.Sprintf("chunk_%s_%06d.csv", s.stem, index)
}

// Path returns the artifact path for a chunk index.
func (s *Store) Path(index int) string {
	return filepath.Join(s.dir, s.Name(index))
}

// Write serializes a transposed chunk. The artifact becomes visible only
// once fully written and synced.
func (s *Store) Write(index int, t types.Table, sep rune) (string, error) {
	path := s.Path(index)
	if err := tabular.WriteFile(path, t, sep); err != nil {
		return "", fmt.Errorf("write chunk %d: %w", index, err)
	}
	return path, nil
}

// List returns the artifacts of this store sorted by numeric chunk index.
// Files that do not follow the naming convention or belong to another stem
// are ignored.
func (s *Store) List() ([]Artifact, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, &types.IOError{Op: "readdir", Path: s.dir, Err: err}
	}

	var out []Artifact
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := artifactPattern.FindStringSubmatch(e.Name())
		if m == nil || m[1] != s.stem {
			continue
		}
		idx, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		out = append(out, Artifact{Index: idx, Path: filepath.Join(s.dir, e.Name())})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

// Paths returns the artifact paths in chunk order.
func Paths(artifacts []Artifact) []string {
	paths := make([]string, len(artifacts))
	for i, a := range artifacts {
		paths[i] = a.Path
	}
	return paths
}

// Purge deletes the artifacts of this store and any temporary files left by
// an interrupted Write. Other entries and the directory itself are kept. A
// missing directory is not an error.
func (s *Store) Purge() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return &types.IOError{Op: "readdir", Path: s.dir, Err: err}
	}
	for _, e := range entries {
		if e.IsDir() || !s.owns(e.Name()) {
			continue
		}
		p := filepath.Join(s.dir, e.Name())
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return &types.IOError{Op: "remove", Path: p, Err: err}
		}
	}
	return nil
}

// owns reports whether name is an artifact of this store or the temporary
// file of one (.chunk_<stem>_<index>.csv.<random>.tmp).
func (s *Store) owns(name string) bool {
	if m := artifactPattern.FindStringSubmatch(name); m != nil {
		return m[1] == s.stem
	}
	m := tempPattern.FindStringSubmatch(name)
	return m != nil && m[1] == s.stem
}
