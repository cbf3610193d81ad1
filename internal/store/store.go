// Package store materializes per-block artifact files from their
// compressed archives and locates the decoded results.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/springlab/unspring/internal/codec"
)

// ErrLayout reports that an archive expansion produced an unexpected
// directory layout: the decoded artifact was not found by name and the
// scratch directory did not gain exactly one new sub-directory.
var ErrLayout = errors.New("artifact layout violation")

// Store manages artifact materialization inside an archive temp directory.
// Each worker must use its own scratch directory; concurrent expansions
// into a shared directory would race on new-folder detection.
type Store struct {
	dir string
	gen codec.GenCodec
}

// New creates a store over the archive temp directory.
func New(dir string, gen codec.GenCodec) *Store {
	return &Store{dir: dir, gen: gen}
}

// Dir returns the archive temp directory.
func (s *Store) Dir() string { return s.dir }

// Scratch returns the worker-local scratch directory, creating it if
// needed.
func (s *Store) Scratch(worker int) (string, error) {
	dir := filepath.Join(s.dir, "scratch."+strconv.Itoa(worker))
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("creating scratch directory: %w", err)
	}
	return dir, nil
}

// Materialize expands archive into scratch, deletes the archive, and
// returns the path of the decoded artifact. The decoded file is looked up
// by the candidate names directly under scratch first, then inside the
// unique sub-directory the expansion created.
func (s *Store) Materialize(archive, scratch string, names ...string) (string, error) {
	before, err := subdirs(scratch)
	if err != nil {
		return "", err
	}

	if err := s.gen.Decode(archive, scratch); err != nil {
		return "", err
	}
	if err := os.Remove(archive); err != nil {
		return "", fmt.Errorf("removing consumed archive: %w", err)
	}

	for _, name := range names {
		p := filepath.Join(scratch, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	after, err := subdirs(scratch)
	if err != nil {
		return "", err
	}
	var fresh []string
	for d := range after {
		if !before[d] {
			fresh = append(fresh, d)
		}
	}
	if len(fresh) != 1 {
		return "", fmt.Errorf("%w: expanding %s produced %d new directories", ErrLayout, filepath.Base(archive), len(fresh))
	}

	for _, name := range names {
		p := filepath.Join(scratch, fresh[0], name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: none of %v found under %s", ErrLayout, names, fresh[0])
}

// Release deletes a consumed artifact file.
func (s *Store) Release(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing consumed artifact: %w", err)
	}
	return nil
}

func subdirs(dir string) (map[string]bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}
	out := make(map[string]bool)
	for _, e := range entries {
		if e.IsDir() {
			out[e.Name()] = true
		}
	}
	return out, nil
}
