// Package library walks a music directory and groups files by tag values.
package library

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/audiolibrelab/wavesync/internal/metadata"
)

// Unknown groups files that carry no value for a tag in a Tree.
const Unknown = "(unknown)"

// TagReader returns the value of one tag for one file.
type TagReader interface {
	Lookup(path, name string) (string, error)
}

// FileError records a file that could not be read.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// Library is a directory tree of audio files.
type Library struct {
	root   string
	match  func(path string) bool
	reader TagReader
}

// New returns a Library rooted at root. match selects the audio files, by
// extension in practice.
func New(root string, match func(path string) bool, reader TagReader) *Library {
	return &Library{root: root, match: match, reader: reader}
}

// Visit calls fn for every matching file under the root in lexical order.
// Walking stops at the first error returned by fn or when ctx is done.
func (l *Library) Visit(ctx context.Context, fn func(path string) error) error {
	return filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !l.match(path) {
			return nil
		}
		return fn(path)
	})
}

// Count returns the number of matching files.
func (l *Library) Count(ctx context.Context) (int, error) {
	n := 0
	err := l.Visit(ctx, func(string) error {
		n++
		return nil
	})
	return n, err
}

// Aggregation counts files per tag value.
type Aggregation struct {
	Tag    string
	Counts map[string]int
	Errors []*FileError
}

// Values returns the aggregated values, most frequent first.
func (a *Aggregation) Values() []string {
	values := make([]string, 0, len(a.Counts))
	for v := range a.Counts {
		values = append(values, v)
	}
	sort.Slice(values, func(i, j int) bool {
		if a.Counts[values[i]] != a.Counts[values[j]] {
			return a.Counts[values[i]] > a.Counts[values[j]]
		}
		return values[i] < values[j]
	})
	return values
}

// Aggregate counts matching files by the value of tag. Files whose tag cannot
// be read are collected in Errors and do not stop the walk.
func (l *Library) Aggregate(ctx context.Context, tag string) (*Aggregation, error) {
	if !metadata.IsKnown(tag) {
		return nil, fmt.Errorf("%w: %s", metadata.ErrUnknownTag, tag)
	}
	agg := &Aggregation{Tag: tag, Counts: make(map[string]int)}
	err := l.Visit(ctx, func(path string) error {
		v, err := l.reader.Lookup(path, tag)
		if err != nil {
			agg.Errors = append(agg.Errors, &FileError{Path: path, Err: err})
			return nil
		}
		agg.Counts[v]++
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Debug("Aggregated library", "root", l.root, "tag", tag, "values", len(agg.Counts), "errors", len(agg.Errors))
	return agg, nil
}

// Selection lists files whose tag equals a value.
type Selection struct {
	Tag    string
	Value  string
	Paths  []string
	Errors []*FileError
}

// Filter returns the files whose tag equals value exactly.
func (l *Library) Filter(ctx context.Context, tag, value string) (*Selection, error) {
	if !metadata.IsKnown(tag) {
		return nil, fmt.Errorf("%w: %s", metadata.ErrUnknownTag, tag)
	}
	sel := &Selection{Tag: tag, Value: value}
	err := l.Visit(ctx, func(path string) error {
		v, err := l.reader.Lookup(path, tag)
		switch {
		case err != nil:
			sel.Errors = append(sel.Errors, &FileError{Path: path, Err: err})
		case v == value:
			sel.Paths = append(sel.Paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sel, nil
}

// Tree builds a hierarchy with one level per tag, genre then artist then
// album by default. A missing tag value groups the file under Unknown; any
// other read error skips the file.
func (l *Library) Tree(ctx context.Context, tags ...string) (*Tree, []*FileError, error) {
	if len(tags) == 0 {
		tags = []string{metadata.Genre, metadata.Artist, metadata.Album}
	}
	for _, tag := range tags {
		if !metadata.IsKnown(tag) {
			return nil, nil, fmt.Errorf("%w: %s", metadata.ErrUnknownTag, tag)
		}
	}

	tree := NewTree(tags)
	var errs []*FileError
	values := make([]string, len(tags))
	err := l.Visit(ctx, func(path string) error {
		for i, tag := range tags {
			v, err := l.reader.Lookup(path, tag)
			switch {
			case errors.Is(err, metadata.ErrTagNotFound):
				v = Unknown
			case err != nil:
				errs = append(errs, &FileError{Path: path, Err: err})
				return nil
			}
			values[i] = v
		}
		tree.Add(values)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return tree, errs, nil
}
