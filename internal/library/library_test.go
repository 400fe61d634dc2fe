package library

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/audiolibrelab/wavesync/internal/metadata"
)

// contentReader answers every tag with the file content, or fails when the
// content is "broken".
type contentReader struct{}

func (contentReader) Lookup(path, _ string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if string(data) == "broken" {
		return "", errors.New("corrupt header")
	}
	return string(data), nil
}

// tagReader answers from a table keyed by base name.
type tagReader map[string]map[string]string

func (r tagReader) Lookup(path, name string) (string, error) {
	tags, ok := r[filepath.Base(path)]
	if !ok {
		return "", errors.New("unreadable")
	}
	v, ok := tags[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", metadata.ErrTagNotFound, name)
	}
	return v, nil
}

func isAudio(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3", ".flac":
		return true
	}
	return false
}

func createTempLibrary(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("Failed to create dir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}
	return root
}

func TestCount(t *testing.T) {
	root := createTempLibrary(t, map[string]string{
		"a.mp3":            "Metal",
		"b.MP3":            "Metal",
		"rock/c.flac":      "Rock",
		"rock/deep/d.flac": "Rock",
		"notes.txt":        "ignore",
		"rock/cover.jpg":   "ignore",
		"ska/e.mp3":        "Ska",
	})

	n, err := New(root, isAudio, contentReader{}).Count(context.Background())
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 5 {
		t.Errorf("Expected 5 audio files, got %d", n)
	}
}

func TestAggregate(t *testing.T) {
	root := createTempLibrary(t, map[string]string{
		"a.mp3":        "Metal",
		"b.mp3":        "Metal",
		"sub/c.flac":   "Rock",
		"sub2/d.mp3":   "Ska",
		"sub2/bad.mp3": "broken",
	})

	agg, err := New(root, isAudio, contentReader{}).Aggregate(context.Background(), metadata.Genre)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if len(agg.Counts) != 3 {
		t.Errorf("Expected 3 values, got %v", agg.Counts)
	}
	if agg.Counts["Metal"] != 2 {
		t.Errorf("Expected 2 Metal files, got %d", agg.Counts["Metal"])
	}
	if len(agg.Errors) != 1 || filepath.Base(agg.Errors[0].Path) != "bad.mp3" {
		t.Errorf("Expected one error for bad.mp3, got %v", agg.Errors)
	}
	if values := agg.Values(); values[0] != "Metal" {
		t.Errorf("Expected most frequent value first, got %v", values)
	}
}

func TestAggregate_UnknownTag(t *testing.T) {
	root := createTempLibrary(t, map[string]string{"a.mp3": "x"})
	_, err := New(root, isAudio, contentReader{}).Aggregate(context.Background(), "mood")
	if !errors.Is(err, metadata.ErrUnknownTag) {
		t.Errorf("Expected ErrUnknownTag, got %v", err)
	}
}

func TestFilter(t *testing.T) {
	root := createTempLibrary(t, map[string]string{
		"a.mp3":      "Metal",
		"b.mp3":      "Metal",
		"sub/c.flac": "Rock",
		"sub/d.flac": "metal",
	})

	sel, err := New(root, isAudio, contentReader{}).Filter(context.Background(), metadata.Genre, "Metal")
	if err != nil {
		t.Fatalf("Filter failed: %v", err)
	}
	if len(sel.Paths) != 2 {
		t.Errorf("Expected 2 case-sensitive matches, got %v", sel.Paths)
	}
	for _, p := range sel.Paths {
		if !strings.HasPrefix(p, root) {
			t.Errorf("Expected paths under %s, got %s", root, p)
		}
	}
}

func TestVisit_Cancelled(t *testing.T) {
	root := createTempLibrary(t, map[string]string{"a.mp3": "x", "b.mp3": "y"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := New(root, isAudio, contentReader{}).Count(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestVisit_MissingRoot(t *testing.T) {
	lib := New(filepath.Join(t.TempDir(), "missing"), isAudio, contentReader{})
	if _, err := lib.Count(context.Background()); err == nil {
		t.Error("Expected an error for a missing root")
	}
}

func TestTree(t *testing.T) {
	root := createTempLibrary(t, map[string]string{
		"1.mp3": "", "2.mp3": "", "3.mp3": "", "4.mp3": "", "5.mp3": "",
	})
	reader := tagReader{
		"1.mp3": {"genre": "Rock", "artist": "Can", "album": "Tago Mago"},
		"2.mp3": {"genre": "Rock", "artist": "Can", "album": "Tago Mago"},
		"3.mp3": {"genre": "Rock", "artist": "Can", "album": "Ege Bamyasi"},
		"4.mp3": {"genre": "Jazz", "artist": "Monk"},
	}

	tree, errs, err := New(root, isAudio, reader).Tree(context.Background())
	if err != nil {
		t.Fatalf("Tree failed: %v", err)
	}
	if len(errs) != 1 {
		t.Errorf("Expected one unreadable file, got %v", errs)
	}
	if tree.Root().Count != 4 {
		t.Errorf("Expected root count 4, got %d", tree.Root().Count)
	}

	tests := []struct {
		path  []string
		count int
	}{
		{[]string{"Rock"}, 3},
		{[]string{"Rock", "Can"}, 3},
		{[]string{"Rock", "Can", "Tago Mago"}, 2},
		{[]string{"Rock", "Can", "Ege Bamyasi"}, 1},
		{[]string{"Jazz", "Monk", Unknown}, 1},
	}
	for _, tt := range tests {
		idx, ok := tree.Find(tt.path...)
		if !ok {
			t.Errorf("Expected node %v", tt.path)
			continue
		}
		if got := tree.Nodes[idx].Count; got != tt.count {
			t.Errorf("Node %v: expected count %d, got %d", tt.path, tt.count, got)
		}
	}
	if _, ok := tree.Find("Pop"); ok {
		t.Error("Expected no Pop node")
	}

	var lines []string
	tree.Walk(func(depth int, n Node) {
		lines = append(lines, fmt.Sprintf("%d:%s", depth, n.Value))
	})
	want := "0:,1:Jazz,2:Monk,3:(unknown),1:Rock,2:Can,3:Ege Bamyasi,3:Tago Mago"
	if got := strings.Join(lines, ","); got != want {
		t.Errorf("Expected walk %q, got %q", want, got)
	}
}

func TestTree_Leaf(t *testing.T) {
	tree := NewTree([]string{metadata.Genre})
	tree.Add([]string{"Rock", "ignored"})
	idx, ok := tree.Find("Rock")
	if !ok {
		t.Fatal("Expected Rock node")
	}
	if n := tree.Nodes[idx]; len(n.Children) != 0 || n.Parent != 0 || n.Tag != metadata.Genre {
		t.Errorf("Unexpected leaf node %+v", n)
	}
}
