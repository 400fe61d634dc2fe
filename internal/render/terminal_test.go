package render

import (
	"image"
	"image/color"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

func TestDownsample_KeepsThinLines(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 100; x++ {
			img.SetRGBA(x, y, colorBackground)
		}
	}
	for y := 0; y < 40; y++ {
		img.SetRGBA(37, y, colorBeat)
	}

	cells := downsample(img, 10, 4)
	if len(cells) != 4 || len(cells[0]) != 10 {
		t.Fatalf("Expected 4x10 cells, got %dx%d", len(cells), len(cells[0]))
	}
	for y := range cells {
		if cells[y][3] != colorBeat {
			t.Errorf("Row %d: expected the one-pixel line to survive, got %v", y, cells[y][3])
		}
		if cells[y][0] != colorBackground {
			t.Errorf("Row %d: expected background in column 0, got %v", y, cells[y][0])
		}
	}
}

func TestTerminalModel_UpdateAndView(t *testing.T) {
	term := &Terminal{done: make(chan struct{})}
	var m tea.Model = terminalModel{term: term, title: "song", styles: map[[2]color.RGBA]lipgloss.Style{}}

	m, _ = m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	if term.cols.Load() != 120 || term.rows.Load() != 40 {
		t.Errorf("Expected size 120x40, got %dx%d", term.cols.Load(), term.rows.Load())
	}

	cells := [][]color.RGBA{
		{colorWave, colorBackground},
		{colorBackground, colorBeat},
	}
	m, _ = m.Update(frameMsg{cells: cells})
	view := m.View()
	if !strings.Contains(view, "song") {
		t.Error("Expected the title in the view")
	}
	if strings.Count(view, "▀") != 2 {
		t.Errorf("Expected 2 half-block cells, got %d", strings.Count(view, "▀"))
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("Expected q to return a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("Expected q to quit")
	}
}
