package render

import (
	"fmt"
	"image"
	"image/color"
	"strings"
	"sync"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.ANSIColor(10))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.ANSIColor(8))
)

type frameMsg struct {
	cells [][]color.RGBA // two pixel rows per text row
}

// Terminal is a Surface drawn with half-block characters in a bubbletea
// program. Pressing q, esc or ctrl+c closes Done.
type Terminal struct {
	program *tea.Program
	cols    atomic.Int32
	rows    atomic.Int32
	done    chan struct{}
	runErr  error
	once    sync.Once
}

// NewTerminal starts the bubbletea program.
func NewTerminal(title string, opts ...tea.ProgramOption) *Terminal {
	t := &Terminal{done: make(chan struct{})}
	t.cols.Store(80)
	t.rows.Store(24)

	model := terminalModel{term: t, title: title, styles: map[[2]color.RGBA]lipgloss.Style{}}
	t.program = tea.NewProgram(model, append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)...)
	go func() {
		_, err := t.program.Run()
		t.runErr = err
		close(t.done)
	}()
	return t
}

// Present downsamples img to the terminal size and sends it to the program.
func (t *Terminal) Present(img *image.RGBA, dirty image.Rectangle) error {
	select {
	case <-t.done:
		return nil
	default:
	}
	cols := int(t.cols.Load())
	rows := int(t.rows.Load()) - 2
	if cols <= 0 || rows <= 0 {
		return nil
	}
	t.program.Send(frameMsg{cells: downsample(img, cols, rows*2)})
	return nil
}

func (t *Terminal) Done() <-chan struct{} {
	return t.done
}

// Close quits the program and restores the terminal.
func (t *Terminal) Close() error {
	t.once.Do(func() {
		t.program.Quit()
		<-t.done
	})
	if t.runErr != nil {
		return fmt.Errorf("tui: %w", t.runErr)
	}
	return nil
}

// downsample picks, for each cell, the pixel that stands out most from a
// white background, so thin lines survive heavy scaling.
func downsample(img *image.RGBA, w, h int) [][]color.RGBA {
	b := img.Bounds()
	cells := make([][]color.RGBA, h)
	for cy := range cells {
		row := make([]color.RGBA, w)
		y0 := b.Min.Y + cy*b.Dy()/h
		y1 := max(b.Min.Y+(cy+1)*b.Dy()/h, y0+1)
		for cx := range row {
			x0 := b.Min.X + cx*b.Dx()/w
			x1 := max(b.Min.X+(cx+1)*b.Dx()/w, x0+1)
			best := img.RGBAAt(x0, y0)
			bestInk := ink(best)
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					c := img.RGBAAt(x, y)
					if k := ink(c); k > bestInk {
						best, bestInk = c, k
					}
				}
			}
			row[cx] = best
		}
		cells[cy] = row
	}
	return cells
}

func ink(c color.RGBA) int {
	return 3*255 - int(c.R) - int(c.G) - int(c.B)
}

type terminalModel struct {
	term   *Terminal
	title  string
	cells  [][]color.RGBA
	styles map[[2]color.RGBA]lipgloss.Style
}

func (m terminalModel) Init() tea.Cmd {
	return tea.WindowSize()
}

func (m terminalModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.term.cols.Store(int32(msg.Width))
		m.term.rows.Store(int32(msg.Height))
	case frameMsg:
		m.cells = msg.cells
	}
	return m, nil
}

func (m terminalModel) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(m.title))
	sb.WriteString(" ")
	sb.WriteString(helpStyle.Render("q: close"))
	sb.WriteString("\n")
	for y := 0; y+1 < len(m.cells); y += 2 {
		top, bottom := m.cells[y], m.cells[y+1]
		for x := range top {
			sb.WriteString(m.style(top[x], bottom[x]).Render("▀"))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m terminalModel) style(top, bottom color.RGBA) lipgloss.Style {
	key := [2]color.RGBA{top, bottom}
	if s, ok := m.styles[key]; ok {
		return s
	}
	s := lipgloss.NewStyle().Foreground(hex(top)).Background(hex(bottom))
	m.styles[key] = s
	return s
}

func hex(c color.RGBA) lipgloss.Color {
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B))
}
