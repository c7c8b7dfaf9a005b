package sink

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/AbNAt-Cell/NoteTaker/stt"
)

var (
	timeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	speakerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff8800")).Bold(true)
	finalStyle   = lipgloss.NewStyle()
	interimStyle = lipgloss.NewStyle().Faint(true).Italic(true)
)

// Console prints live segments, one line per segment; interim lines
// are dimmed.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) SendLive(ctx context.Context, msg stt.LiveMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, seg := range msg.Segments {
		text := finalStyle.Render(seg.Text)
		if !seg.Completed {
			text = interimStyle.Render(seg.Text)
		}
		speaker := seg.Speaker
		if speaker == "" {
			speaker = "?"
		}
		_, err := fmt.Fprintf(
			c.w,
			"%s %s %s\n",
			timeStyle.Render("["+seg.Start+" - "+seg.End+"]"),
			speakerStyle.Render(speaker),
			text,
		)
		if err != nil {
			return err
		}
	}
	return nil
}
