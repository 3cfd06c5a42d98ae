package viewer

import (
	"fmt"

	"github.com/charmbracelet/glamour"
)

// Render formats markdown for a terminal. style is a glamour standard style
// ("dark", "light", "notty", "ascii") or "auto" to detect the background.
// A width of zero keeps glamour's default wrapping.
func Render(markdown, style string, width int) (string, error) {
	opts := []glamour.TermRendererOption{}
	switch style {
	case "", "auto":
		opts = append(opts, glamour.WithAutoStyle())
	default:
		opts = append(opts, glamour.WithStandardStyle(style))
	}
	if width > 0 {
		opts = append(opts, glamour.WithWordWrap(width))
	}

	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return "", fmt.Errorf("create renderer: %w", err)
	}
	out, err := r.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return out, nil
}
