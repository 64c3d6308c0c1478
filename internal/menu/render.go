package menu

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#6BCB77"))
	submenuStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFD479"))
	labelStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	detailStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	separatorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#555555"))
)

// Render draws the menu as an indented tree.
func Render(m Menu) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.Title))
	b.WriteString("\n")
	if len(m.Items) == 0 {
		b.WriteString(detailStyle.Render("  (empty)"))
		b.WriteString("\n")
	}
	renderItems(&b, m.Items, 1)
	return b.String()
}

func renderItems(b *strings.Builder, items []Item, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, item := range items {
		switch item.Kind {
		case ItemSeparator:
			b.WriteString(indent + separatorStyle.Render("────────"))
		case ItemSubmenu:
			b.WriteString(indent + submenuStyle.Render("▸ "+item.Title))
		case ItemLabel:
			b.WriteString(indent + labelStyle.Render(item.Title))
		default:
			b.WriteString(indent + item.Title)
			if item.Hotkey != "" {
				b.WriteString(" " + detailStyle.Render("["+item.Hotkey+"]"))
			}
		}
		b.WriteString("\n")
		if item.Detail != "" {
			for _, line := range strings.Split(item.Detail, "\n") {
				if line == "" {
					continue
				}
				b.WriteString(indent + "  " + detailStyle.Render(line) + "\n")
			}
		}
		if len(item.Children) > 0 {
			renderItems(b, item.Children, depth+1)
		}
	}
}
