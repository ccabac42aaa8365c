// Package render draws board pages for the terminal
package render

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/samber/lo"

	"noticeboard/models"
)

const (
	timeLayout     = "2006-01-02 15:04"
	previewLength  = 40
	toastWidth     = 60
	detailMaxWidth = 80
)

var (
	green  = lipgloss.Color("#22c55e")
	yellow = lipgloss.Color("#eab308")
	blue   = lipgloss.Color("#3b82f6")
	grey   = lipgloss.Color("#6b7280")

	titleStyle  = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(grey)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	detailStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1).
			MaxWidth(detailMaxWidth)
	toastStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			PaddingLeft(1).
			Width(toastWidth)
)

func severityColor(s models.Severity) lipgloss.Color {
	switch s {
	case models.SeveritySuccess:
		return green
	case models.SeverityWarning:
		return yellow
	default:
		return blue
	}
}

// Badge shows the live update state
func Badge(state models.ConnectivityState) string {
	var color lipgloss.Color
	var label string
	switch state {
	case models.Connected:
		color, label = green, "● live"
	case models.Disconnected:
		color, label = yellow, "○ offline"
	default:
		color, label = grey, "◌ connecting"
	}
	return lipgloss.NewStyle().Foreground(color).Render(label)
}

// List renders the board as a table, newest post first
func List(posts []models.Post, state models.ConnectivityState) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Notice board"))
	b.WriteString("  ")
	b.WriteString(Badge(state))
	b.WriteString("\n")

	if len(posts) == 0 {
		b.WriteString(mutedStyle.Render("No posts yet. Write one with \"noticeboard write\"."))
		b.WriteString("\n")
		return b.String()
	}

	rows := lo.Map(posts, func(p models.Post, _ int) []string {
		return []string{
			strconv.FormatInt(p.Id, 10),
			p.Title,
			p.Author,
			preview(p.Content),
			stamp(p),
		}
	})

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		Headers("ID", "TITLE", "AUTHOR", "CONTENT", "POSTED").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	b.WriteString(t.Render())
	b.WriteString("\n")
	return b.String()
}

// Post renders a single post page
func Post(p models.Post, state models.ConnectivityState) string {
	meta := fmt.Sprintf("#%d by %s, %s", p.Id, p.Author, stamp(p))
	body := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(p.Title)+"  "+Badge(state),
		mutedStyle.Render(meta),
		"",
		p.Content,
	)
	return detailStyle.Render(body) + "\n"
}

// Notifications renders the queue oldest first
func Notifications(items []models.Notification) string {
	if len(items) == 0 {
		return ""
	}
	toasts := lo.Map(items, func(n models.Notification, _ int) string {
		color := severityColor(n.Severity)
		return toastStyle.
			BorderForeground(color).
			Render(lipgloss.NewStyle().Foreground(color).Render(string(n.Severity)) + " " + n.Message)
	})
	return lipgloss.JoinVertical(lipgloss.Left, toasts...) + "\n"
}

func stamp(p models.Post) string {
	s := p.CreatedAt.Local().Format(timeLayout)
	if p.UpdatedAt != nil {
		s += " (edited " + p.UpdatedAt.Local().Format(timeLayout) + ")"
	}
	return s
}

func preview(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	runes := []rune(content)
	if len(runes) <= previewLength {
		return content
	}
	return string(runes[:previewLength-1]) + "…"
}

