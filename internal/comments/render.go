package comments

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"katha/internal/models"
)

const indentWidth = 2

var (
	authorStyle = lipgloss.NewStyle().Bold(true)
	metaStyle   = lipgloss.NewStyle().Faint(true)
	upStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#3B82F6"))
	downStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F97316"))
	railStyle   = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(lipgloss.Color("#60A5FA")).
			PaddingLeft(1)
)

// Render draws the tree, each reply indented under its parent.
func Render(roots []*models.Comment) string {
	var b strings.Builder
	for _, c := range roots {
		if c == nil {
			continue
		}
		b.WriteString(renderNode(c, 0))
	}
	return b.String()
}

func renderNode(c *models.Comment, depth int) string {
	var b strings.Builder
	b.WriteString(Line(c))
	b.WriteString("\n")
	for _, line := range strings.Split(c.Text, "\n") {
		b.WriteString(line)
		b.WriteString("\n")
	}

	var replies strings.Builder
	for _, r := range c.Replies {
		if r == nil {
			continue
		}
		replies.WriteString(renderNode(r, depth+1))
	}

	block := strings.TrimRight(b.String(), "\n")
	if replies.Len() > 0 {
		block += "\n" + strings.TrimRight(replies.String(), "\n")
	}
	if depth > 0 {
		block = lipgloss.NewStyle().MarginLeft(indentWidth).Render(railStyle.Render(block))
	}
	return block + "\n"
}

// Line is the one-line header of a comment: author, score, age marker, id.
func Line(c *models.Comment) string {
	parts := []string{
		authorStyle.Render(c.AuthorUsername),
		Score(c.Votes, c.UserVote),
		metaStyle.Render(c.CreatedAt.Format("2006-01-02 15:04")),
	}
	if c.IsEdited {
		parts = append(parts, metaStyle.Render("(edited)"))
	}
	parts = append(parts, metaStyle.Render(fmt.Sprintf("#%d", c.ID)))
	return strings.Join(parts, " ")
}

// Score renders a score highlighted in the direction of the caller's vote.
func Score(votes int, userVote models.VoteValue) string {
	s := fmt.Sprintf("%+d", votes)
	switch userVote {
	case models.VoteUp:
		return upStyle.Render("▲ " + s)
	case models.VoteDown:
		return downStyle.Render("▼ " + s)
	default:
		return "· " + s
	}
}
