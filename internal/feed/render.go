package feed

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"katha/internal/comments"
	"katha/internal/models"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#1E3A8A"))
	metaStyle  = lipgloss.NewStyle().Faint(true)
	savedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	ruleStyle  = lipgloss.NewStyle().Faint(true)
)

// Summary is the one-line listing of a post.
func Summary(p *models.Post) string {
	parts := []string{
		fmt.Sprintf("%5s", fmt.Sprintf("#%d", p.ID)),
		comments.Score(p.Votes, p.UserVote),
		titleStyle.Render(p.Title),
		metaStyle.Render(fmt.Sprintf("by %s, %d comments", p.AuthorUsername, p.CommentCount)),
	}
	if p.IsSaved {
		parts = append(parts, savedStyle.Render("★"))
	}
	return strings.Join(parts, "  ")
}

// RenderList renders a listing, or a hint when empty.
func RenderList(posts []*models.Post, empty string) string {
	if len(posts) == 0 {
		return metaStyle.Render(empty) + "\n"
	}
	var b strings.Builder
	for _, p := range posts {
		b.WriteString(Summary(p))
		b.WriteString("\n")
	}
	return b.String()
}

// RenderDetail renders a post with its full comment tree.
func RenderDetail(p *models.Post) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(p.Title))
	b.WriteString("\n")

	meta := fmt.Sprintf("#%d by %s on %s", p.ID, p.AuthorUsername, p.CreatedAt.Format("2006-01-02 15:04"))
	if p.IsEdited {
		meta += " (edited)"
	}
	b.WriteString(metaStyle.Render(meta))
	b.WriteString("  ")
	b.WriteString(comments.Score(p.Votes, p.UserVote))
	if p.IsSaved {
		b.WriteString("  ")
		b.WriteString(savedStyle.Render("★ saved"))
	}
	b.WriteString("\n\n")
	b.WriteString(p.Content)
	b.WriteString("\n\n")

	n := comments.Count(p.Comments)
	b.WriteString(ruleStyle.Render(fmt.Sprintf("── %d comments ──", n)))
	b.WriteString("\n")
	if n > 0 {
		b.WriteString(comments.Render(p.Comments))
	}
	return b.String()
}
