package notifications

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"katha/internal/models"
)

var (
	unreadStyle = lipgloss.NewStyle().Bold(true)
	readStyle   = lipgloss.NewStyle().Faint(true)
)

// Describe is the sentence shown for a notification.
func Describe(n *models.Notification) string {
	switch n.NotificationType {
	case models.NotificationReply:
		return fmt.Sprintf("%s replied to your comment on %q", n.ActorUsername, n.PostTitle)
	case models.NotificationComment:
		return fmt.Sprintf("%s commented on %q", n.ActorUsername, n.PostTitle)
	default:
		return fmt.Sprintf("%s: %q", n.ActorUsername, n.PostTitle)
	}
}

func Render(list []*models.Notification) string {
	if len(list) == 0 {
		return readStyle.Render("No notifications.") + "\n"
	}
	var b strings.Builder
	for _, n := range list {
		line := fmt.Sprintf("#%d  %s  %s", n.ID, n.CreatedAt.Format("2006-01-02 15:04"), Describe(n))
		if n.CommentText != "" {
			line += fmt.Sprintf(": %q", truncate(n.CommentText, 60))
		}
		if n.Read {
			b.WriteString(readStyle.Render("  " + line))
		} else {
			b.WriteString(unreadStyle.Render("● " + line))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
