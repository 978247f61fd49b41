// Package comments models a post's comment tree and the mutations on it.
//
// The tree arrives whole inside the post detail response and is treated as
// read-only. Every successful add, edit or delete asks the owner to refetch
// the post, which replaces the tree wholesale.
package comments

import (
	"katha/internal/models"
)

// Walk visits every comment depth-first in server order. depth is the number
// of ancestors. Returning false from fn skips that comment's replies.
func Walk(roots []*models.Comment, fn func(c *models.Comment, depth int) bool) {
	walk(roots, 0, fn)
}

func walk(nodes []*models.Comment, depth int, fn func(*models.Comment, int) bool) {
	for _, c := range nodes {
		if c == nil {
			continue
		}
		if fn(c, depth) {
			walk(c.Replies, depth+1, fn)
		}
	}
}

// Find returns the comment with id, or nil.
func Find(roots []*models.Comment, id int) *models.Comment {
	var found *models.Comment
	Walk(roots, func(c *models.Comment, _ int) bool {
		if found != nil {
			return false
		}
		if c.ID == id {
			found = c
			return false
		}
		return true
	})
	return found
}

// Count returns the number of comments in the tree, replies included.
func Count(roots []*models.Comment) int {
	n := 0
	Walk(roots, func(*models.Comment, int) bool {
		n++
		return true
	})
	return n
}

// Depth returns the number of ancestors of the comment with id, or -1.
func Depth(roots []*models.Comment, id int) int {
	depth := -1
	Walk(roots, func(c *models.Comment, d int) bool {
		if c.ID == id {
			depth = d
		}
		return depth < 0
	})
	return depth
}

// IsAuthor reports whether user wrote c and may edit or delete it.
func IsAuthor(c *models.Comment, user *models.Identity) bool {
	return c != nil && user != nil && user.Username != "" && c.AuthorUsername == user.Username
}
