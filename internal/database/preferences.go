package database

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"katha/internal/models"
)

const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// Theme returns the saved UI theme, light when unset.
func (s *Store) Theme() string {
	if theme := s.GetString(KeyTheme); theme == ThemeDark {
		return ThemeDark
	}
	return ThemeLight
}

func (s *Store) SetTheme(theme string) error {
	if theme != ThemeLight && theme != ThemeDark {
		return fmt.Errorf("unknown theme %q", theme)
	}
	return s.Set(KeyTheme, theme)
}

// SidebarOpen returns the saved sidebar flag. It is stored as a JSON bool and
// anything unparsable reads as closed.
func (s *Store) SidebarOpen() bool {
	open, err := strconv.ParseBool(s.GetString(KeySidebarOpen))
	return err == nil && open
}

func (s *Store) SetSidebarOpen(open bool) error {
	return s.Set(KeySidebarOpen, strconv.FormatBool(open))
}

// SearchTerm returns the last search term.
func (s *Store) SearchTerm() string {
	return s.GetString(KeySearch)
}

// SetSearchTerm stores term trimmed; an empty term removes the key.
func (s *Store) SetSearchTerm(term string) (string, error) {
	trimmed := strings.TrimSpace(term)
	if trimmed == "" {
		return "", s.Delete(KeySearch)
	}
	return trimmed, s.Set(KeySearch, trimmed)
}

// Draft returns the unsent post, or an empty draft when none is stored or the
// stored value is corrupt.
func (s *Store) Draft() models.Draft {
	var draft models.Draft
	raw := s.GetString(KeyDraft)
	if raw == "" {
		return draft
	}
	if err := json.Unmarshal([]byte(raw), &draft); err != nil {
		return models.Draft{}
	}
	return draft
}

func (s *Store) SaveDraft(draft models.Draft) error {
	raw, err := json.Marshal(draft)
	if err != nil {
		return err
	}
	return s.Set(KeyDraft, string(raw))
}

// DiscardDraft removes the draft; called after a successful submit or on request.
func (s *Store) DiscardDraft() error {
	return s.Delete(KeyDraft)
}
