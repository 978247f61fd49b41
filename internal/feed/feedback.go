package feed

import (
	"context"
	"slices"
	"strings"

	"katha/internal/models"
	"katha/internal/utils"
)

const (
	maxSubjectLen  = 100
	defaultSubject = "General Feedback"
)

// SendFeedback submits feedback. The message is required; a missing subject
// becomes "General Feedback". A logged-in user's email replaces the given one.
func (f *Feed) SendFeedback(ctx context.Context, kind, subject, message, email string) error {
	fb, err := f.feedback(kind, subject, message, email)
	if err != nil {
		return err
	}
	if err := f.client.SendFeedback(ctx, fb); err != nil {
		return err
	}
	f.logger.Info("feedback sent", "type", fb.Type)
	return nil
}

func (f *Feed) feedback(kind, subject, message, email string) (models.Feedback, error) {
	fb := models.Feedback{
		Type:    strings.TrimSpace(kind),
		Subject: strings.TrimSpace(subject),
		Message: strings.TrimSpace(message),
		Email:   strings.TrimSpace(email),
	}
	if fb.Type == "" {
		fb.Type = "general"
	}
	if !slices.Contains(models.FeedbackTypes, fb.Type) {
		return fb, utils.NewAppError(utils.ErrInvalidInput,
			"Feedback type must be one of "+strings.Join(models.FeedbackTypes, ", "), nil)
	}
	if fb.Message == "" {
		return fb, utils.NewEmptyTextError("Message")
	}
	if runes := []rune(fb.Subject); len(runes) > maxSubjectLen {
		fb.Subject = string(runes[:maxSubjectLen])
	}
	if fb.Subject == "" {
		fb.Subject = defaultSubject
	}
	if f.auth.IsLoggedIn() {
		fb.Email = ""
		if user := f.auth.User(); user != nil {
			fb.Email = user.Email
		}
	}
	return fb, nil
}
