package devserver

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"katha/internal/utils"
)

var commonPasswords = map[string]bool{
	"password":   true,
	"password1":  true,
	"12345678":   true,
	"123456789":  true,
	"qwerty123":  true,
	"iloveyou":   true,
	"11111111":   true,
	"abc12345":   true,
	"letmein1":   true,
	"sunshine":   true,
	"passw0rd":   true,
	"welcome1":   true,
	"qwertyuiop": true,
}

// ValidatePassword returns the password field messages for a new account.
func ValidatePassword(password, username string) []string {
	if password == "" {
		return []string{"Password is required when creating a user."}
	}
	var msgs []string
	lower := strings.ToLower(password)
	if username != "" && len(username) >= 3 && strings.Contains(lower, strings.ToLower(username)) {
		msgs = append(msgs, "The password is too similar to the username.")
	}
	if len(password) < 8 {
		msgs = append(msgs, "This password is too short. It must contain at least 8 characters.")
	}
	if commonPasswords[lower] {
		msgs = append(msgs, "This password is too common.")
	}
	if strings.Trim(password, "0123456789") == "" {
		msgs = append(msgs, "This password is entirely numeric.")
	}
	return msgs
}

var googleIssuers = map[string]bool{
	"accounts.google.com":         true,
	"https://accounts.google.com": true,
}

// GoogleEmail reads the email out of a Google ID token. The signature is not
// checked: the dev server has no access to Google's keys.
func GoogleEmail(idToken string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return "", utils.NewAppError(utils.ErrUnauthorized, "Invalid Google token", err)
	}
	iss, _ := claims["iss"].(string)
	if !googleIssuers[iss] {
		return "", utils.NewAppError(utils.ErrUnauthorized, "Invalid token issuer", nil)
	}
	email, _ := claims["email"].(string)
	if email == "" {
		return "", utils.NewAppError(utils.ErrInvalidInput, "Email not provided by Google", nil)
	}
	return email, nil
}
