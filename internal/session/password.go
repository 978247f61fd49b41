package session

import (
	"errors"
	"sort"
	"strings"
	"unicode"

	"katha/internal/utils"
)

const passwordSpecials = "!@#$%^&*()_+-=[]{};':\"\\|,.<>/?`~"

// CheckPassword applies the registration password policy locally so the user
// gets feedback before the request is sent.
func CheckPassword(pwd string) error {
	var issues []string
	if len(pwd) < 8 {
		issues = append(issues, "at least 8 characters")
	}
	if !strings.ContainsFunc(pwd, func(r rune) bool { return r >= 'a' && r <= 'z' }) {
		issues = append(issues, "one lowercase letter")
	}
	if !strings.ContainsFunc(pwd, func(r rune) bool { return r >= 'A' && r <= 'Z' }) {
		issues = append(issues, "one uppercase letter")
	}
	if !strings.ContainsFunc(pwd, unicode.IsDigit) {
		issues = append(issues, "one digit")
	}
	if !strings.ContainsAny(pwd, passwordSpecials) {
		issues = append(issues, "one special character")
	}
	if len(issues) == 0 {
		return nil
	}
	return &utils.AppError{
		Code:    utils.ErrValidation,
		Message: "Password must include " + strings.Join(issues, ", ") + ".",
		Fields:  map[string][]string{"password": issues},
	}
}

// registrationError rewrites a server validation error for display: password
// messages win, then username messages, else every message joined.
func registrationError(err error) error {
	var appErr *utils.AppError
	if !errors.As(err, &appErr) || len(appErr.Fields) == 0 {
		return err
	}

	var msgs []string
	switch {
	case len(appErr.Fields["password"]) > 0:
		msgs = appErr.Fields["password"]
	case len(appErr.Fields["username"]) > 0:
		msgs = appErr.Fields["username"]
	default:
		keys := make([]string, 0, len(appErr.Fields))
		for k := range appErr.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			msgs = append(msgs, appErr.Fields[k]...)
		}
	}

	return &utils.AppError{
		Code:    appErr.Code,
		Message: strings.Join(msgs, " | "),
		Origin:  appErr.Origin,
		Fields:  appErr.Fields,
	}
}
