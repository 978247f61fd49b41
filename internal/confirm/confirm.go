// Package confirm gates destructive actions behind an explicit yes.
package confirm

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"

	"katha/internal/utils"
)

// ErrNonInteractive is returned by a confirmer that cannot ask anyone.
var ErrNonInteractive = errors.New("confirmation required but no terminal is attached (pass --yes)")

// Confirmer asks a yes/no question. Dismissing the question is a "no", not
// an error.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// Guard runs destructive actions only after the confirmer says yes.
type Guard struct {
	confirmer Confirmer
	logger    *slog.Logger
}

func NewGuard(c Confirmer, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = utils.DiscardLogger()
	}
	return &Guard{confirmer: c, logger: logger}
}

// Run asks prompt and calls action when confirmed. A refusal, a dismissal or
// a confirmer error returns NOT_CONFIRMED and action is never called.
func (g *Guard) Run(ctx context.Context, prompt string, action func(context.Context) error) error {
	ok, err := g.confirmer.Confirm(ctx, prompt)
	if err != nil {
		g.logger.Warn("confirmation failed", "prompt", prompt, "error", err)
		appErr := utils.NewNotConfirmedError(prompt)
		appErr.Origin = err
		return appErr
	}
	if !ok {
		g.logger.Debug("destructive action cancelled", "prompt", prompt)
		return utils.NewNotConfirmedError(prompt)
	}
	return action(ctx)
}

// Terminal shows a modal huh confirm dialog. The form owns the terminal only
// while it runs.
type Terminal struct {
	in  io.Reader
	out io.Writer
}

func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: in, out: out}
}

func (t *Terminal) Confirm(ctx context.Context, prompt string) (bool, error) {
	var ok bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(prompt).
			Affirmative("Delete").
			Negative("Cancel").
			Value(&ok),
	)).WithShowHelp(false)
	if t.in != nil {
		form = form.WithInput(t.in)
	}
	if t.out != nil {
		form = form.WithOutput(t.out)
	}

	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, err
	}
	return ok, nil
}

// NonInteractive refuses every confirmation.
type NonInteractive struct{}

func (NonInteractive) Confirm(context.Context, string) (bool, error) {
	return false, ErrNonInteractive
}

// AutoApprove confirms everything; it stands for a --yes given up front.
type AutoApprove struct{}

func (AutoApprove) Confirm(context.Context, string) (bool, error) {
	return true, nil
}

// ForTerminal picks the confirmer for a CLI run: --yes approves, a TTY on fd
// gets the dialog, anything else refuses.
func ForTerminal(assumeYes bool, fd uintptr, in io.Reader, out io.Writer) Confirmer {
	switch {
	case assumeYes:
		return AutoApprove{}
	case isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd):
		return NewTerminal(in, out)
	default:
		return NonInteractive{}
	}
}
