package confirm

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"katha/internal/utils"
)

func TestGuard_RunsOnlyAfterConfirm(t *testing.T) {
	sc := NewScripted(true)
	g := NewGuard(sc, nil)

	calls := 0
	err := g.Run(context.Background(), "Delete post 4?", func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"Delete post 4?"}, sc.Prompts())
}

func TestGuard_CancelSkipsAction(t *testing.T) {
	g := NewGuard(NewScripted(false), nil)

	calls := 0
	err := g.Run(context.Background(), "Delete comment 2?", func(context.Context) error {
		calls++
		return nil
	})
	assert.True(t, utils.IsErrorCode(err, utils.ErrNotConfirmed))
	assert.Equal(t, 0, calls)
}

func TestGuard_ConfirmerErrorSkipsAction(t *testing.T) {
	boom := errors.New("terminal gone")
	g := NewGuard(Failing(boom), nil)

	calls := 0
	err := g.Run(context.Background(), "Delete?", func(context.Context) error {
		calls++
		return nil
	})
	assert.True(t, utils.IsErrorCode(err, utils.ErrNotConfirmed))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, calls)
}

func TestGuard_ActionErrorPropagates(t *testing.T) {
	g := NewGuard(AutoApprove{}, nil)
	want := utils.NewAppError(utils.ErrForbidden, "not yours", nil)

	err := g.Run(context.Background(), "Delete?", func(context.Context) error { return want })
	assert.Equal(t, want, err)
}

func TestNonInteractive_Refuses(t *testing.T) {
	ok, err := NonInteractive{}.Confirm(context.Background(), "Delete?")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrNonInteractive)
}

func TestForTerminal(t *testing.T) {
	assert.IsType(t, AutoApprove{}, ForTerminal(true, os.Stdin.Fd(), nil, nil))

	f, err := os.CreateTemp(t.TempDir(), "stdin")
	require.NoError(t, err)
	defer f.Close()
	assert.IsType(t, NonInteractive{}, ForTerminal(false, f.Fd(), f, nil))
}

func TestScripted_RunsOut(t *testing.T) {
	sc := NewScripted(true)
	ok, _ := sc.Confirm(context.Background(), "a")
	assert.True(t, ok)
	ok, _ = sc.Confirm(context.Background(), "b")
	assert.False(t, ok)
}
