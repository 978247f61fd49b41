package confirm

import (
	"context"
	"sync"
)

// Scripted answers from a fixed list and records every prompt. When the
// answers run out it says no.
type Scripted struct {
	mu      sync.Mutex
	answers []bool
	err     error
	prompts []string
}

func NewScripted(answers ...bool) *Scripted {
	return &Scripted{answers: answers}
}

// Failing returns a confirmer whose every call fails with err.
func Failing(err error) *Scripted {
	return &Scripted{err: err}
}

func (s *Scripted) Confirm(_ context.Context, prompt string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return false, s.err
	}
	if len(s.answers) == 0 {
		return false, nil
	}
	answer := s.answers[0]
	s.answers = s.answers[1:]
	return answer, nil
}

// Prompts returns the questions asked so far.
func (s *Scripted) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}
