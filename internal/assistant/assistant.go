// Package assistant forwards questions the rule matcher cannot answer to a
// chat model, together with a KPI context.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/marcandre22/ready-mix-coach/internal/types"
)

// FallbackMessage is shown when the model cannot be reached.
const FallbackMessage = "The assistant isn't reachable right now. Try one of the fleet questions, for example \"total volume today\" or \"average wait this week\"."

// Assistant answers a free-form question given a system context and the
// conversation so far. Failures of the remote side come back as
// *UnavailableError.
type Assistant interface {
	Ask(ctx context.Context, systemContext string, history types.ConversationHistory, question string) (string, error)
}

// UnavailableError means the backend could not produce an answer: network
// failure, timeout, auth or an empty reply.
type UnavailableError struct {
	Cause   error
	Timeout bool
}

func (e *UnavailableError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("assistant timed out: %v", e.Cause)
	}
	return fmt.Sprintf("assistant unavailable: %v", e.Cause)
}

func (e *UnavailableError) Unwrap() error { return e.Cause }

// AsUnavailable returns the *UnavailableError carried by err, or wraps err in
// one. A missed deadline counts as a timeout.
func AsUnavailable(err error) *UnavailableError {
	var u *UnavailableError
	if errors.As(err, &u) {
		return u
	}
	return &UnavailableError{Cause: err, Timeout: errors.Is(err, context.DeadlineExceeded)}
}

// Mock answers offline and deterministically. Reply overrides the canned
// answer and Err is returned instead of an answer, when set.
type Mock struct {
	Reply string
	Err   error

	Calls []MockCall
}

type MockCall struct {
	SystemContext string
	History       types.ConversationHistory
	Question      string
}

func (m *Mock) Ask(ctx context.Context, systemContext string, history types.ConversationHistory, question string) (string, error) {
	m.Calls = append(m.Calls, MockCall{SystemContext: systemContext, History: history, Question: question})
	if err := ctx.Err(); err != nil {
		return "", &UnavailableError{Cause: err, Timeout: errors.Is(err, context.DeadlineExceeded)}
	}
	if m.Err != nil {
		return "", m.Err
	}
	if m.Reply != "" {
		return m.Reply, nil
	}
	return fmt.Sprintf("(offline coach) I can't reach the model, but here's what I'd check for %q: compare it against today's KPIs and the 7-day trend. What would you like to drill into next?", strings.TrimSpace(question)), nil
}
