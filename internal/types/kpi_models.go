// internal/types/kpi_models.go
package types

import (
	"encoding/json"
	"math"
	"strconv"
)

// --------------------------------------------
// Metric is a float that may be undefined (NaN).
// It encodes as JSON null instead of failing.
// --------------------------------------------
type Metric float64

// NaN is the "no data" sentinel for means and ratios.
func NaN() Metric { return Metric(math.NaN()) }

func (m Metric) Valid() bool {
	f := float64(m)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func (m Metric) Float() float64 { return float64(m) }

func (m Metric) MarshalJSON() ([]byte, error) {
	if !m.Valid() {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, float64(m), 'f', -1, 64), nil
}

func (m *Metric) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*m = NaN()
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*m = Metric(f)
	return nil
}

// --------------------------------------------
// Conversation history passed in by the caller
// --------------------------------------------
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"` // RoleUser or RoleAssistant
	Content string `json:"content"`
}

// ConversationHistory is an immutable list of prior turns.
type ConversationHistory struct {
	ID       string    `json:"id,omitempty"`
	Messages []Message `json:"messages"`
}

// With returns a new history with msg appended; h is left untouched.
func (h ConversationHistory) With(msg Message) ConversationHistory {
	out := make([]Message, 0, len(h.Messages)+1)
	out = append(out, h.Messages...)
	out = append(out, msg)
	return ConversationHistory{ID: h.ID, Messages: out}
}

// Last returns at most n of the most recent messages.
func (h ConversationHistory) Last(n int) []Message {
	if n <= 0 || len(h.Messages) <= n {
		return h.Messages
	}
	return h.Messages[len(h.Messages)-n:]
}
