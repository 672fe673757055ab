// Package answer defines the request and response contracts shared by the
// answering strategies and the router.
package answer

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrStrategyMiss means a strategy could not answer and the next one should
// be tried. It is expected control flow, not a failure.
var ErrStrategyMiss = errors.New("strategy miss")

// Roles of a conversation turn.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultLanguage is assumed when a request names none.
const DefaultLanguage = "en"

// Envelope is the response every strategy and the router return.
type Envelope struct {
	Success   bool     `json:"success"`
	Text      string   `json:"text"`
	FollowUps []string `json:"followUps"`
	Error     string   `json:"error,omitempty"`
}

// Turn is one message of a conversation.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// Request is a chat question with its language and recent history.
type Request struct {
	Message  string `json:"message"`
	Language string `json:"language,omitempty"`
	History  []Turn `json:"history,omitempty"`
}

// Lang returns the request language, DefaultLanguage when unset.
func (r Request) Lang() string {
	l := strings.TrimSpace(r.Language)
	if l == "" {
		return DefaultLanguage
	}
	return l
}

// Result is the outcome of one strategy attempt: Hit or Miss.
type Result interface {
	result()
}

// Hit carries a final answer.
type Hit struct {
	Envelope Envelope
}

// Miss carries the reason a strategy passed. Reason always matches
// ErrStrategyMiss.
type Miss struct {
	Reason error
}

func (Hit) result()  {}
func (Miss) result() {}

// MissBecause builds a Miss wrapping ErrStrategyMiss around err.
func MissBecause(stage string, err error) Miss {
	if err == nil {
		return Miss{Reason: fmt.Errorf("%w: %s", ErrStrategyMiss, stage)}
	}
	return Miss{Reason: fmt.Errorf("%w: %s: %w", ErrStrategyMiss, stage, err)}
}
