// Package approval is the out-of-band channel through which an operator
// confirms or rejects funding, upgrades and withdrawals.
package approval

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/stakevault/backend/internal/apperrors"
)

// Kind is what an approval action refers to
type Kind string

const (
	KindInvestment Kind = "investment"
	KindUpgrade    Kind = "upgrade"
	KindWithdrawal Kind = "withdrawal"
)

// Verdict is the operator's answer
type Verdict string

const (
	Approve Verdict = "approve"
	Reject  Verdict = "reject"
)

// Field is one labelled line of an approval message
type Field struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Action asks the operator to decide on something
type Action struct {
	Kind    Kind      `json:"kind"`
	ID      uuid.UUID `json:"id"`
	UserID  uuid.UUID `json:"user_id"`
	Summary string    `json:"summary"`
	Fields  []Field   `json:"fields,omitempty"`
}

// Decision is the operator's answer to an Action
type Decision struct {
	Kind    Kind      `json:"kind"`
	ID      uuid.UUID `json:"id"`
	Verdict Verdict   `json:"verdict"`
	Reason  string    `json:"reason,omitempty"`
	Actor   string    `json:"actor,omitempty"`
}

// Notifier delivers an Action to whoever approves it
type Notifier interface {
	Notify(ctx context.Context, action Action) error
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(ctx context.Context, action Action) error

func (f NotifierFunc) Notify(ctx context.Context, action Action) error {
	return f(ctx, action)
}

// Nop drops every action
var Nop Notifier = NotifierFunc(func(context.Context, Action) error { return nil })

// CallbackData encodes a decision button as kind:verdict:id
func CallbackData(kind Kind, verdict Verdict, id uuid.UUID) string {
	return fmt.Sprintf("%s:%s:%s", kind, verdict, id)
}

// ParseCallbackData is the inverse of CallbackData
func ParseCallbackData(data string) (Decision, error) {
	parts := strings.SplitN(data, ":", 3)
	if len(parts) != 3 {
		return Decision{}, apperrors.Validation("malformed callback data %q", data)
	}

	kind := Kind(parts[0])
	switch kind {
	case KindInvestment, KindUpgrade, KindWithdrawal:
	default:
		return Decision{}, apperrors.Validation("unknown approval kind %q", parts[0])
	}

	verdict := Verdict(parts[1])
	if verdict != Approve && verdict != Reject {
		return Decision{}, apperrors.Validation("unknown verdict %q", parts[1])
	}

	id, err := uuid.Parse(parts[2])
	if err != nil {
		return Decision{}, apperrors.Validation("invalid id in callback data: %v", err)
	}
	return Decision{Kind: kind, ID: id, Verdict: verdict}, nil
}
