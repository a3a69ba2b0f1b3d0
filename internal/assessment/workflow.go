package assessment

import (
	"github.com/ovaphlow/pitchfork/service-municipal/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/assessment/entity"
)

// Action is a workflow step.
type Action string

const (
	ActionSubmit  Action = "submit"
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

type edge struct {
	from, to string
}

var transitions = map[Action]edge{
	ActionSubmit:  {entity.StatusDraft, entity.StatusPending},
	ActionApprove: {entity.StatusPending, entity.StatusApproved},
	ActionReject:  {entity.StatusPending, entity.StatusRejected},
}

// Next returns the status reached by applying a to current. Approved and
// rejected are terminal.
func Next(current string, a Action) (string, error) {
	e, ok := transitions[a]
	if !ok {
		return "", apperr.Validation("", "unknown action").WithDetail("action", string(a))
	}
	if current != e.from {
		return "", apperr.Precondition(apperr.ReasonInvalidTransition, "cannot "+string(a)+" a "+current+" assessment").
			WithDetail("status", current)
	}
	return e.to, nil
}
