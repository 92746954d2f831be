package confirm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rohankatakam/pipepilot/internal/directive"
	perrors "github.com/rohankatakam/pipepilot/internal/errors"
)

// ErrAlreadyDispatched is returned for a directive that is being sent or
// has already been answered
var ErrAlreadyDispatched = errors.New("directive already dispatched")

// Decision is the user's answer to a directive
type Decision int

const (
	DecisionConfirm Decision = iota
	DecisionCancel
)

func (d Decision) String() string {
	if d == DecisionCancel {
		return "cancel"
	}
	return "confirm"
}

// Envelope keys the backend reads
const (
	KeyActionType = "action_type"
	KeyConfirmed  = "confirmed"
	KeyCancelled  = "cancelled"
)

// OutboundMessage is one reply on the channel
type OutboundMessage struct {
	Message      string         `json:"message"`
	Confirmation map[string]any `json:"confirmation"`
}

// Sender delivers a message on the bidirectional channel
type Sender interface {
	Send(ctx context.Context, msg OutboundMessage) error
}

// Dispatcher turns decisions into outbound messages, at most one per
// directive
type Dispatcher struct {
	sender Sender
	logger *slog.Logger

	mu     sync.Mutex
	status map[string]directive.Status
}

func NewDispatcher(sender Sender) *Dispatcher {
	return &Dispatcher{
		sender: sender,
		logger: slog.Default().With("component", "dispatcher"),
		status: make(map[string]directive.Status),
	}
}

// Status is the lifecycle state of a directive; unknown ids are pending
func (d *Dispatcher) Status(id string) directive.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status[id]
}

// claim moves a pending directive to submitting
func (d *Dispatcher) claim(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.status[id] != directive.StatusPending {
		return ErrAlreadyDispatched
	}
	d.status[id] = directive.StatusSubmitting
	return nil
}

func (d *Dispatcher) settle(id string, s directive.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s == directive.StatusPending {
		delete(d.status, id)
		return
	}
	d.status[id] = s
}

// Dispatch sends the user's decision for dir. The directive is claimed
// before sending; a successful send completes it for good, a failed send
// returns it to pending with nothing delivered. Failed sends are never
// retried here.
func (d *Dispatcher) Dispatch(ctx context.Context, dir directive.Directive, decision Decision, fields map[string]any) error {
	if err := d.claim(dir.ID); err != nil {
		return err
	}

	msg := OutboundMessage{
		Message:      MessageFor(dir.Category, decision),
		Confirmation: BuildEnvelope(dir, decision, fields),
	}

	if err := d.sender.Send(ctx, msg); err != nil {
		d.settle(dir.ID, directive.StatusPending)
		d.logger.Warn("confirmation not delivered",
			"directive", dir.ID, "category", dir.Category, "decision", decision, "error", err)
		return perrors.ChannelError(err, "could not send confirmation").
			WithContext("directive", dir.ID)
	}

	d.settle(dir.ID, directive.StatusCompleted)
	d.logger.Info("confirmation sent",
		"directive", dir.ID, "category", dir.Category, "decision", decision)
	return nil
}

// Dismiss completes a directive that needs no reply
func (d *Dispatcher) Dismiss(dir directive.Directive) error {
	if err := d.claim(dir.ID); err != nil {
		return err
	}
	d.settle(dir.ID, directive.StatusCompleted)
	d.logger.Debug("directive dismissed", "directive", dir.ID, "category", dir.Category)
	return nil
}

// BuildEnvelope assembles the confirmation payload: the directive's context
// first, then the user's fields, then the decision keys. The session
// correlator always comes from the context, unchanged.
func BuildEnvelope(dir directive.Directive, decision Decision, fields map[string]any) map[string]any {
	env := make(map[string]any, len(dir.Data)+len(fields)+3)
	for k, v := range dir.Data {
		env[k] = v
	}
	for k, v := range fields {
		env[k] = v
	}

	env[KeyActionType] = string(dir.Category)
	if decision == DecisionCancel {
		env[KeyConfirmed] = false
		env[KeyCancelled] = true
	} else {
		env[KeyConfirmed] = true
		delete(env, KeyCancelled)
	}

	if sid, ok := dir.SessionID(); ok {
		env[directive.SessionIDKey] = sid
	}
	return env
}

var categoryPhrases = map[directive.Category]string{
	directive.CategorySourceSelect:   "source selection",
	directive.CategoryCredentials:    "credentials",
	directive.CategoryTableSelect:    "table selection",
	directive.CategoryFilter:         "filter",
	directive.CategorySchemaPreview:  "schema",
	directive.CategoryDestination:    "destination",
	directive.CategoryCost:           "cost estimate",
	directive.CategoryAlertConfig:    "alert configuration",
	directive.CategoryTopicRegistry:  "topic registration",
	directive.CategoryResources:      "resources",
	directive.CategoryPipelineCreate: "pipeline creation",
	directive.CategoryReprocess:      "reprocessing",
	directive.CategoryOAuth:          "account connection",
	directive.CategoryGenericAction:  "action",
}

// MessageFor is the human-readable line sent alongside the envelope
func MessageFor(c directive.Category, decision Decision) string {
	phrase, ok := categoryPhrases[c]
	if !ok {
		phrase = "action"
	}
	if decision == DecisionCancel {
		return fmt.Sprintf("Cancelled %s", phrase)
	}
	return fmt.Sprintf("Confirmed %s", phrase)
}
