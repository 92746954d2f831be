package confirm

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/mitchellh/mapstructure"
	"github.com/rohankatakam/pipepilot/internal/directive"
)

var (
	// ErrAlreadySubmitted is returned when a view is confirmed or cancelled
	// after it has already decided, or while a decision is in flight
	ErrAlreadySubmitted = errors.New("confirmation already submitted")

	// ErrIneligible is returned when toggling a row the backend marked
	// ineligible
	ErrIneligible = errors.New("table is not eligible for replication")

	// ErrUnknownOption is returned when a choice does not match any offered
	// option
	ErrUnknownOption = errors.New("no such option")
)

// View is a mounted, typed confirmation for one directive. A view only
// holds local state; its decision leaves through the Callbacks the renderer
// supplied.
type View interface {
	Directive() directive.Directive
	Title() string
	Confirm(ctx context.Context) error
	Cancel(ctx context.Context) error
	Submitting() bool
	Done() bool
}

// Callbacks connect a view to the renderer
type Callbacks struct {
	// OnConfirm receives only the fields the user supplied; the original
	// context is merged back in by the dispatcher.
	OnConfirm func(ctx context.Context, fields map[string]any) error
	OnCancel  func(ctx context.Context) error
	// OnDismiss retires a directive that needs no reply (navigation links).
	OnDismiss func() error
}

// tearDowner is implemented by views holding resources past their decision
type tearDowner interface {
	teardown()
}

// base carries the one-shot decision bookkeeping shared by every view
type base struct {
	d  directive.Directive
	cb Callbacks

	mu         sync.Mutex
	submitting bool
	done       bool
}

func (b *base) Directive() directive.Directive { return b.d }

func (b *base) Submitting() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.submitting
}

func (b *base) Done() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done
}

// begin claims the view for one decision
func (b *base) begin() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done || b.submitting {
		return ErrAlreadySubmitted
	}
	b.submitting = true
	return nil
}

// finish releases the claim; a failed decision leaves the view open
func (b *base) finish(err error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submitting = false
	if err == nil {
		b.done = true
	}
	return err
}

func (b *base) submit(ctx context.Context, fields map[string]any) error {
	if err := b.begin(); err != nil {
		return err
	}
	if b.cb.OnConfirm == nil {
		return b.finish(nil)
	}
	return b.finish(b.cb.OnConfirm(ctx, fields))
}

func (b *base) Cancel(ctx context.Context) error {
	if err := b.begin(); err != nil {
		return err
	}
	if b.cb.OnCancel == nil {
		return b.finish(nil)
	}
	return b.finish(b.cb.OnCancel(ctx))
}

func (b *base) dismiss() error {
	if err := b.begin(); err != nil {
		return err
	}
	if b.cb.OnDismiss == nil {
		return b.finish(nil)
	}
	return b.finish(b.cb.OnDismiss())
}

// decodeContext fills a typed context from the opaque payload. Keys are
// matched through json tags, case-insensitively, with weak typing so "42"
// and 42 both fill an int.
func decodeContext(data map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(data)
}

// chooseByRef resolves a user reference to an option: an exact id, a
// case-insensitive name, or a 1-based position.
func chooseByRef(ref string, n int, id func(int) string, name func(int) string) (int, error) {
	for i := 0; i < n; i++ {
		if id(i) == ref {
			return i, nil
		}
	}
	for i := 0; i < n; i++ {
		if strings.EqualFold(name(i), ref) {
			return i, nil
		}
	}
	if pos, err := strconv.Atoi(strings.TrimSpace(ref)); err == nil && pos >= 1 && pos <= n {
		return pos - 1, nil
	}
	return -1, ErrUnknownOption
}
