package confirm

import (
	"context"
	"log/slog"
	"sync"

	"github.com/rohankatakam/pipepilot/internal/directive"
)

// RendererConfig wires a Renderer
type RendererConfig struct {
	Dispatcher *Dispatcher
	Navigator  Navigator
	OAuth      *OAuthDeps
	// OnComplete is told about every directive that reached completed
	OnComplete func(directive.Directive, Decision)
}

// Renderer mounts one view per directive and routes each view's decision
// through the dispatcher
type Renderer struct {
	dispatcher *Dispatcher
	navigator  Navigator
	oauth      *OAuthDeps
	onComplete func(directive.Directive, Decision)
	logger     *slog.Logger

	mu    sync.Mutex
	views map[string]View
	order []string
}

func NewRenderer(cfg RendererConfig) *Renderer {
	return &Renderer{
		dispatcher: cfg.Dispatcher,
		navigator:  cfg.Navigator,
		oauth:      cfg.OAuth,
		onComplete: cfg.OnComplete,
		logger:     slog.Default().With("component", "renderer"),
		views:      make(map[string]View),
	}
}

// Mount returns the view for d, creating it on first sight. The bool is
// false when the directive was already mounted, or is completed and must
// not render again (the view is nil then).
func (r *Renderer) Mount(d directive.Directive) (View, bool) {
	if r.dispatcher.Status(d.ID) == directive.StatusCompleted {
		return nil, false
	}

	r.mu.Lock()
	if v, ok := r.views[d.ID]; ok {
		r.mu.Unlock()
		return v, false
	}
	r.mu.Unlock()

	v := r.build(d, r.callbacks(d))

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.views[d.ID]; ok {
		if td, ok := v.(tearDowner); ok {
			td.teardown()
		}
		return existing, false
	}
	r.views[d.ID] = v
	r.order = append(r.order, d.ID)
	return v, true
}

// build picks the typed view for the category. Unknown categories and
// payloads a typed view cannot decode fall back to the generic view.
func (r *Renderer) build(d directive.Directive, cb Callbacks) View {
	var (
		v   View
		err error
	)

	switch d.Category {
	case directive.CategorySourceSelect:
		v, err = newSourceSelectView(d, cb)
	case directive.CategoryCredentials:
		v, err = newCredentialsView(d, cb)
	case directive.CategoryTableSelect:
		v, err = newTableSelectView(d, cb)
	case directive.CategoryFilter:
		v, err = newFilterView(d, cb)
	case directive.CategorySchemaPreview:
		v, err = newSchemaPreviewView(d, cb)
	case directive.CategoryDestination:
		v, err = newDestinationView(d, cb)
	case directive.CategoryCost:
		v, err = newCostView(d, cb)
	case directive.CategoryAlertConfig:
		v, err = newAlertConfigView(d, cb)
	case directive.CategoryTopicRegistry:
		v, err = newTopicRegistryView(d, cb)
	case directive.CategoryResources:
		v, err = newResourcesView(d, cb)
	case directive.CategoryPipelineCreate:
		v, err = newPipelineCreateView(d, cb)
	case directive.CategoryReprocess:
		v, err = newReprocessView(d, cb)
	case directive.CategoryLink:
		v, err = newLinkView(d, cb, r.navigator)
	case directive.CategoryOAuth:
		v, err = newOAuthView(d, cb, r.oauth)
	case directive.CategoryGenericAction:
		return newGenericView(d, cb)
	default:
		r.logger.Warn("no view for category", "category", d.Category, "directive", d.ID)
		return newGenericView(d, cb)
	}

	if err != nil {
		r.logger.Warn("falling back to generic view",
			"directive", d.ID, "category", d.Category, "error", err)
		return newGenericView(d, cb)
	}
	return v
}

func (r *Renderer) callbacks(d directive.Directive) Callbacks {
	return Callbacks{
		OnConfirm: func(ctx context.Context, fields map[string]any) error {
			if err := r.dispatcher.Dispatch(ctx, d, DecisionConfirm, fields); err != nil {
				return err
			}
			r.completed(d, DecisionConfirm)
			return nil
		},
		OnCancel: func(ctx context.Context) error {
			if err := r.dispatcher.Dispatch(ctx, d, DecisionCancel, nil); err != nil {
				return err
			}
			r.completed(d, DecisionCancel)
			return nil
		},
		OnDismiss: func() error {
			if err := r.dispatcher.Dismiss(d); err != nil {
				return err
			}
			r.completed(d, DecisionConfirm)
			return nil
		},
	}
}

func (r *Renderer) completed(d directive.Directive, decision Decision) {
	r.Unmount(d.ID)
	if r.onComplete != nil {
		r.onComplete(d, decision)
	}
}

// Unmount removes a view and releases what it holds. Unknown ids are
// ignored.
func (r *Renderer) Unmount(id string) {
	r.mu.Lock()
	v, ok := r.views[id]
	if ok {
		delete(r.views, id)
		for i, vid := range r.order {
			if vid == id {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	if td, ok := v.(tearDowner); ok {
		td.teardown()
	}
}

// Lookup returns the live view for a directive id
func (r *Renderer) Lookup(id string) (View, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.views[id]
	return v, ok
}

// Mounted lists live views in mount order
func (r *Renderer) Mounted() []View {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]View, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.views[id])
	}
	return out
}

// UnmountAll tears down every live view
func (r *Renderer) UnmountAll() {
	r.mu.Lock()
	ids := append([]string(nil), r.order...)
	r.mu.Unlock()
	for _, id := range ids {
		r.Unmount(id)
	}
}
