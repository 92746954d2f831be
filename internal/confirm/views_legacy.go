package confirm

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/rohankatakam/pipepilot/internal/directive"
	perrors "github.com/rohankatakam/pipepilot/internal/errors"
	"github.com/rohankatakam/pipepilot/internal/oauth"
)

// ReprocessContext is the payload of a reprocess prompt
type ReprocessContext struct {
	SessionID   string `json:"sessionId"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// ReprocessView is a two-button inline control: run again, or don't
type ReprocessView struct {
	base
	Context ReprocessContext
}

func newReprocessView(d directive.Directive, cb Callbacks) (*ReprocessView, error) {
	v := &ReprocessView{base: base{d: d, cb: cb}}
	if err := decodeContext(d.Data, &v.Context); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *ReprocessView) Title() string {
	if v.Context.Label != "" {
		return v.Context.Label
	}
	return "Reprocess"
}

func (v *ReprocessView) Confirm(ctx context.Context) error {
	return v.submit(ctx, nil)
}

// LinkContext is the payload of a navigation directive
type LinkContext struct {
	URL   string `json:"url"`
	Label string `json:"label"`
}

// LinkView opens a page. It sends nothing back to the agent.
type LinkView struct {
	base
	Context LinkContext
	nav     Navigator
}

func newLinkView(d directive.Directive, cb Callbacks, nav Navigator) (*LinkView, error) {
	v := &LinkView{base: base{d: d, cb: cb}, nav: nav}
	if err := decodeContext(d.Data, &v.Context); err != nil {
		return nil, err
	}
	if v.nav == nil {
		v.nav = SystemBrowser{}
	}
	return v, nil
}

func (v *LinkView) Title() string {
	if v.Context.Label != "" {
		return v.Context.Label
	}
	return v.Context.URL
}

// Confirm opens the link and retires the directive
func (v *LinkView) Confirm(ctx context.Context) error {
	u, err := url.Parse(v.Context.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return perrors.SecurityError("refusing to open a non-web link").WithContext("url", v.Context.URL)
	}
	if err := v.nav.OpenURL(u.String()); err != nil {
		return perrors.ExternalError(err, "could not open browser")
	}
	return v.dismiss()
}

// Cancel retires the directive without opening anything
func (v *LinkView) Cancel(ctx context.Context) error {
	return v.dismiss()
}

// OAuthContext is the payload of a connect-account directive
type OAuthContext struct {
	SessionID string `json:"sessionId"`
	Provider  string `json:"provider"`
	Label     string `json:"label"`
}

// OAuthDeps are the collaborators an OAuthView needs
type OAuthDeps struct {
	Opener    oauth.WindowOpener
	Requester oauth.AuthURLRequester
	Providers *oauth.ProviderSet
	Bus       *oauth.CallbackBus
	UserID    string
}

// OAuthView connects a third-party account through the popup flow. Confirm
// starts the flow; the decision is submitted once the provider reports
// success.
type OAuthView struct {
	base
	Context OAuthContext

	coord     *oauth.Coordinator
	providers *oauth.ProviderSet
	detach    func()

	ctxMu   sync.Mutex
	lastCtx context.Context
}

func newOAuthView(d directive.Directive, cb Callbacks, deps *OAuthDeps) (*OAuthView, error) {
	if deps == nil || deps.Opener == nil || deps.Requester == nil {
		return nil, perrors.ConfigError("oauth is not configured")
	}
	v := &OAuthView{base: base{d: d, cb: cb}, providers: deps.Providers}
	if err := decodeContext(d.Data, &v.Context); err != nil {
		return nil, err
	}
	if strings.TrimSpace(v.Context.Provider) == "" {
		return nil, perrors.FieldError("provider", "oauth directive names no provider")
	}
	if v.providers == nil {
		v.providers = oauth.NewProviderSet()
	}

	v.coord = oauth.NewCoordinator(oauth.CoordinatorConfig{
		Provider:  v.Context.Provider,
		UserID:    deps.UserID,
		Opener:    deps.Opener,
		Requester: deps.Requester,
		Providers: v.providers,
		OnChange:  v.stateChanged,
	})
	if deps.Bus != nil {
		v.detach = v.coord.Attach(deps.Bus)
	}
	return v, nil
}

func (v *OAuthView) Title() string {
	if v.Context.Label != "" {
		return v.Context.Label
	}
	return "Connect " + v.Context.Provider
}

// State is the phase of the current attempt
func (v *OAuthView) State() oauth.State { return v.coord.State() }

// AttemptID is the state the current attempt's callback must carry
func (v *OAuthView) AttemptID() string { return v.coord.AttemptID() }

// Err is why the last attempt failed
func (v *OAuthView) Err() error { return v.coord.Err() }

// Connected reports whether the provider is already in the session's set
func (v *OAuthView) Connected() bool { return v.providers.Has(v.Context.Provider) }

// Confirm starts an authorization attempt. If the provider is already
// connected, or the last attempt completed but its reply was not
// delivered, the decision is submitted directly.
func (v *OAuthView) Confirm(ctx context.Context) error {
	if v.Connected() || v.coord.State() == oauth.StateCompleted {
		return v.submitConnected(ctx)
	}
	v.ctxMu.Lock()
	v.lastCtx = ctx
	v.ctxMu.Unlock()
	return v.coord.Start(ctx)
}

// Retry builds a fresh attempt after a failure
func (v *OAuthView) Retry(ctx context.Context) error {
	return v.Confirm(ctx)
}

func (v *OAuthView) Cancel(ctx context.Context) error {
	v.coord.Cancel()
	return v.base.Cancel(ctx)
}

func (v *OAuthView) stateChanged(s oauth.State, _ error) {
	if s != oauth.StateCompleted {
		return
	}
	v.ctxMu.Lock()
	ctx := v.lastCtx
	v.ctxMu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		ctx = context.Background()
	}
	_ = v.submitConnected(ctx)
}

// submitConnected leaves the context's provider as the agent spelled it and
// reports the normalized id under its own key
func (v *OAuthView) submitConnected(ctx context.Context) error {
	return v.submit(ctx, map[string]any{
		"connected_provider": oauth.NormalizeProvider(v.Context.Provider),
		"connected":          true,
	})
}

func (v *OAuthView) teardown() {
	if v.detach != nil {
		v.detach()
	}
	v.coord.Cancel()
}

// GenericContext is what every unrecognized directive is shown with
type GenericContext struct {
	Action      string `json:"action"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// GenericView offers confirm and cancel for directives without a typed view
type GenericView struct {
	base
	Context GenericContext
}

// newGenericView never fails; undecodable fields are left empty
func newGenericView(d directive.Directive, cb Callbacks) *GenericView {
	v := &GenericView{base: base{d: d, cb: cb}}
	_ = decodeContext(d.Data, &v.Context)
	return v
}

func (v *GenericView) Title() string {
	switch {
	case v.Context.Label != "":
		return v.Context.Label
	case v.Context.Action != "":
		return v.Context.Action
	case v.d.RawType != "":
		return v.d.RawType
	}
	return "Confirm action"
}

func (v *GenericView) Confirm(ctx context.Context) error {
	return v.submit(ctx, nil)
}
