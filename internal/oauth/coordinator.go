package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	perrors "github.com/rohankatakam/pipepilot/internal/errors"
)

// State is the phase of one OAuth attempt
type State int

const (
	StateIdle State = iota
	StatePopupOpened
	StateAwaitingAuthURL
	StateRedirected
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePopupOpened:
		return "popup_opened"
	case StateAwaitingAuthURL:
		return "awaiting_auth_url"
	case StateRedirected:
		return "redirected"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

func (s State) live() bool {
	return s == StatePopupOpened || s == StateAwaitingAuthURL || s == StateRedirected
}

var (
	ErrPopupBlocked      = errors.New("popup window was blocked")
	ErrNoAuthURL         = errors.New("backend returned no authorization url")
	ErrAttemptInProgress = errors.New("an oauth attempt is already in progress")
	ErrCallbackFailed    = errors.New("provider reported authorization failure")
)

// Window is a handle on the placeholder window opened for one attempt
type Window interface {
	// ID identifies the attempt. The completion callback must echo it as
	// its state.
	ID() string
	// Redirect sends the open window to url
	Redirect(url string) error
	Close() error
}

// WindowOpener opens the placeholder window. A nil Window or an error means
// the popup was blocked.
type WindowOpener interface {
	Open(ctx context.Context) (Window, error)
}

// AuthURLRequester asks the backend for a provider authorization URL
type AuthURLRequester interface {
	// state is echoed back by the completion callback
	RequestAuthURL(ctx context.Context, provider, userID, state string) (string, error)
}

// CoordinatorConfig wires a Coordinator
type CoordinatorConfig struct {
	Provider  string
	UserID    string
	Opener    WindowOpener
	Requester AuthURLRequester
	Providers *ProviderSet
	// OnChange is called after every state transition, outside the lock
	OnChange func(State, error)
}

// Coordinator drives a popup-based authorization for one provider. The
// window is opened before anything else so the opener sees it as a direct
// response to the user's action; the same window is later redirected to
// the provider. The coordinator never polls the window. It learns the
// outcome only from a callback event.
type Coordinator struct {
	provider  string
	userID    string
	opener    WindowOpener
	requester AuthURLRequester
	providers *ProviderSet
	onChange  func(State, error)
	logger    *slog.Logger

	mu      sync.Mutex
	state   State
	err     error
	window  Window
	nonce   string
	attempt int
	opening bool
}

func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	providers := cfg.Providers
	if providers == nil {
		providers = NewProviderSet()
	}
	return &Coordinator{
		provider:  cfg.Provider,
		userID:    cfg.UserID,
		opener:    cfg.Opener,
		requester: cfg.Requester,
		providers: providers,
		onChange:  cfg.OnChange,
		logger:    slog.Default().With("component", "oauth", "provider", NormalizeProvider(cfg.Provider)),
	}
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// AttemptID is the id of the current or last attempt, "" before the first
func (c *Coordinator) AttemptID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nonce
}

// Err is the reason for the last failure, if any
func (c *Coordinator) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Start begins a fresh attempt. It is allowed from idle and after a failed
// or cancelled attempt; a failed attempt is never resumed.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.opening || (c.state != StateIdle && c.state != StateFailed && c.state != StateCancelled) {
		c.mu.Unlock()
		return ErrAttemptInProgress
	}
	c.opening = true
	c.attempt++
	attempt := c.attempt
	c.err = nil
	c.mu.Unlock()

	win, err := c.opener.Open(ctx)

	c.mu.Lock()
	c.opening = false
	if err != nil || win == nil {
		cause := ErrPopupBlocked
		if err != nil {
			cause = fmt.Errorf("%w: %v", ErrPopupBlocked, err)
		}
		c.state, c.err = StateFailed, cause
		c.mu.Unlock()
		c.logger.Warn("popup blocked", "error", err)
		c.notify(StateFailed, cause)
		return perrors.OAuthError(cause, "could not open the authorization window")
	}
	c.window = win
	c.nonce = win.ID()
	c.state = StatePopupOpened
	nonce := c.nonce
	c.mu.Unlock()
	c.notify(StatePopupOpened, nil)

	if !c.advance(attempt, StatePopupOpened, StateAwaitingAuthURL) {
		return nil
	}

	url, err := c.requester.RequestAuthURL(ctx, c.provider, c.userID, nonce)
	if err == nil && url == "" {
		err = ErrNoAuthURL
	}

	c.mu.Lock()
	if c.attempt != attempt || c.state != StateAwaitingAuthURL {
		// cancelled, or completed by an early callback, while we waited
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		c.closeWindowLocked()
		c.state, c.err = StateFailed, err
		c.mu.Unlock()
		c.logger.Warn("authorization url request failed", "error", err)
		c.notify(StateFailed, err)
		return perrors.OAuthError(err, "could not get an authorization url")
	}
	if rerr := c.window.Redirect(url); rerr != nil {
		c.closeWindowLocked()
		c.state, c.err = StateFailed, rerr
		c.mu.Unlock()
		c.notify(StateFailed, rerr)
		return perrors.OAuthError(rerr, "could not redirect the authorization window")
	}
	c.state = StateRedirected
	c.mu.Unlock()

	c.logger.Info("authorization window redirected")
	c.notify(StateRedirected, nil)
	return nil
}

// HandleCompletion applies one callback event. Only an event whose state is
// the live attempt's id counts; events of another type, for another
// provider, without a state or for another attempt are ignored.
func (c *Coordinator) HandleCompletion(evt CallbackEvent) {
	if evt.Type != EventTypeCallback || evt.State == "" {
		return
	}
	if evt.Provider != "" && NormalizeProvider(evt.Provider) != NormalizeProvider(c.provider) {
		return
	}

	c.mu.Lock()
	if !c.state.live() || evt.State != c.nonce {
		c.mu.Unlock()
		return
	}

	if evt.Success {
		c.providers.add(c.provider)
		c.closeWindowLocked()
		c.state, c.err = StateCompleted, nil
		c.mu.Unlock()
		c.logger.Info("provider connected")
		c.notify(StateCompleted, nil)
		return
	}

	err := ErrCallbackFailed
	if evt.Error != "" {
		err = fmt.Errorf("%w: %s", ErrCallbackFailed, evt.Error)
	}
	c.closeWindowLocked()
	c.state, c.err = StateFailed, err
	c.mu.Unlock()
	c.logger.Warn("provider reported failure", "error", err)
	c.notify(StateFailed, err)
}

// Cancel abandons a live attempt and closes its window
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	if !c.state.live() {
		c.mu.Unlock()
		return
	}
	c.closeWindowLocked()
	c.state, c.err = StateCancelled, nil
	c.mu.Unlock()
	c.notify(StateCancelled, nil)
}

// Attach subscribes the coordinator to bus and returns the detach func
func (c *Coordinator) Attach(bus *CallbackBus) func() {
	return bus.Subscribe(c.HandleCompletion)
}

// advance moves from one state to the next if nothing else moved it first
func (c *Coordinator) advance(attempt int, from, to State) bool {
	c.mu.Lock()
	if c.attempt != attempt || c.state != from {
		c.mu.Unlock()
		return false
	}
	c.state = to
	c.mu.Unlock()
	c.notify(to, nil)
	return true
}

func (c *Coordinator) closeWindowLocked() {
	if c.window == nil {
		return
	}
	if err := c.window.Close(); err != nil {
		c.logger.Debug("closing window", "error", err)
	}
	c.window = nil
}

func (c *Coordinator) notify(s State, err error) {
	if c.onChange != nil {
		c.onChange(s, err)
	}
}
