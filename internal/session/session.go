package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rohankatakam/pipepilot/internal/confirm"
	"github.com/rohankatakam/pipepilot/internal/directive"
	perrors "github.com/rohankatakam/pipepilot/internal/errors"
	"github.com/rohankatakam/pipepilot/internal/oauth"
)

// Config wires a Session
type Config struct {
	// ID defaults to a random UUID
	ID     string
	UserID string

	Sender    confirm.Sender
	Navigator confirm.Navigator

	// Opener and Requester enable account connection; without them OAuth
	// directives render as generic confirmations
	Opener    oauth.WindowOpener
	Requester oauth.AuthURLRequester
	Bus       *oauth.CallbackBus

	OnComplete func(directive.Directive, confirm.Decision)
}

// RenderedTurn is one turn as the user sees it: narrative text plus the
// confirmations it still asks for
type RenderedTurn struct {
	TurnID    string
	Role      directive.Role
	Narrative string
	Views     []confirm.View
}

// Session owns one conversation with the agent
type Session struct {
	id     string
	userID string

	providers  *oauth.ProviderSet
	bus        *oauth.CallbackBus
	sender     confirm.Sender
	dispatcher *confirm.Dispatcher
	renderer   *confirm.Renderer
	logger     *slog.Logger

	mu      sync.Mutex
	history []RenderedTurn
}

func New(cfg Config) *Session {
	id := cfg.ID
	if id == "" {
		id = uuid.NewString()
	}
	bus := cfg.Bus
	if bus == nil {
		bus = oauth.NewCallbackBus()
	}

	s := &Session{
		id:         id,
		userID:     cfg.UserID,
		providers:  oauth.NewProviderSet(),
		bus:        bus,
		sender:     cfg.Sender,
		dispatcher: confirm.NewDispatcher(cfg.Sender),
		logger:     slog.Default().With("component", "session", "session", id),
	}

	var oauthDeps *confirm.OAuthDeps
	if cfg.Opener != nil && cfg.Requester != nil {
		oauthDeps = &confirm.OAuthDeps{
			Opener:    cfg.Opener,
			Requester: cfg.Requester,
			Providers: s.providers,
			Bus:       bus,
			UserID:    cfg.UserID,
		}
	}

	s.renderer = confirm.NewRenderer(confirm.RendererConfig{
		Dispatcher: s.dispatcher,
		Navigator:  cfg.Navigator,
		OAuth:      oauthDeps,
		OnComplete: func(d directive.Directive, decision confirm.Decision) {
			s.logger.Info("directive completed", "directive", d.ID, "category", d.Category, "decision", decision)
			if cfg.OnComplete != nil {
				cfg.OnComplete(d, decision)
			}
		},
	})
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) UserID() string { return s.userID }

// Bus is where OAuth completion events for this session are published
func (s *Session) Bus() *oauth.CallbackBus { return s.bus }

// Ingest renders one turn. Assistant turns are split into narrative and
// directives, embedded and legacy alike, and every open directive gets a
// mounted view. Re-ingesting a turn returns the same views and never
// resurrects completed ones.
func (s *Session) Ingest(turn directive.ChatTurn) RenderedTurn {
	narrative, found := directive.ExtractTurn(turn)
	rt := RenderedTurn{TurnID: turn.ID, Role: turn.Role, Narrative: narrative}

	if turn.Role == directive.RoleAssistant {
		found = append(found, directive.FromLegacy(turn)...)
	}

	for _, d := range found {
		v, fresh := s.renderer.Mount(d)
		if v == nil {
			continue
		}
		if fresh {
			s.logger.Debug("directive mounted",
				"directive", d.ID, "raw_type", d.RawType, "category", d.Category, "source", d.Source)
		}
		rt.Views = append(rt.Views, v)
	}

	s.mu.Lock()
	s.history = append(s.history, rt)
	s.mu.Unlock()
	return rt
}

// Say sends free text to the agent and records it as a user turn
func (s *Session) Say(ctx context.Context, text string) (RenderedTurn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return RenderedTurn{}, perrors.FieldError("message", "nothing to say")
	}
	if s.sender == nil {
		return RenderedTurn{}, perrors.ConfigError("session has no channel")
	}
	if err := s.sender.Send(ctx, confirm.OutboundMessage{Message: text}); err != nil {
		return RenderedTurn{}, err
	}

	rt := RenderedTurn{
		TurnID:    "local-" + time.Now().UTC().Format("20060102T150405.000"),
		Role:      directive.RoleUser,
		Narrative: text,
	}
	s.mu.Lock()
	s.history = append(s.history, rt)
	s.mu.Unlock()
	return rt, nil
}

// Pending lists every view still waiting for a decision, oldest first
func (s *Session) Pending() []confirm.View { return s.renderer.Mounted() }

// Lookup finds a live view by directive id
func (s *Session) Lookup(id string) (confirm.View, bool) { return s.renderer.Lookup(id) }

// Status reports where a directive is in its lifecycle
func (s *Session) Status(id string) directive.Status { return s.dispatcher.Status(id) }

// Providers is a snapshot of the accounts connected in this session
func (s *Session) Providers() []string { return s.providers.Snapshot() }

// History returns the rendered turns in arrival order
func (s *Session) History() []RenderedTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RenderedTurn(nil), s.history...)
}

// Close tears down every open view
func (s *Session) Close() {
	s.renderer.UnmountAll()
}
