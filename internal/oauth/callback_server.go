package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	windowPath   = "/oauth/window"
	callbackPath = "/oauth/callback"

	defaultHoldTimeout = 2 * time.Minute
)

// CallbackServer is the local HTTP endpoint behind the OAuth flow. It
// serves the placeholder pages BrowserOpener opens and receives the
// provider's completion redirect, which it publishes on the bus only when
// its state names a window that is still open.
type CallbackServer struct {
	echo   *echo.Echo
	bus    *CallbackBus
	addr   string
	logger *slog.Logger

	// HoldTimeout bounds how long a placeholder page waits for a redirect
	HoldTimeout time.Duration

	mu      sync.Mutex
	ln      net.Listener
	windows map[string]*pendingWindow
}

// NewCallbackServer creates a server that will listen on addr, e.g.
// "127.0.0.1:0" for any free port
func NewCallbackServer(bus *CallbackBus, addr string) *CallbackServer {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &CallbackServer{
		echo:        e,
		bus:         bus,
		addr:        addr,
		logger:      slog.Default().With("component", "oauth_server"),
		HoldTimeout: defaultHoldTimeout,
		windows:     make(map[string]*pendingWindow),
	}
	s.setupRoutes()
	return s
}

func (s *CallbackServer) setupRoutes() {
	s.echo.GET(windowPath+"/:id", s.serveWindow)
	s.echo.GET(callbackPath, s.handleCallback)
	s.echo.POST(callbackPath, s.handleCallback)
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
}

// Handler exposes the routes, mainly for tests
func (s *CallbackServer) Handler() http.Handler { return s.echo }

// Listen binds the address so URL is known before Serve runs
func (s *CallbackServer) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.echo.Listener = ln
	return nil
}

// URL is the base URL of the bound server
func (s *CallbackServer) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return "http://" + s.ln.Addr().String()
}

// CallbackURL is where the backend should send the provider's redirect
func (s *CallbackServer) CallbackURL() string {
	return s.URL() + callbackPath
}

// Serve runs until ctx is cancelled, then shuts down gracefully
func (s *CallbackServer) Serve(ctx context.Context) error {
	if s.URL() == "" {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start("")
	}()
	s.logger.Info("oauth callback server listening", "url", s.URL())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.closeAllWindows()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down oauth server: %w", err)
	}
	return nil
}

// pendingWindow is a placeholder page waiting to learn where to go
type pendingWindow struct {
	id     string
	server *CallbackServer

	once   sync.Once
	ready  chan struct{}
	target string
	closed bool
}

func (s *CallbackServer) newWindow() *pendingWindow {
	w := &pendingWindow{
		id:     uuid.NewString(),
		server: s,
		ready:  make(chan struct{}),
	}
	s.mu.Lock()
	s.windows[w.id] = w
	s.mu.Unlock()
	return w
}

func (s *CallbackServer) lookupWindow(id string) (*pendingWindow, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[id]
	return w, ok
}

func (s *CallbackServer) dropWindow(id string) {
	s.mu.Lock()
	delete(s.windows, id)
	s.mu.Unlock()
}

func (s *CallbackServer) closeAllWindows() {
	s.mu.Lock()
	ws := make([]*pendingWindow, 0, len(s.windows))
	for _, w := range s.windows {
		ws = append(ws, w)
	}
	s.mu.Unlock()
	for _, w := range ws {
		_ = w.Close()
	}
}

var errWindowResolved = errors.New("window already redirected or closed")

func (w *pendingWindow) Redirect(url string) error {
	err := errWindowResolved
	w.once.Do(func() {
		w.target = url
		close(w.ready)
		err = nil
	})
	return err
}

func (w *pendingWindow) Close() error {
	w.once.Do(func() {
		w.closed = true
		close(w.ready)
	})
	w.server.dropWindow(w.id)
	return nil
}

// ID is the attempt state the completion callback has to carry
func (w *pendingWindow) ID() string { return w.id }

func (w *pendingWindow) path() string {
	return windowPath + "/" + w.id
}

const (
	waitingPage = `<!doctype html><html><head><title>Connecting…</title></head><body><p>Connecting…</p></body></html>`
	closedPage  = `<!doctype html><html><head><title>Closed</title></head><body><p>This authorization was cancelled. You can close this window.</p></body></html>`
	donePage    = `<!doctype html><html><head><title>Connected</title></head><body><p>Done. You can return to the terminal and close this window.</p></body></html>`
)

// serveWindow holds the request until the coordinator redirects or closes
// the window
func (s *CallbackServer) serveWindow(c echo.Context) error {
	w, ok := s.lookupWindow(c.Param("id"))
	if !ok {
		return c.HTML(http.StatusNotFound, closedPage)
	}

	hold := s.HoldTimeout
	if hold <= 0 {
		hold = defaultHoldTimeout
	}
	timer := time.NewTimer(hold)
	defer timer.Stop()

	select {
	case <-w.ready:
	case <-c.Request().Context().Done():
		return nil
	case <-timer.C:
		return c.HTML(http.StatusGatewayTimeout, waitingPage)
	}

	// the window stays registered until its attempt ends, so the
	// callback can still be matched to it
	if w.closed {
		return c.HTML(http.StatusOK, closedPage)
	}
	return c.Redirect(http.StatusFound, w.target)
}

type callbackParams struct {
	Type     string `json:"type" query:"type" form:"type"`
	Success  bool   `json:"success" query:"success" form:"success"`
	Provider string `json:"provider" query:"provider" form:"provider"`
	State    string `json:"state" query:"state" form:"state"`
	Error    string `json:"error" query:"error" form:"error"`
}

func (s *CallbackServer) handleCallback(c echo.Context) error {
	var p callbackParams
	if err := c.Bind(&p); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid callback payload"})
	}
	if p.State == "" {
		s.logger.Warn("oauth callback without state dropped")
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing state"})
	}
	if _, ok := s.lookupWindow(p.State); !ok {
		s.logger.Warn("oauth callback for unknown attempt dropped")
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unknown state"})
	}

	evt := CallbackEvent{
		Type:     p.Type,
		Success:  p.Success,
		Provider: p.Provider,
		State:    p.State,
		Error:    p.Error,
	}
	if evt.Type == "" {
		evt.Type = EventTypeCallback
	}
	s.logger.Info("oauth callback received", "provider", evt.Provider, "success", evt.Success)
	s.bus.Publish(evt)

	if c.Request().Method == http.MethodPost {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}
	return c.HTML(http.StatusOK, donePage)
}
