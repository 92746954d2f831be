package oauth

import (
	"context"

	"github.com/pkg/browser"
)

// BrowserOpener opens placeholder windows in the user's browser. Each
// window is a page on the callback server that waits to be redirected.
type BrowserOpener struct {
	Server *CallbackServer
	// OpenURL defaults to opening the system browser
	OpenURL func(url string) error
}

func NewBrowserOpener(server *CallbackServer) *BrowserOpener {
	return &BrowserOpener{Server: server, OpenURL: browser.OpenURL}
}

func (o *BrowserOpener) Open(ctx context.Context) (Window, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w := o.Server.newWindow()
	open := o.OpenURL
	if open == nil {
		open = browser.OpenURL
	}
	if err := open(o.Server.URL() + w.path()); err != nil {
		_ = w.Close()
		return nil, err
	}
	return w, nil
}
