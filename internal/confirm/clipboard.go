package confirm

import (
	"github.com/atotto/clipboard"
	"github.com/pkg/browser"
)

// Clipboard receives copied payloads
type Clipboard interface {
	WriteAll(text string) error
}

// Navigator opens a URL outside the terminal
type Navigator interface {
	OpenURL(url string) error
}

// SystemClipboard writes to the OS clipboard
type SystemClipboard struct{}

func (SystemClipboard) WriteAll(text string) error {
	return clipboard.WriteAll(text)
}

// Available reports whether the platform has a clipboard utility
func (SystemClipboard) Available() bool {
	return !clipboard.Unsupported
}

// SystemBrowser opens URLs in the user's default browser
type SystemBrowser struct{}

func (SystemBrowser) OpenURL(url string) error {
	return browser.OpenURL(url)
}
