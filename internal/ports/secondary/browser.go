package secondary

import (
	"context"
	"time"
)

// BrowserLauncher defines the secondary port for starting an automated browser.
type BrowserLauncher interface {
	Launch(ctx context.Context, opts BrowserOptions) (BrowserDriver, error)
}

// BrowserOptions configures a browser launch.
type BrowserOptions struct {
	Visible           bool
	BrowserBin        string
	UserDataDir       string
	NavigationTimeout time.Duration
}

// BrowserDriver is the browser capability the filing engine drives: navigate,
// fill, click, observe, and capture state. Selectors are CSS.
type BrowserDriver interface {
	Navigate(ctx context.Context, url string) error

	// Fill replaces the value of the first element matching selector.
	// Returns ErrElementNotFound when nothing matches.
	Fill(ctx context.Context, selector, value string) error

	// FillByLabel fills the input associated with the label containing text.
	FillByLabel(ctx context.Context, label, value string) (bool, error)

	// ChooseByLabel picks option in the dropdown associated with label.
	ChooseByLabel(ctx context.Context, label, option string) (bool, error)

	// Click clicks the first element matching selector.
	Click(ctx context.Context, selector string) error

	// Page returns the current URL, title, HTML and visible text.
	Page(ctx context.Context) (PageState, error)

	// Snapshot captures the page for diagnostics.
	Snapshot(ctx context.Context) (*PageSnapshot, error)

	ExportSession(ctx context.Context) (*SessionData, error)
	ImportSession(ctx context.Context, data *SessionData) error

	Close() error
}

// PageState is the observable state of the current page.
type PageState struct {
	URL     string
	Title   string
	Content string // HTML
	Text    string // visible text of the body
}

// PageSnapshot is a diagnostic capture of a page.
type PageSnapshot struct {
	URL        string
	Title      string
	HTML       string
	Screenshot []byte // PNG
	CapturedAt time.Time
}

// SessionData is the portable part of an authenticated browser session.
type SessionData struct {
	Origin       string            `json:"origin"`
	Cookies      []Cookie          `json:"cookies"`
	LocalStorage map[string]string `json:"local_storage,omitempty"`
}

// Cookie is a browser cookie.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"` // unix seconds; 0 for session cookies
	HTTPOnly bool    `json:"http_only,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"same_site,omitempty"`
}
