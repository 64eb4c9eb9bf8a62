// Package browser implements the browser-automation ports with go-rod.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/example/ispwatch/internal/ports/secondary"
)

// DefaultNavigationTimeout bounds a single navigation.
const DefaultNavigationTimeout = 60 * time.Second

// Launcher implements secondary.BrowserLauncher with a local Chromium.
type Launcher struct{}

// NewLauncher creates a new rod launcher.
func NewLauncher() *Launcher {
	return &Launcher{}
}

// Launch starts a browser and opens a blank page.
func (l *Launcher) Launch(ctx context.Context, opts secondary.BrowserOptions) (secondary.BrowserDriver, error) {
	lc := launcher.New().Context(ctx).Headless(!opts.Visible)
	if opts.BrowserBin != "" {
		lc = lc.Bin(opts.BrowserBin)
	}
	if opts.UserDataDir != "" {
		lc = lc.UserDataDir(opts.UserDataDir)
	}

	controlURL, err := lc.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		lc.Kill()
		return nil, fmt.Errorf("connect to browser: %w", err)
	}

	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = b.Close()
		lc.Kill()
		return nil, fmt.Errorf("open page: %w", err)
	}

	timeout := opts.NavigationTimeout
	if timeout <= 0 {
		timeout = DefaultNavigationTimeout
	}
	return &Driver{
		launcher:     lc,
		browser:      b,
		page:         page,
		navTimeout:   timeout,
		ownsDataDir:  opts.UserDataDir == "",
		settleOnRead: 5 * time.Second,
	}, nil
}

// Driver implements secondary.BrowserDriver over one rod page.
type Driver struct {
	launcher     *launcher.Launcher
	browser      *rod.Browser
	page         *rod.Page
	navTimeout   time.Duration
	ownsDataDir  bool
	settleOnRead time.Duration
}

// Navigate loads target and waits for the load event.
func (d *Driver) Navigate(ctx context.Context, target string) error {
	p := d.page.Context(ctx).Timeout(d.navTimeout)
	if err := p.Navigate(target); err != nil {
		return fmt.Errorf("navigate to %s: %w", target, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("wait for %s to load: %w", target, err)
	}
	return nil
}

// Fill replaces the value of the first element matching selector.
func (d *Driver) Fill(ctx context.Context, selector, value string) error {
	el, err := d.find(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("select %s: %w", selector, err)
	}
	if err := el.Input(value); err != nil {
		return fmt.Errorf("fill %s: %w", selector, err)
	}
	return nil
}

// FillByLabel fills the control associated with the label containing label.
func (d *Driver) FillByLabel(ctx context.Context, label, value string) (bool, error) {
	return d.evalBool(ctx, fillByLabelJS, label, value)
}

// ChooseByLabel picks option in the dropdown associated with label.
func (d *Driver) ChooseByLabel(ctx context.Context, label, option string) (bool, error) {
	return d.evalBool(ctx, chooseByLabelJS, label, option)
}

// Click clicks the first element matching selector.
func (d *Driver) Click(ctx context.Context, selector string) error {
	el, err := d.find(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

// Page returns the current URL, title, HTML and visible text. It waits
// briefly for any in-flight load so that a page read right after a click is
// settled.
func (d *Driver) Page(ctx context.Context) (secondary.PageState, error) {
	_ = d.page.Context(ctx).Timeout(d.settleOnRead).WaitLoad()

	p := d.page.Context(ctx)
	info, err := p.Info()
	if err != nil {
		return secondary.PageState{}, fmt.Errorf("read page info: %w", err)
	}
	html, err := p.HTML()
	if err != nil {
		return secondary.PageState{}, fmt.Errorf("read page html: %w", err)
	}
	res, err := p.Evaluate(&rod.EvalOptions{
		JS:      `() => document.body ? document.body.innerText : ""`,
		ByValue: true,
	})
	if err != nil {
		return secondary.PageState{}, fmt.Errorf("read page text: %w", err)
	}
	return secondary.PageState{URL: info.URL, Title: info.Title, Content: html, Text: res.Value.Str()}, nil
}

// Snapshot captures the page HTML and a viewport screenshot.
func (d *Driver) Snapshot(ctx context.Context) (*secondary.PageSnapshot, error) {
	state, err := d.Page(ctx)
	if err != nil {
		return nil, err
	}
	png, err := d.page.Context(ctx).Screenshot(false, nil)
	if err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return &secondary.PageSnapshot{
		URL:        state.URL,
		Title:      state.Title,
		HTML:       state.Content,
		Screenshot: png,
		CapturedAt: time.Now().UTC(),
	}, nil
}

// ExportSession returns the cookies and localStorage of the current origin.
func (d *Driver) ExportSession(ctx context.Context) (*secondary.SessionData, error) {
	p := d.page.Context(ctx)
	res, err := proto.NetworkGetCookies{}.Call(p)
	if err != nil {
		return nil, fmt.Errorf("get cookies: %w", err)
	}

	data := &secondary.SessionData{}
	if info, err := p.Info(); err == nil {
		data.Origin = origin(info.URL)
	}
	for _, c := range res.Cookies {
		data.Cookies = append(data.Cookies, secondary.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  float64(c.Expires),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}

	storage, err := p.Evaluate(&rod.EvalOptions{JS: exportStorageJS, ByValue: true, AwaitPromise: true})
	if err == nil && storage != nil && !storage.Value.Nil() {
		items := map[string]string{}
		if json.Unmarshal([]byte(storage.Value.String()), &items) == nil && len(items) > 0 {
			data.LocalStorage = items
		}
	}
	return data, nil
}

// ImportSession installs cookies, then visits the origin to restore
// localStorage.
func (d *Driver) ImportSession(ctx context.Context, data *secondary.SessionData) error {
	if data == nil {
		return nil
	}
	params := make([]*proto.NetworkCookieParam, 0, len(data.Cookies))
	for _, c := range data.Cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  proto.TimeSinceEpoch(c.Expires),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: proto.NetworkCookieSameSite(c.SameSite),
		})
	}
	if len(params) > 0 {
		if err := d.page.Context(ctx).SetCookies(params); err != nil {
			return fmt.Errorf("set cookies: %w", err)
		}
	}

	if len(data.LocalStorage) == 0 || data.Origin == "" {
		return nil
	}
	if err := d.Navigate(ctx, data.Origin); err != nil {
		return err
	}
	encoded, err := json.Marshal(data.LocalStorage)
	if err != nil {
		return fmt.Errorf("encode local storage: %w", err)
	}
	if _, err := d.evalBool(ctx, importStorageJS, string(encoded)); err != nil {
		return fmt.Errorf("restore local storage: %w", err)
	}
	return nil
}

// Close shuts the browser down and removes its temporary profile.
func (d *Driver) Close() error {
	err := d.browser.Close()
	if d.ownsDataDir {
		d.launcher.Cleanup()
	} else {
		d.launcher.Kill()
	}
	return err
}

func (d *Driver) find(ctx context.Context, selector string) (*rod.Element, error) {
	has, el, err := d.page.Context(ctx).Has(selector)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", selector, err)
	}
	if !has {
		return nil, fmt.Errorf("%s: %w", selector, secondary.ErrElementNotFound)
	}
	return el, nil
}

func (d *Driver) evalBool(ctx context.Context, js string, args ...interface{}) (bool, error) {
	res, err := d.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           js,
		JSArgs:       args,
		ByValue:      true,
		AwaitPromise: true,
		UserGesture:  true,
	})
	if err != nil {
		return false, err
	}
	return res.Value.Bool(), nil
}

func origin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// Ensure Launcher and Driver implement the interfaces
var (
	_ secondary.BrowserLauncher = (*Launcher)(nil)
	_ secondary.BrowserDriver   = (*Driver)(nil)
)

// Ensure Driver implements the interface
var _ secondary.BrowserDriver = (*Driver)(nil)
