// Package pages routes logical page paths to page descriptors.
//
// A path like "/search?q=cats" names the page "search" with the params {q: cats}.
// The empty path names the page "home". Unknown pages render NotFound.
package pages

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// DefaultPage is the page of an empty path
const DefaultPage = "home"

// MaxRedirects is the number of redirects Goto follows before it gives up
const MaxRedirects = 10

// ErrTooManyRedirects is returned when the checks of the pages redirect in a cycle
var ErrTooManyRedirects = errors.New("too many redirects")

// Params are the query parameters of a path
type Params map[string]string

// Display is the surface pages render into
type Display interface {
	Clear()
	SetTitle(title string)
	Append(content string)
}

// History records the navigation
type History interface {
	Push(path string)
	Replace(path string)
}

// Page describes a page. Check and Title are optional.
type Page struct {
	Title string
	// Check returns a path to redirect to instead of rendering, or "" to render
	Check  func(ctx context.Context, page string, params Params) (string, error)
	Render func(ctx context.Context, display Display, page string, params Params) error
}

// NotFound is rendered for unknown pages
var NotFound = Page{
	Title: "Not found",
	Render: func(_ context.Context, display Display, page string, _ Params) error {
		display.Append(fmt.Sprintf("Page '%s' not found.", page))
		return nil
	},
}

// Router navigates between pages
type Router struct {
	mx       sync.RWMutex
	pages    map[string]Page
	notFound Page
	display  Display
	history  History
}

// New creates a Router which renders into display and records in history.
// history may be nil.
func New(display Display, history History) *Router {
	return &Router{
		pages:    make(map[string]Page),
		notFound: NotFound,
		display:  display,
		history:  history,
	}
}

// Register adds or replaces the page with the name
func (r *Router) Register(name string, page Page) {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.pages[name] = page
}

// SetNotFound replaces the page rendered for unknown pages
func (r *Router) SetNotFound(page Page) {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.notFound = page
}

// Goto navigates to path. With replace, the current history entry is replaced.
// Either the page redirects or it is rendered, never both.
func (r *Router) Goto(ctx context.Context, path string, replace bool) error {
	return r.gotoHop(ctx, path, replace, 0)
}

func (r *Router) gotoHop(ctx context.Context, path string, replace bool, hop int) error {
	if hop > MaxRedirects {
		return fmt.Errorf("goto %v: %w", path, ErrTooManyRedirects)
	}
	if r.history != nil {
		if replace {
			r.history.Replace(path)
		} else {
			r.history.Push(path)
		}
	}
	name, params := ParsePath(path)
	r.mx.RLock()
	page, ok := r.pages[name]
	if !ok {
		page = r.notFound
	}
	r.mx.RUnlock()

	if page.Check != nil {
		redirection, err := page.Check(ctx, name, params)
		if err != nil {
			return fmt.Errorf("check page %v: %w", name, err)
		}
		if redirection != "" {
			return r.gotoHop(ctx, redirection, true, hop+1)
		}
	}
	r.display.Clear()
	title := page.Title
	if title == "" {
		title = name
	}
	r.display.SetTitle(title)
	if page.Render == nil {
		return nil
	}
	if err := page.Render(ctx, r.display, name, params); err != nil {
		return fmt.Errorf("render page %v: %w", name, err)
	}
	return nil
}

// ParsePath splits path into the page name and the query params.
// Only exact key=value pairs are kept, values are unescaped.
func ParsePath(path string) (page string, params Params) {
	params = make(Params)
	page = strings.TrimPrefix(path, "/")
	if qm := strings.IndexByte(page, '?'); qm != -1 {
		for _, pair := range strings.Split(page[qm+1:], "&") {
			kv := strings.Split(pair, "=")
			if len(kv) != 2 {
				continue
			}
			value, err := url.PathUnescape(kv[1])
			if err != nil {
				value = kv[1]
			}
			params[kv[0]] = value
		}
		page = page[:qm]
	}
	if page == "" {
		page = DefaultPage
	}
	return page, params
}
