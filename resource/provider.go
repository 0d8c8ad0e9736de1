// Package resource provides the document and the static files served to the browser.
//
// The document is an HTML template in which the placeholder {webglueResources} is
// replaced by references to all css and js files of the resource directories, or
// with their minified content when Minify is enabled.
package resource

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/go-kit/log"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/js"
	"go.uber.org/multierr"
)

// Placeholder is replaced by the resource references in the document template
const Placeholder = "{webglueResources}"

//go:embed index.html client
var assets embed.FS

// Provider serves the document and the static files of its directories
type Provider struct {
	dirs     []string
	sources  []fs.FS
	template string
	minify   bool
	logger   log.Logger

	mx       sync.RWMutex
	document string
}

// Option configures a Provider
type Option func(*Provider) error

// Minify inlines minified css and js into the document instead of referencing the files
func Minify(enable bool) Option {
	return func(p *Provider) error {
		p.minify = enable
		return nil
	}
}

// Template replaces the embedded index.html. It must contain Placeholder.
func Template(template string) Option {
	return func(p *Provider) error {
		if !strings.Contains(template, Placeholder) {
			return fmt.Errorf("template does not contain %v", Placeholder)
		}
		p.template = template
		return nil
	}
}

// Logger sets the go-kit logger
func Logger(logger log.Logger) Option {
	return func(p *Provider) error {
		p.logger = logger
		return nil
	}
}

// New creates a Provider for dirs. The embedded browser client comes first, so
// files in dirs can not replace it. All missing directories are reported together.
func New(dirs []string, options ...Option) (*Provider, error) {
	client, err := fs.Sub(assets, "client")
	if err != nil {
		return nil, err
	}
	index, err := assets.ReadFile("index.html")
	if err != nil {
		return nil, err
	}
	p := &Provider{
		dirs:     dirs,
		sources:  []fs.FS{client},
		template: string(index),
		logger:   log.NewNopLogger(),
	}
	for _, option := range options {
		if err := option(p); err != nil {
			return nil, err
		}
	}
	var dirErr error
	for _, dir := range dirs {
		info, err := os.Stat(dir)
		if err != nil {
			dirErr = multierr.Append(dirErr, fmt.Errorf("resource directory: %w", err))
			continue
		}
		if !info.IsDir() {
			dirErr = multierr.Append(dirErr, fmt.Errorf("resource directory %v is not a directory", dir))
			continue
		}
		p.sources = append(p.sources, os.DirFS(dir))
	}
	if dirErr != nil {
		return nil, dirErr
	}
	if err = p.Rebuild(); err != nil {
		return nil, err
	}
	return p, nil
}

// Document returns the current document
func (p *Provider) Document() string {
	p.mx.RLock()
	defer p.mx.RUnlock()
	return p.document
}

// Dirs returns the resource directories without the embedded client
func (p *Provider) Dirs() []string {
	return append([]string(nil), p.dirs...)
}

// Rebuild reads the directories again and replaces the document.
// On error, the previous document is kept.
func (p *Provider) Rebuild() error {
	document, err := p.buildDocument()
	if err != nil {
		return err
	}
	p.mx.Lock()
	p.document = document
	p.mx.Unlock()
	_ = p.logger.Log("event", "document built", "minify", p.minify, "length", len(document))
	return nil
}

type resourceFile struct {
	name   string
	source fs.FS
}

// files lists the files with extension ext of all sources, sorted by name.
// A name found in several sources is taken from the first one.
func (p *Provider) files(ext string) ([]resourceFile, error) {
	seen := make(map[string]bool)
	var files []resourceFile
	for _, source := range p.sources {
		entries, err := fs.ReadDir(source, ".")
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || path.Ext(name) != ext || seen[name] {
				continue
			}
			seen[name] = true
			files = append(files, resourceFile{name: name, source: source})
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].name < files[j].name })
	return files, nil
}

func (p *Provider) buildDocument() (string, error) {
	cssFiles, err := p.files(".css")
	if err != nil {
		return "", err
	}
	jsFiles, err := p.files(".js")
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	if p.minify {
		m := minify.New()
		m.AddFunc("text/css", css.Minify)
		m.AddFunc("application/javascript", js.Minify)
		for _, f := range cssFiles {
			content, err := minifyFile(m, "text/css", f)
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&sb, "\t\t<style>%s</style>\n", content)
		}
		for _, f := range jsFiles {
			content, err := minifyFile(m, "application/javascript", f)
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&sb, "\t\t<script type=\"text/javascript\">%s</script>\n", content)
		}
	} else {
		for _, f := range cssFiles {
			fmt.Fprintf(&sb, "\t\t<link href=\"%s\" rel=\"stylesheet\" type=\"text/css\"/>\n", f.name)
		}
		for _, f := range jsFiles {
			fmt.Fprintf(&sb, "\t\t<script src=\"%s\" type=\"text/javascript\"></script>\n", f.name)
		}
	}
	return strings.Replace(p.template, Placeholder, sb.String(), 1), nil
}

func minifyFile(m *minify.M, mediatype string, f resourceFile) (string, error) {
	content, err := fs.ReadFile(f.source, f.name)
	if err != nil {
		return "", err
	}
	minified, err := m.String(mediatype, string(content))
	if err != nil {
		return "", fmt.Errorf("minify %v: %w", f.name, err)
	}
	return minified, nil
}

// Handler serves the static files of all directories, the first directory containing
// a file wins. All other GET requests get the document.
func (p *Provider) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
		if name != "" {
			for _, source := range p.sources {
				if info, err := fs.Stat(source, name); err == nil && !info.IsDir() {
					http.ServeFileFS(w, r, source, name)
					return
				} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
					_ = p.logger.Log("event", "serve static", "file", name, "error", err)
				}
			}
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(p.Document()))
	})
}
