package webglue

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/philippseith/webglue/resource"
)

// DefaultHTTPPort is used when Config.HTTPPort is 0
const DefaultHTTPPort = 8080

// DefaultPath is the default websocket endpoint of an App
const DefaultPath = "/webglue"

// Config configures an App
type Config struct {
	Modules []Module
	// HTTPPort defaults to DefaultHTTPPort
	HTTPPort int
	// Host is the address to listen on. Empty listens on all interfaces.
	Host string
	// Minify inlines the minified css and js into the served document
	Minify bool
	// Path of the websocket endpoint, defaults to DefaultPath. The browser client connects to DefaultPath.
	Path string
	// MetricsPath exposes Prometheus metrics of the server, e.g. "/metrics". Empty disables metrics.
	MetricsPath string
	// Watch rebuilds the served document when files in the resource directories change
	Watch bool
	// Resources are additional resource directories, besides those of the modules
	Resources []string
}

// App serves the modules, the browser client and the resources of the modules over HTTP
type App struct {
	config     Config
	server     *server
	resources  *resource.Provider
	router     chi.Router
	httpServer *http.Server
	info       StructuredLogger
}

// NewApp builds the Server from config.Modules and the resource provider from the resource
// directories of the modules. options are passed to NewServer.
// Missing resource directories and failed minification are errors.
func NewApp(ctx context.Context, config Config, options ...func(Party) error) (*App, error) {
	if config.HTTPPort == 0 {
		config.HTTPPort = DefaultHTTPPort
	}
	if config.Path == "" {
		config.Path = DefaultPath
	}
	var registry *prometheus.Registry
	serverOptions := []func(Party) error{Modules(config.Modules...)}
	if config.MetricsPath != "" {
		registry = prometheus.NewRegistry()
		serverOptions = append(serverOptions, WithMetrics(NewMetrics(registry, "")))
	}
	srv, err := NewServer(ctx, append(serverOptions, options...)...)
	if err != nil {
		return nil, err
	}
	s := srv.(*server)
	info, _ := s.loggers()
	info = log.WithPrefix(info, "ts", log.DefaultTimestampUTC, "class", "App")

	dirs := append(s.Resources(), config.Resources...)
	resources, err := resource.New(dirs,
		resource.Minify(config.Minify),
		resource.Logger(log.WithPrefix(info, "component", "resources")))
	if err != nil {
		return nil, fmt.Errorf("resources: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	s.MapHTTP(func() MappableRouter { return chiMappable{r} }, config.Path)
	if registry != nil {
		r.Handle(config.MetricsPath, promhttp.HandlerFor(registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	}
	r.Handle("/*", resources.Handler())

	return &App{
		config:    config,
		server:    s,
		resources: resources,
		router:    r,
		httpServer: &http.Server{
			Addr:    net.JoinHostPort(config.Host, strconv.Itoa(config.HTTPPort)),
			Handler: r,
		},
		info: info,
	}, nil
}

type chiMappable struct {
	r chi.Router
}

func (c chiMappable) HandleFunc(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	c.r.Get(path, handler)
}

func (c chiMappable) Handle(path string, handler http.Handler) {
	c.r.Method(http.MethodGet, path, handler)
}

// Server returns the Server of the App
func (a *App) Server() Server {
	return a.server
}

// Resources returns the resource provider of the App
func (a *App) Resources() *resource.Provider {
	return a.resources
}

// Handler returns the http.Handler serving the websocket endpoint, the metrics and the resources
func (a *App) Handler() http.Handler {
	return a.router
}

// URL is the address the application is announced with
func (a *App) URL() string {
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	if a.config.HTTPPort == 80 {
		return fmt.Sprintf("http://%s.local", host)
	}
	return fmt.Sprintf("http://%s.local:%d", host, a.config.HTTPPort)
}

// ListenAndServe listens on the configured port and serves until the context of the
// App is canceled or the HTTP server fails.
func (a *App) ListenAndServe() error {
	listener, err := net.Listen("tcp", a.httpServer.Addr)
	if err != nil {
		return err
	}
	return a.Serve(listener)
}

// Serve serves on listener until the context of the App is canceled or the HTTP server fails.
func (a *App) Serve(listener net.Listener) error {
	g, ctx := errgroup.WithContext(a.server.context())
	g.Go(func() error {
		_ = a.info.Log(evt, "listen", "addr", listener.Addr().String())
		if err := a.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if a.config.Watch {
		g.Go(func() error {
			return a.resources.Watch(ctx)
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		return a.httpServer.Shutdown(context.Background())
	})
	_ = a.info.Log(evt, "start", msg, "Application available at "+a.URL())
	return g.Wait()
}
