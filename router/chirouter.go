package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/philippseith/webglue"
)

// WithChiRouter is a webglue.MappableRouter factory for webglue.Server.MapHTTP
// which converts a chi.Router to a webglue.MappableRouter.
// Websocket upgrades are GET requests, so only GET is routed.
func WithChiRouter(r chi.Router) func() webglue.MappableRouter {
	return func() webglue.MappableRouter {
		return &chiRouter{r: r}
	}
}

type chiRouter struct {
	r chi.Router
}

func (c *chiRouter) HandleFunc(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	c.r.Get(path, handler)
}

func (c *chiRouter) Handle(pattern string, handler http.Handler) {
	c.r.Method(http.MethodGet, pattern, handler)
}
