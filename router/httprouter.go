package router

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/philippseith/webglue"
)

// WithHttpRouter is a webglue.MappableRouter factory for webglue.Server.MapHTTP
// which converts a httprouter.Router to a webglue.MappableRouter.
// Websocket upgrades are GET requests, so only GET is routed.
func WithHttpRouter(r *httprouter.Router) func() webglue.MappableRouter {
	return func() webglue.MappableRouter {
		return &julienRouter{r: r}
	}
}

type julienRouter struct {
	r *httprouter.Router
}

func (j *julienRouter) HandleFunc(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	j.r.HandlerFunc(http.MethodGet, path, handler)
}

func (j *julienRouter) Handle(pattern string, handler http.Handler) {
	j.r.Handler(http.MethodGet, pattern, handler)
}
