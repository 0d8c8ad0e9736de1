package router

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/philippseith/webglue"
)

// WithGorillaRouter is a webglue.MappableRouter factory for webglue.Server.MapHTTP
// which converts a mux.Router to a webglue.MappableRouter.
// Websocket upgrades are GET requests, so only GET is routed.
func WithGorillaRouter(r *mux.Router) func() webglue.MappableRouter {
	return func() webglue.MappableRouter {
		return &gorillaRouter{r: r}
	}
}

type gorillaRouter struct {
	r *mux.Router
}

func (g *gorillaRouter) Handle(path string, handler http.Handler) {
	g.r.Handle(path, handler).Methods(http.MethodGet)
}

func (g *gorillaRouter) HandleFunc(path string, handleFunc func(w http.ResponseWriter, r *http.Request)) {
	g.r.HandleFunc(path, handleFunc).Methods(http.MethodGet)
}
