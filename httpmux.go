package webglue

import (
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/teivah/onecontext"
)

// MappableRouter encapsulates the methods used by server.MapHTTP to configure the
// handler of the websocket endpoint. See also WithHTTPServeMux and the router package.
type MappableRouter interface {
	HandleFunc(string, func(w http.ResponseWriter, r *http.Request))
	Handle(string, http.Handler)
}

// WithHTTPServeMux is a MappableRouter factory for MapHTTP which converts a
// http.ServeMux to a MappableRouter.
func WithHTTPServeMux(serveMux *http.ServeMux) func() MappableRouter {
	return func() MappableRouter {
		return serveMux
	}
}

// MapHTTP maps the websocket endpoint to path
func (s *server) MapHTTP(routerFactory func() MappableRouter, path string) {
	s.serving.Store(s.ctx.Err() == nil)
	routerFactory().Handle(path, newHTTPMux(s))
}

type httpMux struct {
	server *server
}

func newHTTPMux(server *server) *httpMux {
	return &httpMux{server: server}
}

func (h *httpMux) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodGet || !isWebsocketUpgrade(request) {
		writer.WriteHeader(http.StatusBadRequest)
		return
	}
	h.handleWebsocket(writer, request)
}

func isWebsocketUpgrade(request *http.Request) bool {
	for _, connHead := range strings.Split(request.Header.Get("Connection"), ",") {
		if strings.EqualFold(strings.TrimSpace(connHead), "upgrade") {
			return strings.EqualFold(request.Header.Get("Upgrade"), "websocket")
		}
	}
	return false
}

func (h *httpMux) handleWebsocket(writer http.ResponseWriter, request *http.Request) {
	accOptions := &websocket.AcceptOptions{
		CompressionMode:    websocket.CompressionContextTakeover,
		InsecureSkipVerify: h.server.config.insecureSkipVerify,
		OriginPatterns:     h.server.config.originPatterns,
	}
	websocketConn, err := websocket.Accept(writer, request, accOptions)
	if err != nil {
		_, debug := h.server.loggers()
		_ = debug.Log(evt, "handleWebsocket", msg, "error accepting websockets", "error", err)
		// don't need to write an error header here as websocket.Accept has already used http.Error
		return
	}
	websocketConn.SetReadLimit(int64(h.server.config.maximumReceiveMessageSize))
	ctx, cancel := onecontext.Merge(h.server.context(), request.Context())
	defer cancel()
	err = h.server.Serve(newWebSocketConnection(ctx, newConnectionID(), websocketConn))
	if err != nil {
		_ = websocketConn.Close(websocket.StatusInternalError, err.Error())
		return
	}
	_ = websocketConn.Close(websocket.StatusNormalClosure, "")
}
