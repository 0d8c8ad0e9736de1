/*
Package webglue connects browser (or Go) clients with functions and events of a Go server.
The server publishes what it offers, the client discovers it and builds callable proxies
and event hooks from the discovery. There is no schema shared at build time.

# Basics

A Module contributes APIs, events, call checks, event filters and resource directories.
An API is a named set of functions, an event is an EventSlot which can be emitted
from anywhere in the server. Events may be nested in namespaces, the namespace "chat"
with the event "said" is hooked by clients as "onChatSaid".

The wire protocol runs over any message based transport. After a JSON handshake
the parties exchange emit and ack messages, either as JSON (transfer format "Text")
or MessagePack ("Binary"). The client sends "discover" with its protocol version and
gets the names of all functions and events. A "call" names the API, the function and the
arguments and is answered with exactly one of a result or an error. Events are pushed
with "event" messages to every connection all event filters of the modules allow.

# Server

NewServer creates a Server from the Modules option. Serve serves a single Connection,
MapHTTP maps the websocket endpoint to a path of a MappableRouter. See the router
package for adapters of chi, gorilla/mux and httprouter.
App bundles a Server, the embedded browser client and the resources of the modules
into one http.Handler, which is what most applications want:

	app, err := webglue.NewApp(ctx, webglue.Config{Modules: modules})
	if err != nil {
		return err
	}
	return app.ListenAndServe()

Functions get their arguments positionally. A first parameter of type context.Context
and a *ConnectionState parameter are provided by the server and not sent by the client.
Missing arguments are zero values, surplus arguments are an error unless the function is variadic.
A function may return nothing, a value, several values or an error as last result.

# Client

NewClient creates a Client with a fixed Connection or a connector, which is used to
reconnect when the connection was lost. After Start the client is discovered and
Call, Invoke, API and Hook can be used. Hooks dispatch events to handlers attached to targets.
All handlers run on one goroutine of the client, in the order the events were received.
*/
package webglue
