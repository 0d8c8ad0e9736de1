/*
Package router contains webglue.MappableRouter factories for some popular http routers.
The factories are used with webglue.Server.MapHTTP to mount the websocket endpoint
on the router which also serves the application.

All factories map the endpoint for GET only. The websocket upgrade is a GET request
and the endpoint has nothing to offer to other methods, it answers plain requests
with 400 Bad Request. Other methods on the path are left to the router.
*/
package router
