// Package ws implements the WebSocket hub for the healthwatch server.
//
// Hub manages a set of connected clients and broadcasts the fleet summary
// (live machines with their current risk scores) to all of them on a
// configurable interval. Risk is recomputed from the alert store on every
// tick; nothing is cached between broadcasts.
//
// New(deps, interval) creates a Hub.
// Hub.Run(ctx) starts the broadcast ticker and blocks until ctx is
// cancelled, then closes all active connections.
// Hub.ServeHTTP upgrades an HTTP connection to WebSocket, sends the current
// summary immediately on connect, then streams updates on each tick.
//
// Message format sent to clients:
//
//	{
//	  "event": "fleet",
//	  "data":  { "machines": [ /* GET /api/v1/machines entries */ ], "generatedAt": "..." }
//	}
//
// The upgrader accepts all origins. Apply CORS restrictions at the reverse
// proxy level. The server mounts the hub at /ws/stream.
package ws
