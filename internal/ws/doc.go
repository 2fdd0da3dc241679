// Package ws streams delivery status to WebSocket subscribers.
//
// Hub.Run(ctx) broadcasts on every tick until ctx is cancelled, then closes
// all connections. Hub.ServeHTTP upgrades a request, sends the current status
// at once and keeps the client subscribed. The agent mounts it at /ws/stream.
//
// Message format:
//
//	{
//	  "event": "status",
//	  "data":  { "queue": {...}, "outcomes": {...}, "recent": [...], "generated_at": "..." }
//	}
//
// All origins are accepted; restrict them at the reverse proxy.
package ws
