package contracts

import "context"

// Registry owns the per-process map of authenticated users to live socket
// handles. It is mutated only by its owning gateway instance; the fan-out
// channel is the only cross-instance coordination mechanism.
type Registry interface {
	// Register adds an authenticated client, enforcing the per-user
	// connection cap. Existing connections are untouched on rejection.
	Register(c Client) error
	// Unregister removes the client from its user's connection set.
	Unregister(c Client)
	// ConnectionsFor returns the live connections held locally for a user.
	// An empty result is expected for users connected to other instances.
	ConnectionsFor(userID string) []Client
	// SendToUser pushes a frame to every local connection of one user.
	SendToUser(ctx context.Context, userID string, data []byte)
	// CloseAll notifies and closes every registered connection, used on
	// graceful shutdown.
	CloseAll(notify []byte)
}

// Client is the minimal surface the registry and dispatcher need to talk to
// an individual WebSocket connection.
type Client interface {
	UserID() string
	Send(ctx context.Context, data []byte) error
	// Notify writes the frame to the socket synchronously, bypassing the
	// buffered pump. Used when the frame must be on the wire before the
	// connection is torn down.
	Notify(data []byte)
	Close()
}
