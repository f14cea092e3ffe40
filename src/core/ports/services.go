package ports

import (
	"context"

	"trackrater/src/core/domain"
)

// ExternalService is the base interface for external service adapters.
type ExternalService interface {
	// Health checks if the external service is reachable.
	Health(ctx context.Context) error
}

// Room is a broadcast audience.
type Room string

const (
	// RoomAll reaches every connected client.
	RoomAll Room = "*"
	// RoomPublic holds every connection, anonymous viewers included.
	RoomPublic Room = "public"
	// RoomPanel holds judges and admins currently viewing the rating panel.
	RoomPanel Room = "panel"
	// RoomRaters holds only connections of judges who joined the rating.
	RoomRaters Room = "raters"
)

// Broadcaster is the real-time transport.
type Broadcaster interface {
	Emit(ctx context.Context, room Room, event string, payload any) error
	EmitTo(ctx context.Context, connID string, event string, payload any) error
	JoinRoom(connID string, room Room)
	LeaveRoom(connID string, room Room)
}

// Publisher mirrors broadcasts to out-of-process consumers (bots, widgets).
type Publisher interface {
	ExternalService
	Publish(ctx context.Context, room Room, event string, payload any) error
}

// BroadcastObserver records the outcome of every emitted event.
type BroadcastObserver interface {
	ObserveBroadcast(room Room, event string, err error)
}

// IdentityProvider resolves a bearer credential to the caller's identity.
type IdentityProvider interface {
	Identify(ctx context.Context, token string) (domain.Identity, error)
}
