package alerts

import (
	"context"

	"github.com/healthwatch/healthwatch/pkg/types"
)

// EventKind is the alert transition being announced.
type EventKind string

const (
	EventOpened   EventKind = "opened"
	EventResolved EventKind = "resolved"
)

// Event is one alert transition.
type Event struct {
	Kind  EventKind   `json:"event"`
	Alert types.Alert `json:"alert"`
}

// Notifier delivers alert events to an external system.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, ev Event) error
}
