package entities

import (
	"time"
)

// Binding represents the unique association between a chat identity and a
// game account handle.
type Binding struct {
	Identity           string    // Opaque chat identity (e.g. Discord user ID)
	Handle             string    // Game account handle
	ExternalAccountRef string    // Account reference reported by the game API
	BoundAt            time.Time // When the binding was created
	PreviousHandle     string    // Audit note: handle replaced by a rebind, if any
	PreviousBoundAt    time.Time // Audit note: when the replaced handle was bound
}
