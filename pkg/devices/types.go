package devices

import "time"

// Device is a physical unit installed at a venue. Power, lock, and
// temperature state are mutated by the suspension engine when the owning
// principal is suspended, and restored from snapshots on resume.
type Device struct {
	ID               int64     `json:"id"`
	VenueID          *int64    `json:"venue_id,omitempty"`
	OwnerPrincipalID int64     `json:"owner_principal_id"`
	Name             string    `json:"name"`
	PowerOn          bool      `json:"power_on"`
	Locked           bool      `json:"locked"`
	TargetTemp       float64   `json:"target_temp"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
