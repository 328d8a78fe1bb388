package principals

import (
	"database/sql"
	"time"
)

// Kind classifies a principal within the administrative hierarchy.
type Kind string

const (
	KindSuperAdmin Kind = "superadmin"
	KindAdmin      Kind = "admin"
	KindManager    Kind = "manager"
)

// Status represents a principal's stored status. Note that a principal
// with Status == StatusActive may still be *effectively* suspended if an
// ancestor is suspended; see Hierarchy.IsEffectivelySuspended.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// Principal is an administrative identity. A superadmin owns admins, an
// admin owns managers; each principal may additionally own devices
// directly.
type Principal struct {
	ID            int64      `json:"id"`
	Kind          Kind       `json:"kind"`
	Email         string     `json:"email"`
	DisplayName   string     `json:"display_name"`
	SuperiorID    *int64     `json:"superior_id,omitempty"`
	Status        Status     `json:"status"`
	SuspendedAt   *time.Time `json:"suspended_at,omitempty"`
	SuspendedBy   *int64     `json:"suspended_by,omitempty"`
	SuspendReason *string    `json:"suspend_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// nullableTime converts sql.NullTime to *time.Time.
func nullableTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}

// nullableInt64 converts sql.NullInt64 to *int64.
func nullableInt64(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	return &n.Int64
}

// nullableString converts sql.NullString to *string.
func nullableString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}
