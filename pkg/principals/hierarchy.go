package principals

import (
	"context"
	"database/sql"
	"fmt"
)

// Hierarchy resolves ownership edges between principals. It is the read
// path behind every authorization decision and behind the revocation
// cascade's descendant fan-out.
//
// Effective suspension is always recomputed from live rows. Nothing here
// is cached or denormalized: a cached "suspended" bit is exactly the kind
// of state that drifts when a cascade is interrupted halfway.
type Hierarchy struct {
	db *sql.DB
}

// NewHierarchy creates a hierarchy resolver.
func NewHierarchy(db *sql.DB) *Hierarchy {
	return &Hierarchy{db: db}
}

// Descendants returns the IDs of every principal transitively owned by
// the given principal, breadth-first, excluding the principal itself.
// The ownership graph is expected to be a tree; the visited set makes
// the traversal terminate even if a data-integrity violation ever
// introduces a cycle.
func (h *Hierarchy) Descendants(ctx context.Context, principalID int64) ([]int64, error) {
	visited := map[int64]bool{principalID: true}
	frontier := []int64{principalID}
	var out []int64

	for len(frontier) > 0 {
		current := frontier[0]
		frontier = frontier[1:]

		children, err := h.directSubordinates(ctx, current)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			if visited[child] {
				continue
			}
			visited[child] = true
			out = append(out, child)
			frontier = append(frontier, child)
		}
	}

	return out, nil
}

// IsEffectivelySuspended walks the ancestor chain from principalID to the
// root and reports whether the principal itself or any ancestor is
// suspended. Returns ErrNotFound if the principal does not exist.
func (h *Hierarchy) IsEffectivelySuspended(ctx context.Context, principalID int64) (bool, error) {
	visited := make(map[int64]bool)
	current := principalID

	for {
		if visited[current] {
			// Cycle in superior edges. Fail closed: a principal whose
			// ancestry cannot be resolved must not authenticate.
			return true, fmt.Errorf("cycle detected in principal hierarchy at id %d", current)
		}
		visited[current] = true

		status, superiorID, err := h.statusAndSuperior(ctx, current)
		if err == sql.ErrNoRows {
			if current == principalID {
				return false, ErrNotFound
			}
			// Dangling superior edge: treat the chain as ended.
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("failed to load principal %d: %w", current, err)
		}

		if status == StatusSuspended {
			return true, nil
		}
		if superiorID == nil {
			return false, nil
		}
		current = *superiorID
	}
}

func (h *Hierarchy) directSubordinates(ctx context.Context, principalID int64) ([]int64, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT id FROM principals WHERE superior_id = $1 ORDER BY id`, principalID)
	if err != nil {
		return nil, fmt.Errorf("failed to query subordinates of %d: %w", principalID, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan subordinate id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (h *Hierarchy) statusAndSuperior(ctx context.Context, principalID int64) (Status, *int64, error) {
	var status Status
	var superiorID sql.NullInt64
	err := h.db.QueryRowContext(ctx,
		`SELECT status, superior_id FROM principals WHERE id = $1`, principalID).
		Scan(&status, &superiorID)
	if err != nil {
		return "", nil, err
	}
	return status, nullableInt64(superiorID), nil
}
