package game

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

const (
	// DefaultCollectCooldown is the minimum gap between two collection
	// attempts by the same player.
	DefaultCollectCooldown = 30 * time.Second

	// Penalty odds grow by PenaltyStepPercent per recorded collection,
	// capped at PenaltyCapPercent.
	PenaltyStepPercent = 5
	PenaltyCapPercent  = 25
)

var (
	ErrInvalidTrade  = errors.New("invalid or expired trade")
	ErrNotAuthorized = errors.New("not authorized")
	ErrInvalidTask   = errors.New("unknown task")
	ErrInvalidInput  = errors.New("invalid input")
)

// TooSoonError is returned when a player collects again inside the
// cooldown window.
type TooSoonError struct {
	Remaining time.Duration
}

func (e *TooSoonError) Error() string {
	return fmt.Sprintf("too soon: next collection in %s", e.Remaining.Round(time.Second))
}

// InsufficientResourceError is returned when a locked balance check comes
// up short during task submission or trade settlement.
type InsufficientResourceError struct {
	Kind      string
	Required  int64
	Available int64
}

func (e *InsufficientResourceError) Error() string {
	return fmt.Sprintf("insufficient %s: need %d, have %d", e.Kind, e.Required, e.Available)
}

// PenaltyChance returns the penalty probability in percent for a player
// with count prior collections: clamp(count*5, 0, 25).
func PenaltyChance(count int64) int {
	if count <= 0 {
		return 0
	}
	chance := count * PenaltyStepPercent
	if chance > PenaltyCapPercent {
		return PenaltyCapPercent
	}
	return int(chance)
}

// balanceRef names one (player, resource) balance row.
type balanceRef struct {
	playerID   int64
	resourceID int64
}

// lockOrder returns the distinct refs sorted ascending by (player_id,
// resource_id). Every writer that locks more than one balance row acquires
// them in this order, so two settlements touching overlapping rows can
// never deadlock.
func lockOrder(refs ...balanceRef) []balanceRef {
	seen := make(map[balanceRef]bool, len(refs))
	out := make([]balanceRef, 0, len(refs))
	for _, r := range refs {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].playerID != out[j].playerID {
			return out[i].playerID < out[j].playerID
		}
		return out[i].resourceID < out[j].resourceID
	})
	return out
}
