// Package conflict implements whole-document last-writer-wins resolution and
// the clock-skew guard that keeps a fast client clock from winning forever.
package conflict

import (
	"fmt"
	"time"
)

type Winner string

const (
	WinnerIncoming Winner = "incoming"
	WinnerExisting Winner = "existing"
)

// Version is the pair of facts LWW compares. DeviceID may be empty.
type Version struct {
	ClientUpdatedAt time.Time
	DeviceID        string
}

// Resolve picks exactly one winner. A strictly newer incoming edit wins; a
// strictly older one loses. On an exact timestamp tie the deviceIDs break it
// as ordinal strings, and incoming must sort strictly after existing to win,
// so every replayer converges on the same final version regardless of order.
func Resolve(existing, incoming Version) Winner {
	if incoming.ClientUpdatedAt.After(existing.ClientUpdatedAt) {
		return WinnerIncoming
	}
	if incoming.ClientUpdatedAt.Before(existing.ClientUpdatedAt) {
		return WinnerExisting
	}
	if incoming.DeviceID > existing.DeviceID {
		return WinnerIncoming
	}
	return WinnerExisting
}

// MaxSkew is how far ahead of the server a client-asserted edit instant may
// be. There is no lower bound: old timestamps simply lose conflicts.
const MaxSkew = 10 * time.Minute

// SkewError reports a rejected client timestamp. Both literal instants are
// kept for diagnostics.
type SkewError struct {
	ClientUpdatedAt  time.Time
	ServerReceivedAt time.Time
}

func (e *SkewError) Error() string {
	return fmt.Sprintf("client timestamp %s is more than %s ahead of server time %s",
		e.ClientUpdatedAt.Format(time.RFC3339), MaxSkew, e.ServerReceivedAt.Format(time.RFC3339))
}

// ValidateClockSkew fails iff clientUpdatedAt is more than MaxSkew ahead of
// serverReceivedAt. Exactly MaxSkew ahead is accepted.
func ValidateClockSkew(clientUpdatedAt, serverReceivedAt time.Time) error {
	if clientUpdatedAt.Sub(serverReceivedAt) > MaxSkew {
		return &SkewError{ClientUpdatedAt: clientUpdatedAt, ServerReceivedAt: serverReceivedAt}
	}
	return nil
}
