package outbox

import (
	"fmt"
	"strings"

	"github.com/jbctechsolutions/scribesync/internal/domain/errors"
)

// ConnectionStatus is the connectivity level reported by a network oracle.
type ConnectionStatus string

const (
	StatusOffline  ConnectionStatus = "offline"
	StatusDegraded ConnectionStatus = "degraded"
	StatusOnline   ConnectionStatus = "online"
)

// rank orders statuses from worst to best.
func (s ConnectionStatus) rank() int {
	switch s {
	case StatusOnline:
		return 2
	case StatusDegraded:
		return 1
	default:
		return 0
	}
}

// Meets reports whether s is at least as good as min.
func (s ConnectionStatus) Meets(min ConnectionStatus) bool {
	return s.rank() >= min.rank()
}

// Valid reports whether s is a known status.
func (s ConnectionStatus) Valid() bool {
	switch s {
	case StatusOffline, StatusDegraded, StatusOnline:
		return true
	}
	return false
}

func (s ConnectionStatus) String() string { return string(s) }

// ParseConnectionStatus parses a status name case-insensitively.
func ParseConnectionStatus(s string) (ConnectionStatus, error) {
	status := ConnectionStatus(strings.ToLower(strings.TrimSpace(s)))
	if !status.Valid() {
		return "", fmt.Errorf("%w: %q (must be one of offline, degraded, online)", errors.ErrInvalidConnectionQuality, s)
	}
	return status, nil
}
