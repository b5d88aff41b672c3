package storage

import (
	"fmt"
	"time"

	"github.com/curiousoddesy/PNR-Watch-sub005/internal/common"
)

// Options controls a single Set.
type Options struct {
	// TTL is the entry lifetime. Zero means the entry never expires.
	TTL time.Duration

	// Version is stored alongside the data verbatim.
	Version int

	// Pinned keeps the entry out of eviction. A write that can only fit by
	// evicting pinned entries fails instead.
	Pinned bool
}

// Validate rejects negative values.
func (o Options) Validate() error {
	if o.TTL < 0 {
		return fmt.Errorf("%w: negative ttl %s", common.ErrInvalidOptions, o.TTL)
	}
	if o.Version < 0 {
		return fmt.Errorf("%w: negative version %d", common.ErrInvalidOptions, o.Version)
	}
	return nil
}
