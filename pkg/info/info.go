// Package info carries build metadata, stamped in via -ldflags at release time.
package info

import (
	"fmt"

	"github.com/google/uuid"
)

var (
	Version    = "0.0.0"
	GitRev     = "000000"
	BuildTime  = "2000-01-01_00:00:00"
	InstanceID = uuid.New().String()
)

func String() string {
	return fmt.Sprintf("walletd %s (%s) built %s", Version, GitRev, BuildTime)
}
