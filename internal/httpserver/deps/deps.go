package deps

import (
	"time"

	"github.com/fleetmx/fleetmx/internal/logger"
	"github.com/fleetmx/fleetmx/internal/store"
)

// Deps carries everything the ops endpoints read. The server never mutates
// provisioning state; handlers get the store for reads only.
type Deps struct {
	Logger       logger.Logger
	Store        *store.Store
	StartTime    time.Time
	Version      string
	Commit       string
	BuildDate    string
	GoVersion    string
	TimeNow      func() time.Time // for testing, defaults to time.Now
	AllowedCIDRS []string         // IPs allowed to reach status and readiness endpoints
}

// Now returns the injected clock, falling back to the real one.
func (d Deps) Now() time.Time {
	if d.TimeNow != nil {
		return d.TimeNow()
	}
	return time.Now()
}
