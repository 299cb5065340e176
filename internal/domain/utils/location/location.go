package location

import (
	"time"
)

// Load resolves the organisation's time zone. Event clock strings are
// interpreted in it. An empty name means UTC.
func Load(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}
