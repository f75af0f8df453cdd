package maintenance

import (
	"time"

	"github.com/google/uuid"
)

// Clock supplies the current time. Injecting it keeps scheduling and
// failure-log timestamps deterministic in tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by the wall clock.
func SystemClock() Clock { return systemClock{} }

// IDGenerator produces unique identifiers for work orders and requests.
type IDGenerator interface {
	NewID() string
}

type uuidGenerator struct{}

func (uuidGenerator) NewID() string { return uuid.NewString() }

// UUIDGenerator returns an IDGenerator producing random UUID strings.
func UUIDGenerator() IDGenerator { return uuidGenerator{} }
