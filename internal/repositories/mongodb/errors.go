package mongodb

import (
	"fmt"

	"safetrails/internal/repositories/interfaces"
)

// driverErr classifies a driver failure as a store outage while keeping the
// underlying cause in the message. Callers match the sentinel, operators read
// the cause from logs.
func driverErr(op string, err error) error {
	return fmt.Errorf("failed to %s: %v: %w", op, err, interfaces.ErrUnavailable)
}
