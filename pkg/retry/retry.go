// Package retry runs an operation a fixed number of times.
package retry

import (
	"github.com/pkg/errors"
)

// Do calls f until it succeeds or has been called attempts times,
// returning the last error. There is no delay between attempts. f
// receives the attempt number, starting at 1.
func Do(attempts int, f func(attempt int) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 1; i <= attempts; i++ {
		if err = f(i); err == nil {
			return nil
		}
	}
	return errors.Wrapf(err, "giving up after %d attempts", attempts)
}
