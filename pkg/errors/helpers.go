package errors

import (
	"context"
)

// CheckContext returns a structured error if the context is canceled or
// timed out, so run loops can bail out with a consistent Canceled code.
func CheckContext(ctx context.Context, operation string) error {
	if err := ctx.Err(); err != nil {
		return Wrap(err, Canceled, operation+" canceled")
	}
	return nil
}
