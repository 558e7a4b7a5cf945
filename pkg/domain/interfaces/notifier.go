package interfaces

import "context"

// Notifier delivers buffered run output to operators
type Notifier interface {
	// Flush sends everything buffered so far and empties the buffer
	Flush(ctx context.Context) error
}
