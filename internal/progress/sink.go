package progress

import "context"

// Sink receives batches of events from a Hub. A Hub calls Consume from a
// single goroutine; Close is called once after the last batch.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter accepts events one at a time. Workers depend on it rather than on
// Hub.
type Emitter interface {
	Emit(evt Event)
}
