package progress

import (
	"context"
	"fmt"
	"time"
)

type sinkFunc func(context.Context, []Event) error

func (f sinkFunc) Consume(ctx context.Context, batch []Event) error {
	return f(ctx, batch)
}

func (sinkFunc) Close(context.Context) error {
	return nil
}

// ExampleHub_Emit forwards a failed item to a custom sink.
func ExampleHub_Emit() {
	var failed []string
	hub := NewHub(Config{MaxBatchEvents: 1, MaxBatchWait: time.Second}, sinkFunc(func(_ context.Context, batch []Event) error {
		for _, evt := range batch {
			if evt.Stage == StageItemFailed {
				failed = append(failed, evt.URL)
			}
		}
		return nil
	}))

	hub.Emit(Event{RunID: "run-1", TS: time.Unix(0, 0), Stage: StageItemFailed, URL: "https://x.test/b"})
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}
	fmt.Println(failed)
	// Output:
	// [https://x.test/b]
}
