package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

type chanQueue struct {
	ch chan string
}

func (q *chanQueue) Dequeue(ctx context.Context, _ string, timeout time.Duration) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case id := <-q.ch:
		return id, nil
	case <-time.After(timeout):
		return "", nil
	}
}

func TestWorker_Run(t *testing.T) {
	Convey("Worker 消费队列直到取消", t, func() {
		q := &chanQueue{ch: make(chan string, 10)}
		for _, id := range []string{"a", "b", "c", "bad"} {
			q.ch <- id
		}

		var mu sync.Mutex
		var handled []string
		done := make(chan struct{})
		handle := func(_ context.Context, id string) error {
			mu.Lock()
			defer mu.Unlock()
			handled = append(handled, id)
			if len(handled) == 4 {
				close(done)
			}
			if id == "bad" {
				return errors.New("render failure")
			}
			return nil
		}

		ctx, cancel := context.WithCancel(context.Background())
		w := New(q, "reelcast:renders", 2, 50*time.Millisecond, handle)

		errCh := make(chan error, 1)
		go func() { errCh <- w.Run(ctx) }()

		select {
		case <-done:
		case <-time.After(5 * time.Second):
		}
		cancel()

		So(<-errCh, ShouldBeNil)
		mu.Lock()
		So(handled, ShouldHaveLength, 4)
		mu.Unlock()
	})
}
