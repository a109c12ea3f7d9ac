package dialx

import (
	"net"
	"sync"
)

type pendingWrite struct {
	payload []byte
	result  *Promise[int]
}

// WriteBuffer queues writes issued while connection establishment is still
// pending. Each queued write carries its own promise so the caller learns the
// write's fate once the connection settles: FlushTo replays the queue on the
// established conn, FailPending fails and drains it. Both drain the queue
// exactly once per write and are safe to call with nothing queued.
type WriteBuffer struct {
	mu    sync.Mutex
	queue []pendingWrite
}

// Enqueue copies p and appends it to the queue. The returned promise resolves
// to the number of bytes written once the queue is flushed, or fails with the
// teardown cause.
func (b *WriteBuffer) Enqueue(p []byte) *Promise[int] {
	w := pendingWrite{payload: append([]byte(nil), p...), result: NewPromise[int]()}
	b.mu.Lock()
	b.queue = append(b.queue, w)
	b.mu.Unlock()
	return w.result
}

// Len reports the number of queued writes.
func (b *WriteBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// FailPending drains the queue and fails every queued write with cause.
func (b *WriteBuffer) FailPending(cause error) {
	b.mu.Lock()
	queue := b.queue
	b.queue = nil
	b.mu.Unlock()
	for _, w := range queue {
		w.result.TryFail(cause)
	}
}

// FlushTo drains the queue and replays the writes in order on conn. On a
// write error the failed write and every write after it fail with that error,
// which is also returned.
func (b *WriteBuffer) FlushTo(conn net.Conn) error {
	b.mu.Lock()
	queue := b.queue
	b.queue = nil
	b.mu.Unlock()
	for i, w := range queue {
		n, err := conn.Write(w.payload)
		if err != nil {
			for _, rest := range queue[i:] {
				rest.result.TryFail(err)
			}
			return err
		}
		w.result.TryResolve(n)
	}
	return nil
}
