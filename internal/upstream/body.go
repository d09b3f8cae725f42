package upstream

import (
	"context"
	"io"
	"time"
)

// idleTimeoutBody bounds the gap between successive reads of an origin
// response body. Each successful read re-arms the timer; if it fires, the
// origin request context is canceled and the in-flight or next read
// returns the cancellation error instead of blocking forever.
type idleTimeoutBody struct {
	rc      io.ReadCloser
	cancel  context.CancelFunc
	timeout time.Duration
	timer   *time.Timer
}

func newIdleTimeoutBody(rc io.ReadCloser, cancel context.CancelFunc, timeout time.Duration) io.ReadCloser {
	b := &idleTimeoutBody{
		rc:      rc,
		cancel:  cancel,
		timeout: timeout,
	}
	// Armed immediately: the gap before the first body byte counts too.
	b.timer = time.AfterFunc(timeout, cancel)
	return b
}

func (b *idleTimeoutBody) Read(p []byte) (int, error) {
	n, err := b.rc.Read(p)
	if err == nil {
		b.timer.Reset(b.timeout)
	} else {
		b.timer.Stop()
	}
	return n, err
}

// Close stops the timer, releases the request context, and closes the
// underlying body.
func (b *idleTimeoutBody) Close() error {
	b.timer.Stop()
	b.cancel()
	return b.rc.Close()
}
