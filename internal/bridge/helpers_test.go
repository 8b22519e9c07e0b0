package bridge

import (
	"sync"
	"testing"
	"time"

	"github.com/danmuck/edgebridge/internal/protocol/frame"
)

type fakePeer struct {
	id string

	mu     sync.Mutex
	writes []string
	err    error
	closed bool
}

func newFakePeer(id string) *fakePeer {
	return &fakePeer{id: id}
}

func (p *fakePeer) ID() string { return p.id }

func (p *fakePeer) Send(line []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.writes = append(p.writes, string(line))
	return nil
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePeer) Writes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.writes))
	copy(out, p.writes)
	return out
}

func (p *fakePeer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type countingRecorder struct {
	mu       sync.Mutex
	opened   int
	closed   int
	sends    int
	failed   int
	rejected int
}

func (r *countingRecorder) ConnectionOpened() {
	r.mu.Lock()
	r.opened++
	r.mu.Unlock()
}

func (r *countingRecorder) ConnectionClosed() {
	r.mu.Lock()
	r.closed++
	r.mu.Unlock()
}

func (r *countingRecorder) Broadcast(targets, failed int) {
	r.mu.Lock()
	r.sends++
	r.failed += failed
	r.mu.Unlock()
}

func (r *countingRecorder) CommandRejected() {
	r.mu.Lock()
	r.rejected++
	r.mu.Unlock()
}

type observed struct {
	dev Device
	in  frame.Inbound
}

func collectingSink(buf int) (FrameSink, <-chan observed) {
	ch := make(chan observed, buf)
	return FrameSinkFunc(func(dev Device, in frame.Inbound) {
		ch <- observed{dev: dev, in: in}
	}), ch
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func nextFrame(t *testing.T, ch <-chan observed) observed {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for frame")
	}
	return observed{}
}

func registered(reg *Registry, id string) bool {
	for _, p := range reg.Snapshot() {
		if p.ID() == id {
			return true
		}
	}
	return false
}
