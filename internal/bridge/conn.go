package bridge

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrConnClosed  = errors.New("bridge: connection closed")
	ErrQueueFull   = errors.New("bridge: outbound queue full")
	ErrWriteFailed = errors.New("bridge: write failed")
)

// State is the lifecycle phase of one device connection.
type State int32

const (
	StateOpen State = iota
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Conn is one device TCP session. Outbound lines go through a bounded queue
// drained by a single writer goroutine, so writes to one device stay FIFO and
// a stalled device never blocks a broadcast.
type Conn struct {
	id     string
	remote string
	nc     net.Conn

	queue        chan []byte
	writeTimeout time.Duration

	state     atomic.Int32
	closeOnce sync.Once
	done      chan struct{}

	mu    sync.Mutex
	cause error

	logger zerolog.Logger
}

func newConn(nc net.Conn, queueSize int, writeTimeout time.Duration) *Conn {
	if queueSize <= 0 {
		queueSize = DefaultServiceConfig().OutboundQueue
	}
	remote := ""
	if addr := nc.RemoteAddr(); addr != nil {
		remote = addr.String()
	}
	id := xid.New().String()
	return &Conn{
		id:           id,
		remote:       remote,
		nc:           nc,
		queue:        make(chan []byte, queueSize),
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
		logger:       log.With().Str("conn_id", id).Str("remote", remote).Logger(),
	}
}

func (c *Conn) ID() string         { return c.id }
func (c *Conn) RemoteAddr() string { return c.remote }
func (c *Conn) State() State       { return State(c.state.Load()) }

func (c *Conn) setState(s State) {
	c.state.Store(int32(s))
}

// Send queues line for the writer. It never blocks; a full queue is treated
// as a transport failure and tears the connection down.
func (c *Conn) Send(line []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.queue <- line:
		return nil
	default:
		c.fail(ErrQueueFull)
		return ErrQueueFull
	}
}

// Close shuts the transport down. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.nc.Close()
	})
	return err
}

// Err returns the first transport failure recorded on c, if any.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cause
}

func (c *Conn) fail(err error) {
	c.mu.Lock()
	if c.cause == nil {
		c.cause = err
	}
	c.mu.Unlock()
	c.logger.Warn().Err(err).Msg("bridge.conn transport failure")
	_ = c.Close()
}

func (c *Conn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case line := <-c.queue:
			if c.writeTimeout > 0 {
				_ = c.nc.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			}
			if _, err := c.nc.Write(line); err != nil {
				c.fail(fmt.Errorf("%w: %v", ErrWriteFailed, err))
				return
			}
		}
	}
}
