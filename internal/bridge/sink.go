package bridge

import "github.com/danmuck/edgebridge/internal/protocol/frame"

// Device identifies the connection a frame arrived on.
type Device struct {
	ConnID string
	Remote string
}

// FrameSink receives every classified inbound frame.
type FrameSink interface {
	ObserveFrame(dev Device, in frame.Inbound)
}

type FrameSinkFunc func(dev Device, in frame.Inbound)

func (f FrameSinkFunc) ObserveFrame(dev Device, in frame.Inbound) {
	f(dev, in)
}

// Sinks fans one frame out to each sink in order.
type Sinks []FrameSink

func (s Sinks) ObserveFrame(dev Device, in frame.Inbound) {
	for _, sink := range s {
		sink.ObserveFrame(dev, in)
	}
}

// Recorder receives bridge counters.
type Recorder interface {
	ConnectionOpened()
	ConnectionClosed()
	Broadcast(targets, failed int)
	CommandRejected()
}

type nopRecorder struct{}

func (nopRecorder) ConnectionOpened()  {}
func (nopRecorder) ConnectionClosed()  {}
func (nopRecorder) Broadcast(int, int) {}
func (nopRecorder) CommandRejected()   {}
