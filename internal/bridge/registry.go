package bridge

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

// Peer is one registered transport session.
type Peer interface {
	ID() string
	Send(line []byte) error
	Close() error
}

// BroadcastResult counts one broadcast's fan-out.
type BroadcastResult struct {
	Targets int
	Failed  int
}

// Registry is the set of open device connections.
type Registry struct {
	mu     sync.RWMutex
	peers  map[string]Peer
	closed bool
}

func NewRegistry() *Registry {
	return &Registry{peers: make(map[string]Peer)}
}

// Register adds p. Registering the same id again replaces the entry. After
// CloseAll the registry is shut and p is closed instead.
func (r *Registry) Register(p Peer) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = p.Close()
		return
	}
	r.peers[p.ID()] = p
	r.mu.Unlock()
}

// Unregister removes p; unknown peers are ignored.
func (r *Registry) Unregister(p Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, p.ID())
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Snapshot returns the registered peers ordered by id.
func (r *Registry) Snapshot() []Peer {
	r.mu.RLock()
	out := make([]Peer, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID() < out[j].ID()
	})
	return out
}

// BroadcastLine sends text plus one newline to every peer registered at call
// time. Send failures are logged and counted; they never stop the fan-out.
func (r *Registry) BroadcastLine(text string) BroadcastResult {
	peers := r.Snapshot()
	line := []byte(text + "\n")
	res := BroadcastResult{Targets: len(peers)}
	for _, p := range peers {
		if err := p.Send(line); err != nil {
			res.Failed++
			log.Warn().Err(err).Str("conn_id", p.ID()).Msg("bridge.broadcast write failed")
		}
	}
	return res
}

// CloseAll closes every registered peer and refuses later registrations.
// Handlers unregister as they exit.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	for _, p := range r.Snapshot() {
		_ = p.Close()
	}
}
