package lockstate

import (
	"context"
	"sort"
	"time"

	"github.com/jabolina/go-dlock/internal/metrics"
	"github.com/jabolina/go-dlock/internal/registry"
	"github.com/jabolina/go-dlock/internal/types"
)

// callTimeout bounds a single outbound request_token/obtain_token
// round trip issued while the monitor is released. See
// SPEC_FULL.md's Open Questions: the core algorithm itself has no
// notion of timeout, but a wedged peer cannot be allowed to hang the
// priority-order walk forever.
const callTimeout = 5 * time.Second

// State is the token state machine: spec.md §4.1's Lock State. Every
// public method acquires the Peer Registry Monitor on entry and
// releases it (via Monitor.WithReleased) before any outbound network
// call, re-acquiring it before mutating local state again.
type State struct {
	monitor *registry.Monitor
	own     types.PeerID
	log     types.Logger
	metrics *metrics.Recorder

	state   types.TokenState
	clock   uint64
	request map[types.PeerID]uint64
	token   map[types.PeerID]uint64
}

// New builds a Lock State for own, backed by monitor. The state
// starts empty; call Initialize once the monitor's membership is
// known (spec.md §3 "Lifecycle").
func New(own types.PeerID, monitor *registry.Monitor, log types.Logger, rec *metrics.Recorder) *State {
	return &State{
		monitor: monitor,
		own:     own,
		log:     log,
		metrics: rec,
		state:   types.NoToken,
		request: make(map[types.PeerID]uint64),
		token:   make(map[types.PeerID]uint64),
	}
}

// Initialize seeds request/token from the current membership. The
// peer that is first to register - no other members yet - receives
// the token implicitly (spec.md §4.1).
func (s *State) Initialize() {
	s.monitor.Lock()
	defer s.monitor.Unlock()

	s.request[s.own] = 0
	peers := s.monitor.GetPeers()
	if len(peers) > 0 {
		for _, p := range peers {
			s.request[p] = 0
			s.token[p] = 0
		}
		s.state = types.NoToken
	} else {
		s.state = types.TokenPresent
		s.token[s.own] = 0
	}
}

// RegisterPeer notifies the lock state that pid joined the unity.
func (s *State) RegisterPeer(pid types.PeerID, address types.PeerAddress) {
	s.monitor.Lock()
	defer s.monitor.Unlock()

	s.clock++
	s.monitor.Register(pid, address)
	s.request[pid] = 0
	s.token[pid] = 0
}

// UnregisterPeer notifies the lock state that pid left cleanly.
func (s *State) UnregisterPeer(pid types.PeerID) {
	s.monitor.Lock()
	defer s.monitor.Unlock()

	s.clock++
	delete(s.request, pid)
	delete(s.token, pid)
	s.monitor.UnregisterPeer(pid)
}

// Acquire blocks until this peer holds the token. If the peer does
// not currently have any view of the token it asks every known peer
// for it, then waits on the monitor's condition variable for an
// obtain_token delivery (spec.md §4.1).
func (s *State) Acquire() {
	s.monitor.Lock()
	defer s.monitor.Unlock()

	s.clock++
	if s.state == types.NoToken {
		reqTime := s.clock
		for _, pid := range s.monitor.GetPeers() {
			outbound, ok := s.monitor.Peer(pid)
			if !ok {
				continue
			}
			failed := false
			s.monitor.WithReleased(func() {
				ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
				defer cancel()
				if err := outbound.RequestToken(ctx, reqTime, s.own); err != nil {
					s.log.Warnf("request_token to %s failed: %v", pid, err)
					failed = true
				}
			})
			if failed {
				s.evictLocked(pid)
			}
		}
	}

	for s.state != types.TokenPresent {
		s.monitor.Wait()
	}

	s.state = types.TokenHeld
	s.token[s.own] = s.clock
	s.metrics.Acquired()
}

// Release gives the token up. If another peer has an outstanding
// request not yet satisfied, the token is forwarded following the
// priority order; otherwise it stays TOKEN_PRESENT (spec.md §4.1).
func (s *State) Release() {
	s.monitor.Lock()
	defer s.monitor.Unlock()
	s.releaseLocked()
}

// releaseLocked assumes the monitor is already held by the caller.
func (s *State) releaseLocked() {
	s.clock++
	if s.state == types.TokenHeld {
		s.token[s.own] = s.clock
		s.state = types.TokenPresent
		s.metrics.Released()
	}

	if s.state != types.TokenPresent {
		return
	}

	for _, pid := range s.priorityOrderLocked() {
		if s.request[pid] <= s.token[pid] {
			continue
		}

		outbound, ok := s.monitor.Peer(pid)
		if !ok {
			continue
		}

		tokenWire := s.tokenWireLocked()
		sent := false
		s.monitor.WithReleased(func() {
			ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
			defer cancel()
			if err := outbound.ObtainToken(ctx, tokenWire); err != nil {
				s.log.Warnf("obtain_token to %s failed: %v", pid, err)
				return
			}
			sent = true
		})

		if sent {
			s.state = types.NoToken
			return
		}
		s.evictLocked(pid)
	}
}

// RequestToken is the inbound remote operation a peer receives when
// another peer wants the token. Implements gateway.Handler.
func (s *State) RequestToken(reqTime uint64, pid types.PeerID) {
	s.monitor.Lock()
	next := s.clock + 1
	if reqTime+1 > next {
		next = reqTime + 1
	}
	s.clock = next
	if s.request[pid] < reqTime {
		s.request[pid] = reqTime
	}
	shouldRelease := s.state == types.TokenPresent
	s.monitor.Unlock()

	if shouldRelease {
		s.Release()
	}
}

// ObtainToken is the inbound remote operation a peer receives when it
// is being handed the token. Implements gateway.Handler.
func (s *State) ObtainToken(token []types.TokenEntry) {
	s.monitor.Lock()
	defer s.monitor.Unlock()

	s.clock++
	for _, entry := range token {
		s.token[entry.Peer] = entry.Stamp
		if entry.Stamp+1 > s.clock {
			s.clock = entry.Stamp + 1
		}
	}
	s.state = types.TokenPresent
	s.monitor.NotifyAll()
}

// Destroy is called when this peer is leaving cleanly. If it holds
// the token it first releases it; if it is still left holding
// TOKEN_PRESENT (no one claimed it through the normal release path)
// it hands the token to the first reachable peer unconditionally -
// any peer is preferable to dropping the token (spec.md §4.1).
func (s *State) Destroy() {
	s.monitor.Lock()
	defer s.monitor.Unlock()

	s.clock++
	if s.state == types.TokenHeld {
		s.monitor.WithReleased(func() {
			s.Release()
		})
	}

	if s.state != types.TokenPresent {
		return
	}

	for _, pid := range s.priorityOrderLocked() {
		outbound, ok := s.monitor.Peer(pid)
		if !ok {
			continue
		}

		tokenWire := s.tokenWireLocked()
		sent := false
		s.monitor.WithReleased(func() {
			ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
			defer cancel()
			if err := outbound.ObtainToken(ctx, tokenWire); err == nil {
				sent = true
			}
		})

		if sent {
			s.state = types.NoToken
			return
		}
		// Failed recipients are ignored: membership is about to be
		// dropped anyway (spec.md §4.4).
	}
}

// Snapshot is the diagnostic dump of display_status (spec.md §4.1),
// reproducing the original implementation's five-line status print
// as a structured value the caller can log or render.
type Snapshot struct {
	Own     types.PeerID
	State   types.TokenState
	Clock   uint64
	Request map[types.PeerID]uint64
	Token   map[types.PeerID]uint64
}

// DisplayStatus returns a point-in-time snapshot of the lock state.
func (s *State) DisplayStatus() Snapshot {
	s.monitor.Lock()
	defer s.monitor.Unlock()

	snap := Snapshot{
		Own:     s.own,
		State:   s.state,
		Clock:   s.clock,
		Request: make(map[types.PeerID]uint64, len(s.request)),
		Token:   make(map[types.PeerID]uint64, len(s.token)),
	}
	for k, v := range s.request {
		snap.Request[k] = v
	}
	for k, v := range s.token {
		snap.Token[k] = v
	}
	s.log.Debugf("state=%s clock=%d request=%v token=%v", s.state, s.clock, s.request, s.token)
	return snap
}

// priorityOrderLocked computes (higher ids ascending) ++ (lower ids
// ascending), the recipient search order for release/destroy
// (spec.md §4.1, §5). Caller must hold the monitor.
func (s *State) priorityOrderLocked() []types.PeerID {
	peers := s.monitor.GetPeers()
	higher := make([]types.PeerID, 0, len(peers))
	lower := make([]types.PeerID, 0, len(peers))
	for _, p := range peers {
		if p > s.own {
			higher = append(higher, p)
		} else if p < s.own {
			lower = append(lower, p)
		}
	}
	return append(higher, lower...)
}

// tokenWireLocked serializes the token map as an ordered sequence of
// pairs (spec.md §6). Caller must hold the monitor.
func (s *State) tokenWireLocked() []types.TokenEntry {
	entries := make([]types.TokenEntry, 0, len(s.token))
	for p, t := range s.token {
		entries = append(entries, types.TokenEntry{Peer: p, Stamp: t})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Peer < entries[j].Peer })
	return entries
}

// evictLocked removes pid after a transport failure (spec.md §4.4,
// the Failure Reaper). Caller must hold the monitor.
func (s *State) evictLocked(pid types.PeerID) {
	delete(s.request, pid)
	delete(s.token, pid)
	s.monitor.UnregisterPeer(pid)
	s.metrics.Evicted()
	s.log.Infof("evicted peer %s after transport failure", pid)
}
