// Package dlock is the public facade for a single peer taking part in
// the distributed mutual-exclusion service: it wires the Lock State,
// the Peer Registry Monitor, and the Remote Gateway together, and
// exposes the operations a local caller invokes (spec.md §6 "Lock
// operations exposed locally").
package dlock

import (
	"time"

	"github.com/jabolina/go-dlock/internal/gateway"
	"github.com/jabolina/go-dlock/internal/lockstate"
	"github.com/jabolina/go-dlock/internal/logging"
	"github.com/jabolina/go-dlock/internal/metrics"
	"github.com/jabolina/go-dlock/internal/registry"
	"github.com/jabolina/go-dlock/internal/types"
)

// membershipPollInterval is how often a peer asks the name service
// for the current membership to learn about joins/leaves it was not
// directly told about. spec.md treats register_peer/unregister_peer
// as local notifications; this poller is the out-of-scope
// infrastructure that turns name-service state into those local
// calls (see SPEC_FULL.md's supplemented name-service feature).
const membershipPollInterval = 2 * time.Second

// Config is everything needed to stand a peer up.
type Config struct {
	// Name identifies this peer in logs and metrics.
	Name string
	// Address is the host:port this peer's gateway listens on, and
	// the address it registers with the directory.
	Address types.PeerAddress
	// DirectoryAddress is the base URL of the name service, e.g.
	// "http://127.0.0.1:7000".
	DirectoryAddress string
}

// Peer is a single running member of the unity.
type Peer struct {
	id        types.PeerID
	name      string
	log       types.Logger
	metrics   *metrics.Recorder
	monitor   *registry.Monitor
	state     *lockstate.State
	server    *gateway.Server
	directory *registry.DirectoryClient
	stopPoll  chan struct{}
}

// NewPeer registers with the name service, seeds the monitor with the
// membership that existed at that moment, starts the inbound gateway,
// and runs Initialize (spec.md §3 "Lifecycle").
func NewPeer(cfg Config) (*Peer, error) {
	log := logging.NewLogger(cfg.Name)
	rec := metrics.NewRecorder(cfg.Name)

	directory := registry.NewDirectoryClient(cfg.DirectoryAddress)
	id, existing, err := directory.Register(cfg.Address)
	if err != nil {
		return nil, err
	}

	monitor := registry.NewMonitor(id, gateway.NewClient)
	for _, m := range existing {
		monitor.Register(m.ID, m.Address)
	}

	state := lockstate.New(id, monitor, log, rec)

	server, err := gateway.Listen(cfg.Address, state, log)
	if err != nil {
		return nil, err
	}

	state.Initialize()

	p := &Peer{
		id:        id,
		name:      cfg.Name,
		log:       log,
		metrics:   rec,
		monitor:   monitor,
		state:     state,
		server:    server,
		directory: directory,
		stopPoll:  make(chan struct{}),
	}
	go p.pollMembership()
	return p, nil
}

// ID returns the id the name service assigned this peer.
func (p *Peer) ID() types.PeerID { return p.id }

// Acquire blocks until this peer holds the token (spec.md §4.1).
func (p *Peer) Acquire() { p.state.Acquire() }

// Release gives the token up, forwarding it if another peer has an
// outstanding request (spec.md §4.1).
func (p *Peer) Release() { p.state.Release() }

// DisplayStatus returns a diagnostic snapshot of the lock state.
func (p *Peer) DisplayStatus() lockstate.Snapshot { return p.state.DisplayStatus() }

// Metrics exposes the peer's prometheus/common counters, e.g. for a
// CLI status dump.
func (p *Peer) Metrics() *metrics.Recorder { return p.metrics }

// Destroy leaves the unity cleanly: hands the token off if held or
// present, stops the membership poller and inbound gateway, and
// unregisters from the name service (spec.md §4.1).
func (p *Peer) Destroy() {
	close(p.stopPoll)
	p.state.Destroy()
	p.server.Stop()
	if err := p.directory.Unregister(p.id); err != nil {
		p.log.Warnf("failed unregistering from directory: %v", err)
	}
}

// pollMembership periodically reconciles local membership against the
// name service, turning external joins/leaves into local
// register_peer/unregister_peer calls.
func (p *Peer) pollMembership() {
	ticker := time.NewTicker(membershipPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopPoll:
			return
		case <-ticker.C:
			p.reconcileMembership()
		}
	}
}

func (p *Peer) reconcileMembership() {
	members, err := p.directory.Peers()
	if err != nil {
		p.log.Debugf("failed polling directory: %v", err)
		return
	}

	seen := make(map[types.PeerID]bool, len(members))
	for _, m := range members {
		if m.ID == p.id {
			continue
		}
		seen[m.ID] = true
		if !p.knownLocally(m.ID) {
			p.state.RegisterPeer(m.ID, m.Address)
			p.log.Infof("learned about new peer %s", m.ID)
		}
	}

	for _, known := range p.monitor.GetPeers() {
		if !seen[known] {
			p.state.UnregisterPeer(known)
			p.log.Infof("peer %s left the directory", known)
		}
	}
}

func (p *Peer) knownLocally(pid types.PeerID) bool {
	for _, known := range p.monitor.GetPeers() {
		if known == pid {
			return true
		}
	}
	return false
}
