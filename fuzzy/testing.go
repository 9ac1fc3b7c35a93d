package fuzzy

import (
	"fmt"
	"net"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jabolina/go-dlock/internal/registry"
	"github.com/jabolina/go-dlock/internal/types"
	"github.com/jabolina/go-dlock/pkg/dlock"
)

// freeAddress grabs an ephemeral TCP port and releases it immediately,
// the same trick the teacher's transport test relies on for picking
// an address nothing else is bound to yet.
func freeAddress(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed reserving address: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

// unityCluster wires a real name-service Directory plus N real Peers
// communicating over TCP, mirroring the teacher's UnityCluster test
// harness but over this module's gateway/registry instead of a
// mocked transport.
type unityCluster struct {
	t         *testing.T
	directory *registry.Directory
	peers     []*dlock.Peer
	mu        sync.Mutex
	index     int
}

func createCluster(t *testing.T, size int) *unityCluster {
	t.Helper()

	directory := registry.NewDirectory()
	directoryAddr := freeAddress(t)
	go func() {
		_ = directory.ListenAndServe(directoryAddr)
	}()
	time.Sleep(50 * time.Millisecond)

	c := &unityCluster{t: t, directory: directory}
	for i := 0; i < size; i++ {
		peer, err := dlock.NewPeer(dlock.Config{
			Name:             fmt.Sprintf("peer-%s", uuid.New().String()[:8]),
			Address:          types.PeerAddress(freeAddress(t)),
			DirectoryAddress: "http://" + directoryAddr,
		})
		if err != nil {
			t.Fatalf("failed starting peer %d: %v", i, err)
		}
		c.peers = append(c.peers, peer)
	}

	// Membership only propagates to peers already running through the
	// background poller (pkg/dlock's membershipPollInterval); give it
	// at least one tick so every peer has learned about every other
	// peer before a test starts exercising acquire/release.
	time.Sleep(2500 * time.Millisecond)
	return c
}

// next round-robins through the cluster's peers, mirroring the
// teacher's UnityCluster.Next.
func (c *unityCluster) next() *dlock.Peer {
	c.mu.Lock()
	defer func() {
		c.index++
		c.mu.Unlock()
	}()
	if c.index >= len(c.peers) {
		c.index = 0
	}
	return c.peers[c.index]
}

// tokenHolders counts how many peers currently believe they hold or
// could immediately claim the token - used to check the single-token
// safety invariant (spec.md §4.4) after the cluster quiesces.
func (c *unityCluster) tokenHolders() int {
	held := 0
	for _, p := range c.peers {
		if snap := p.DisplayStatus(); snap.State != types.NoToken {
			held++
		}
	}
	return held
}

func (c *unityCluster) shutdown() {
	group := sync.WaitGroup{}
	for _, p := range c.peers {
		group.Add(1)
		go func(p *dlock.Peer) {
			defer group.Done()
			p.Destroy()
		}(p)
	}
	group.Wait()
	_ = c.directory.Close()
}

func printStackTrace(t *testing.T) {
	buf := make([]byte, 1<<16)
	n := runtime.Stack(buf, true)
	t.Logf("%s", buf[:n])
}

func waitThisOrTimeout(cb func(), duration time.Duration) bool {
	done := make(chan struct{})
	go func() {
		cb()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(duration):
		return false
	}
}
