package types

import "fmt"

// PeerID uniquely identifies a peer inside a unity. Assigned once by
// the name service at registration and never reused.
type PeerID uint64

func (p PeerID) String() string {
	return fmt.Sprintf("peer-%d", uint64(p))
}

// PeerAddress is the dial address used by the gateway to reach a peer.
type PeerAddress string

// Member pairs a peer id with the address used to reach it. The
// registry mirrors these into the lock state's request/token maps.
type Member struct {
	ID      PeerID
	Address PeerAddress
}
