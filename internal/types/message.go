package types

// TokenEntry is one (peer, last-release-timestamp) pair from the
// token vector. The token mapping is transmitted as an ordered
// sequence of these instead of a JSON object, since a JSON object key
// must be a string and PeerID is not one on every encoder (spec.md §6,
// §9 "Membership maps keyed by integer").
type TokenEntry struct {
	Peer  PeerID `json:"peer"`
	Stamp uint64 `json:"stamp"`
}

// RequestTokenArgs are the arguments of the request_token remote
// operation: the requester's logical time and id.
type RequestTokenArgs struct {
	Time uint64 `json:"time"`
	Pid  PeerID `json:"pid"`
}

// ObtainTokenArgs are the arguments of the obtain_token remote
// operation: the token vector being handed off.
type ObtainTokenArgs struct {
	Token []TokenEntry `json:"token"`
}
