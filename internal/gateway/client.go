package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"time"

	"github.com/jabolina/go-dlock/internal/types"
)

// dialTimeout bounds a single outbound round trip. spec.md §5 says
// the reference semantics for acquire/release are unbounded, but
// that is about the *caller* never giving up on the monitor
// condition variable; the transport round trip to one peer still
// needs a bound or a single wedged peer would hang the whole
// priority-order walk indefinitely (see SPEC_FULL.md's Open
// Questions decision).
const dialTimeout = 5 * time.Second

// Outbound is the handle a Peer Registry Monitor hands back for a
// given peer id: synchronous remote calls that either succeed or
// raise a *TransportError.
type Outbound interface {
	RequestToken(ctx context.Context, time uint64, pid types.PeerID) error
	ObtainToken(ctx context.Context, token []types.TokenEntry) error
}

// Client is a one-request-per-connection Outbound, reproducing
// orb.py's Stub.remote_method_invokation: dial, write one JSON line,
// read one JSON line back, close.
type Client struct {
	address types.PeerAddress
}

// NewClient builds the Outbound handle used to reach the peer at
// address. Dialing is deferred to the first call.
func NewClient(address types.PeerAddress) Outbound {
	return &Client{address: address}
}

func (c *Client) RequestToken(ctx context.Context, t uint64, pid types.PeerID) error {
	args, err := json.Marshal(types.RequestTokenArgs{Time: t, Pid: pid})
	if err != nil {
		return &TransportError{Peer: string(c.address), Detail: err.Error()}
	}
	_, err = c.call(ctx, MethodRequestToken, args)
	return err
}

func (c *Client) ObtainToken(ctx context.Context, token []types.TokenEntry) error {
	args, err := json.Marshal(types.ObtainTokenArgs{Token: token})
	if err != nil {
		return &TransportError{Peer: string(c.address), Detail: err.Error()}
	}
	_, err = c.call(ctx, MethodObtainToken, args)
	return err
}

func (c *Client) call(ctx context.Context, method Method, args json.RawMessage) (json.RawMessage, error) {
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", string(c.address))
	if err != nil {
		return nil, &TransportError{Peer: string(c.address), Detail: err.Error()}
	}
	defer conn.Close()

	deadline := time.Now().Add(dialTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, &TransportError{Peer: string(c.address), Detail: err.Error()}
	}

	request := RequestFrame{Method: method, Args: args, Version: LatestProtocolVersion}
	line, err := json.Marshal(request)
	if err != nil {
		return nil, &TransportError{Peer: string(c.address), Detail: err.Error()}
	}
	line = append(line, '\n')
	if _, err := conn.Write(line); err != nil {
		return nil, &TransportError{Peer: string(c.address), Detail: err.Error()}
	}

	reader := bufio.NewReader(conn)
	raw, err := reader.ReadString('\n')
	if err != nil {
		return nil, &TransportError{Peer: string(c.address), Detail: err.Error()}
	}

	var response ResponseFrame
	if err := json.Unmarshal([]byte(raw), &response); err != nil {
		return nil, &TransportError{Peer: string(c.address), Detail: "malformed response frame: " + err.Error()}
	}
	if response.Error != nil {
		return nil, &TransportError{Peer: string(c.address), Detail: response.Error.Name}
	}
	return response.Result, nil
}
