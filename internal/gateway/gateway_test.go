package gateway

import (
	"bufio"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jabolina/go-dlock/internal/logging"
	"github.com/jabolina/go-dlock/internal/types"
)

func dialRaw(address string) (net.Conn, error) {
	return net.Dial("tcp", address)
}

func readLine(conn net.Conn) (string, error) {
	return bufio.NewReader(conn).ReadString('\n')
}

// recordingHandler captures the calls the Server dispatches to it, to
// assert the request actually reached the Handler across a real
// socket, not just that the client-side call returned.
type recordingHandler struct {
	mu           sync.Mutex
	requestTimes []uint64
	requestPids  []types.PeerID
	tokens       [][]types.TokenEntry
}

func (h *recordingHandler) RequestToken(reqTime uint64, pid types.PeerID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requestTimes = append(h.requestTimes, reqTime)
	h.requestPids = append(h.requestPids, pid)
}

func (h *recordingHandler) ObtainToken(token []types.TokenEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tokens = append(h.tokens, token)
}

func newTestServer(t *testing.T) (*Server, *recordingHandler) {
	t.Helper()
	log := logging.NewLogger("gateway-test")
	log.ToggleDebug(false)
	handler := &recordingHandler{}
	srv, err := Listen(types.PeerAddress("127.0.0.1:0"), handler, log)
	require.NoError(t, err)
	t.Cleanup(srv.Stop)
	return srv, handler
}

func TestClientServer_RequestTokenRoundTrips(t *testing.T) {
	srv, handler := newTestServer(t)
	client := NewClient(types.PeerAddress(srv.Addr()))

	err := client.RequestToken(context.Background(), 42, types.PeerID(7))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		handler.mu.Lock()
		defer handler.mu.Unlock()
		return len(handler.requestTimes) == 1
	}, time.Second, 10*time.Millisecond)

	require.Equal(t, uint64(42), handler.requestTimes[0])
	require.Equal(t, types.PeerID(7), handler.requestPids[0])
}

func TestClientServer_ObtainTokenRoundTrips(t *testing.T) {
	srv, handler := newTestServer(t)
	client := NewClient(types.PeerAddress(srv.Addr()))

	want := []types.TokenEntry{{Peer: 1, Stamp: 3}, {Peer: 2, Stamp: 9}}
	err := client.ObtainToken(context.Background(), want)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		handler.mu.Lock()
		defer handler.mu.Unlock()
		return len(handler.tokens) == 1
	}, time.Second, 10*time.Millisecond)

	require.Equal(t, want, handler.tokens[0])
}

// Every call opens a fresh connection - a second call after the first
// finished must work exactly the same, proving the server does not
// wedge itself after serving one request.
func TestClientServer_MultipleSequentialCalls(t *testing.T) {
	srv, handler := newTestServer(t)
	client := NewClient(types.PeerAddress(srv.Addr()))

	for i := uint64(1); i <= 5; i++ {
		require.NoError(t, client.RequestToken(context.Background(), i, types.PeerID(1)))
	}

	require.Eventually(t, func() bool {
		handler.mu.Lock()
		defer handler.mu.Unlock()
		return len(handler.requestTimes) == 5
	}, time.Second, 10*time.Millisecond)
}

// A call to an address nothing is listening on must surface as a
// *TransportError, the single failure kind the Failure Reaper reacts
// to.
func TestClient_UnreachablePeerReturnsTransportError(t *testing.T) {
	client := NewClient(types.PeerAddress("127.0.0.1:1"))

	err := client.RequestToken(context.Background(), 1, types.PeerID(1))
	require.Error(t, err)

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
}

// A request built with a protocol version newer than this binary
// understands is rejected before the Handler is ever invoked.
func TestServer_RejectsUnsupportedProtocolVersion(t *testing.T) {
	srv, handler := newTestServer(t)

	conn, err := dialRaw(srv.Addr())
	require.NoError(t, err)
	defer conn.Close()

	frame := `{"method":"request_token","args":{"time":1,"pid":1},"version":"99.0.0"}` + "\n"
	_, err = conn.Write([]byte(frame))
	require.NoError(t, err)

	response, err := readLine(conn)
	require.NoError(t, err)
	require.Contains(t, response, "unsupported_protocol")

	handler.mu.Lock()
	defer handler.mu.Unlock()
	require.Empty(t, handler.requestTimes)
}
