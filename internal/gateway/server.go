package gateway

import (
	"bufio"
	"encoding/json"
	"net"

	"github.com/jabolina/go-dlock/internal/types"
)

// Handler is implemented by the lock state: the two inbound remote
// operations a peer exposes. Neither returns an error to the caller
// (spec.md §7: "No error is surfaced from acquire/release/destroy to
// the caller; they are total operations"); the same holds for the
// inbound callbacks that mutate the same state under the monitor.
type Handler interface {
	RequestToken(reqTime uint64, pid types.PeerID)
	ObtainToken(token []types.TokenEntry)
}

// Server accepts one connection per remote call, decodes exactly one
// request frame, dispatches to the Handler, and replies with a
// single response frame - the inbound half of orb.py's Skeleton.
// Each accepted connection runs in its own goroutine; concurrency
// across connections is tamed entirely by the Handler's own monitor.
type Server struct {
	listener net.Listener
	handler  Handler
	log      types.Logger
	done     chan struct{}
}

// Listen opens a TCP listener at address and starts accepting
// connections in the background. Stop shuts it down.
func Listen(address types.PeerAddress, handler Handler, log types.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", string(address))
	if err != nil {
		return nil, err
	}
	s := &Server{
		listener: ln,
		handler:  handler,
		log:      log,
		done:     make(chan struct{}),
	}
	go s.acceptLoop()
	return s, nil
}

// Addr returns the address the server is bound to, useful when the
// caller asked for an ephemeral port (":0").
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				s.log.Warnf("accept failed: %v", err)
				return
			}
		}
		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	raw, err := reader.ReadString('\n')
	if err != nil {
		s.log.Debugf("failed reading request: %v", err)
		return
	}

	var request RequestFrame
	if err := json.Unmarshal([]byte(raw), &request); err != nil {
		s.respond(conn, nil, &ErrorFrame{Name: "malformed_request", Args: []string{err.Error()}})
		return
	}

	if err := checkVersion(request.Version); err != nil {
		s.respond(conn, nil, &ErrorFrame{Name: "unsupported_protocol", Args: []string{err.Error()}})
		return
	}

	switch request.Method {
	case MethodRequestToken:
		var args types.RequestTokenArgs
		if err := json.Unmarshal(request.Args, &args); err != nil {
			s.respond(conn, nil, &ErrorFrame{Name: "malformed_args", Args: []string{err.Error()}})
			return
		}
		s.handler.RequestToken(args.Time, args.Pid)
		s.respond(conn, json.RawMessage("true"), nil)
	case MethodObtainToken:
		var args types.ObtainTokenArgs
		if err := json.Unmarshal(request.Args, &args); err != nil {
			s.respond(conn, nil, &ErrorFrame{Name: "malformed_args", Args: []string{err.Error()}})
			return
		}
		s.handler.ObtainToken(args.Token)
		s.respond(conn, json.RawMessage("true"), nil)
	default:
		s.respond(conn, nil, &ErrorFrame{Name: "unknown_method", Args: []string{string(request.Method)}})
	}
}

func (s *Server) respond(conn net.Conn, result json.RawMessage, errFrame *ErrorFrame) {
	response := ResponseFrame{Result: result, Error: errFrame}
	line, err := json.Marshal(response)
	if err != nil {
		s.log.Errorf("failed marshalling response: %v", err)
		return
	}
	line = append(line, '\n')
	if _, err := conn.Write(line); err != nil {
		s.log.Debugf("failed writing response: %v", err)
	}
}

// Stop closes the listener; in-flight connections finish naturally
// since each serves exactly one request.
func (s *Server) Stop() {
	close(s.done)
	_ = s.listener.Close()
}
