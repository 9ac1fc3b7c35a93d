package gateway

import (
	"fmt"

	"github.com/hashicorp/go-version"
)

// LatestProtocolVersion is the newest wire protocol this binary
// understands. Bump this whenever RequestFrame/ResponseFrame gain a
// field an older peer could not decode.
const LatestProtocolVersion = "1.0.0"

// ErrUnsupportedProtocol is returned when an inbound request was
// built for a protocol version this gateway cannot handle.
type ErrUnsupportedProtocol struct {
	Remote string
	Local  string
}

func (e *ErrUnsupportedProtocol) Error() string {
	return fmt.Sprintf("protocol version %s not supported, local is %s", e.Remote, e.Local)
}

// checkVersion compares the remote peer's protocol version against
// the version this gateway was built with. The teacher's
// Unity.checkRPCHeader does a raw integer comparison; here the
// comparison goes through a real semantic-version library so the
// check can eventually express "accept anything >= 1.0.0, < 2.0.0"
// instead of strict equality.
func checkVersion(remote string) error {
	if remote == "" {
		return nil
	}
	rv, err := version.NewVersion(remote)
	if err != nil {
		return &ErrUnsupportedProtocol{Remote: remote, Local: LatestProtocolVersion}
	}
	lv, err := version.NewVersion(LatestProtocolVersion)
	if err != nil {
		return err
	}
	if rv.GreaterThan(lv) {
		return &ErrUnsupportedProtocol{Remote: remote, Local: LatestProtocolVersion}
	}
	return nil
}
