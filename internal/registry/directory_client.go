package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/jabolina/go-dlock/internal/types"
)

// DirectoryClient registers a peer against a remote Directory over
// HTTP, the bootstrap step before a peer's Monitor/LockState can be
// constructed.
type DirectoryClient struct {
	base   string
	client *http.Client
}

// NewDirectoryClient builds a client pointed at the directory
// listening on baseAddress (e.g. "http://127.0.0.1:7000").
func NewDirectoryClient(baseAddress string) *DirectoryClient {
	return &DirectoryClient{
		base:   baseAddress,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// Register registers ownAddress with the directory and returns the
// assigned id plus the membership that existed before this peer
// joined.
func (d *DirectoryClient) Register(ownAddress types.PeerAddress) (types.PeerID, []types.Member, error) {
	body, err := json.Marshal(registerRequest{Address: string(ownAddress)})
	if err != nil {
		return 0, nil, errors.Wrap(err, "marshal register request")
	}

	resp, err := d.client.Post(d.base+"/register", "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, nil, errors.Wrap(err, "post register request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, nil, errors.Errorf("directory register failed with status %d", resp.StatusCode)
	}

	var reg registerResponse
	if err := json.NewDecoder(resp.Body).Decode(&reg); err != nil {
		return 0, nil, errors.Wrap(err, "decode register response")
	}

	members, err := d.Peers()
	if err != nil {
		return 0, nil, errors.Wrap(err, "fetch membership after register")
	}

	existing := make([]types.Member, 0, len(members))
	for _, m := range members {
		if m.ID != reg.ID {
			existing = append(existing, m)
		}
	}
	return reg.ID, existing, nil
}

// Peers returns the directory's current membership snapshot.
func (d *DirectoryClient) Peers() ([]types.Member, error) {
	resp, err := d.client.Get(d.base + "/peers")
	if err != nil {
		return nil, errors.Wrap(err, "get peers")
	}
	defer resp.Body.Close()

	var out membersResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "decode peers response")
	}
	return out.Members, nil
}

// Unregister tells the directory this peer is leaving cleanly.
func (d *DirectoryClient) Unregister(pid types.PeerID) error {
	resp, err := d.client.Post(fmt.Sprintf("%s/unregister/%d", d.base, uint64(pid)), "application/json", nil)
	if err != nil {
		return errors.Wrap(err, "post unregister request")
	}
	defer resp.Body.Close()
	return nil
}
