package registry

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/julienschmidt/httprouter"

	"github.com/jabolina/go-dlock/internal/types"
)

// Directory is the name service peers contact once at startup
// (spec.md §3 "own_id: integer, unique, assigned once by the name
// service at registration"; modeled on original_source's
// lab1/client.py registering against a name server). It is an
// external collaborator to the lock core: the core only ever sees
// the PeerID and address list the Directory hands back.
type Directory struct {
	mu      sync.Mutex
	nextID  types.PeerID
	members map[types.PeerID]types.PeerAddress
	server  *http.Server
}

// NewDirectory builds an empty directory. Ids are minted starting at
// 1, monotonically increasing, never reused (SPEC_FULL.md's Open
// Questions decision).
func NewDirectory() *Directory {
	return &Directory{
		nextID:  1,
		members: make(map[types.PeerID]types.PeerAddress),
	}
}

type registerRequest struct {
	Address string `json:"address"`
}

type registerResponse struct {
	ID types.PeerID `json:"id"`
}

type membersResponse struct {
	Members []types.Member `json:"members"`
}

// Register assigns a fresh id to address and returns the full
// membership snapshot at the moment of registration (so the new peer
// can seed its own monitor before anyone else learns about it).
func (d *Directory) Register(address types.PeerAddress) (types.PeerID, []types.Member) {
	d.mu.Lock()
	defer d.mu.Unlock()

	existing := make([]types.Member, 0, len(d.members))
	for id, addr := range d.members {
		existing = append(existing, types.Member{ID: id, Address: addr})
	}

	id := d.nextID
	d.nextID++
	d.members[id] = address
	return id, existing
}

// Unregister drops pid from the directory.
func (d *Directory) Unregister(pid types.PeerID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.members, pid)
}

// Members returns every currently registered peer.
func (d *Directory) Members() []types.Member {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]types.Member, 0, len(d.members))
	for id, addr := range d.members {
		out = append(out, types.Member{ID: id, Address: addr})
	}
	return out
}

// ListenAndServe exposes the directory over HTTP using httprouter,
// the routing library this pack's storage-engine example
// (dolthub-dolt) depends on.
func (d *Directory) ListenAndServe(address string) error {
	router := httprouter.New()
	router.POST("/register", d.handleRegister)
	router.POST("/unregister/:id", d.handleUnregister)
	router.GET("/peers", d.handlePeers)

	d.server = &http.Server{Addr: address, Handler: router}
	return d.server.ListenAndServe()
}

// Close shuts the directory's HTTP server down.
func (d *Directory) Close() error {
	if d.server == nil {
		return nil
	}
	return d.server.Close()
}

func (d *Directory) handleRegister(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id, _ := d.Register(types.PeerAddress(req.Address))
	_ = json.NewEncoder(w).Encode(registerResponse{ID: id})
}

func (d *Directory) handleUnregister(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var raw uint64
	if _, err := fmt.Sscan(ps.ByName("id"), &raw); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id := types.PeerID(raw)
	d.Unregister(id)
	w.WriteHeader(http.StatusNoContent)
}

func (d *Directory) handlePeers(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	_ = json.NewEncoder(w).Encode(membersResponse{Members: d.Members()})
}
