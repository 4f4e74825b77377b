package server

import (
	"fmt"
	"net/http"
	"strconv"

	"aidledger/core/program"
	"aidledger/core/state"
	"aidledger/types/ids"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// NgoResponse pairs a record with its address.
type NgoResponse struct {
	Address ids.Pubkey `json:"address"`
	Ngo     *state.Ngo `json:"ngo"`
}

type BatchResponse struct {
	Address ids.Pubkey   `json:"address"`
	Batch   *state.Batch `json:"batch"`
}

func pathPubkey(w http.ResponseWriter, r *http.Request, name string) (ids.Pubkey, bool) {
	pk, err := ids.FromBase58(r.PathValue(name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidAddress", fmt.Sprintf("%s: %v", name, err), nil)
		return ids.Empty, false
	}
	return pk, true
}

func (s *Server) handleGetNgo(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathPubkey(w, r, "address")
	if !ok {
		return
	}
	ngo, err := s.prog.GetNgo(addr)
	if err != nil {
		writeProgramError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NgoResponse{Address: addr, Ngo: ngo})
}

func (s *Server) handleGetNgoByAdmin(w http.ResponseWriter, r *http.Request) {
	admin, ok := pathPubkey(w, r, "admin")
	if !ok {
		return
	}
	addr, ngo, err := s.prog.GetNgoByAdmin(admin)
	if err != nil {
		writeProgramError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NgoResponse{Address: addr, Ngo: ngo})
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathPubkey(w, r, "address")
	if !ok {
		return
	}
	b, err := s.prog.GetBatch(addr)
	if err != nil {
		writeProgramError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BatchResponse{Address: addr, Batch: b})
}

func (s *Server) handleGetBatchByIndex(w http.ResponseWriter, r *http.Request) {
	ngo, ok := pathPubkey(w, r, "address")
	if !ok {
		return
	}
	index, err := strconv.ParseUint(r.PathValue("index"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidIndex", err.Error(), nil)
		return
	}
	addr, b, err := s.prog.GetBatchByIndex(ngo, index)
	if err != nil {
		writeProgramError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BatchResponse{Address: addr, Batch: b})
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	kind := state.Kind(r.URL.Query().Get("kind"))
	switch kind {
	case "", state.KindNgo, state.KindBatch:
	default:
		writeError(w, http.StatusBadRequest, "InvalidKind", "kind must be ngo or batch", nil)
		return
	}
	accounts, err := s.prog.ListAccounts(kind)
	if err != nil {
		writeProgramError(w, err)
		return
	}
	if accounts == nil {
		accounts = []program.AccountInfo{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var from uint64
	if v := q.Get("from"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "InvalidFrom", err.Error(), nil)
			return
		}
		from = n
	}
	limit := defaultEventLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "InvalidLimit", "limit must be a positive integer", nil)
			return
		}
		limit = min(n, maxEventLimit)
	}
	events, err := s.prog.Events(from, limit)
	if err != nil {
		writeProgramError(w, err)
		return
	}
	if events == nil {
		events = []program.EventInfo{}
	}
	writeJSON(w, http.StatusOK, events)
}
