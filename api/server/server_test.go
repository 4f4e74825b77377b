package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aidledger/core"
	"aidledger/core/metrics"
	"aidledger/core/notify"
	"aidledger/core/program"
	"aidledger/core/storage"
	"aidledger/core/validation"
	"aidledger/types/ids"
)

type testNode struct {
	srv   *Server
	h     http.Handler
	prog  *program.Program
	admin *core.Keypair
}

func newTestNode(t *testing.T, opts Options) *testNode {
	t.Helper()
	store, err := storage.NewMemStorage()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)
	hub := notify.NewHub(zerolog.Nop(), m)
	t.Cleanup(hub.Close)

	prog := program.New(store, program.Options{
		ProgramID: program.DefaultProgramID,
		Logger:    zerolog.Nop(),
		Metrics:   m,
		Publisher: hub,
	})
	v, err := validation.New(nil)
	require.NoError(t, err)

	if opts.EventBuffer == 0 {
		opts.EventBuffer = 16
	}
	opts.Gatherer = reg
	opts.Logger = zerolog.Nop()
	srv := NewServer(prog, store, hub, v, opts)

	admin, err := core.KeypairFromSeed(bytes.Repeat([]byte{1}, 32))
	require.NoError(t, err)
	return &testNode{srv: srv, h: srv.Handler(), prog: prog, admin: admin}
}

func (n *testNode) do(t *testing.T, method, path string, body []byte, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	return n.doFrom(t, "192.0.2.1:1234", method, path, body, header)
}

func (n *testNode) doFrom(t *testing.T, remote, method, path string, body []byte, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.RemoteAddr = remote
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	n.h.ServeHTTP(rec, req)
	return rec
}

func (n *testNode) postTx(t *testing.T, kp *core.Keypair, ins program.Instruction, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	tx, err := program.NewTransaction(kp, program.DefaultProgramID, ins)
	require.NoError(t, err)
	body, err := json.Marshal(tx)
	require.NoError(t, err)
	return n.do(t, http.MethodPost, "/api/v1/tx", body, header)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func batchArgs(ngo ids.Pubkey, index uint64) program.SubmitBatch {
	return program.SubmitBatch{
		Ngo:        ngo,
		BatchIndex: index,
		DataURI:    "ipfs://data0",
		Region:     "east-africa",
		ProgramTag: "food-aid",
		StartTime:  1000,
		EndTime:    2000,
	}
}

func TestSubmitAndQuery(t *testing.T) {
	n := newTestNode(t, Options{})

	rec := n.postTx(t, n.admin, program.RegisterNgo{MetadataURI: "ipfs://meta1"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	reg := decode[program.Receipt](t, rec)
	assert.Equal(t, program.RegisterNgoName, reg.Instruction)
	require.NotNil(t, reg.Ngo)
	assert.Equal(t, "ipfs://meta1", reg.Ngo.MetadataURI)

	rec = n.do(t, http.MethodGet, "/api/v1/ngo/admin/"+n.admin.Public.String(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	byAdmin := decode[NgoResponse](t, rec)
	assert.Equal(t, reg.Address, byAdmin.Address)

	rec = n.do(t, http.MethodGet, "/api/v1/ngo/"+reg.Address.String(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = n.postTx(t, n.admin, batchArgs(reg.Address, 0), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sub := decode[program.Receipt](t, rec)
	require.NotNil(t, sub.EventSeq)

	rec = n.do(t, http.MethodGet, "/api/v1/ngo/"+reg.Address.String()+"/batch/0", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	b := decode[BatchResponse](t, rec)
	assert.Equal(t, sub.Address, b.Address)
	assert.Equal(t, "east-africa", b.Batch.Region)

	rec = n.do(t, http.MethodGet, "/api/v1/batch/"+sub.Address.String(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = n.do(t, http.MethodGet, "/api/v1/accounts?kind=batch", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]program.AccountInfo](t, rec), 1)

	rec = n.do(t, http.MethodGet, "/api/v1/accounts", nil, nil)
	assert.Len(t, decode[[]program.AccountInfo](t, rec), 2)

	rec = n.do(t, http.MethodGet, "/api/v1/events?from=0&limit=10", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	events := decode[[]program.EventInfo](t, rec)
	require.Len(t, events, 1)
	assert.Equal(t, reg.Address, events[0].Event.Ngo)
}

func TestSubmitErrors(t *testing.T) {
	n := newTestNode(t, Options{})
	rec := n.postTx(t, n.admin, program.RegisterNgo{MetadataURI: "ipfs://meta1"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	reg := decode[program.Receipt](t, rec)

	t.Run("duplicate registration", func(t *testing.T) {
		rec := n.postTx(t, n.admin, program.RegisterNgo{MetadataURI: "ipfs://again"}, nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
		resp := decode[ErrorResponse](t, rec)
		assert.Equal(t, "DuplicateAllocation", resp.Error)
		require.NotNil(t, resp.Code)
		assert.Equal(t, uint32(0), *resp.Code)
	})

	t.Run("unauthorized submitter", func(t *testing.T) {
		intruder, err := core.KeypairFromSeed(bytes.Repeat([]byte{2}, 32))
		require.NoError(t, err)
		rec := n.postTx(t, intruder, batchArgs(reg.Address, 0), nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		resp := decode[ErrorResponse](t, rec)
		assert.Equal(t, "Unauthorized", resp.Error)
		require.NotNil(t, resp.Code)
		assert.Equal(t, uint32(6000), *resp.Code)
	})

	t.Run("oversized field", func(t *testing.T) {
		args := batchArgs(reg.Address, 1)
		args.Region = strings.Repeat("r", 65)
		rec := n.postTx(t, n.admin, args, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("unknown ngo", func(t *testing.T) {
		rec := n.postTx(t, n.admin, batchArgs(ids.NewID([]byte("nobody")), 0), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("bad envelope", func(t *testing.T) {
		rec := n.do(t, http.MethodPost, "/api/v1/tx", []byte(`{"message":"AAAA"}`), nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "InvalidPayload", decode[ErrorResponse](t, rec).Error)
	})

	t.Run("tampered signature", func(t *testing.T) {
		tx, err := program.NewTransaction(n.admin, program.DefaultProgramID, program.RegisterNgo{})
		require.NoError(t, err)
		tx.Signature[0] ^= 0xff
		body, err := json.Marshal(tx)
		require.NoError(t, err)
		rec := n.do(t, http.MethodPost, "/api/v1/tx", body, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing record", func(t *testing.T) {
		rec := n.do(t, http.MethodGet, "/api/v1/batch/"+ids.NewID([]byte("x")).String(), nil, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("bad address", func(t *testing.T) {
		rec := n.do(t, http.MethodGet, "/api/v1/ngo/not-an-address", nil, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad kind", func(t *testing.T) {
		rec := n.do(t, http.MethodGet, "/api/v1/accounts?kind=wallet", nil, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestInspectTx(t *testing.T) {
	n := newTestNode(t, Options{})
	tx, err := program.NewTransaction(n.admin, program.DefaultProgramID, program.RegisterNgo{MetadataURI: "ipfs://meta1"})
	require.NoError(t, err)
	body, err := json.Marshal(tx)
	require.NoError(t, err)

	rec := n.do(t, http.MethodPost, "/api/v1/tx/inspect", body, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Signer        ids.Pubkey `json:"signer"`
		SignatureOK   bool       `json:"signature_ok"`
		Instruction   string     `json:"instruction"`
		TargetAddress ids.Pubkey `json:"target_address"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.SignatureOK)
	assert.Equal(t, program.RegisterNgoName, resp.Instruction)
	assert.Equal(t, n.admin.Public, resp.Signer)

	addr, _, err := n.prog.GetNgoByAdmin(n.admin.Public)
	assert.ErrorIs(t, err, program.ErrAccountNotFound, "inspect must not execute")
	assert.Equal(t, addr, resp.TargetAddress)
}

func TestJWTGate(t *testing.T) {
	secret := "test-secret"
	n := newTestNode(t, Options{JWTSecret: secret})

	rec := n.postTx(t, n.admin, program.RegisterNgo{MetadataURI: "ipfs://meta1"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	bad := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "ops"})
	badToken, err := bad.SignedString([]byte("wrong"))
	require.NoError(t, err)
	rec = n.postTx(t, n.admin, program.RegisterNgo{MetadataURI: "ipfs://meta1"}, map[string]string{"Authorization": "Bearer " + badToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	good := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "ops",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	token, err := good.SignedString([]byte(secret))
	require.NoError(t, err)
	rec = n.postTx(t, n.admin, program.RegisterNgo{MetadataURI: "ipfs://meta1"}, map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Reads stay open.
	rec = n.do(t, http.MethodGet, "/api/v1/accounts", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	n := newTestNode(t, Options{RateLimitPerMin: 2})

	for i := 0; i < 2; i++ {
		rec := n.do(t, http.MethodGet, "/health/liveness", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := n.do(t, http.MethodGet, "/health/liveness", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "600", rec.Header().Get("Retry-After"))

	// A different client is unaffected.
	rec = n.doFrom(t, "198.51.100.4:4000", http.MethodGet, "/health/liveness", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitIgnoresForwardedForFromUntrustedPeers(t *testing.T) {
	n := newTestNode(t, Options{RateLimitPerMin: 2})
	victim := map[string]string{"X-Forwarded-For": "203.0.113.7"}

	// Requests claiming to come from the victim are charged to the sender.
	for i := 0; i < 3; i++ {
		n.doFrom(t, "198.51.100.1:1000", http.MethodGet, "/health/liveness", nil, victim)
	}
	rec := n.doFrom(t, "203.0.113.7:5555", http.MethodGet, "/health/liveness", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Rotating the header does not reset the sender's window.
	m := newTestNode(t, Options{RateLimitPerMin: 2})
	limited := 0
	for i := 0; i < 50; i++ {
		hdr := map[string]string{"X-Forwarded-For": fmt.Sprintf("10.9.0.%d", i)}
		if m.doFrom(t, "198.51.100.2:2000", http.MethodGet, "/health/liveness", nil, hdr).Code == http.StatusTooManyRequests {
			limited++
		}
	}
	assert.Equal(t, 48, limited)
	assert.LessOrEqual(t, m.srv.limiter.Tracked(), 1)
	assert.Equal(t, 1, m.srv.GetNodeMetrics().BannedClients)
}

func TestRateLimitTrustedProxy(t *testing.T) {
	n := newTestNode(t, Options{RateLimitPerMin: 1, TrustedProxies: []string{"10.0.0.0/8", "bogus"}})
	hdr := map[string]string{"X-Forwarded-For": "1.2.3.4, 203.0.113.9, 10.0.0.7"}

	rec := n.doFrom(t, "10.0.0.5:80", http.MethodGet, "/health/liveness", nil, hdr)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = n.doFrom(t, "10.0.0.5:80", http.MethodGet, "/health/liveness", nil, hdr)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Another client behind the same proxy has its own window.
	rec = n.doFrom(t, "10.0.0.5:80", http.MethodGet, "/health/liveness", nil, map[string]string{"X-Forwarded-For": "203.0.113.10"})
	assert.Equal(t, http.StatusOK, rec.Code)

	// The proxy's own requests are keyed on the proxy.
	rec = n.doFrom(t, "10.0.0.5:80", http.MethodGet, "/health/liveness", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.5:80"
	req.Header.Set("X-Forwarded-For", "1.2.3.4, 203.0.113.9, 10.0.0.7")
	assert.Equal(t, "203.0.113.9", n.srv.clientIP(req))
}

func TestRateLimiterForgetsIdleClients(t *testing.T) {
	l := newRateLimiter(5)
	now := time.Unix(0, 0)
	l.now = func() time.Time { return now }

	for i := 0; i < 20; i++ {
		l.Allow(fmt.Sprintf("client-%d", i))
	}
	assert.Equal(t, 20, l.Tracked())

	now = now.Add(rateLimitWindow + time.Second)
	ok, _ := l.Allow("fresh")
	require.True(t, ok)
	assert.Equal(t, 1, l.Tracked())
}

func TestRateLimiterProgressiveBans(t *testing.T) {
	l := newRateLimiter(1)
	now := time.Unix(0, 0)
	l.now = func() time.Time { return now }

	ok, _ := l.Allow("a")
	require.True(t, ok)
	ok, dur := l.Allow("a")
	require.False(t, ok)
	assert.Equal(t, banDurations[0], dur)
	assert.Equal(t, 1, l.Banned())

	now = now.Add(banDurations[0] + time.Second)
	ok, _ = l.Allow("a")
	require.True(t, ok)
	ok, dur = l.Allow("a")
	require.False(t, ok)
	assert.Equal(t, banDurations[1], dur)
}

func TestHealthAndStatus(t *testing.T) {
	n := newTestNode(t, Options{})
	rec := n.postTx(t, n.admin, program.RegisterNgo{MetadataURI: "ipfs://meta1"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = n.do(t, http.MethodGet, "/health/liveness", nil, nil)
	assert.True(t, decode[LivenessResponse](t, rec).Alive)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = n.do(t, http.MethodGet, "/health/liveness", nil, map[string]string{"X-Request-ID": "req-42"})
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))

	rec = n.do(t, http.MethodGet, "/health/readiness", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[ReadinessResponse](t, rec).Ready)

	n.srv.SetReadiness(func() bool { return false })
	rec = n.do(t, http.MethodGet, "/health/readiness", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = n.do(t, http.MethodGet, "/status", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[StatusResponse](t, rec)
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, program.DefaultProgramID.String(), status.ProgramID)
	assert.Equal(t, 1, status.Accounts)
	assert.Equal(t, "v1", status.APIVersion)

	rec = n.do(t, http.MethodGet, "/nodehealth", nil, nil)
	assert.Equal(t, "healthy", decode[NodeHealthResponse](t, rec).Status)

	rec = n.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `aidledger_instructions_total{instruction="register_ngo",result="ok"} 1`)
}

func TestEventStream(t *testing.T) {
	n := newTestNode(t, Options{})
	ts := httptest.NewServer(n.h)
	defer ts.Close()

	rec := n.postTx(t, n.admin, program.RegisterNgo{MetadataURI: "ipfs://meta1"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	reg := decode[program.Receipt](t, rec)
	rec = n.postTx(t, n.admin, batchArgs(reg.Address, 0), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/events/stream?from=0", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// The replayed batch 0 arrives first, then the live batch 1.
	rec = n.postTx(t, n.admin, batchArgs(reg.Address, 1), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	scanner := bufio.NewScanner(resp.Body)
	var got []notify.Notification
	for len(got) < 2 && scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var note notify.Notification
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &note))
		got = append(got, note)
	}
	require.Len(t, got, 2)
	assert.Equal(t, uint64(0), got[0].Event.BatchIndex)
	assert.Equal(t, uint64(1), got[1].Event.BatchIndex)
	assert.Equal(t, uint64(1), got[1].Seq)
}

func readNotes(t *testing.T, scanner *bufio.Scanner, count int) []notify.Notification {
	t.Helper()
	var got []notify.Notification
	for len(got) < count && scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var note notify.Notification
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &note))
		got = append(got, note)
	}
	return got
}

func TestEventStreamReplaysInPages(t *testing.T) {
	n := newTestNode(t, Options{})
	n.srv.replayPage = 2
	ts := httptest.NewServer(n.srv.Handler())
	defer ts.Close()

	rec := n.postTx(t, n.admin, program.RegisterNgo{}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	reg := decode[program.Receipt](t, rec)
	for i := uint64(0); i < 5; i++ {
		rec = n.postTx(t, n.admin, batchArgs(reg.Address, i), nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/events/stream?from=1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	rec = n.postTx(t, n.admin, batchArgs(reg.Address, 5), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	got := readNotes(t, bufio.NewScanner(resp.Body), 5)
	require.Len(t, got, 5)
	for i, note := range got {
		assert.Equal(t, uint64(i+1), note.Seq)
		assert.Equal(t, uint64(i+1), note.Event.BatchIndex)
	}
}
