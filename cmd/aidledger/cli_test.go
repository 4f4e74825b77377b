package main

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aidledger/api/server"
	"aidledger/core/address"
	"aidledger/core/metrics"
	"aidledger/core/notify"
	"aidledger/core/program"
	"aidledger/core/state"
	"aidledger/core/storage"
	"aidledger/core/validation"
	"aidledger/types/ids"
)

func startNode(t *testing.T) string {
	t.Helper()
	store, err := storage.NewMemStorage()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)
	hub := notify.NewHub(zerolog.Nop(), m)
	t.Cleanup(hub.Close)
	prog := program.New(store, program.Options{Logger: zerolog.Nop(), Metrics: m, Publisher: hub})
	v, err := validation.New(nil)
	require.NoError(t, err)
	srv := server.NewServer(prog, store, hub, v, server.Options{EventBuffer: 8, Gatherer: reg, Logger: zerolog.Nop()})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

// run executes the CLI with JSON output and decodes what it prints into out.
func run(t *testing.T, out any, args ...string) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs(append([]string{"-o", "json"}, args...))
	require.NoError(t, rootCmd.Execute(), buf.String())
	if out != nil {
		require.NoError(t, json.Unmarshal(buf.Bytes(), out), buf.String())
	}
}

func TestKeygenAndAddress(t *testing.T) {
	dir := t.TempDir()
	key := filepath.Join(dir, "admin.json")

	var gen map[string]string
	run(t, &gen, "keygen", "--outfile", key)
	admin, err := ids.FromBase58(gen["pubkey"])
	require.NoError(t, err)

	var derived struct {
		Address string `json:"address"`
		Bump    uint8  `json:"bump"`
	}
	run(t, &derived, "address", "ngo", "--keypair", key, "--admin", "")
	want, err := address.NgoAddress(program.DefaultProgramID, admin)
	require.NoError(t, err)
	assert.Equal(t, want.Address.String(), derived.Address)
	assert.Equal(t, want.Bump, derived.Bump)

	var pub map[string]string
	run(t, &pub, "pubkey", "--keypair", key)
	assert.Equal(t, admin.String(), pub["pubkey"])

	// The hex form of the admin key derives the same address.
	run(t, &derived, "address", "ngo", "--admin", pub["hex"])
	assert.Equal(t, want.Address.String(), derived.Address)
}

func TestRegisterSubmitAndQuery(t *testing.T) {
	url := startNode(t)
	dir := t.TempDir()
	key := filepath.Join(dir, "admin.json")
	run(t, nil, "keygen", "--outfile", key)

	rows := filepath.Join(dir, "rows.csv")
	require.NoError(t, os.WriteFile(rows, []byte("a,1\nb,2\nc,3\n"), 0o600))

	var reg program.Receipt
	run(t, &reg, "register", "--url", url, "--keypair", key, "--metadata-uri", "ipfs://meta1", "--dry-run=false")
	require.NotNil(t, reg.Ngo)
	assert.Equal(t, "ipfs://meta1", reg.Ngo.MetadataURI)

	var sub program.Receipt
	run(t, &sub, "submit", "--url", url, "--keypair", key,
		"--index", "3", "--rows", rows, "--data-uri", "ipfs://data3",
		"--region", "east-africa", "--program-tag", "food-aid",
		"--start", "1000", "--end", "2000", "--dry-run=false")
	require.NotNil(t, sub.Batch)
	assert.Equal(t, reg.Address, sub.Batch.Ngo)
	assert.Equal(t, uint64(3), sub.Batch.BatchIndex)
	assert.NotEqual(t, state.MerkleRoot{}, sub.Batch.MerkleRoot)

	var batch server.BatchResponse
	run(t, &batch, "batch", "--url", url, "--ngo", reg.Address.String(), "--index", "3")
	assert.Equal(t, sub.Address, batch.Address)

	var events []program.EventInfo
	run(t, &events, "events", "--url", url, "--from", "0", "--limit", "10", "--follow=false")
	require.Len(t, events, 1)
	assert.Equal(t, sub.Batch.MerkleRoot, events[0].Event.MerkleRoot)
}
