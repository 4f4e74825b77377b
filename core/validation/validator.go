// Package validation checks untrusted JSON documents against embedded JSON
// schemas before they are decoded: signed transaction envelopes posted to
// the node and batch manifests read by the CLI.
package validation

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"aidledger/core"
	"aidledger/core/audit"
	"aidledger/core/state"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var ErrInvalidPayload = errors.New("payload failed schema validation")

// Validator holds compiled schemas.
type Validator struct {
	transaction *gojsonschema.Schema
	manifest    *gojsonschema.Schema
	audit       audit.AuditLogger
}

// New compiles the embedded schemas. A nil auditor discards audit events.
func New(auditor audit.AuditLogger) (*Validator, error) {
	if auditor == nil {
		auditor = audit.NopAuditLogger{}
	}
	tx, err := compile("schemas/transaction.json")
	if err != nil {
		return nil, err
	}
	manifest, err := compile("schemas/batch_manifest.json")
	if err != nil {
		return nil, err
	}
	return &Validator{transaction: tx, manifest: manifest, audit: auditor}, nil
}

func compile(name string) (*gojsonschema.Schema, error) {
	raw, err := schemaFS.ReadFile(name)
	if err != nil {
		return nil, err
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	return schema, nil
}

func (v *Validator) check(schema *gojsonschema.Schema, kind string, payload []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		v.auditFailure(kind, "invalid JSON")
		return fmt.Errorf("%w: invalid JSON: %v", ErrInvalidPayload, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		reason := strings.Join(msgs, "; ")
		v.auditFailure(kind, reason)
		return fmt.Errorf("%w: %s", ErrInvalidPayload, reason)
	}
	return nil
}

func (v *Validator) auditFailure(kind, reason string) {
	v.audit.LogEvent(audit.AuditEvent{
		EventType: "Validation",
		EntityID:  kind,
		Result:    audit.ResultFailure,
		Reason:    reason,
	})
}

// DecodeTransaction validates and decodes a signed transaction envelope.
func (v *Validator) DecodeTransaction(payload []byte) (*core.Transaction, error) {
	if err := v.check(v.transaction, "transaction", payload); err != nil {
		return nil, err
	}
	var tx core.Transaction
	if err := json.Unmarshal(payload, &tx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if len(tx.Message) < core.MessageHeaderLen {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, core.ErrMessageTooShort)
	}
	return &tx, nil
}

// Manifest describes a batch to submit. Either MerkleRoot or RowsFile
// supplies the commitment.
type Manifest struct {
	BatchIndex uint64            `json:"batch_index"`
	MerkleRoot *state.MerkleRoot `json:"merkle_root,omitempty"`
	RowsFile   string            `json:"rows_file,omitempty"`
	DataURI    string            `json:"data_uri"`
	Region     string            `json:"region"`
	ProgramTag string            `json:"program_tag"`
	StartTime  int64             `json:"start_time"`
	EndTime    int64             `json:"end_time"`
}

// DecodeManifest validates and decodes a batch manifest. Byte bounds are
// checked here too, since the schema counts characters.
func (v *Validator) DecodeManifest(payload []byte) (*Manifest, error) {
	if err := v.check(v.manifest, "manifest", payload); err != nil {
		return nil, err
	}
	var m Manifest
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	for _, f := range []struct {
		name string
		val  string
		max  int
	}{
		{"data_uri", m.DataURI, state.MaxDataURILen},
		{"region", m.Region, state.MaxRegionLen},
		{"program_tag", m.ProgramTag, state.MaxProgramTagLen},
	} {
		if len(f.val) > f.max {
			v.auditFailure("manifest", f.name+" too long")
			return nil, fmt.Errorf("%w: %s is %d bytes, max %d", state.ErrOversizedField, f.name, len(f.val), f.max)
		}
	}
	if (m.MerkleRoot == nil) == (m.RowsFile == "") {
		return nil, fmt.Errorf("%w: exactly one of merkle_root or rows_file is required", ErrInvalidPayload)
	}
	return &m, nil
}
