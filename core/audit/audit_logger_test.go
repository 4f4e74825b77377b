package audit

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZerologAuditLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewZerologAuditLogger(zerolog.New(&buf))

	l.LogEvent(AuditEvent{
		EventType: "SubmitBatch",
		EntityID:  "caller",
		Result:    ResultFailure,
		Reason:    "Unauthorized",
		Metadata:  map[string]string{"ngo": "addr"},
	})

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "audit", line["component"])
	assert.Equal(t, "SubmitBatch", line["event_type"])
	assert.Equal(t, "Unauthorized", line["reason"])
	assert.Equal(t, "addr", line["ngo"])
	assert.NotEmpty(t, line["audit_id"])
}
