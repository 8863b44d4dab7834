package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "attest/pkg/domain-errors"
)

func TestParseTenantID(t *testing.T) {
	t.Run("accepts a valid uuid", func(t *testing.T) {
		id, err := ParseTenantID("0b1e2d3c-4f5a-6b7c-8d9e-0f1a2b3c4d5e")
		require.NoError(t, err)
		assert.Equal(t, "0b1e2d3c-4f5a-6b7c-8d9e-0f1a2b3c4d5e", id.String())
	})

	t.Run("rejects empty, malformed and nil input", func(t *testing.T) {
		for _, raw := range []string{"", "not-a-uuid", "00000000-0000-0000-0000-000000000000"} {
			_, err := ParseTenantID(raw)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput), "input %q", raw)
		}
	})
}

func TestParseEvidenceID(t *testing.T) {
	_, err := ParseEvidenceID("nope")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	id := NewEvidenceID()
	parsed, err := ParseEvidenceID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestIDJSONRoundTrip(t *testing.T) {
	id := NewEvidenceID()
	raw, err := json.Marshal(id)
	require.NoError(t, err)
	assert.Equal(t, `"`+id.String()+`"`, string(raw))

	var back EvidenceID
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, id, back)
}

func TestParseIngestionPath(t *testing.T) {
	for _, raw := range []string{"DOCUMENT_UPLOAD", "MANUAL_ENTRY", "ERP_API", "SUPPLIER_PORTAL"} {
		path, err := ParseIngestionPath(raw)
		require.NoError(t, err)
		assert.Equal(t, raw, path.String())
	}
	for _, raw := range []string{"", "document_upload", "FTP"} {
		_, err := ParseIngestionPath(raw)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput), "input %q", raw)
	}
}
