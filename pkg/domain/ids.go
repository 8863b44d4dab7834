// Package domain holds shared domain primitives: typed identifiers and the
// ingestion path enum. Construct values via the Parse* functions at trust
// boundaries; direct casting bypasses validation.
package domain

import (
	"github.com/google/uuid"

	dErrors "attest/pkg/domain-errors"
)

// TenantID identifies a tenant organization.
// Invariant: a valid, non-nil UUID.
type TenantID uuid.UUID

// EvidenceID is the stable business key of an evidence record, unique within a
// tenant. Storage-internal row ids are plain uuid.UUIDs and never leave a store.
type EvidenceID uuid.UUID

func parseUUID(s, what string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+what)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" cannot be the nil UUID")
	}
	return u, nil
}

// ParseTenantID validates external input into a TenantID.
func ParseTenantID(s string) (TenantID, error) {
	u, err := parseUUID(s, "tenant id")
	if err != nil {
		return TenantID{}, err
	}
	return TenantID(u), nil
}

// ParseEvidenceID validates external input into an EvidenceID.
func ParseEvidenceID(s string) (EvidenceID, error) {
	u, err := parseUUID(s, "evidence id")
	if err != nil {
		return EvidenceID{}, err
	}
	return EvidenceID(u), nil
}

// NewEvidenceID mints a fresh evidence business key.
func NewEvidenceID() EvidenceID { return EvidenceID(uuid.New()) }

func (t TenantID) IsNil() bool    { return uuid.UUID(t) == uuid.Nil }
func (t TenantID) String() string { return uuid.UUID(t).String() }

// MarshalText encodes the id as its canonical UUID string so JSON and text
// encodings match the wire format.
func (t TenantID) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *TenantID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*t = TenantID(u)
	return nil
}

func (e EvidenceID) IsNil() bool    { return uuid.UUID(e) == uuid.Nil }
func (e EvidenceID) String() string { return uuid.UUID(e).String() }

func (e EvidenceID) MarshalText() ([]byte, error) { return []byte(e.String()), nil }

func (e *EvidenceID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*e = EvidenceID(u)
	return nil
}
