package domain

import dErrors "attest/pkg/domain-errors"

// IngestionPath identifies the channel an evidence record arrived through.
// Invariant: the value must be one of the supported paths.
type IngestionPath string

const (
	IngestionPathDocumentUpload IngestionPath = "DOCUMENT_UPLOAD"
	IngestionPathManualEntry    IngestionPath = "MANUAL_ENTRY"
	IngestionPathERPAPI         IngestionPath = "ERP_API"
	IngestionPathSupplierPortal IngestionPath = "SUPPLIER_PORTAL"
)

// validIngestionPaths is the single source of truth for supported paths.
var validIngestionPaths = map[IngestionPath]bool{
	IngestionPathDocumentUpload: true,
	IngestionPathManualEntry:    true,
	IngestionPathERPAPI:         true,
	IngestionPathSupplierPortal: true,
}

// ParseIngestionPath constructs an IngestionPath from external input.
//
// Errors: CodeInvalidInput when the value is empty or unsupported.
func ParseIngestionPath(s string) (IngestionPath, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "ingestion path cannot be empty")
	}
	p := IngestionPath(s)
	if !p.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid ingestion path")
	}
	return p, nil
}

// IsValid checks if the path is one of the supported enum values.
func (p IngestionPath) IsValid() bool {
	return validIngestionPaths[p]
}

func (p IngestionPath) String() string { return string(p) }
