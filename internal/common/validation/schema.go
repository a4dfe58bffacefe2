package validation

import (
	"fmt"
	"strings"

	apperrors "circulation-workers/internal/common/errors"

	"github.com/xeipuuv/gojsonschema"
)

// Schemas for job variables. They check shape only: missing or placeholder
// barcodes are business outcomes reported in the response, not input errors.
const (
	ItemRequestSchema = `{
	"type": "object",
	"properties": {
		"itemBarcodes":          {"type": ["array", "null"], "items": {"type": "string"}},
		"requestId":             {"type": ["string", "null"]},
		"patronBarcode":         {"type": ["string", "null"]},
		"requestingInstitution": {"type": ["string", "null"]},
		"itemOwningInstitution": {"type": ["string", "null"]},
		"callInstitution":       {"type": ["string", "null"]},
		"expirationDate":        {"type": ["string", "null"]},
		"bibId":                 {"type": ["string", "null"]},
		"pickupLocation":        {"type": ["string", "null"]},
		"deliveryLocation":      {"type": ["string", "null"]},
		"trackingId":            {"type": ["string", "null"]},
		"titleIdentifier":       {"type": ["string", "null"]},
		"author":                {"type": ["string", "null"]},
		"callNumber":            {"type": ["string", "null"]}
	}
}`

	RefileRequestSchema = `{
	"type": "object",
	"required": ["itemBarcodes", "requestIds"],
	"properties": {
		"itemBarcodes": {"type": "array", "items": {"type": "string"}},
		"requestIds":   {"type": "array", "items": {"type": "integer"}}
	}
}`

	BulkRequestSchema = `{
	"type": "object",
	"required": ["patronBarcode", "requestingInstitution"],
	"properties": {
		"bulkRequestId":         {"type": "integer"},
		"patronBarcode":         {"type": "string"},
		"requestingInstitution": {"type": "string"}
	}
}`

	StatusTransitionSchema = `{
	"type": "object",
	"required": ["requestId", "expectedVersion", "status"],
	"properties": {
		"requestId":       {"type": "integer", "minimum": 1},
		"expectedVersion": {"type": "integer", "minimum": 0},
		"status":          {"type": "string", "minLength": 1}
	}
}`
)

// Validator checks JSON documents against one compiled schema.
type Validator struct {
	schema *gojsonschema.Schema
}

func NewValidator(schemaJSON string) (*Validator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// MustValidator panics on an invalid schema; for package-level schemas.
func MustValidator(schemaJSON string) *Validator {
	v, err := NewValidator(schemaJSON)
	if err != nil {
		panic(err)
	}
	return v
}

// ValidateJSON returns a VALIDATION_ERROR describing every violation.
func (v *Validator) ValidateJSON(document string) error {
	if strings.TrimSpace(document) == "" {
		document = "{}"
	}
	result, err := v.schema.Validate(gojsonschema.NewStringLoader(document))
	if err != nil {
		return apperrors.NewValidationError("Invalid job variables", err.Error())
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return apperrors.NewValidationError("Invalid job variables", strings.Join(errs, "; "))
	}
	return nil
}
