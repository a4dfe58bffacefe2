// Package ils holds the per-institution protocol connectors and the registry
// that selects one by institution code.
package ils

import (
	"context"

	apperrors "circulation-workers/internal/common/errors"
	"circulation-workers/internal/models"
)

// Capability names, as listed in an institution's configuration.
const (
	CapCheckout          = "checkout"
	CapCheckin           = "checkin"
	CapHold              = "hold"
	CapCancelHold        = "cancel-hold"
	CapCreateBib         = "create-bib"
	CapItemInformation   = "item-information"
	CapRecall            = "recall"
	CapPatronInformation = "patron-information"
	CapRefile            = "refile"
	CapPatronValidation  = "patron-validation"
)

// DefaultCapabilities is used when an institution lists none. Refiling in the
// ILS is institution specific and must be enabled explicitly.
var DefaultCapabilities = []string{
	CapCheckout, CapCheckin, CapHold, CapCancelHold, CapCreateBib,
	CapItemInformation, CapRecall, CapPatronInformation, CapPatronValidation,
}

// HoldParams carries the fields used by hold, cancel hold and recall.
type HoldParams struct {
	ItemBarcode           string `json:"itemBarcode"`
	RequestID             string `json:"requestId,omitempty"`
	PatronBarcode         string `json:"patronBarcode"`
	RequestingInstitution string `json:"requestingInstitution,omitempty"`
	ItemOwningInstitution string `json:"itemOwningInstitution,omitempty"`
	ExpirationDate        string `json:"expirationDate,omitempty"`
	BibID                 string `json:"bibId,omitempty"`
	PickupLocation        string `json:"pickupLocation,omitempty"`
	TrackingID            string `json:"trackingId,omitempty"`
	TitleIdentifier       string `json:"titleIdentifier,omitempty"`
	Author                string `json:"author,omitempty"`
	CallNumber            string `json:"callNumber,omitempty"`
}

// Connector is the capability surface every ILS protocol implements. A
// returned error means the call itself failed; an ILS refusal comes back as
// a response with Success=false.
type Connector interface {
	CheckOutItem(ctx context.Context, itemBarcode, requestID, patronBarcode string) (*models.ItemCheckoutResponse, error)
	CheckInItem(ctx context.Context, itemBarcode, requestID, patronBarcode string) (*models.ItemCheckinResponse, error)
	PlaceHold(ctx context.Context, p HoldParams) (*models.ItemHoldResponse, error)
	CancelHold(ctx context.Context, p HoldParams) (*models.ItemHoldResponse, error)
	CreateBib(ctx context.Context, itemBarcode, patronBarcode, institution, titleIdentifier string) (*models.ItemCreateBibResponse, error)
	LookupItem(ctx context.Context, itemBarcode string) (*models.ItemInformationResponse, error)
	RecallItem(ctx context.Context, p HoldParams) (*models.ItemRecallResponse, error)
	LookupPatron(ctx context.Context, patronBarcode string) (*models.PatronInformationResponse, error)
	RefileItem(ctx context.Context, itemBarcode string) (*models.ItemRefileResponse, error)
	PatronValidation(ctx context.Context, institution, patronBarcode string) (bool, error)
}

// Unsupported fails every capability with UNSUPPORTED_OPERATION. Connectors
// embed it and override what they implement.
type Unsupported struct {
	Institution string
}

func (u Unsupported) fail(op string) error {
	return apperrors.NewUnsupportedOperationError(u.Institution, op)
}

func (u Unsupported) CheckOutItem(context.Context, string, string, string) (*models.ItemCheckoutResponse, error) {
	return nil, u.fail(CapCheckout)
}

func (u Unsupported) CheckInItem(context.Context, string, string, string) (*models.ItemCheckinResponse, error) {
	return nil, u.fail(CapCheckin)
}

func (u Unsupported) PlaceHold(context.Context, HoldParams) (*models.ItemHoldResponse, error) {
	return nil, u.fail(CapHold)
}

func (u Unsupported) CancelHold(context.Context, HoldParams) (*models.ItemHoldResponse, error) {
	return nil, u.fail(CapCancelHold)
}

func (u Unsupported) CreateBib(context.Context, string, string, string, string) (*models.ItemCreateBibResponse, error) {
	return nil, u.fail(CapCreateBib)
}

func (u Unsupported) LookupItem(context.Context, string) (*models.ItemInformationResponse, error) {
	return nil, u.fail(CapItemInformation)
}

func (u Unsupported) RecallItem(context.Context, HoldParams) (*models.ItemRecallResponse, error) {
	return nil, u.fail(CapRecall)
}

func (u Unsupported) LookupPatron(context.Context, string) (*models.PatronInformationResponse, error) {
	return nil, u.fail(CapPatronInformation)
}

func (u Unsupported) RefileItem(context.Context, string) (*models.ItemRefileResponse, error) {
	return nil, u.fail(CapRefile)
}

func (u Unsupported) PatronValidation(context.Context, string, string) (bool, error) {
	return false, u.fail(CapPatronValidation)
}
