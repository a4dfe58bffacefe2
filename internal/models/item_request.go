package models

// PlaceholderBarcode is the literal left behind by unfilled request templates.
const PlaceholderBarcode = "string"

// ItemRequestInformation is the normalized inbound request consumed by the
// dispatcher. Only the first barcode is used by single-item operations.
type ItemRequestInformation struct {
	ItemBarcodes          []string `json:"itemBarcodes"`
	RequestID             string   `json:"requestId,omitempty"`
	PatronBarcode         string   `json:"patronBarcode,omitempty"`
	RequestingInstitution string   `json:"requestingInstitution,omitempty"`
	ItemOwningInstitution string   `json:"itemOwningInstitution,omitempty"`
	CallInstitution       string   `json:"callInstitution,omitempty"`
	ExpirationDate        string   `json:"expirationDate,omitempty"`
	BibID                 string   `json:"bibId,omitempty"`
	PickupLocation        string   `json:"pickupLocation,omitempty"`
	DeliveryLocation      string   `json:"deliveryLocation,omitempty"`
	TrackingID            string   `json:"trackingId,omitempty"`
	TitleIdentifier       string   `json:"titleIdentifier,omitempty"`
	Author                string   `json:"author,omitempty"`
	CallNumber            string   `json:"callNumber,omitempty"`
	RequestType           string   `json:"requestType,omitempty"`
	EmailAddress          string   `json:"emailAddress,omitempty"`
}

// FirstBarcode returns the first item barcode, or "" when there is none.
func (r ItemRequestInformation) FirstBarcode() string {
	if len(r.ItemBarcodes) == 0 {
		return ""
	}
	return r.ItemBarcodes[0]
}

// ItemRefileRequest lists the barcodes and stored request ids to refile.
type ItemRefileRequest struct {
	ItemBarcodes []string `json:"itemBarcodes"`
	RequestIDs   []int64  `json:"requestIds"`
}

// BulkRequestInformation identifies the patron behind a bulk request.
type BulkRequestInformation struct {
	BulkRequestID         int64  `json:"bulkRequestId,omitempty"`
	BulkRequestName       string `json:"bulkRequestName,omitempty"`
	PatronBarcode         string `json:"patronBarcode"`
	RequestingInstitution string `json:"requestingInstitution"`
}
