package models

import "time"

// RequestStatus is the persisted lifecycle state of a request.
type RequestStatus string

const (
	StatusPending              RequestStatus = "PENDING"
	StatusLASItemStatusPending RequestStatus = "LAS_ITEM_STATUS_PENDING"
	StatusRetrievalOrderPlaced RequestStatus = "RETRIEVAL_ORDER_PLACED"
	StatusRecallOrderPlaced    RequestStatus = "RECALL_ORDER_PLACED"
	StatusEDDOrderPlaced       RequestStatus = "EDD_ORDER_PLACED"
	StatusRefiled              RequestStatus = "REFILED"
	StatusCanceled             RequestStatus = "CANCELED"
	StatusException            RequestStatus = "EXCEPTION"
)

const (
	rankPending = iota + 1
	rankInFlight
	rankTerminal
)

var statusRank = map[RequestStatus]int{
	StatusPending:              rankPending,
	StatusLASItemStatusPending: rankPending,
	StatusRetrievalOrderPlaced: rankInFlight,
	StatusRecallOrderPlaced:    rankInFlight,
	StatusEDDOrderPlaced:       rankInFlight,
	StatusRefiled:              rankTerminal,
	StatusCanceled:             rankTerminal,
	StatusException:            rankTerminal,
}

// IsValid reports whether s is a known status.
func (s RequestStatus) IsValid() bool {
	_, ok := statusRank[s]
	return ok
}

// IsTerminal reports whether no further transition is allowed out of s.
func (s RequestStatus) IsTerminal() bool {
	return statusRank[s] == rankTerminal
}

// CanTransition reports whether a request may move from one status to
// another. Terminal statuses never change and a request never moves back to
// a lower rank (e.g. in-flight back to pending).
func CanTransition(from, to RequestStatus) bool {
	fromRank, okFrom := statusRank[from]
	toRank, okTo := statusRank[to]
	if !okFrom || !okTo {
		return false
	}
	if fromRank == rankTerminal {
		return false
	}
	return toRank >= fromRank
}

// Request type codes used to partition retention windows.
const (
	RequestTypeRetrieval    = "RETRIEVAL"
	RequestTypeRecall       = "RECALL"
	RequestTypeEDD          = "EDD"
	RequestTypeBorrowDirect = "BORROW DIRECT"
)

// RequestType is one row of the request_types table.
type RequestType struct {
	ID   int    `json:"id"`
	Code string `json:"code"`
}

// IsEDD reports whether the type is fulfilled electronically.
func (t RequestType) IsEDD() bool {
	return t.Code == RequestTypeEDD
}

// ItemReference is the bibliographic identity of a physical item.
type ItemReference struct {
	Barcode           string `json:"barcode"`
	OwningInstitution string `json:"owningInstitution"`
	BibID             string `json:"bibId,omitempty"`
	CallNumber        string `json:"callNumber,omitempty"`
	Title             string `json:"title,omitempty"`
	Author            string `json:"author,omitempty"`
}

// RequestRecord is a persisted item request.
type RequestRecord struct {
	ID                    int64         `json:"id"`
	ItemID                int64         `json:"itemId"`
	Item                  ItemReference `json:"item"`
	PatronBarcode         string        `json:"patronBarcode"`
	RequestingInstitution string        `json:"requestingInstitution"`
	RequestTypeID         int           `json:"requestTypeId"`
	RequestTypeCode       string        `json:"requestTypeCode"`
	Status                RequestStatus `json:"status"`
	PickupLocation        string        `json:"pickupLocation,omitempty"`
	DeliveryLocation      string        `json:"deliveryLocation,omitempty"`
	EmailID               string        `json:"emailId,omitempty"`
	TrackingID            string        `json:"trackingId,omitempty"`
	CreatedAt             time.Time     `json:"createdAt"`
	LastUpdatedAt         time.Time     `json:"lastUpdatedAt"`
	Version               int           `json:"version"`
}

// OwningInstitution is the institution that holds the item.
func (r RequestRecord) OwningInstitution() string {
	return r.Item.OwningInstitution
}
