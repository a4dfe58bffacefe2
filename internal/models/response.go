package models

// Envelope is implemented by every dispatcher response.
type Envelope interface {
	Header() *ResponseHeader
}

// ResponseHeader is the part every response shares.
type ResponseHeader struct {
	Success          bool   `json:"success"`
	ScreenMessage    string `json:"screenMessage"`
	ItemBarcode      string `json:"itemBarcode,omitempty"`
	PatronIdentifier string `json:"patronIdentifier,omitempty"`
}

// DefaultFailureMessage is used when a failure carries no message of its own.
const DefaultFailureMessage = "ILS returned a invalid response"

func (h *ResponseHeader) Header() *ResponseHeader { return h }

// Fail marks the response failed. A failed response always has a message.
func (h *ResponseHeader) Fail(message string) {
	h.Success = false
	if message == "" {
		message = DefaultFailureMessage
	}
	h.ScreenMessage = message
}

// Succeed marks the response successful, keeping any connector message.
func (h *ResponseHeader) Succeed(message string) {
	h.Success = true
	if message != "" {
		h.ScreenMessage = message
	}
}

type ItemCheckoutResponse struct {
	ResponseHeader
	DueDate         string `json:"dueDate,omitempty"`
	Renewal         bool   `json:"renewal,omitempty"`
	TitleIdentifier string `json:"titleIdentifier,omitempty"`
}

type ItemCheckinResponse struct {
	ResponseHeader
	Alert           bool   `json:"alert,omitempty"`
	TitleIdentifier string `json:"titleIdentifier,omitempty"`
}

type ItemHoldResponse struct {
	ResponseHeader
	Available       bool   `json:"available,omitempty"`
	ExpirationDate  string `json:"expirationDate,omitempty"`
	QueuePosition   string `json:"queuePosition,omitempty"`
	BibID           string `json:"bibId,omitempty"`
	TrackingID      string `json:"trackingId,omitempty"`
	PickupLocation  string `json:"pickupLocation,omitempty"`
	TitleIdentifier string `json:"titleIdentifier,omitempty"`
}

type ItemRecallResponse struct {
	ResponseHeader
	ExpirationDate string `json:"expirationDate,omitempty"`
	PickupLocation string `json:"pickupLocation,omitempty"`
	DueDate        string `json:"dueDate,omitempty"`
}

type ItemCreateBibResponse struct {
	ResponseHeader
	BibID  string `json:"bibId,omitempty"`
	ItemID string `json:"itemId,omitempty"`
}

type ItemInformationResponse struct {
	ResponseHeader
	BibID             string `json:"bibId,omitempty"`
	TitleIdentifier   string `json:"titleIdentifier,omitempty"`
	Author            string `json:"author,omitempty"`
	CallNumber        string `json:"callNumber,omitempty"`
	CirculationStatus string `json:"circulationStatus,omitempty"`
	HoldQueueLength   string `json:"holdQueueLength,omitempty"`
	DueDate           string `json:"dueDate,omitempty"`
	OwningInstitution string `json:"owningInstitution,omitempty"`
}

type PatronInformationResponse struct {
	ResponseHeader
	PatronName     string   `json:"patronName,omitempty"`
	Email          string   `json:"email,omitempty"`
	HoldItemsCount int      `json:"holdItemsCount,omitempty"`
	ChargedItems   []string `json:"chargedItems,omitempty"`
	ValidPatron    bool     `json:"validPatron"`
}

type ItemRefileResponse struct {
	ResponseHeader
	RequestIDs []int64 `json:"requestIds,omitempty"`
}
