package ils

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"circulation-workers/internal/common/config"
	apperrors "circulation-workers/internal/common/errors"
	httpclient "circulation-workers/internal/common/http"
	"circulation-workers/internal/models"
)

// RESTConnector talks to an institution's JSON circulation gateway. Only the
// capabilities listed for the institution are enabled; the rest fall through
// to Unsupported.
type RESTConnector struct {
	Unsupported
	baseURL      string
	client       *httpclient.Client
	capabilities map[string]bool
}

func NewRESTConnector(institution string, cfg config.InstitutionConfig, timeout time.Duration) *RESTConnector {
	caps := cfg.Capabilities
	if len(caps) == 0 {
		caps = DefaultCapabilities
	}
	allowed := make(map[string]bool, len(caps))
	for _, c := range caps {
		allowed[strings.ToLower(strings.TrimSpace(c))] = true
	}

	client := httpclient.NewClient(timeout)
	if cfg.APIKey != "" {
		client = client.WithHeader("X-Api-Key", cfg.APIKey)
	}

	return &RESTConnector{
		Unsupported:  Unsupported{Institution: strings.ToUpper(institution)},
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		client:       client,
		capabilities: allowed,
	}
}

// Supports reports whether capability is enabled for this institution.
func (c *RESTConnector) Supports(capability string) bool {
	return c.capabilities[capability]
}

func (c *RESTConnector) call(ctx context.Context, capability, method, path string, in, out interface{}) error {
	if !c.Supports(capability) {
		return c.fail(capability)
	}
	if err := c.client.DoJSON(ctx, method, c.baseURL+path, in, out); err != nil {
		return apperrors.NewConnectorFailureError(c.Institution, capability, err)
	}
	return nil
}

type circulationRequest struct {
	ItemBarcode   string `json:"itemBarcode"`
	RequestID     string `json:"requestId,omitempty"`
	PatronBarcode string `json:"patronBarcode,omitempty"`
	Institution   string `json:"institution,omitempty"`
	Title         string `json:"titleIdentifier,omitempty"`
}

func (c *RESTConnector) CheckOutItem(ctx context.Context, itemBarcode, requestID, patronBarcode string) (*models.ItemCheckoutResponse, error) {
	var resp models.ItemCheckoutResponse
	err := c.call(ctx, CapCheckout, http.MethodPost, "/circulation/checkout",
		circulationRequest{ItemBarcode: itemBarcode, RequestID: requestID, PatronBarcode: patronBarcode}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *RESTConnector) CheckInItem(ctx context.Context, itemBarcode, requestID, patronBarcode string) (*models.ItemCheckinResponse, error) {
	var resp models.ItemCheckinResponse
	err := c.call(ctx, CapCheckin, http.MethodPost, "/circulation/checkin",
		circulationRequest{ItemBarcode: itemBarcode, RequestID: requestID, PatronBarcode: patronBarcode}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *RESTConnector) PlaceHold(ctx context.Context, p HoldParams) (*models.ItemHoldResponse, error) {
	var resp models.ItemHoldResponse
	if err := c.call(ctx, CapHold, http.MethodPost, "/holds", p, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *RESTConnector) CancelHold(ctx context.Context, p HoldParams) (*models.ItemHoldResponse, error) {
	var resp models.ItemHoldResponse
	if err := c.call(ctx, CapCancelHold, http.MethodPost, "/holds/cancel", p, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *RESTConnector) CreateBib(ctx context.Context, itemBarcode, patronBarcode, institution, titleIdentifier string) (*models.ItemCreateBibResponse, error) {
	var resp models.ItemCreateBibResponse
	err := c.call(ctx, CapCreateBib, http.MethodPost, "/bibs", circulationRequest{
		ItemBarcode:   itemBarcode,
		PatronBarcode: patronBarcode,
		Institution:   institution,
		Title:         titleIdentifier,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *RESTConnector) LookupItem(ctx context.Context, itemBarcode string) (*models.ItemInformationResponse, error) {
	var resp models.ItemInformationResponse
	if err := c.call(ctx, CapItemInformation, http.MethodGet, "/items/"+url.PathEscape(itemBarcode), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *RESTConnector) RecallItem(ctx context.Context, p HoldParams) (*models.ItemRecallResponse, error) {
	var resp models.ItemRecallResponse
	if err := c.call(ctx, CapRecall, http.MethodPost, "/recalls", p, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *RESTConnector) LookupPatron(ctx context.Context, patronBarcode string) (*models.PatronInformationResponse, error) {
	var resp models.PatronInformationResponse
	if err := c.call(ctx, CapPatronInformation, http.MethodGet, "/patrons/"+url.PathEscape(patronBarcode), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *RESTConnector) RefileItem(ctx context.Context, itemBarcode string) (*models.ItemRefileResponse, error) {
	var resp models.ItemRefileResponse
	if err := c.call(ctx, CapRefile, http.MethodPost, "/circulation/refile", circulationRequest{ItemBarcode: itemBarcode}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *RESTConnector) PatronValidation(ctx context.Context, institution, patronBarcode string) (bool, error) {
	var resp struct {
		Valid bool `json:"valid"`
	}
	err := c.call(ctx, CapPatronValidation, http.MethodPost, "/patrons/validate",
		circulationRequest{PatronBarcode: patronBarcode, Institution: institution}, &resp)
	if err != nil {
		return false, err
	}
	return resp.Valid, nil
}
