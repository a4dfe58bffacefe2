// Package dispatch routes normalized item requests to the connector of the
// institution that serves them and turns every outcome, including connector
// errors, timeouts and panics, into a well-formed response.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "circulation-workers/internal/common/errors"
	"circulation-workers/internal/common/logger"
	"circulation-workers/internal/common/metrics"
	"circulation-workers/internal/ils"
	"circulation-workers/internal/models"
)

// Screen messages returned without calling an ILS.
const (
	MsgItemIDNotFound    = "Item Id not found"
	MsgCheckItemBarcode  = "Please check the Item Barcode provided"
	MsgBarcodeNotFound   = "BARCODE NOT FOUND"
	MsgItemBarcodeExists = "Item Barcode already Exists"
	MsgRefiled           = "Successfully Refiled"
	MsgRefileFailed      = "Cannot process Refile request"
)

const defaultTimeout = 30 * time.Second

type Registry interface {
	Get(institution string) (ils.Connector, error)
}

type InstitutionResolver interface {
	Resolve(callInstitution, owningInstitution string) (string, error)
	PickupLocation(ctx context.Context, institution, pickup, delivery string) string
}

// RequestFinder loads stored requests for refiling.
type RequestFinder interface {
	FindByIDs(ctx context.Context, ids []int64) ([]models.RequestRecord, error)
}

// TimeoutFunc returns the connector call timeout for an institution.
type TimeoutFunc func(institution string) time.Duration

type Dispatcher struct {
	registry Registry
	resolver InstitutionResolver
	requests RequestFinder
	timeout  TimeoutFunc
	logger   logger.Logger
}

func New(registry Registry, resolver InstitutionResolver, requests RequestFinder, timeout TimeoutFunc, log logger.Logger) *Dispatcher {
	if timeout == nil {
		timeout = func(string) time.Duration { return defaultTimeout }
	}
	return &Dispatcher{
		registry: registry,
		resolver: resolver,
		requests: requests,
		timeout:  timeout,
		logger:   log.WithFields(map[string]interface{}{"component": "dispatcher"}),
	}
}

func (d *Dispatcher) Checkout(ctx context.Context, req models.ItemRequestInformation) *models.ItemCheckoutResponse {
	const op = "checkout"
	resp := &models.ItemCheckoutResponse{ResponseHeader: echo(req)}
	if len(req.ItemBarcodes) == 0 {
		d.reject(op, &resp.ResponseHeader, MsgItemIDNotFound)
		return resp
	}
	inst, err := d.resolver.Resolve(req.CallInstitution, req.ItemOwningInstitution)
	if err != nil {
		d.failed(op, "", &resp.ResponseHeader, err)
		return resp
	}

	out, err := invoke(ctx, d, op, inst, func(ctx context.Context, c ils.Connector) (*models.ItemCheckoutResponse, error) {
		return c.CheckOutItem(ctx, req.FirstBarcode(), req.RequestID, req.PatronBarcode)
	})
	if err != nil || out == nil {
		d.failed(op, inst, &resp.ResponseHeader, err)
		return resp
	}
	normalize(&out.ResponseHeader, resp.ResponseHeader)
	d.completed(op, inst, &out.ResponseHeader, map[string]interface{}{
		"requestId": req.RequestID,
		"dueDate":   out.DueDate,
	})
	return out
}

func (d *Dispatcher) Checkin(ctx context.Context, req models.ItemRequestInformation) *models.ItemCheckinResponse {
	const op = "checkin"
	resp := &models.ItemCheckinResponse{ResponseHeader: echo(req)}
	if len(req.ItemBarcodes) == 0 {
		d.reject(op, &resp.ResponseHeader, MsgItemIDNotFound)
		return resp
	}
	inst, err := d.resolver.Resolve(req.CallInstitution, req.ItemOwningInstitution)
	if err != nil {
		d.failed(op, "", &resp.ResponseHeader, err)
		return resp
	}

	out, err := invoke(ctx, d, op, inst, func(ctx context.Context, c ils.Connector) (*models.ItemCheckinResponse, error) {
		return c.CheckInItem(ctx, req.FirstBarcode(), req.RequestID, req.PatronBarcode)
	})
	if err != nil || out == nil {
		d.failed(op, inst, &resp.ResponseHeader, err)
		return resp
	}
	normalize(&out.ResponseHeader, resp.ResponseHeader)
	d.completed(op, inst, &out.ResponseHeader, map[string]interface{}{
		"requestId": req.RequestID,
		"alert":     out.Alert,
	})
	return out
}

func (d *Dispatcher) Hold(ctx context.Context, req models.ItemRequestInformation) *models.ItemHoldResponse {
	const op = "hold"
	resp := &models.ItemHoldResponse{ResponseHeader: echo(req)}
	if !hasUsableBarcode(req) {
		d.reject(op, &resp.ResponseHeader, MsgCheckItemBarcode)
		return resp
	}
	inst, err := d.resolver.Resolve(req.CallInstitution, req.ItemOwningInstitution)
	if err != nil {
		d.failed(op, "", &resp.ResponseHeader, err)
		return resp
	}
	params := d.holdParams(ctx, inst, req)

	out, err := invoke(ctx, d, op, inst, func(ctx context.Context, c ils.Connector) (*models.ItemHoldResponse, error) {
		return c.PlaceHold(ctx, params)
	})
	if err != nil || out == nil {
		d.failed(op, inst, &resp.ResponseHeader, err)
		return resp
	}
	normalize(&out.ResponseHeader, resp.ResponseHeader)
	if out.PickupLocation == "" {
		out.PickupLocation = params.PickupLocation
	}
	d.completed(op, inst, &out.ResponseHeader, map[string]interface{}{
		"requestId":      req.RequestID,
		"pickupLocation": out.PickupLocation,
		"expirationDate": out.ExpirationDate,
		"queuePosition":  out.QueuePosition,
	})
	return out
}

func (d *Dispatcher) CancelHold(ctx context.Context, req models.ItemRequestInformation) *models.ItemHoldResponse {
	const op = "cancel-hold"
	resp := &models.ItemHoldResponse{ResponseHeader: echo(req)}
	if !hasUsableBarcode(req) {
		d.reject(op, &resp.ResponseHeader, MsgCheckItemBarcode)
		return resp
	}
	inst, err := d.resolver.Resolve(req.CallInstitution, req.ItemOwningInstitution)
	if err != nil {
		d.failed(op, "", &resp.ResponseHeader, err)
		return resp
	}
	params := d.holdParams(ctx, inst, req)

	out, err := invoke(ctx, d, op, inst, func(ctx context.Context, c ils.Connector) (*models.ItemHoldResponse, error) {
		return c.CancelHold(ctx, params)
	})
	if err != nil || out == nil {
		d.failed(op, inst, &resp.ResponseHeader, err)
		return resp
	}
	normalize(&out.ResponseHeader, resp.ResponseHeader)
	d.completed(op, inst, &out.ResponseHeader, map[string]interface{}{
		"requestId":      req.RequestID,
		"pickupLocation": params.PickupLocation,
	})
	return out
}

func (d *Dispatcher) Recall(ctx context.Context, req models.ItemRequestInformation) *models.ItemRecallResponse {
	const op = "recall"
	resp := &models.ItemRecallResponse{ResponseHeader: echo(req)}
	if !hasUsableBarcode(req) {
		d.reject(op, &resp.ResponseHeader, MsgCheckItemBarcode)
		return resp
	}
	inst, err := d.resolver.Resolve(req.CallInstitution, req.ItemOwningInstitution)
	if err != nil {
		d.failed(op, "", &resp.ResponseHeader, err)
		return resp
	}
	params := d.holdParams(ctx, inst, req)

	out, err := invoke(ctx, d, op, inst, func(ctx context.Context, c ils.Connector) (*models.ItemRecallResponse, error) {
		return c.RecallItem(ctx, params)
	})
	if err != nil || out == nil {
		d.failed(op, inst, &resp.ResponseHeader, err)
		return resp
	}
	normalize(&out.ResponseHeader, resp.ResponseHeader)
	if out.PickupLocation == "" {
		out.PickupLocation = params.PickupLocation
	}
	d.completed(op, inst, &out.ResponseHeader, map[string]interface{}{
		"requestId":      req.RequestID,
		"pickupLocation": out.PickupLocation,
		"dueDate":        out.DueDate,
	})
	return out
}

// CreateBib looks the item up first and only creates a bibliographic record
// when the ILS reports the barcode as not found, so repeated calls for the
// same barcode do not create duplicates.
func (d *Dispatcher) CreateBib(ctx context.Context, req models.ItemRequestInformation) *models.ItemCreateBibResponse {
	const op = "create-bib"
	resp := &models.ItemCreateBibResponse{ResponseHeader: echo(req)}
	if !hasUsableBarcode(req) {
		d.reject(op, &resp.ResponseHeader, MsgCheckItemBarcode)
		return resp
	}
	inst, err := d.resolver.Resolve(req.CallInstitution, req.ItemOwningInstitution)
	if err != nil {
		d.failed(op, "", &resp.ResponseHeader, err)
		return resp
	}
	barcode := req.FirstBarcode()

	lookup, err := invoke(ctx, d, "item-information", inst, func(ctx context.Context, c ils.Connector) (*models.ItemInformationResponse, error) {
		return c.LookupItem(ctx, barcode)
	})
	if err != nil || lookup == nil {
		d.failed(op, inst, &resp.ResponseHeader, err)
		return resp
	}

	if !strings.Contains(strings.ToUpper(lookup.ScreenMessage), MsgBarcodeNotFound) {
		resp.Succeed(MsgItemBarcodeExists)
		resp.ItemBarcode = barcode
		resp.BibID = lookup.BibID
		d.completed(op, inst, &resp.ResponseHeader, map[string]interface{}{
			"bibId":   resp.BibID,
			"created": false,
		})
		return resp
	}

	out, err := invoke(ctx, d, op, inst, func(ctx context.Context, c ils.Connector) (*models.ItemCreateBibResponse, error) {
		return c.CreateBib(ctx, barcode, req.PatronBarcode, req.RequestingInstitution, req.TitleIdentifier)
	})
	if err != nil || out == nil {
		d.failed(op, inst, &resp.ResponseHeader, err)
		return resp
	}
	normalize(&out.ResponseHeader, resp.ResponseHeader)
	d.completed(op, inst, &out.ResponseHeader, map[string]interface{}{
		"bibId":   out.BibID,
		"created": out.Success,
	})
	return out
}

func (d *Dispatcher) ItemInformation(ctx context.Context, req models.ItemRequestInformation) *models.ItemInformationResponse {
	const op = "item-information"
	resp := &models.ItemInformationResponse{ResponseHeader: echo(req)}
	if !hasUsableBarcode(req) {
		d.reject(op, &resp.ResponseHeader, MsgCheckItemBarcode)
		return resp
	}
	inst, err := d.resolver.Resolve(req.CallInstitution, req.ItemOwningInstitution)
	if err != nil {
		d.failed(op, "", &resp.ResponseHeader, err)
		return resp
	}

	out, err := invoke(ctx, d, op, inst, func(ctx context.Context, c ils.Connector) (*models.ItemInformationResponse, error) {
		return c.LookupItem(ctx, req.FirstBarcode())
	})
	if err != nil || out == nil {
		d.failed(op, inst, &resp.ResponseHeader, err)
		return resp
	}
	normalize(&out.ResponseHeader, resp.ResponseHeader)
	d.completed(op, inst, &out.ResponseHeader, map[string]interface{}{
		"bibId":             out.BibID,
		"circulationStatus": out.CirculationStatus,
	})
	return out
}

func (d *Dispatcher) PatronInformation(ctx context.Context, req models.ItemRequestInformation) *models.PatronInformationResponse {
	const op = "patron-information"
	resp := &models.PatronInformationResponse{ResponseHeader: echo(req)}
	inst, err := d.resolver.Resolve(req.CallInstitution, req.ItemOwningInstitution)
	if err != nil {
		d.failed(op, "", &resp.ResponseHeader, err)
		return resp
	}

	out, err := invoke(ctx, d, op, inst, func(ctx context.Context, c ils.Connector) (*models.PatronInformationResponse, error) {
		return c.LookupPatron(ctx, req.PatronBarcode)
	})
	if err != nil || out == nil {
		d.failed(op, inst, &resp.ResponseHeader, err)
		return resp
	}
	normalize(&out.ResponseHeader, resp.ResponseHeader)
	d.completed(op, inst, &out.ResponseHeader, map[string]interface{}{
		"validPatron":    out.ValidPatron,
		"holdItemsCount": out.HoldItemsCount,
	})
	return out
}

// RefileInILS asks the institution's ILS to refile one item.
func (d *Dispatcher) RefileInILS(ctx context.Context, req models.ItemRequestInformation) *models.ItemRefileResponse {
	const op = "refile-in-ils"
	resp := &models.ItemRefileResponse{ResponseHeader: echo(req)}
	if len(req.ItemBarcodes) == 0 {
		d.reject(op, &resp.ResponseHeader, MsgBarcodeNotFound)
		return resp
	}
	inst, err := d.resolver.Resolve(req.CallInstitution, req.ItemOwningInstitution)
	if err != nil {
		d.failed(op, "", &resp.ResponseHeader, err)
		return resp
	}

	out, err := invoke(ctx, d, op, inst, func(ctx context.Context, c ils.Connector) (*models.ItemRefileResponse, error) {
		return c.RefileItem(ctx, req.FirstBarcode())
	})
	if err != nil || out == nil {
		d.failed(op, inst, &resp.ResponseHeader, err)
		return resp
	}
	normalize(&out.ResponseHeader, resp.ResponseHeader)
	d.completed(op, inst, &out.ResponseHeader, nil)
	return out
}

// Refile refiles the items of stored requests in their owning institutions'
// ILS. It succeeds only when every matching request was refiled.
func (d *Dispatcher) Refile(ctx context.Context, req models.ItemRefileRequest) *models.ItemRefileResponse {
	const op = "refile"
	resp := &models.ItemRefileResponse{}
	if len(req.RequestIDs) == 0 || d.requests == nil {
		d.reject(op, &resp.ResponseHeader, MsgRefileFailed)
		return resp
	}

	records, err := d.requests.FindByIDs(ctx, req.RequestIDs)
	if err != nil {
		d.logger.Error("refile: load requests failed", map[string]interface{}{
			"requestIds": req.RequestIDs,
			"error":      err,
		})
		d.reject(op, &resp.ResponseHeader, MsgRefileFailed)
		return resp
	}

	wanted := make(map[string]bool, len(req.ItemBarcodes))
	for _, b := range req.ItemBarcodes {
		wanted[b] = true
	}

	var refiled []int64
	ok := len(records) > 0
	for _, rec := range records {
		if len(wanted) > 0 && !wanted[rec.Item.Barcode] {
			continue
		}
		inst := rec.OwningInstitution()
		out, err := invoke(ctx, d, op, inst, func(ctx context.Context, c ils.Connector) (*models.ItemRefileResponse, error) {
			return c.RefileItem(ctx, rec.Item.Barcode)
		})
		if err != nil || out == nil || !out.Success {
			ok = false
			d.logger.Warn("refile: item not refiled", map[string]interface{}{
				"requestId":   rec.ID,
				"itemBarcode": rec.Item.Barcode,
				"institution": inst,
				"error":       err,
			})
			continue
		}
		refiled = append(refiled, rec.ID)
	}

	resp.RequestIDs = refiled
	if !ok || len(refiled) == 0 {
		d.reject(op, &resp.ResponseHeader, MsgRefileFailed)
		return resp
	}
	resp.Succeed(MsgRefiled)
	d.completed(op, "", &resp.ResponseHeader, map[string]interface{}{
		"requestIds": refiled,
	})
	return resp
}

// ValidatePatron reports whether the bulk request's patron is valid at the
// requesting institution. Any failure counts as invalid.
func (d *Dispatcher) ValidatePatron(ctx context.Context, req models.BulkRequestInformation) bool {
	const op = "patron-validation"
	inst, err := d.resolver.Resolve(req.RequestingInstitution, "")
	if err != nil {
		d.logger.Warn("patron validation: institution missing", map[string]interface{}{
			"bulkRequestId": req.BulkRequestID,
		})
		metrics.RequestsTotal.WithLabelValues(op, "", metrics.OutcomeRejected).Inc()
		return false
	}

	valid, err := invoke(ctx, d, op, inst, func(ctx context.Context, c ils.Connector) (bool, error) {
		return c.PatronValidation(ctx, inst, req.PatronBarcode)
	})
	if err != nil {
		d.logger.Error("patron validation failed", map[string]interface{}{
			"institution":   inst,
			"bulkRequestId": req.BulkRequestID,
			"error":         err,
		})
		metrics.RequestsTotal.WithLabelValues(op, inst, outcomeOf(err)).Inc()
		return false
	}
	metrics.RequestsTotal.WithLabelValues(op, inst, metrics.OutcomeSuccess).Inc()
	d.logger.Info("patron validated", map[string]interface{}{
		"institution":   inst,
		"bulkRequestId": req.BulkRequestID,
		"valid":         valid,
	})
	return valid
}

func (d *Dispatcher) holdParams(ctx context.Context, inst string, req models.ItemRequestInformation) ils.HoldParams {
	return ils.HoldParams{
		ItemBarcode:           req.FirstBarcode(),
		RequestID:             req.RequestID,
		PatronBarcode:         req.PatronBarcode,
		RequestingInstitution: req.RequestingInstitution,
		ItemOwningInstitution: req.ItemOwningInstitution,
		ExpirationDate:        req.ExpirationDate,
		BibID:                 req.BibID,
		PickupLocation:        d.resolver.PickupLocation(ctx, inst, req.PickupLocation, req.DeliveryLocation),
		TrackingID:            req.TrackingID,
		TitleIdentifier:       req.TitleIdentifier,
		Author:                req.Author,
		CallNumber:            req.CallNumber,
	}
}

type result[T any] struct {
	value T
	err   error
}

// invoke calls fn on the institution's connector under the institution's
// timeout. A panic in the connector is returned as a CONNECTOR_FAILURE and a
// deadline as CONNECTOR_TIMEOUT; the caller never blocks past the deadline.
func invoke[T any](ctx context.Context, d *Dispatcher, op, institution string, fn func(context.Context, ils.Connector) (T, error)) (T, error) {
	var zero T
	conn, err := d.registry.Get(institution)
	if err != nil {
		return zero, err
	}

	timeout := d.timeout(institution)
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		metrics.RequestDuration.WithLabelValues(op, institution).Observe(time.Since(start).Seconds())
	}()

	ch := make(chan result[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result[T]{err: apperrors.NewConnectorFailureError(institution, op, fmt.Errorf("connector panic: %v", r))}
			}
		}()
		v, err := fn(callCtx, conn)
		ch <- result[T]{value: v, err: err}
	}()

	select {
	case res := <-ch:
		if res.err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return zero, apperrors.NewConnectorTimeoutError(institution, op, timeout)
		}
		return res.value, res.err
	case <-callCtx.Done():
		return zero, apperrors.NewConnectorTimeoutError(institution, op, timeout)
	}
}

func echo(req models.ItemRequestInformation) models.ResponseHeader {
	return models.ResponseHeader{
		ItemBarcode:      req.FirstBarcode(),
		PatronIdentifier: req.PatronBarcode,
	}
}

func hasUsableBarcode(req models.ItemRequestInformation) bool {
	b := strings.TrimSpace(req.FirstBarcode())
	return b != "" && b != models.PlaceholderBarcode
}

// normalize fills identifiers the connector left out and enforces that a
// failed response carries a message.
func normalize(h *models.ResponseHeader, echoed models.ResponseHeader) {
	if h.ItemBarcode == "" {
		h.ItemBarcode = echoed.ItemBarcode
	}
	if h.PatronIdentifier == "" {
		h.PatronIdentifier = echoed.PatronIdentifier
	}
	if !h.Success {
		h.Fail(h.ScreenMessage)
	}
}

func failureMessage(err error) string {
	if err == nil {
		return ""
	}
	var stdErr *apperrors.StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Message
	}
	return err.Error()
}

func outcomeOf(err error) string {
	if errors.Is(err, apperrors.ErrConnectorTimeout) {
		return metrics.OutcomeTimeout
	}
	return metrics.OutcomeFailure
}

func (d *Dispatcher) reject(op string, h *models.ResponseHeader, message string) {
	h.Fail(message)
	metrics.RequestsTotal.WithLabelValues(op, "", metrics.OutcomeRejected).Inc()
	d.logger.Info("request rejected", map[string]interface{}{
		"operation":     op,
		"itemBarcode":   h.ItemBarcode,
		"screenMessage": h.ScreenMessage,
	})
}

func (d *Dispatcher) failed(op, inst string, h *models.ResponseHeader, err error) {
	h.Fail(failureMessage(err))
	metrics.RequestsTotal.WithLabelValues(op, inst, outcomeOf(err)).Inc()
	fields := map[string]interface{}{
		"operation":     op,
		"institution":   inst,
		"itemBarcode":   h.ItemBarcode,
		"screenMessage": h.ScreenMessage,
	}
	if err != nil {
		stdErr := apperrors.AsStandardError(err)
		fields["errorCode"] = stdErr.Code
		fields["error"] = err
	}
	d.logger.Error("ILS call failed", fields)
}

func (d *Dispatcher) completed(op, inst string, h *models.ResponseHeader, extra map[string]interface{}) {
	outcome := metrics.OutcomeSuccess
	if !h.Success {
		outcome = metrics.OutcomeFailure
	}
	metrics.RequestsTotal.WithLabelValues(op, inst, outcome).Inc()

	fields := map[string]interface{}{
		"operation":        op,
		"institution":      inst,
		"success":          h.Success,
		"screenMessage":    h.ScreenMessage,
		"itemBarcode":      h.ItemBarcode,
		"patronIdentifier": h.PatronIdentifier,
	}
	for k, v := range extra {
		fields[k] = v
	}
	d.logger.Info("ILS call completed", fields)
}
