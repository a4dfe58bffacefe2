// internal/workers/circulation/item-request/handler.go
package itemrequest

import (
	"context"
	"encoding/json"
	"fmt"

	"circulation-workers/internal/common/camunda"
	apperrors "circulation-workers/internal/common/errors"
	"circulation-workers/internal/common/logger"
	"circulation-workers/internal/common/validation"
	"circulation-workers/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// Task types served by this package, one per single-item operation.
const (
	TaskCheckout          = "checkout-item"
	TaskCheckin           = "checkin-item"
	TaskHold              = "hold-item"
	TaskCancelHold        = "cancel-hold-item"
	TaskCreateBib         = "create-bib"
	TaskItemInformation   = "item-information"
	TaskRecall            = "recall-item"
	TaskPatronInformation = "patron-information"
	TaskRefileInILS       = "refile-item-in-ils"
)

var TaskTypes = []string{
	TaskCheckout,
	TaskCheckin,
	TaskHold,
	TaskCancelHold,
	TaskCreateBib,
	TaskItemInformation,
	TaskRecall,
	TaskPatronInformation,
	TaskRefileInILS,
}

var inputSchema = validation.MustValidator(validation.ItemRequestSchema)

// Dispatcher is the subset of dispatch.Dispatcher this worker drives.
type Dispatcher interface {
	Checkout(ctx context.Context, req models.ItemRequestInformation) *models.ItemCheckoutResponse
	Checkin(ctx context.Context, req models.ItemRequestInformation) *models.ItemCheckinResponse
	Hold(ctx context.Context, req models.ItemRequestInformation) *models.ItemHoldResponse
	CancelHold(ctx context.Context, req models.ItemRequestInformation) *models.ItemHoldResponse
	Recall(ctx context.Context, req models.ItemRequestInformation) *models.ItemRecallResponse
	CreateBib(ctx context.Context, req models.ItemRequestInformation) *models.ItemCreateBibResponse
	ItemInformation(ctx context.Context, req models.ItemRequestInformation) *models.ItemInformationResponse
	PatronInformation(ctx context.Context, req models.ItemRequestInformation) *models.PatronInformationResponse
	RefileInILS(ctx context.Context, req models.ItemRequestInformation) *models.ItemRefileResponse
}

type Handler struct {
	config    *Config
	taskType  string
	operation func(context.Context, models.ItemRequestInformation) models.Envelope
	responder *camunda.JobResponder
	logger    logger.Logger
}

func NewHandler(cfg *Config, taskType string, d Dispatcher, log logger.Logger) (*Handler, error) {
	op := operationFor(taskType, d)
	if op == nil {
		return nil, fmt.Errorf("item request: unknown task type %q", taskType)
	}
	log = log.WithFields(map[string]interface{}{"taskType": taskType})
	return &Handler{
		config:    cfg,
		taskType:  taskType,
		operation: op,
		responder: camunda.NewJobResponder(taskType, log),
		logger:    log,
	}, nil
}

func operationFor(taskType string, d Dispatcher) func(context.Context, models.ItemRequestInformation) models.Envelope {
	switch taskType {
	case TaskCheckout:
		return func(ctx context.Context, r models.ItemRequestInformation) models.Envelope { return d.Checkout(ctx, r) }
	case TaskCheckin:
		return func(ctx context.Context, r models.ItemRequestInformation) models.Envelope { return d.Checkin(ctx, r) }
	case TaskHold:
		return func(ctx context.Context, r models.ItemRequestInformation) models.Envelope { return d.Hold(ctx, r) }
	case TaskCancelHold:
		return func(ctx context.Context, r models.ItemRequestInformation) models.Envelope { return d.CancelHold(ctx, r) }
	case TaskRecall:
		return func(ctx context.Context, r models.ItemRequestInformation) models.Envelope { return d.Recall(ctx, r) }
	case TaskCreateBib:
		return func(ctx context.Context, r models.ItemRequestInformation) models.Envelope { return d.CreateBib(ctx, r) }
	case TaskItemInformation:
		return func(ctx context.Context, r models.ItemRequestInformation) models.Envelope { return d.ItemInformation(ctx, r) }
	case TaskPatronInformation:
		return func(ctx context.Context, r models.ItemRequestInformation) models.Envelope { return d.PatronInformation(ctx, r) }
	case TaskRefileInILS:
		return func(ctx context.Context, r models.ItemRequestInformation) models.Envelope { return d.RefileInILS(ctx, r) }
	}
	return nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	if err := inputSchema.ValidateJSON(job.Variables); err != nil {
		h.responder.Fail(ctx, client, job, err)
		return
	}

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.responder.Fail(ctx, client, job,
			apperrors.NewValidationError("Invalid job variables", err.Error()))
		return
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.responder.Fail(ctx, client, job, err)
		return
	}

	h.responder.Complete(ctx, client, job, output)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

// execute never fails on a business outcome: a rejected or failed request
// still completes the job with success=false so the process can branch.
// The dispatcher always returns a response.
func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	resp := h.operation(ctx, *input)
	header := resp.Header()

	h.logger.Info("item request handled", map[string]interface{}{
		"requestId":   input.RequestID,
		"itemBarcode": input.FirstBarcode(),
		"success":     header.Success,
	})

	return &Output{
		Operation:     h.taskType,
		Success:       header.Success,
		ScreenMessage: header.ScreenMessage,
		Response:      resp,
	}, nil
}
