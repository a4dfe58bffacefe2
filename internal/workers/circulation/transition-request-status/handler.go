// internal/workers/circulation/transition-request-status/handler.go
package transitionrequeststatus

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

const (
	TaskType = "transition-request-status"
)

var inputSchema = validation.MustValidator(validation.StatusTransitionSchema)

type Store interface {
	TransitionStatus(ctx context.Context, id int64, expectedVersion int, to models.RequestStatus) (int, error)
}

type Handler struct {
	config    *Config
	store     Store
	responder *camunda.JobResponder
	logger    logger.Logger
}

func NewHandler(cfg *Config, store Store, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:    cfg,
		store:     store,
		responder: camunda.NewJobResponder(TaskType, log),
		logger:    log,
	}
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

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if !input.Status.IsValid() {
		return nil, apperrors.NewValidationError("Unknown request status",
			fmt.Sprintf("status: %s", input.Status))
	}

	version, err := h.store.TransitionStatus(ctx, input.RequestID, input.ExpectedVersion, input.Status)
	if err != nil {
		return nil, err
	}

	h.logger.Info("request status changed", map[string]interface{}{
		"requestId": input.RequestID,
		"status":    input.Status,
		"version":   version,
	})
	return &Output{
		RequestID: input.RequestID,
		Status:    input.Status,
		Version:   version,
	}, nil
}
