// internal/workers/circulation/refile-item/handler.go
package refileitem

import (
	"context"
	"encoding/json"
	"strconv"

	"circulation-workers/internal/common/camunda"
	apperrors "circulation-workers/internal/common/errors"
	"circulation-workers/internal/common/logger"
	"circulation-workers/internal/common/validation"
	"circulation-workers/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "refile-item"
)

var inputSchema = validation.MustValidator(validation.RefileRequestSchema)

type Dispatcher interface {
	Refile(ctx context.Context, req models.ItemRefileRequest) *models.ItemRefileResponse
}

// Store moves refiled requests to their terminal status.
type Store interface {
	FindByIDs(ctx context.Context, ids []int64) ([]models.RequestRecord, error)
	TransitionStatus(ctx context.Context, id int64, expectedVersion int, to models.RequestStatus) (int, error)
}

type Handler struct {
	config     *Config
	dispatcher Dispatcher
	store      Store
	responder  *camunda.JobResponder
	logger     logger.Logger
}

func NewHandler(cfg *Config, d Dispatcher, store Store, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     cfg,
		dispatcher: d,
		store:      store,
		responder:  camunda.NewJobResponder(TaskType, log),
		logger:     log,
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
	resp := h.dispatcher.Refile(ctx, *input)
	output := &Output{
		Operation:     TaskType,
		Success:       resp.Success,
		ScreenMessage: resp.ScreenMessage,
		Response:      resp,
		Transitioned:  []int64{},
	}
	if !resp.Success || len(resp.RequestIDs) == 0 {
		return output, nil
	}

	records, err := h.store.FindByIDs(ctx, resp.RequestIDs)
	if err != nil {
		return nil, err
	}

	for _, rec := range records {
		if rec.Status == models.StatusRefiled {
			output.Transitioned = append(output.Transitioned, rec.ID)
			continue
		}
		_, err := h.store.TransitionStatus(ctx, rec.ID, rec.Version, models.StatusRefiled)
		if err == nil {
			output.Transitioned = append(output.Transitioned, rec.ID)
			continue
		}

		// Conflicts and illegal transitions mean another operation got there
		// first; the item is back on the shelf either way.
		stdErr := apperrors.AsStandardError(err)
		switch stdErr.Code {
		case apperrors.ErrCodeVersionConflict, apperrors.ErrCodeInvalidStatusTransition, apperrors.ErrCodeRequestNotFound:
			if output.Skipped == nil {
				output.Skipped = map[string]string{}
			}
			output.Skipped[strconv.FormatInt(rec.ID, 10)] = stdErr.Message
			h.logger.Warn("refiled request not transitioned", map[string]interface{}{
				"requestId": rec.ID,
				"status":    rec.Status,
				"code":      stdErr.Code,
			})
		default:
			return nil, stdErr
		}
	}

	h.logger.Info("items refiled", map[string]interface{}{
		"requestIds":   resp.RequestIDs,
		"transitioned": output.Transitioned,
	})
	return output, nil
}
