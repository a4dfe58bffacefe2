package camunda

import (
	"context"
	"encoding/json"
	"time"

	"circulation-workers/internal/common/config"
	apperrors "circulation-workers/internal/common/errors"
	"circulation-workers/internal/common/logger"
	"circulation-workers/internal/common/metrics"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
)

// HandlerFunc is the signature of every job handler.
type HandlerFunc func(client worker.JobClient, job entities.Job)

// CamundaWorker is one open job worker for a task type.
type CamundaWorker struct {
	worker   worker.JobWorker
	logger   logger.Logger
	taskType string
}

// NewWorker opens a job worker for taskType. The handler is timed and a
// panicking handler fails the job instead of killing the poller.
func NewWorker(client zbc.Client, taskType string, wcfg config.WorkerConfig, handler HandlerFunc, log logger.Logger) *CamundaWorker {
	log = log.WithFields(map[string]interface{}{"taskType": taskType})
	responder := NewJobResponder(taskType, log)

	jobWorker := client.NewJobWorker().
		JobType(taskType).
		Handler(func(jc worker.JobClient, job entities.Job) {
			start := time.Now()
			defer func() {
				metrics.WorkerJobDuration.WithLabelValues(taskType).Observe(time.Since(start).Seconds())
				if r := recover(); r != nil {
					log.Error("handler panicked", map[string]interface{}{
						"jobKey": job.Key,
						"panic":  r,
					})
					responder.Fail(context.Background(), jc, job,
						apperrors.AsStandardError(errPanic(r)))
				}
			}()
			handler(jc, job)
		}).
		MaxJobsActive(wcfg.MaxJobsActive).
		Timeout(config.GetDuration(wcfg.Timeout)).
		Open()

	log.Info("worker started", map[string]interface{}{
		"maxJobsActive": wcfg.MaxJobsActive,
		"timeout_ms":    wcfg.Timeout,
	})

	return &CamundaWorker{worker: jobWorker, logger: log, taskType: taskType}
}

func (w *CamundaWorker) TaskType() string {
	return w.taskType
}

// Stop closes the worker and waits for in-flight jobs.
func (w *CamundaWorker) Stop() {
	w.logger.Info("stopping worker", nil)
	w.worker.Close()
	w.worker.AwaitClose()
}

type panicError struct{ value interface{} }

func (p panicError) Error() string { return "handler panic: " + toString(p.value) }

func errPanic(v interface{}) error { return panicError{value: v} }

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	if err, ok := v.(error); ok {
		return err.Error()
	}
	b, _ := json.Marshal(v)
	return string(b)
}

// JobResponder completes or fails jobs for one task type and counts both.
type JobResponder struct {
	taskType string
	errors   *apperrors.ErrorHandler
	logger   logger.Logger
}

func NewJobResponder(taskType string, log logger.Logger) *JobResponder {
	return &JobResponder{
		taskType: taskType,
		errors:   apperrors.NewErrorHandler(log),
		logger:   log,
	}
}

// Complete sends output as the job's result variables.
func (r *JobResponder) Complete(ctx context.Context, client worker.JobClient, job entities.Job, output interface{}) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		r.logger.Error("failed to create complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err,
		})
		r.Fail(ctx, client, job, apperrors.AsStandardError(err))
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		r.logger.Error("failed to send complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err,
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(r.taskType).Inc()
}

// Fail retries or throws a BPMN error depending on err's code.
func (r *JobResponder) Fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	stdErr := apperrors.AsStandardError(err)
	metrics.WorkerJobsFailed.WithLabelValues(r.taskType, string(stdErr.Code)).Inc()
	r.errors.HandleJobError(ctx, client, job, stdErr)
}
