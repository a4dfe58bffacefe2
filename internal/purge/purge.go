// Package purge applies the retention rules to stored requests: patron email
// addresses are scrubbed after a per-type window and EXCEPTION requests are
// removed after a fixed age.
package purge

import (
	"context"
	"fmt"
	"time"

	"circulation-workers/internal/common/config"
	"circulation-workers/internal/common/logger"
	"circulation-workers/internal/common/metrics"
	"circulation-workers/internal/models"
)

const (
	StatusSuccess = "Success"
	StatusFailure = "Failure"
)

type Store interface {
	FindRequestTypes(ctx context.Context) ([]models.RequestType, error)
	ScrubEmailOlderThan(ctx context.Context, typeIDs []int, cutoff time.Time) (int64, error)
	PurgeByStatusOlderThan(ctx context.Context, status models.RequestStatus, cutoff time.Time) (int64, error)
}

// EmailPurgeResult counts scrubbed email addresses per partition.
type EmailPurgeResult struct {
	EDD      int64 `json:"edd"`
	Physical int64 `json:"physical"`
}

// ExceptionPurgeResult carries Count on success and Message on failure.
type ExceptionPurgeResult struct {
	Status  string `json:"status"`
	Count   int64  `json:"countOfPurgedExceptionRequests"`
	Message string `json:"message,omitempty"`
}

type Engine struct {
	store  Store
	cfg    config.PurgeConfig
	logger logger.Logger
	now    func() time.Time
}

func New(store Store, cfg config.PurgeConfig, log logger.Logger) *Engine {
	return &Engine{
		store:  store,
		cfg:    cfg,
		logger: log.WithFields(map[string]interface{}{"component": "purge"}),
		now:    time.Now,
	}
}

func (e *Engine) cutoff(days int) time.Time {
	return e.now().UTC().AddDate(0, 0, -days)
}

// PurgeEmailAddress scrubs patron emails on EDD requests older than the EDD
// limit and on all other request types older than the physical limit.
func (e *Engine) PurgeEmailAddress(ctx context.Context) (*EmailPurgeResult, error) {
	types, err := e.store.FindRequestTypes(ctx)
	if err != nil {
		e.logger.Error("load request types failed", map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	var edd, physical []int
	for _, t := range types {
		if t.IsEDD() {
			edd = append(edd, t.ID)
		} else {
			physical = append(physical, t.ID)
		}
	}

	res := &EmailPurgeResult{}
	if res.EDD, err = e.store.ScrubEmailOlderThan(ctx, edd, e.cutoff(e.cfg.EmailEDDDayLimit)); err != nil {
		e.logger.Error("scrub EDD emails failed", map[string]interface{}{"error": err.Error()})
		return nil, err
	}
	if res.Physical, err = e.store.ScrubEmailOlderThan(ctx, physical, e.cutoff(e.cfg.EmailPhysicalDayLimit)); err != nil {
		e.logger.Error("scrub physical emails failed", map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	metrics.RequestsPurged.WithLabelValues("email_edd").Add(float64(res.EDD))
	metrics.RequestsPurged.WithLabelValues("email_physical").Add(float64(res.Physical))
	e.logger.Info("purged email addresses", map[string]interface{}{
		"edd":      res.EDD,
		"physical": res.Physical,
	})
	return res, nil
}

// PurgeExceptionRequests deletes EXCEPTION requests last updated before the
// exception day limit. Failures, panics included, are reported in the
// result.
func (e *Engine) PurgeExceptionRequests(ctx context.Context) (res *ExceptionPurgeResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("exception purge panicked", map[string]interface{}{"panic": r})
			res = &ExceptionPurgeResult{Status: StatusFailure, Message: fmt.Sprint(r)}
		}
	}()

	count, err := e.store.PurgeByStatusOlderThan(ctx, models.StatusException, e.cutoff(e.cfg.ExceptionDayLimit))
	if err != nil {
		e.logger.Error("exception purge failed", map[string]interface{}{"error": err.Error()})
		return &ExceptionPurgeResult{Status: StatusFailure, Message: err.Error()}
	}

	metrics.RequestsPurged.WithLabelValues("exception").Add(float64(count))
	e.logger.Info("purged exception requests", map[string]interface{}{"count": count})
	return &ExceptionPurgeResult{Status: StatusSuccess, Count: count}
}
