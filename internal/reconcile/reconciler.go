// Package reconcile finds requests stuck in PENDING or LAS_ITEM_STATUS_PENDING,
// records an escalation for each and notifies operations staff.
package reconcile

import (
	"context"
	"strings"
	"time"

	"circulation-workers/internal/common/config"
	"circulation-workers/internal/common/logger"
	"circulation-workers/internal/common/metrics"
	"circulation-workers/internal/models"
	"circulation-workers/internal/notify"

	"github.com/google/uuid"
)

const (
	SubjectPendingAndLAS = "Requests in PENDING and LAS ITEM STATUS PENDING status"
	SubjectPending       = "Requests in PENDING status"
	SubjectLAS           = "Requests in LAS ITEM STATUS PENDING status"
)

const createdDateLayout = "2006-01-02 15:04:05 MST"

type Store interface {
	FindPendingNotNotified(ctx context.Context, statuses []models.RequestStatus) ([]models.RequestRecord, error)
	SavePendingRequests(ctx context.Context, pending []models.PendingRequest) error
}

// Result summarizes one sweep.
type Result struct {
	BatchID  string
	Pending  []models.RequestRecord
	LAS      []models.RequestRecord
	// NotificationQueued means the notifier accepted the batch. With an
	// async notifier that is a hand-off, not a delivery.
	NotificationQueued bool
}

// Escalated reports whether the sweep escalated anything.
func (r *Result) Escalated() bool {
	return len(r.Pending)+len(r.LAS) > 0
}

type Reconciler struct {
	store    Store
	notifier notify.Notifier
	cfg      config.ReconcilerConfig
	logger   logger.Logger
	now      func() time.Time
}

func New(store Store, notifier notify.Notifier, cfg config.ReconcilerConfig, log logger.Logger) *Reconciler {
	if cfg.PendingThresholdMinutes <= 0 {
		cfg.PendingThresholdMinutes = 5
	}
	return &Reconciler{
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		logger:   log.WithFields(map[string]interface{}{"component": "pending-reconciler"}),
		now:      time.Now,
	}
}

// IdentifyPendingRequests runs one sweep and reports whether any request was
// escalated.
func (r *Reconciler) IdentifyPendingRequests(ctx context.Context) (bool, error) {
	res, err := r.Sweep(ctx)
	if err != nil {
		return false, err
	}
	return res.Escalated(), nil
}

// Sweep escalates every stale request not escalated before. The escalation
// records are committed before the notification is handed off, so a failed
// notification never loses the audit trail.
func (r *Reconciler) Sweep(ctx context.Context) (*Result, error) {
	records, err := r.store.FindPendingNotNotified(ctx, []models.RequestStatus{
		models.StatusPending,
		models.StatusLASItemStatusPending,
	})
	if err != nil {
		r.logger.Error("load pending requests failed", map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	now := r.now()
	res := &Result{BatchID: uuid.NewString()}
	var escalations []models.PendingRequest
	for _, rec := range records {
		switch rec.Status {
		case models.StatusPending:
			if !r.exceedsThreshold(rec, now) {
				continue
			}
			res.Pending = append(res.Pending, rec)
		case models.StatusLASItemStatusPending:
			res.LAS = append(res.LAS, rec)
		default:
			continue
		}
		escalations = append(escalations, models.NewPendingRequest(res.BatchID, rec, now))
	}

	if !res.Escalated() {
		r.logger.Debug("no stale requests", map[string]interface{}{"examined": len(records)})
		return res, nil
	}

	if err := r.store.SavePendingRequests(ctx, escalations); err != nil {
		r.logger.Error("save escalation records failed", map[string]interface{}{
			"batchId": res.BatchID,
			"count":   len(escalations),
			"error":   err.Error(),
		})
		return nil, err
	}
	metrics.PendingRequestsEscalated.WithLabelValues("pending").Add(float64(len(res.Pending)))
	metrics.PendingRequestsEscalated.WithLabelValues("las").Add(float64(len(res.LAS)))

	r.logger.Info("identified requests stuck in PENDING/LAS", map[string]interface{}{
		"batchId": res.BatchID,
		"pending": len(res.Pending),
		"las":     len(res.LAS),
	})

	payload := models.EmailPayload{
		ID:      res.BatchID,
		To:      r.cfg.EmailTo,
		Cc:      r.cfg.EmailCc,
		Subject: Subject(len(res.Pending), len(res.LAS)),
		Body:    Body(res.Pending, res.LAS),
	}
	if err := r.notifier.Send(ctx, payload); err != nil {
		r.logger.Warn("pending request notification failed", map[string]interface{}{
			"batchId": res.BatchID,
			"error":   err.Error(),
		})
		return res, nil
	}
	res.NotificationQueued = true
	return res, nil
}

// exceedsThreshold compares the age in whole elapsed minutes.
func (r *Reconciler) exceedsThreshold(rec models.RequestRecord, now time.Time) bool {
	minutes := int(now.Sub(rec.CreatedAt) / time.Minute)
	return minutes > r.cfg.PendingThresholdMinutes
}

// Subject picks the notification subject for the bucket sizes. It returns
// "" when both buckets are empty.
func Subject(pending, las int) string {
	switch {
	case pending > 0 && las > 0:
		return SubjectPendingAndLAS
	case pending > 0:
		return SubjectPending
	case las > 0:
		return SubjectLAS
	}
	return ""
}

// Body lists each non-empty bucket, sections separated by a blank line.
func Body(pending, las []models.RequestRecord) string {
	var sb strings.Builder
	if len(pending) > 0 {
		sb.WriteString("Below are the request in PENDING:")
		writeRecords(&sb, pending)
	}
	if len(las) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("Below are the request in LAS ITEM STATUS PENDING:")
		writeRecords(&sb, las)
	}
	return sb.String()
}

func writeRecords(sb *strings.Builder, records []models.RequestRecord) {
	for _, rec := range records {
		sb.WriteString("\nBarcode : ")
		sb.WriteString(rec.Item.Barcode)
		sb.WriteString("\t\t Request Created Date : ")
		sb.WriteString(rec.CreatedAt.Format(createdDateLayout))
		sb.WriteString("\t\t Request Type :")
		sb.WriteString(rec.RequestTypeCode)
	}
}
