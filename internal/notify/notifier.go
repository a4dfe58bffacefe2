// Package notify delivers sweep notifications through one or more channels.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	apperrors "circulation-workers/internal/common/errors"
	"circulation-workers/internal/common/logger"
	"circulation-workers/internal/models"
)

type Notifier interface {
	Send(ctx context.Context, payload models.EmailPayload) error
}

// Channel is a Notifier that can name itself in logs and errors.
type Channel interface {
	Notifier
	Name() string
}

func channelName(n Notifier) string {
	if c, ok := n.(Channel); ok {
		return c.Name()
	}
	return "notifier"
}

// Fanout sends every payload to all channels and reports the failures
// joined together. One failing channel does not stop the others.
type Fanout []Notifier

func (f Fanout) Send(ctx context.Context, payload models.EmailPayload) error {
	var errs []error
	for _, n := range f {
		if err := n.Send(ctx, payload); err != nil {
			errs = append(errs, apperrors.NewNotificationSendFailedError(channelName(n), err))
		}
	}
	return errors.Join(errs...)
}

// LogNotifier writes the payload to the log. Used when no delivery channel is
// enabled.
type LogNotifier struct {
	Logger logger.Logger
}

func (LogNotifier) Name() string { return "log" }

func (n LogNotifier) Send(_ context.Context, payload models.EmailPayload) error {
	n.Logger.Info("notification", map[string]interface{}{
		"notificationId": payload.ID,
		"to":             payload.To,
		"cc":             payload.Cc,
		"subject":        payload.Subject,
		"body":           payload.Body,
	})
	return nil
}

// Async sends in the background so the caller never waits on delivery.
// Failures are logged. Wait blocks until in-flight sends finish.
type Async struct {
	next    Notifier
	timeout time.Duration
	logger  logger.Logger
	wg      sync.WaitGroup
}

func NewAsync(next Notifier, timeout time.Duration, log logger.Logger) *Async {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Async{
		next:    next,
		timeout: timeout,
		logger:  log.WithFields(map[string]interface{}{"component": "notify"}),
	}
}

// Send schedules delivery and returns nil immediately. The send is detached
// from ctx cancellation so a finished sweep does not abort its notification.
func (a *Async) Send(ctx context.Context, payload models.EmailPayload) error {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				a.logger.Error("notification panicked", map[string]interface{}{
					"notificationId": payload.ID,
					"panic":          r,
				})
			}
		}()

		start := time.Now()
		if err := a.next.Send(sendCtx, payload); err != nil {
			a.logger.Error("notification failed", map[string]interface{}{
				"notificationId": payload.ID,
				"subject":        payload.Subject,
				"channel":        channelName(a.next),
				"error":          err.Error(),
			})
			return
		}
		a.logger.Info("notification sent", map[string]interface{}{
			"notificationId": payload.ID,
			"subject":        payload.Subject,
			"duration_ms":    time.Since(start).Milliseconds(),
		})
	}()
	return nil
}

func (a *Async) Wait() {
	a.wg.Wait()
}
