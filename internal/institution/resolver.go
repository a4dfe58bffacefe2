// Package institution resolves which institution serves a request and looks
// up per-institution configuration such as pickup location policy.
package institution

import (
	"context"
	"strings"

	apperrors "circulation-workers/internal/common/errors"
	"circulation-workers/internal/common/logger"
)

// Configuration keys read by the dispatcher.
const (
	KeyUseDeliveryAsPickup   = "ils.use.delivery.location.as.pickup.location"
	KeyDefaultPickupLocation = "ils.default.pickup.location"
)

// ConfigSource returns the value configured for an institution and key.
// ok is false when nothing is configured; err reports a failing backend.
type ConfigSource interface {
	GetValue(ctx context.Context, institution, key string) (value string, ok bool, err error)
}

// ConfigWriter stores a value for an institution and key.
type ConfigWriter interface {
	SetValue(ctx context.Context, institution, key, value string) error
}

type Resolver struct {
	source ConfigSource
	logger logger.Logger
}

func NewResolver(source ConfigSource, log logger.Logger) *Resolver {
	return &Resolver{
		source: source,
		logger: log.WithFields(map[string]interface{}{"component": "institution-resolver"}),
	}
}

// Resolve picks the institution that serves a request: a non-blank caller
// override, else the item's owning institution.
func (r *Resolver) Resolve(callInstitution, owningInstitution string) (string, error) {
	if code := strings.TrimSpace(callInstitution); code != "" {
		return code, nil
	}
	if code := strings.TrimSpace(owningInstitution); code != "" {
		return code, nil
	}
	return "", apperrors.NewUnknownInstitutionError("")
}

// GetConfig returns the configured value or a CONFIGURATION_MISSING error.
func (r *Resolver) GetConfig(ctx context.Context, institution, key string) (string, error) {
	value, ok, err := r.source.GetValue(ctx, institution, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", apperrors.NewConfigurationMissingError(institution, key)
	}
	return value, nil
}

// PickupLocation applies the pickup policy: the delivery location when the
// institution uses delivery as pickup, else the supplied pickup location,
// else the institution default, else the delivery location. It never fails;
// lookup errors count as "not configured".
func (r *Resolver) PickupLocation(ctx context.Context, institution, pickup, delivery string) string {
	if r.flag(ctx, institution, KeyUseDeliveryAsPickup) {
		return delivery
	}
	if strings.TrimSpace(pickup) != "" {
		return pickup
	}
	def, err := r.GetConfig(ctx, institution, KeyDefaultPickupLocation)
	if err != nil {
		r.logMissing(institution, KeyDefaultPickupLocation, err)
		return delivery
	}
	return def
}

func (r *Resolver) flag(ctx context.Context, institution, key string) bool {
	value, err := r.GetConfig(ctx, institution, key)
	if err != nil {
		r.logMissing(institution, key, err)
		return false
	}
	return strings.EqualFold(strings.TrimSpace(value), "true")
}

func (r *Resolver) logMissing(institution, key string, err error) {
	fields := map[string]interface{}{
		"institution": institution,
		"key":         key,
	}
	if apperrors.AsStandardError(err).Code == apperrors.ErrCodeConfigurationMissing {
		r.logger.Debug("institution property not configured", fields)
		return
	}
	fields["error"] = err
	r.logger.Warn("institution property lookup failed", fields)
}
