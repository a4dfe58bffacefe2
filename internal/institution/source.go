package institution

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"circulation-workers/internal/common/config"
	apperrors "circulation-workers/internal/common/errors"
)

// StaticSource serves properties from the YAML configuration.
type StaticSource struct {
	mu     sync.RWMutex
	values map[string]map[string]string
}

func NewStaticSource(cfg config.ILSConfig) *StaticSource {
	values := make(map[string]map[string]string, len(cfg.Institutions))
	for code, inst := range cfg.Institutions {
		props := make(map[string]string, len(inst.Properties))
		for k, v := range inst.Properties {
			props[k] = v
		}
		values[strings.ToUpper(code)] = props
	}
	return &StaticSource{values: values}
}

func (s *StaticSource) GetValue(_ context.Context, institution, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[strings.ToUpper(institution)][key]
	return v, ok, nil
}

// SetValue changes the in-memory value only.
func (s *StaticSource) SetValue(_ context.Context, institution, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	code := strings.ToUpper(institution)
	if s.values[code] == nil {
		s.values[code] = map[string]string{}
	}
	s.values[code][key] = value
	return nil
}

// PostgresSource reads the institution_properties table.
type PostgresSource struct {
	db *sql.DB
}

func NewPostgresSource(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

func (s *PostgresSource) GetValue(ctx context.Context, institution, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `
		SELECT property_value
		FROM institution_properties
		WHERE institution_code = $1 AND property_key = $2`,
		strings.ToUpper(institution), key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperrors.NewPersistenceFailureError("get institution property", err)
	}
	return value, true, nil
}

func (s *PostgresSource) SetValue(ctx context.Context, institution, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO institution_properties (institution_code, property_key, property_value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (institution_code, property_key)
		DO UPDATE SET property_value = EXCLUDED.property_value, updated_at = NOW()`,
		strings.ToUpper(institution), key, value)
	if err != nil {
		return apperrors.NewPersistenceFailureError("set institution property", err)
	}
	return nil
}

// Layered asks each source in turn; the first configured value wins.
type Layered []ConfigSource

func (l Layered) GetValue(ctx context.Context, institution, key string) (string, bool, error) {
	var firstErr error
	for _, src := range l {
		v, ok, err := src.GetValue(ctx, institution, key)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			return v, true, nil
		}
	}
	return "", false, firstErr
}

// SetValue writes to the first source that accepts writes.
func (l Layered) SetValue(ctx context.Context, institution, key, value string) error {
	for _, src := range l {
		if w, ok := src.(ConfigWriter); ok {
			return w.SetValue(ctx, institution, key, value)
		}
	}
	return fmt.Errorf("no writable configuration source")
}
