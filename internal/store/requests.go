// Package store is the Postgres-backed request store: item requests, their
// escalation audit rows and the request type catalogue.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"circulation-workers/internal/common/database"
	apperrors "circulation-workers/internal/common/errors"
	"circulation-workers/internal/models"

	"github.com/lib/pq"
)

// Schema creates the tables the store reads and writes.
const Schema = `
CREATE TABLE IF NOT EXISTS request_types (
	id   SERIAL PRIMARY KEY,
	code TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS requests (
	id                     BIGSERIAL PRIMARY KEY,
	item_id                BIGINT NOT NULL,
	item_barcode           TEXT NOT NULL,
	owning_institution     TEXT NOT NULL,
	bib_id                 TEXT,
	call_number            TEXT,
	title                  TEXT,
	author                 TEXT,
	patron_barcode         TEXT NOT NULL,
	requesting_institution TEXT NOT NULL,
	request_type_id        INT NOT NULL REFERENCES request_types(id),
	status                 TEXT NOT NULL,
	pickup_location        TEXT,
	delivery_location      TEXT,
	email_id               TEXT,
	tracking_id            TEXT,
	created_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	version                INT NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS requests_status_idx ON requests (status);

CREATE TABLE IF NOT EXISTS pending_requests (
	id                   BIGSERIAL PRIMARY KEY,
	batch_id             UUID NOT NULL,
	item_id              BIGINT NOT NULL,
	request_id           BIGINT NOT NULL REFERENCES requests(id),
	item_barcode         TEXT NOT NULL,
	request_created_date TIMESTAMPTZ NOT NULL,
	request_type_code    TEXT NOT NULL,
	status               TEXT NOT NULL,
	escalated_at         TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS pending_requests_request_idx ON pending_requests (request_id);

CREATE TABLE IF NOT EXISTS institution_properties (
	institution_code TEXT NOT NULL,
	property_key     TEXT NOT NULL,
	property_value   TEXT NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (institution_code, property_key)
);
`

const selectRequests = `
	SELECT r.id, r.item_id, r.item_barcode, r.owning_institution,
	       COALESCE(r.bib_id, ''), COALESCE(r.call_number, ''), COALESCE(r.title, ''), COALESCE(r.author, ''),
	       r.patron_barcode, r.requesting_institution, r.request_type_id, t.code, r.status,
	       COALESCE(r.pickup_location, ''), COALESCE(r.delivery_location, ''),
	       COALESCE(r.email_id, ''), COALESCE(r.tracking_id, ''),
	       r.created_at, r.last_updated_at, r.version
	FROM requests r
	JOIN request_types t ON t.id = r.request_type_id`

type RequestStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewRequestStore(db *sql.DB) *RequestStore {
	return &RequestStore{db: db, now: time.Now}
}

// Migrate applies Schema.
func (s *RequestStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return apperrors.NewPersistenceFailureError("migrate", err)
	}
	return nil
}

// FindPendingNotNotified returns requests in one of statuses that have no
// escalation record yet, oldest first.
func (s *RequestStore) FindPendingNotNotified(ctx context.Context, statuses []models.RequestStatus) ([]models.RequestRecord, error) {
	codes := make([]string, len(statuses))
	for i, st := range statuses {
		codes[i] = string(st)
	}

	query := selectRequests + `
	WHERE r.status = ANY($1)
	  AND NOT EXISTS (SELECT 1 FROM pending_requests p WHERE p.request_id = r.id)
	ORDER BY r.created_at`

	records, err := s.query(ctx, query, pq.Array(codes))
	if err != nil {
		return nil, apperrors.NewPersistenceFailureError("find pending requests", err)
	}
	return records, nil
}

// FindByIDs returns the requests with the given ids, ordered by id. Unknown
// ids are skipped.
func (s *RequestStore) FindByIDs(ctx context.Context, ids []int64) ([]models.RequestRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	records, err := s.query(ctx, selectRequests+`
	WHERE r.id = ANY($1)
	ORDER BY r.id`, pq.Array(ids))
	if err != nil {
		return nil, apperrors.NewPersistenceFailureError("find requests by id", err)
	}
	return records, nil
}

func (s *RequestStore) query(ctx context.Context, query string, args ...interface{}) ([]models.RequestRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.RequestRecord
	for rows.Next() {
		var (
			r      models.RequestRecord
			status string
		)
		if err := rows.Scan(
			&r.ID, &r.ItemID, &r.Item.Barcode, &r.Item.OwningInstitution,
			&r.Item.BibID, &r.Item.CallNumber, &r.Item.Title, &r.Item.Author,
			&r.PatronBarcode, &r.RequestingInstitution, &r.RequestTypeID, &r.RequestTypeCode, &status,
			&r.PickupLocation, &r.DeliveryLocation,
			&r.EmailID, &r.TrackingID,
			&r.CreatedAt, &r.LastUpdatedAt, &r.Version,
		); err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		r.Status = models.RequestStatus(status)
		records = append(records, r)
	}
	return records, rows.Err()
}

// SavePendingRequests inserts a sweep's escalation records in one
// transaction. Either all rows are written or none.
func (s *RequestStore) SavePendingRequests(ctx context.Context, pending []models.PendingRequest) error {
	if len(pending) == 0 {
		return nil
	}

	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO pending_requests
				(batch_id, item_id, request_id, item_barcode, request_created_date, request_type_code, status, escalated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, p := range pending {
			if _, err := stmt.ExecContext(ctx,
				p.BatchID, p.ItemID, p.RequestID, p.ItemBarcode,
				p.RequestCreatedDate, p.RequestTypeCode, string(p.Status), p.EscalatedAt,
			); err != nil {
				return fmt.Errorf("insert pending request %d: %w", p.RequestID, err)
			}
		}
		return nil
	})
	if err != nil {
		return apperrors.NewPersistenceFailureError("save pending requests", err)
	}
	return nil
}

// TransitionStatus moves a request to status to. The row is locked for the
// update and the caller's expectedVersion must match the stored version, so
// two operations working from the same snapshot cannot both win. It returns
// the new version.
func (s *RequestStore) TransitionStatus(ctx context.Context, id int64, expectedVersion int, to models.RequestStatus) (int, error) {
	var newVersion int
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var (
			current string
			version int
		)
		err := tx.QueryRowContext(ctx,
			`SELECT status, version FROM requests WHERE id = $1 FOR UPDATE`, id,
		).Scan(&current, &version)
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NewRequestNotFoundError(id)
		}
		if err != nil {
			return err
		}

		if version != expectedVersion {
			return apperrors.NewVersionConflictError(id, expectedVersion, version)
		}
		from := models.RequestStatus(current)
		if !models.CanTransition(from, to) {
			return apperrors.NewInvalidStatusTransitionError(id, string(from), string(to))
		}

		newVersion = version + 1
		_, err = tx.ExecContext(ctx,
			`UPDATE requests SET status = $1, version = $2, last_updated_at = $3 WHERE id = $4`,
			string(to), newVersion, s.now().UTC(), id)
		return err
	})
	if err != nil {
		var stdErr *apperrors.StandardError
		if errors.As(err, &stdErr) {
			return 0, stdErr
		}
		return 0, apperrors.NewPersistenceFailureError("transition status", err)
	}
	return newVersion, nil
}

// FindRequestTypes lists the request type catalogue.
func (s *RequestStore) FindRequestTypes(ctx context.Context) ([]models.RequestType, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, code FROM request_types ORDER BY id`)
	if err != nil {
		return nil, apperrors.NewPersistenceFailureError("find request types", err)
	}
	defer rows.Close()

	var types []models.RequestType
	for rows.Next() {
		var t models.RequestType
		if err := rows.Scan(&t.ID, &t.Code); err != nil {
			return nil, apperrors.NewPersistenceFailureError("find request types", err)
		}
		types = append(types, t)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewPersistenceFailureError("find request types", err)
	}
	return types, nil
}

// ScrubEmailOlderThan clears the patron email on requests of the given
// types created at or before cutoff. Already scrubbed rows are not counted.
func (s *RequestStore) ScrubEmailOlderThan(ctx context.Context, typeIDs []int, cutoff time.Time) (int64, error) {
	if len(typeIDs) == 0 {
		return 0, nil
	}
	ids := make([]int64, len(typeIDs))
	for i, id := range typeIDs {
		ids[i] = int64(id)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE requests SET email_id = NULL
		WHERE request_type_id = ANY($1)
		  AND created_at <= $2
		  AND email_id IS NOT NULL`,
		pq.Array(ids), cutoff)
	if err != nil {
		return 0, apperrors.NewPersistenceFailureError("scrub email", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperrors.NewPersistenceFailureError("scrub email", err)
	}
	return n, nil
}

// PurgeByStatusOlderThan deletes requests in status whose last update is
// before cutoff, together with their escalation records.
func (s *RequestStore) PurgeByStatusOlderThan(ctx context.Context, status models.RequestStatus, cutoff time.Time) (int64, error) {
	var purged int64
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM pending_requests
			WHERE request_id IN (SELECT id FROM requests WHERE status = $1 AND last_updated_at < $2)`,
			string(status), cutoff); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			`DELETE FROM requests WHERE status = $1 AND last_updated_at < $2`,
			string(status), cutoff)
		if err != nil {
			return err
		}
		purged, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, apperrors.NewPersistenceFailureError("purge requests", err)
	}
	return purged, nil
}
