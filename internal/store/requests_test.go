package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	apperrors "circulation-workers/internal/common/errors"
	"circulation-workers/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func setupMockDB(t *testing.T) (*RequestStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := NewRequestStore(db)
	s.now = func() time.Time { return fixedNow }
	return s, mock
}

var requestColumns = []string{
	"id", "item_id", "item_barcode", "owning_institution",
	"bib_id", "call_number", "title", "author",
	"patron_barcode", "requesting_institution", "request_type_id", "code", "status",
	"pickup_location", "delivery_location", "email_id", "tracking_id",
	"created_at", "last_updated_at", "version",
}

func requestRow(rows *sqlmock.Rows, id int64, barcode, status string, created time.Time) *sqlmock.Rows {
	return rows.AddRow(
		id, id*10, barcode, "PUL",
		"bib1", "QA76", "Title", "Author",
		"P100", "CUL", 1, models.RequestTypeRetrieval, status,
		"PA", "PJ", "patron@example.org", "",
		created, created, 3,
	)
}

func TestFindPendingNotNotified(t *testing.T) {
	s, mock := setupMockDB(t)
	created := fixedNow.Add(-10 * time.Minute)

	rows := sqlmock.NewRows(requestColumns)
	requestRow(rows, 1, "B1", "PENDING", created)
	requestRow(rows, 2, "B2", "LAS_ITEM_STATUS_PENDING", created)

	mock.ExpectQuery(`FROM requests r JOIN request_types t .* WHERE r.status = ANY\(\$1\) AND NOT EXISTS \(SELECT 1 FROM pending_requests p WHERE p.request_id = r.id\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(rows)

	records, err := s.FindPendingNotNotified(context.Background(),
		[]models.RequestStatus{models.StatusPending, models.StatusLASItemStatusPending})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, int64(1), records[0].ID)
	assert.Equal(t, int64(10), records[0].ItemID)
	assert.Equal(t, "B1", records[0].Item.Barcode)
	assert.Equal(t, "PUL", records[0].OwningInstitution())
	assert.Equal(t, models.StatusLASItemStatusPending, records[1].Status)
	assert.Equal(t, models.RequestTypeRetrieval, records[1].RequestTypeCode)
	assert.Equal(t, 3, records[1].Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindPendingNotNotified_QueryFailure(t *testing.T) {
	s, mock := setupMockDB(t)
	mock.ExpectQuery(`FROM requests r`).WillReturnError(errors.New("connection refused"))

	_, err := s.FindPendingNotNotified(context.Background(), []models.RequestStatus{models.StatusPending})
	assert.ErrorIs(t, err, apperrors.ErrPersistenceFailure)
}

func TestFindByIDs(t *testing.T) {
	s, mock := setupMockDB(t)

	records, err := s.FindByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, records)

	rows := sqlmock.NewRows(requestColumns)
	requestRow(rows, 7, "B7", "RETRIEVAL_ORDER_PLACED", fixedNow)
	mock.ExpectQuery(`WHERE r.id = ANY\(\$1\) ORDER BY r.id`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(rows)

	records, err = s.FindByIDs(context.Background(), []int64{7, 8})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "B7", records[0].Item.Barcode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSavePendingRequests(t *testing.T) {
	pending := []models.PendingRequest{
		{BatchID: "b-1", ItemID: 10, RequestID: 1, ItemBarcode: "B1", RequestTypeCode: "RETRIEVAL", Status: models.StatusPending, RequestCreatedDate: fixedNow, EscalatedAt: fixedNow},
		{BatchID: "b-1", ItemID: 20, RequestID: 2, ItemBarcode: "B2", RequestTypeCode: "EDD", Status: models.StatusLASItemStatusPending, RequestCreatedDate: fixedNow, EscalatedAt: fixedNow},
	}
	const insert = `INSERT INTO pending_requests`

	t.Run("commits all rows", func(t *testing.T) {
		s, mock := setupMockDB(t)
		mock.ExpectBegin()
		prep := mock.ExpectPrepare(insert)
		prep.ExpectExec().
			WithArgs("b-1", int64(10), int64(1), "B1", fixedNow, "RETRIEVAL", "PENDING", fixedNow).
			WillReturnResult(sqlmock.NewResult(1, 1))
		prep.ExpectExec().
			WithArgs("b-1", int64(20), int64(2), "B2", fixedNow, "EDD", "LAS_ITEM_STATUS_PENDING", fixedNow).
			WillReturnResult(sqlmock.NewResult(2, 1))
		mock.ExpectCommit()

		require.NoError(t, s.SavePendingRequests(context.Background(), pending))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on failure", func(t *testing.T) {
		s, mock := setupMockDB(t)
		mock.ExpectBegin()
		prep := mock.ExpectPrepare(insert)
		prep.ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
		prep.ExpectExec().WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		err := s.SavePendingRequests(context.Background(), pending)
		assert.ErrorIs(t, err, apperrors.ErrPersistenceFailure)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		s, mock := setupMockDB(t)
		require.NoError(t, s.SavePendingRequests(context.Background(), nil))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTransitionStatus(t *testing.T) {
	const (
		selectForUpdate = `SELECT status, version FROM requests WHERE id = \$1 FOR UPDATE`
		update          = `UPDATE requests SET status = \$1, version = \$2, last_updated_at = \$3 WHERE id = \$4`
	)

	tests := []struct {
		name        string
		current     string
		version     int
		expected    int
		to          models.RequestStatus
		missing     bool
		wantErr     error
		wantVersion int
	}{
		{name: "pending to placed", current: "PENDING", version: 1, expected: 1, to: models.StatusRetrievalOrderPlaced, wantVersion: 2},
		{name: "placed to refiled", current: "RETRIEVAL_ORDER_PLACED", version: 4, expected: 4, to: models.StatusRefiled, wantVersion: 5},
		{name: "stale version", current: "PENDING", version: 2, expected: 1, to: models.StatusRetrievalOrderPlaced, wantErr: apperrors.ErrVersionConflict},
		{name: "terminal never regresses", current: "REFILED", version: 1, expected: 1, to: models.StatusPending, wantErr: apperrors.ErrInvalidStatusTransition},
		{name: "placed back to pending", current: "EDD_ORDER_PLACED", version: 1, expected: 1, to: models.StatusPending, wantErr: apperrors.ErrInvalidStatusTransition},
		{name: "unknown request", missing: true, expected: 1, to: models.StatusCanceled, wantErr: apperrors.ErrRequestNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := setupMockDB(t)
			mock.ExpectBegin()
			q := mock.ExpectQuery(selectForUpdate).WithArgs(int64(42))
			if tt.missing {
				q.WillReturnError(sql.ErrNoRows)
			} else {
				q.WillReturnRows(sqlmock.NewRows([]string{"status", "version"}).AddRow(tt.current, tt.version))
			}
			if tt.wantErr == nil {
				mock.ExpectExec(update).
					WithArgs(string(tt.to), tt.wantVersion, fixedNow, int64(42)).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			} else {
				mock.ExpectRollback()
			}

			v, err := s.TransitionStatus(context.Background(), 42, tt.expected, tt.to)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantVersion, v)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestTransitionStatus_DatabaseFailure(t *testing.T) {
	s, mock := setupMockDB(t)
	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	_, err := s.TransitionStatus(context.Background(), 1, 1, models.StatusCanceled)
	assert.ErrorIs(t, err, apperrors.ErrPersistenceFailure)
}

func TestFindRequestTypes(t *testing.T) {
	s, mock := setupMockDB(t)
	mock.ExpectQuery(`SELECT id, code FROM request_types ORDER BY id`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "code"}).
			AddRow(1, "RETRIEVAL").
			AddRow(2, "EDD").
			AddRow(3, "RECALL"))

	types, err := s.FindRequestTypes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.RequestType{{ID: 1, Code: "RETRIEVAL"}, {ID: 2, Code: "EDD"}, {ID: 3, Code: "RECALL"}}, types)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScrubEmailOlderThan(t *testing.T) {
	s, mock := setupMockDB(t)
	cutoff := fixedNow.AddDate(0, 0, -60)

	n, err := s.ScrubEmailOlderThan(context.Background(), nil, cutoff)
	require.NoError(t, err)
	assert.Zero(t, n)

	mock.ExpectExec(`UPDATE requests SET email_id = NULL WHERE request_type_id = ANY\(\$1\) AND created_at <= \$2 AND email_id IS NOT NULL`).
		WithArgs(sqlmock.AnyArg(), cutoff).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err = s.ScrubEmailOlderThan(context.Background(), []int{1, 3}, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPurgeByStatusOlderThan(t *testing.T) {
	cutoff := fixedNow.AddDate(0, 0, -365)

	t.Run("deletes escalations then requests", func(t *testing.T) {
		s, mock := setupMockDB(t)
		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM pending_requests WHERE request_id IN \(SELECT id FROM requests WHERE status = \$1 AND last_updated_at < \$2\)`).
			WithArgs("EXCEPTION", cutoff).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`DELETE FROM requests WHERE status = \$1 AND last_updated_at < \$2`).
			WithArgs("EXCEPTION", cutoff).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectCommit()

		n, err := s.PurgeByStatusOlderThan(context.Background(), models.StatusException, cutoff)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failure rolls back", func(t *testing.T) {
		s, mock := setupMockDB(t)
		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM pending_requests`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`DELETE FROM requests`).WillReturnError(errors.New("lock timeout"))
		mock.ExpectRollback()

		_, err := s.PurgeByStatusOlderThan(context.Background(), models.StatusException, cutoff)
		assert.ErrorIs(t, err, apperrors.ErrPersistenceFailure)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMigrate_InstitutionPropertiesCarryUpdatedAt(t *testing.T) {
	ddl := regexp.MustCompile(`(?s)CREATE TABLE IF NOT EXISTS institution_properties \((.*?)\n\);`).FindStringSubmatch(Schema)
	require.Len(t, ddl, 2)
	for _, col := range []string{"institution_code", "property_key", "property_value", "updated_at"} {
		assert.Regexp(t, `(?m)^\s+`+col+`\s`, ddl[1])
	}

	s, mock := setupMockDB(t)
	mock.ExpectExec(regexp.QuoteMeta(Schema)).WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, s.Migrate(context.Background()))

	mock.ExpectExec(`CREATE TABLE`).WillReturnError(errors.New("permission denied"))
	assert.ErrorIs(t, s.Migrate(context.Background()), apperrors.ErrPersistenceFailure)
	assert.NoError(t, mock.ExpectationsWereMet())
}
