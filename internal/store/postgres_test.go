package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nessa01macias/spotlight/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresFromPool(mock), mock
}

func TestPostgresStore_GetConcept_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM concepts WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetConcept(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrConceptNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetConcept_ScansRow(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{
		"id", "name", "category", "description",
		"base_revenue", "revenue_variance",
		"target_income_min", "target_income_max",
		"optimal_population_density", "target_competitors_per_1k",
		"weights", "outcomes_count", "avg_prediction_error", "last_trained_at",
		"is_system_default", "is_active", "created_at", "updated_at",
	}).AddRow(
		"c-1", "Helsinki QSR", "qsr", "counter service",
		145000, 0.20,
		28000, 55000,
		8000, 0.8,
		[]byte(`{"population":0.30,"income":0.15,"access":0.25,"competition":0.15,"walkability":0.15}`),
		0, nil, nil,
		true, true, now, now,
	)
	mock.ExpectQuery(`SELECT .+ FROM concepts WHERE id = \$1`).
		WithArgs("c-1").
		WillReturnRows(rows)

	c, err := s.GetConcept(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Equal(t, "Helsinki QSR", c.Name)
	assert.Equal(t, 145000, c.BaseRevenue)
	assert.Equal(t, 0.30, c.Weights[model.FactorPopulation])
	assert.True(t, c.IsSystemDefault)
	assert.Nil(t, c.LastTrainedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateOutcome_Duplicate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`INSERT INTO training_outcomes`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := s.CreateOutcome(context.Background(), &model.TrainingOutcome{
		ConceptID:    "c-1",
		PredictionID: "p-1",
	})
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrDuplicateOutcome))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateOutcome_ReturnsID(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`INSERT INTO training_outcomes`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))

	created, err := s.CreateOutcome(context.Background(), &model.TrainingOutcome{
		ConceptID:     "c-1",
		PredictionID:  "p-1",
		ActualRevenue: 110000,
		OpenedAt:      time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), created.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MarkOutcomesUsed(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE training_outcomes SET used_in_training = true`).
		WithArgs(1.0, []int64{4, 5}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	err := s.MarkOutcomesUsed(context.Background(), []int64{4, 5}, 1.0)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
