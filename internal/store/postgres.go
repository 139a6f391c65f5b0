package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/nessa01macias/spotlight/internal/db"
	"github.com/nessa01macias/spotlight/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS concepts (
	id                         TEXT PRIMARY KEY,
	name                       TEXT NOT NULL,
	category                   TEXT NOT NULL,
	description                TEXT,
	base_revenue               INTEGER NOT NULL,
	revenue_variance           DOUBLE PRECISION NOT NULL,
	target_income_min          INTEGER NOT NULL,
	target_income_max          INTEGER NOT NULL,
	optimal_population_density INTEGER NOT NULL,
	target_competitors_per_1k  DOUBLE PRECISION NOT NULL,
	weights                    JSONB NOT NULL,
	outcomes_count             INTEGER NOT NULL DEFAULT 0,
	avg_prediction_error       DOUBLE PRECISION,
	last_trained_at            TIMESTAMPTZ,
	is_system_default          BOOLEAN NOT NULL DEFAULT false,
	is_active                  BOOLEAN NOT NULL DEFAULT true,
	created_at                 TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at                 TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS predictions (
	id             TEXT PRIMARY KEY,
	concept_id     TEXT REFERENCES concepts(id),
	address        TEXT NOT NULL,
	area_name      TEXT,
	latitude       DOUBLE PRECISION NOT NULL,
	longitude      DOUBLE PRECISION NOT NULL,
	postal_code    TEXT,
	score          DOUBLE PRECISION NOT NULL,
	revenue_low    DOUBLE PRECISION NOT NULL,
	revenue_mid    DOUBLE PRECISION NOT NULL,
	revenue_high   DOUBLE PRECISION NOT NULL,
	confidence     DOUBLE PRECISION NOT NULL,
	rank           INTEGER,
	features       JSONB,
	recommendation TEXT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS training_outcomes (
	id                BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	concept_id        TEXT REFERENCES concepts(id),
	prediction_id     TEXT NOT NULL UNIQUE REFERENCES predictions(id),
	predicted_revenue DOUBLE PRECISION NOT NULL,
	predicted_score   DOUBLE PRECISION NOT NULL,
	features          JSONB,
	actual_revenue    DOUBLE PRECISION NOT NULL,
	variance_pct      DOUBLE PRECISION NOT NULL,
	opened_at         TIMESTAMPTZ NOT NULL,
	used_in_training  BOOLEAN NOT NULL DEFAULT false,
	training_weight   DOUBLE PRECISION NOT NULL DEFAULT 1.0,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_concepts_category ON concepts(category);
CREATE INDEX IF NOT EXISTS idx_concepts_active ON concepts(category, is_active);
CREATE INDEX IF NOT EXISTS idx_predictions_concept ON predictions(concept_id);
CREATE INDEX IF NOT EXISTS idx_outcomes_concept ON training_outcomes(concept_id);
CREATE INDEX IF NOT EXISTS idx_outcomes_used ON training_outcomes(concept_id, used_in_training);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateConcept(ctx context.Context, c *model.Concept) error {
	if err := c.Validate(); err != nil {
		return err
	}
	weightsJSON, err := json.Marshal(c.Weights)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal weights")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO concepts (
			id, name, category, description,
			base_revenue, revenue_variance,
			target_income_min, target_income_max,
			optimal_population_density, target_competitors_per_1k,
			weights, outcomes_count, avg_prediction_error, last_trained_at,
			is_system_default, is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		c.ID, c.Name, c.Category, c.Description,
		c.BaseRevenue, c.RevenueVariance,
		c.TargetIncomeMin, c.TargetIncomeMax,
		c.OptimalPopulationDensity, c.TargetCompetitorsPer1k,
		weightsJSON, c.OutcomesCount, c.AvgPredictionError, c.LastTrainedAt,
		c.IsSystemDefault, c.IsActive, c.CreatedAt, c.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: insert concept %s", c.ID)
}

func (s *PostgresStore) GetConcept(ctx context.Context, id string) (*model.Concept, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+conceptColumns+` FROM concepts WHERE id = $1`, id)
	return scanPgConcept(row)
}

func (s *PostgresStore) GetActiveConcept(ctx context.Context, category string) (*model.Concept, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+conceptColumns+` FROM concepts
		 WHERE category = $1 AND is_active
		 ORDER BY is_system_default ASC, last_trained_at DESC NULLS LAST, created_at DESC
		 LIMIT 1`,
		category)
	return scanPgConcept(row)
}

func (s *PostgresStore) ListConcepts(ctx context.Context) ([]model.Concept, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+conceptColumns+` FROM concepts ORDER BY category, created_at`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list concepts")
	}
	defer rows.Close()

	var concepts []model.Concept
	for rows.Next() {
		c, err := scanPgConcept(rows)
		if err != nil {
			return nil, err
		}
		concepts = append(concepts, *c)
	}
	return concepts, eris.Wrap(rows.Err(), "postgres: list concepts iterate")
}

func (s *PostgresStore) UpdateConcept(ctx context.Context, c *model.Concept) error {
	if err := c.Validate(); err != nil {
		return err
	}
	current, err := s.GetConcept(ctx, c.ID)
	if err != nil {
		return err
	}
	if current.IsSystemDefault {
		return eris.Wrapf(model.ErrSystemDefaultReadOnly, "concept %s", c.ID)
	}

	weightsJSON, err := json.Marshal(c.Weights)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal weights")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE concepts SET
			name = $1, description = $2,
			base_revenue = $3, revenue_variance = $4,
			target_income_min = $5, target_income_max = $6,
			optimal_population_density = $7, target_competitors_per_1k = $8,
			weights = $9, outcomes_count = $10, avg_prediction_error = $11, last_trained_at = $12,
			is_active = $13, updated_at = $14
		 WHERE id = $15`,
		c.Name, c.Description,
		c.BaseRevenue, c.RevenueVariance,
		c.TargetIncomeMin, c.TargetIncomeMax,
		c.OptimalPopulationDensity, c.TargetCompetitorsPer1k,
		weightsJSON, c.OutcomesCount, c.AvgPredictionError, c.LastTrainedAt,
		c.IsActive, time.Now().UTC(),
		c.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update concept %s", c.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(model.ErrConceptNotFound, "id %s", c.ID)
	}
	return nil
}

func (s *PostgresStore) CreatePrediction(ctx context.Context, p *model.Prediction) error {
	featuresJSON, err := marshalNullable(p.Features)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal features")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO predictions (
			id, concept_id, address, area_name, latitude, longitude, postal_code,
			score, revenue_low, revenue_mid, revenue_high, confidence, rank,
			features, recommendation, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		p.ID, nullString(p.ConceptID), p.Address, p.AreaName, p.Latitude, p.Longitude, p.PostalCode,
		p.Score, p.RevenueLow, p.RevenueMid, p.RevenueHigh, p.Confidence, p.Rank,
		featuresJSON, p.Recommendation, p.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert prediction %s", p.ID)
}

func (s *PostgresStore) GetPrediction(ctx context.Context, id string) (*model.Prediction, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, concept_id, address, area_name, latitude, longitude, postal_code,
			score, revenue_low, revenue_mid, revenue_high, confidence, rank,
			features, recommendation, created_at
		 FROM predictions WHERE id = $1`, id)

	var p model.Prediction
	var conceptID, areaName, postalCode, featuresJSON, recommendation sql.NullString
	var rank sql.NullInt64
	err := row.Scan(&p.ID, &conceptID, &p.Address, &areaName, &p.Latitude, &p.Longitude, &postalCode,
		&p.Score, &p.RevenueLow, &p.RevenueMid, &p.RevenueHigh, &p.Confidence, &rank,
		&featuresJSON, &recommendation, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(model.ErrPredictionNotFound, "id %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan prediction")
	}
	p.ConceptID = conceptID.String
	p.AreaName = areaName.String
	p.PostalCode = postalCode.String
	p.Recommendation = recommendation.String
	p.Rank = int(rank.Int64)
	if featuresJSON.Valid && featuresJSON.String != "" {
		p.Features = &model.SiteFeatures{}
		if err := json.Unmarshal([]byte(featuresJSON.String), p.Features); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal features")
		}
	}
	return &p, nil
}

func (s *PostgresStore) CreateOutcome(ctx context.Context, o *model.TrainingOutcome) (*model.TrainingOutcome, error) {
	featuresJSON, err := marshalNullable(o.Features)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal outcome features")
	}

	var id int64
	err = s.pool.QueryRow(ctx,
		`INSERT INTO training_outcomes (
			concept_id, prediction_id, predicted_revenue, predicted_score,
			features, actual_revenue, variance_pct, opened_at,
			used_in_training, training_weight, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		nullString(o.ConceptID), o.PredictionID, o.PredictedRevenue, o.PredictedScore,
		featuresJSON, o.ActualRevenue, o.VariancePct, o.OpenedAt,
		o.UsedInTraining, o.TrainingWeight, o.CreatedAt,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, eris.Wrapf(model.ErrDuplicateOutcome, "prediction %s", o.PredictionID)
		}
		return nil, eris.Wrapf(err, "postgres: insert outcome for prediction %s", o.PredictionID)
	}

	created := *o
	created.ID = id
	return &created, nil
}

func (s *PostgresStore) ListOutcomes(ctx context.Context, filter OutcomeFilter) ([]model.TrainingOutcome, error) {
	query := `SELECT id, concept_id, prediction_id, predicted_revenue, predicted_score,
		features, actual_revenue, variance_pct, opened_at,
		used_in_training, training_weight, created_at
	 FROM training_outcomes WHERE true`
	var args []any

	if filter.ConceptID != "" {
		args = append(args, filter.ConceptID)
		query += ` AND concept_id = $` + strconv.Itoa(len(args))
	}
	if filter.UnusedOnly {
		query += ` AND NOT used_in_training`
	}
	query += ` ORDER BY opened_at ASC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list outcomes")
	}
	defer rows.Close()

	var outcomes []model.TrainingOutcome
	for rows.Next() {
		var o model.TrainingOutcome
		var conceptID, featuresJSON sql.NullString
		err := rows.Scan(&o.ID, &conceptID, &o.PredictionID, &o.PredictedRevenue, &o.PredictedScore,
			&featuresJSON, &o.ActualRevenue, &o.VariancePct, &o.OpenedAt,
			&o.UsedInTraining, &o.TrainingWeight, &o.CreatedAt)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan outcome")
		}
		o.ConceptID = conceptID.String
		if featuresJSON.Valid && featuresJSON.String != "" {
			o.Features = &model.SiteFeatures{}
			if err := json.Unmarshal([]byte(featuresJSON.String), o.Features); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal outcome features")
			}
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, eris.Wrap(rows.Err(), "postgres: list outcomes iterate")
}

func (s *PostgresStore) MarkOutcomesUsed(ctx context.Context, ids []int64, weight float64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE training_outcomes SET used_in_training = true, training_weight = $1
		 WHERE id = ANY($2)`,
		weight, ids,
	)
	return eris.Wrap(err, "postgres: mark outcomes used")
}

func scanPgConcept(row scannable) (*model.Concept, error) {
	var c model.Concept
	var description sql.NullString
	var weightsJSON []byte
	var avgErr sql.NullFloat64
	var trainedAt sql.NullTime

	err := row.Scan(&c.ID, &c.Name, &c.Category, &description,
		&c.BaseRevenue, &c.RevenueVariance,
		&c.TargetIncomeMin, &c.TargetIncomeMax,
		&c.OptimalPopulationDensity, &c.TargetCompetitorsPer1k,
		&weightsJSON, &c.OutcomesCount, &avgErr, &trainedAt,
		&c.IsSystemDefault, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(model.ErrConceptNotFound, "postgres")
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan concept")
	}

	c.Description = description.String
	if err := json.Unmarshal(weightsJSON, &c.Weights); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal weights")
	}
	if avgErr.Valid {
		c.AvgPredictionError = &avgErr.Float64
	}
	if trainedAt.Valid {
		t := trainedAt.Time
		c.LastTrainedAt = &t
	}
	return &c, nil
}
