package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/nessa01macias/spotlight/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// sqlitePragmas ride on the DSN so every pooled connection gets them, not
// just the one a plain Exec would hit.
const sqlitePragmas = "_pragma=journal_mode(WAL)" +
	"&_pragma=busy_timeout(5000)" +
	"&_pragma=synchronous(NORMAL)" +
	"&_pragma=foreign_keys(1)"

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite", dsn+sep+sqlitePragmas)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "sqlite: ping")
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS concepts (
	id                         TEXT PRIMARY KEY,
	name                       TEXT NOT NULL,
	category                   TEXT NOT NULL,
	description                TEXT,
	base_revenue               INTEGER NOT NULL,
	revenue_variance           REAL NOT NULL,
	target_income_min          INTEGER NOT NULL,
	target_income_max          INTEGER NOT NULL,
	optimal_population_density INTEGER NOT NULL,
	target_competitors_per_1k  REAL NOT NULL,
	weights                    TEXT NOT NULL,
	outcomes_count             INTEGER NOT NULL DEFAULT 0,
	avg_prediction_error       REAL,
	last_trained_at            DATETIME,
	is_system_default          INTEGER NOT NULL DEFAULT 0,
	is_active                  INTEGER NOT NULL DEFAULT 1,
	created_at                 DATETIME NOT NULL,
	updated_at                 DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS predictions (
	id             TEXT PRIMARY KEY,
	concept_id     TEXT REFERENCES concepts(id),
	address        TEXT NOT NULL,
	area_name      TEXT,
	latitude       REAL NOT NULL,
	longitude      REAL NOT NULL,
	postal_code    TEXT,
	score          REAL NOT NULL,
	revenue_low    REAL NOT NULL,
	revenue_mid    REAL NOT NULL,
	revenue_high   REAL NOT NULL,
	confidence     REAL NOT NULL,
	rank           INTEGER,
	features       TEXT,
	recommendation TEXT,
	created_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS training_outcomes (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	concept_id        TEXT REFERENCES concepts(id),
	prediction_id     TEXT NOT NULL UNIQUE REFERENCES predictions(id),
	predicted_revenue REAL NOT NULL,
	predicted_score   REAL NOT NULL,
	features          TEXT,
	actual_revenue    REAL NOT NULL,
	variance_pct      REAL NOT NULL,
	opened_at         DATETIME NOT NULL,
	used_in_training  INTEGER NOT NULL DEFAULT 0,
	training_weight   REAL NOT NULL DEFAULT 1.0,
	created_at        DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_concepts_category ON concepts(category);
CREATE INDEX IF NOT EXISTS idx_concepts_active ON concepts(category, is_active);
CREATE INDEX IF NOT EXISTS idx_predictions_concept ON predictions(concept_id);
CREATE INDEX IF NOT EXISTS idx_outcomes_concept ON training_outcomes(concept_id);
CREATE INDEX IF NOT EXISTS idx_outcomes_used ON training_outcomes(concept_id, used_in_training);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateConcept(ctx context.Context, c *model.Concept) error {
	if err := c.Validate(); err != nil {
		return err
	}
	weightsJSON, err := json.Marshal(c.Weights)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal weights")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO concepts (
			id, name, category, description,
			base_revenue, revenue_variance,
			target_income_min, target_income_max,
			optimal_population_density, target_competitors_per_1k,
			weights, outcomes_count, avg_prediction_error, last_trained_at,
			is_system_default, is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Category, c.Description,
		c.BaseRevenue, c.RevenueVariance,
		c.TargetIncomeMin, c.TargetIncomeMax,
		c.OptimalPopulationDensity, c.TargetCompetitorsPer1k,
		string(weightsJSON), c.OutcomesCount, c.AvgPredictionError, c.LastTrainedAt,
		c.IsSystemDefault, c.IsActive, c.CreatedAt, c.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert concept %s", c.ID)
}

const conceptColumns = `id, name, category, description,
	base_revenue, revenue_variance,
	target_income_min, target_income_max,
	optimal_population_density, target_competitors_per_1k,
	weights, outcomes_count, avg_prediction_error, last_trained_at,
	is_system_default, is_active, created_at, updated_at`

func (s *SQLiteStore) GetConcept(ctx context.Context, id string) (*model.Concept, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conceptColumns+` FROM concepts WHERE id = ?`, id)
	return scanConcept(row)
}

func (s *SQLiteStore) GetActiveConcept(ctx context.Context, category string) (*model.Concept, error) {
	// Trained non-default concepts supersede the shipped default.
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conceptColumns+` FROM concepts
		 WHERE category = ? AND is_active = 1
		 ORDER BY is_system_default ASC, last_trained_at DESC, created_at DESC
		 LIMIT 1`,
		category)
	return scanConcept(row)
}

func (s *SQLiteStore) ListConcepts(ctx context.Context) ([]model.Concept, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+conceptColumns+` FROM concepts ORDER BY category, created_at`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list concepts")
	}
	defer rows.Close()

	var concepts []model.Concept
	for rows.Next() {
		c, err := scanConcept(rows)
		if err != nil {
			return nil, err
		}
		concepts = append(concepts, *c)
	}
	return concepts, eris.Wrap(rows.Err(), "sqlite: list concepts iterate")
}

func (s *SQLiteStore) UpdateConcept(ctx context.Context, c *model.Concept) error {
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
		return eris.Wrap(err, "sqlite: marshal weights")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE concepts SET
			name = ?, description = ?,
			base_revenue = ?, revenue_variance = ?,
			target_income_min = ?, target_income_max = ?,
			optimal_population_density = ?, target_competitors_per_1k = ?,
			weights = ?, outcomes_count = ?, avg_prediction_error = ?, last_trained_at = ?,
			is_active = ?, updated_at = ?
		 WHERE id = ?`,
		c.Name, c.Description,
		c.BaseRevenue, c.RevenueVariance,
		c.TargetIncomeMin, c.TargetIncomeMax,
		c.OptimalPopulationDensity, c.TargetCompetitorsPer1k,
		string(weightsJSON), c.OutcomesCount, c.AvgPredictionError, c.LastTrainedAt,
		c.IsActive, time.Now().UTC(),
		c.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update concept %s", c.ID)
	}
	return checkRowsAffected(res, c.ID)
}

func (s *SQLiteStore) CreatePrediction(ctx context.Context, p *model.Prediction) error {
	featuresJSON, err := marshalNullable(p.Features)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal features")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO predictions (
			id, concept_id, address, area_name, latitude, longitude, postal_code,
			score, revenue_low, revenue_mid, revenue_high, confidence, rank,
			features, recommendation, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, nullString(p.ConceptID), p.Address, p.AreaName, p.Latitude, p.Longitude, p.PostalCode,
		p.Score, p.RevenueLow, p.RevenueMid, p.RevenueHigh, p.Confidence, p.Rank,
		featuresJSON, p.Recommendation, p.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert prediction %s", p.ID)
}

func (s *SQLiteStore) GetPrediction(ctx context.Context, id string) (*model.Prediction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, concept_id, address, area_name, latitude, longitude, postal_code,
			score, revenue_low, revenue_mid, revenue_high, confidence, rank,
			features, recommendation, created_at
		 FROM predictions WHERE id = ?`, id)

	var p model.Prediction
	var conceptID, areaName, postalCode, featuresJSON, recommendation sql.NullString
	var rank sql.NullInt64
	err := row.Scan(&p.ID, &conceptID, &p.Address, &areaName, &p.Latitude, &p.Longitude, &postalCode,
		&p.Score, &p.RevenueLow, &p.RevenueMid, &p.RevenueHigh, &p.Confidence, &rank,
		&featuresJSON, &recommendation, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(model.ErrPredictionNotFound, "id %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan prediction")
	}
	p.ConceptID = conceptID.String
	p.AreaName = areaName.String
	p.PostalCode = postalCode.String
	p.Recommendation = recommendation.String
	p.Rank = int(rank.Int64)
	if featuresJSON.Valid && featuresJSON.String != "" {
		p.Features = &model.SiteFeatures{}
		if err := json.Unmarshal([]byte(featuresJSON.String), p.Features); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal features")
		}
	}
	return &p, nil
}

func (s *SQLiteStore) CreateOutcome(ctx context.Context, o *model.TrainingOutcome) (*model.TrainingOutcome, error) {
	featuresJSON, err := marshalNullable(o.Features)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal outcome features")
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO training_outcomes (
			concept_id, prediction_id, predicted_revenue, predicted_score,
			features, actual_revenue, variance_pct, opened_at,
			used_in_training, training_weight, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullString(o.ConceptID), o.PredictionID, o.PredictedRevenue, o.PredictedScore,
		featuresJSON, o.ActualRevenue, o.VariancePct, o.OpenedAt,
		o.UsedInTraining, o.TrainingWeight, o.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, eris.Wrapf(model.ErrDuplicateOutcome, "prediction %s", o.PredictionID)
		}
		return nil, eris.Wrapf(err, "sqlite: insert outcome for prediction %s", o.PredictionID)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: outcome id")
	}
	created := *o
	created.ID = id
	return &created, nil
}

func (s *SQLiteStore) ListOutcomes(ctx context.Context, filter OutcomeFilter) ([]model.TrainingOutcome, error) {
	query := `SELECT id, concept_id, prediction_id, predicted_revenue, predicted_score,
		features, actual_revenue, variance_pct, opened_at,
		used_in_training, training_weight, created_at
	 FROM training_outcomes WHERE 1=1`
	var args []any

	if filter.ConceptID != "" {
		query += ` AND concept_id = ?`
		args = append(args, filter.ConceptID)
	}
	if filter.UnusedOnly {
		query += ` AND used_in_training = 0`
	}
	query += ` ORDER BY opened_at ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list outcomes")
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
			return nil, eris.Wrap(err, "sqlite: scan outcome")
		}
		o.ConceptID = conceptID.String
		if featuresJSON.Valid && featuresJSON.String != "" {
			o.Features = &model.SiteFeatures{}
			if err := json.Unmarshal([]byte(featuresJSON.String), o.Features); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal outcome features")
			}
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, eris.Wrap(rows.Err(), "sqlite: list outcomes iterate")
}

func (s *SQLiteStore) MarkOutcomesUsed(ctx context.Context, ids []int64, weight float64) error {
	if len(ids) == 0 {
		return nil
	}
	query := `UPDATE training_outcomes SET used_in_training = 1, training_weight = ?
	 WHERE id IN (?` + strings.Repeat(", ?", len(ids)-1) + `)`
	args := make([]any, 0, len(ids)+1)
	args = append(args, weight)
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := s.db.ExecContext(ctx, query, args...)
	return eris.Wrap(err, "sqlite: mark outcomes used")
}

// helpers

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(model.ErrConceptNotFound, "id %s", id)
	}
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func marshalNullable(f *model.SiteFeatures) (any, error) {
	if f == nil {
		return nil, nil
	}
	b, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanConcept(row scannable) (*model.Concept, error) {
	var c model.Concept
	var description sql.NullString
	var weightsJSON string
	var avgErr sql.NullFloat64
	var trainedAt sql.NullTime

	err := row.Scan(&c.ID, &c.Name, &c.Category, &description,
		&c.BaseRevenue, &c.RevenueVariance,
		&c.TargetIncomeMin, &c.TargetIncomeMax,
		&c.OptimalPopulationDensity, &c.TargetCompetitorsPer1k,
		&weightsJSON, &c.OutcomesCount, &avgErr, &trainedAt,
		&c.IsSystemDefault, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(model.ErrConceptNotFound, "sqlite")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan concept")
	}

	c.Description = description.String
	if err := json.Unmarshal([]byte(weightsJSON), &c.Weights); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal weights")
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
