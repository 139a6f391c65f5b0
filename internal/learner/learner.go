// Package learner updates concept parameters from reported opening outcomes.
// A concept's revenue model and factor weights start from seeded defaults and
// converge toward observed reality as outcomes accumulate.
package learner

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/nessa01macias/spotlight/internal/model"
	"github.com/nessa01macias/spotlight/internal/store"
)

const (
	// MinOutcomesForTraining gates base revenue and variance re-estimation.
	MinOutcomesForTraining = 5
	// MinOutcomesForWeights gates factor weight re-estimation, which needs
	// enough samples for correlations to mean anything.
	MinOutcomesForWeights = 20
)

// Learner records outcomes and retrains concepts when enough have accumulated.
type Learner struct {
	store store.Store
	log   *zap.Logger

	// locks serializes retraining per concept.
	locks sync.Map // concept ID -> *sync.Mutex
}

// New wires a Learner over the given store.
func New(st store.Store) *Learner {
	return &Learner{
		store: st,
		log:   zap.L().With(zap.String("component", "learner")),
	}
}

// OutcomeResult reports what recording an outcome changed.
type OutcomeResult struct {
	Outcome             *model.TrainingOutcome `json:"outcome"`
	ConceptID           string                 `json:"concept_id"`
	OutcomesCount       int                    `json:"outcomes_count"`
	TriggeredRetraining bool                   `json:"triggered_retraining"`
	NewAccuracy         *float64               `json:"new_accuracy_mape,omitempty"`
}

// RecordOutcome stores the actual revenue observed for a prediction and
// retrains the concept when the training threshold is reached. Returns
// model.ErrPredictionNotFound or model.ErrDuplicateOutcome for the caller
// to map; both are tested with eris.Is.
func (l *Learner) RecordOutcome(ctx context.Context, predictionID string, actualRevenue float64, openedAt time.Time) (*OutcomeResult, error) {
	if actualRevenue <= 0 {
		return nil, eris.New("learner: actual revenue must be positive")
	}

	p, err := l.store.GetPrediction(ctx, predictionID)
	if err != nil {
		return nil, err
	}

	// Conceptless predictions accept outcomes for record-keeping only.
	var concept *model.Concept
	if p.ConceptID != "" {
		concept, err = l.store.GetConcept(ctx, p.ConceptID)
		if err != nil {
			return nil, err
		}
		// Shipped defaults stay untouched as a baseline. Outcomes against
		// one land on the trainable copy for its category, forked on first
		// use and reused from then on.
		if concept.IsSystemDefault {
			concept, err = l.trainableFor(ctx, concept)
			if err != nil {
				return nil, err
			}
		}
	}

	variancePct := 0.0
	if p.RevenueMid > 0 {
		variancePct = (actualRevenue - p.RevenueMid) / p.RevenueMid * 100
	}

	conceptID := ""
	if concept != nil {
		conceptID = concept.ID
	}
	outcome := &model.TrainingOutcome{
		ConceptID:        conceptID,
		PredictionID:     predictionID,
		PredictedRevenue: p.RevenueMid,
		PredictedScore:   p.Score,
		Features:         p.Features,
		ActualRevenue:    actualRevenue,
		VariancePct:      variancePct,
		OpenedAt:         openedAt.UTC(),
		TrainingWeight:   1.0,
		CreatedAt:        time.Now().UTC(),
	}
	created, err := l.store.CreateOutcome(ctx, outcome)
	if err != nil {
		return nil, err
	}

	result := &OutcomeResult{
		Outcome:   created,
		ConceptID: conceptID,
	}
	if concept == nil {
		return result, nil
	}

	trained, err := l.Retrain(ctx, conceptID)
	if err != nil {
		return nil, err
	}
	if trained != nil {
		result.TriggeredRetraining = true
		result.OutcomesCount = trained.OutcomesCount
		result.NewAccuracy = trained.AvgPredictionError
		return result, nil
	}

	outcomes, err := l.store.ListOutcomes(ctx, store.OutcomeFilter{ConceptID: conceptID})
	if err != nil {
		return nil, err
	}
	result.OutcomesCount = len(outcomes)
	if err := l.bumpOutcomesCount(ctx, conceptID, len(outcomes)); err != nil {
		return nil, err
	}
	return result, nil
}

// trainableFor resolves the concept that accumulates outcomes for a
// default's category: the copy that already superseded it when one exists,
// otherwise a fresh fork.
func (l *Learner) trainableFor(ctx context.Context, def *model.Concept) (*model.Concept, error) {
	active, err := l.store.GetActiveConcept(ctx, def.Category)
	if err != nil {
		if eris.Is(err, model.ErrConceptNotFound) {
			return l.forkDefault(ctx, def)
		}
		return nil, err
	}
	if !active.IsSystemDefault {
		return active, nil
	}
	return l.forkDefault(ctx, def)
}

// bumpOutcomesCount keeps the stored count in step with recorded outcomes
// between trainings. Takes the concept's lock so a concurrent Retrain cannot
// be clobbered with stale parameters; the count only moves up.
func (l *Learner) bumpOutcomesCount(ctx context.Context, conceptID string, n int) error {
	muAny, _ := l.locks.LoadOrStore(conceptID, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	concept, err := l.store.GetConcept(ctx, conceptID)
	if err != nil {
		return err
	}
	if n <= concept.OutcomesCount {
		return nil
	}
	concept.OutcomesCount = n
	return l.store.UpdateConcept(ctx, concept)
}

// forkDefault clones a system default concept into a trainable copy.
func (l *Learner) forkDefault(ctx context.Context, def *model.Concept) (*model.Concept, error) {
	clone := def.Clone(def.Name + " (trained)")
	if err := l.store.CreateConcept(ctx, clone); err != nil {
		return nil, err
	}
	l.log.Info("forked system default for training",
		zap.String("default_id", def.ID),
		zap.String("concept_id", clone.ID),
		zap.String("category", def.Category))
	return clone, nil
}

// Retrain re-estimates a concept's revenue model from its full outcome
// history. Returns (nil, nil) when too few outcomes exist. Concurrent calls
// for the same concept serialize.
func (l *Learner) Retrain(ctx context.Context, conceptID string) (*model.Concept, error) {
	muAny, _ := l.locks.LoadOrStore(conceptID, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	concept, err := l.store.GetConcept(ctx, conceptID)
	if err != nil {
		return nil, err
	}
	if concept.IsSystemDefault {
		return nil, eris.Wrapf(model.ErrSystemDefaultReadOnly, "retrain %s", conceptID)
	}

	outcomes, err := l.store.ListOutcomes(ctx, store.OutcomeFilter{ConceptID: conceptID})
	if err != nil {
		return nil, err
	}
	n := len(outcomes)
	if n < MinOutcomesForTraining {
		return nil, nil
	}

	actuals := make([]float64, n)
	absVariances := make([]float64, n)
	for i, o := range outcomes {
		actuals[i] = o.ActualRevenue
		absVariances[i] = math.Abs(o.VariancePct)
	}

	mape := mean(absVariances)
	concept.BaseRevenue = int(math.Round(median(actuals)))
	concept.RevenueVariance = varianceBand(mape, n)
	concept.OutcomesCount = n
	concept.AvgPredictionError = &mape
	now := time.Now().UTC()
	concept.LastTrainedAt = &now

	if n >= MinOutcomesForWeights {
		if weights, ok := correlationWeights(outcomes, actuals); ok {
			concept.Weights = weights
		}
	}

	if err := l.store.UpdateConcept(ctx, concept); err != nil {
		return nil, err
	}

	ids := make([]int64, n)
	for i, o := range outcomes {
		ids[i] = o.ID
	}
	if err := l.store.MarkOutcomesUsed(ctx, ids, 1.0); err != nil {
		return nil, err
	}

	l.log.Info("concept retrained",
		zap.String("concept_id", conceptID),
		zap.Int("outcomes", n),
		zap.Float64("mape", mape),
		zap.Int("base_revenue", concept.BaseRevenue),
		zap.Float64("revenue_variance", concept.RevenueVariance))
	return concept, nil
}

// ConceptStats summarizes a concept's learning progress. The variance
// fields are absent until the first outcome exists.
type ConceptStats struct {
	ConceptID         string             `json:"concept_id"`
	Name              string             `json:"name"`
	Category          string             `json:"category"`
	OutcomesCount     int                `json:"outcomes_count"`
	AvgError          *float64           `json:"avg_prediction_error,omitempty"`
	BaseRevenue       int                `json:"base_revenue_eur"`
	RevenueVariance   float64            `json:"revenue_variance"`
	MedianVariancePct *float64           `json:"median_variance_pct,omitempty"`
	BestVariancePct   *float64           `json:"best_variance_pct,omitempty"`
	WorstVariancePct  *float64           `json:"worst_variance_pct,omitempty"`
	WithinBandCount   int                `json:"within_band_count"`
	Weights           map[string]float64 `json:"weights"`
	LastTrainedAt     *time.Time         `json:"last_trained_at,omitempty"`
	WeightsTunable    bool               `json:"weights_tunable"`
}

// Stats returns learning progress for a concept.
func (l *Learner) Stats(ctx context.Context, conceptID string) (*ConceptStats, error) {
	concept, err := l.store.GetConcept(ctx, conceptID)
	if err != nil {
		return nil, err
	}
	outcomes, err := l.store.ListOutcomes(ctx, store.OutcomeFilter{ConceptID: conceptID})
	if err != nil {
		return nil, err
	}
	stats := &ConceptStats{
		ConceptID:       concept.ID,
		Name:            concept.Name,
		Category:        concept.Category,
		OutcomesCount:   len(outcomes),
		AvgError:        concept.AvgPredictionError,
		BaseRevenue:     concept.BaseRevenue,
		RevenueVariance: concept.RevenueVariance,
		Weights:         concept.Weights,
		LastTrainedAt:   concept.LastTrainedAt,
		WeightsTunable:  len(outcomes) >= MinOutcomesForWeights,
	}
	if len(outcomes) > 0 {
		abs := make([]float64, len(outcomes))
		best, worst := math.Abs(outcomes[0].VariancePct), math.Abs(outcomes[0].VariancePct)
		within := 0
		for i, o := range outcomes {
			v := math.Abs(o.VariancePct)
			abs[i] = v
			if v < best {
				best = v
			}
			if v > worst {
				worst = v
			}
			// Within band means the published revenue range contained the
			// actual; the band is a fraction, variance a percentage.
			if v <= concept.RevenueVariance*100 {
				within++
			}
		}
		med := median(abs)
		stats.MedianVariancePct = &med
		stats.BestVariancePct = &best
		stats.WorstVariancePct = &worst
		stats.WithinBandCount = within
	}
	return stats, nil
}

// varianceBand maps prediction accuracy to the revenue range half-width.
// Better accuracy narrows the published range; past twenty percent error the
// band widens but tightens slowly as the sample grows.
func varianceBand(mape float64, n int) float64 {
	switch {
	case mape < 10:
		return 0.10
	case mape < 15:
		return 0.12
	case mape < 20:
		return 0.15
	default:
		return math.Max(0.20-0.005*float64(n), 0.15)
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
