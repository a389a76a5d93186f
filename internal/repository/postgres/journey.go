package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ignite/attribution-engine/internal/domain"
	"github.com/ignite/attribution-engine/internal/journey"
)

// JourneyRepo reads ingested touchpoints and conversion signals and
// persists attribution results. Ingestion writes the touchpoint rows; this
// engine only ever updates value_actual and the attribution record.
type JourneyRepo struct{ db *sql.DB }

// NewJourneyRepo creates a Postgres-backed journey repository.
func NewJourneyRepo(db *sql.DB) *JourneyRepo { return &JourneyRepo{db: db} }

// ListTouchpoints returns touchpoints recorded within [from, to).
func (r *JourneyRepo) ListTouchpoints(ctx context.Context, from, to time.Time) ([]domain.Touchpoint, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, ts, channel, source, COALESCE(campaign, ''), session_id, COALESCE(user_id, ''),
		       device, location, time_on_page_seconds, scroll_depth, engagement_score,
		       value_potential, proximity_km, local_intent, competitor_mentioned, seasonal_factor
		FROM touchpoints
		WHERE ts >= $1 AND ts < $2
		ORDER BY ts ASC
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("list touchpoints: %w", err)
	}
	defer rows.Close()

	var out []domain.Touchpoint
	for rows.Next() {
		var tp domain.Touchpoint
		var channel string
		if err := rows.Scan(&tp.ID, &tp.Timestamp, &channel, &tp.Source, &tp.Campaign,
			&tp.SessionID, &tp.UserID, &tp.Device, &tp.Location,
			&tp.Behavior.TimeOnPageSeconds, &tp.Behavior.ScrollDepth, &tp.Behavior.EngagementScore,
			&tp.Value.Potential, &tp.Local.ProximityKm, &tp.Local.LocalIntent,
			&tp.Local.CompetitorMentioned, &tp.Local.SeasonalFactor); err != nil {
			return nil, fmt.Errorf("scan touchpoint: %w", err)
		}
		tp.Channel = domain.Channel(channel)
		out = append(out, tp)
	}
	return out, rows.Err()
}

// ListConversionSignals returns conversion markers recorded within [from, to).
func (r *JourneyRepo) ListConversionSignals(ctx context.Context, from, to time.Time) ([]journey.ConversionSignal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT identity_key, conversion_type, value, currency, ts
		FROM conversion_signals
		WHERE ts >= $1 AND ts < $2
		ORDER BY ts ASC
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("list conversion signals: %w", err)
	}
	defer rows.Close()

	var out []journey.ConversionSignal
	for rows.Next() {
		var s journey.ConversionSignal
		if err := rows.Scan(&s.IdentityKey, &s.Type, &s.Value, &s.Currency, &s.Timestamp); err != nil {
			return nil, fmt.Errorf("scan conversion signal: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SaveAttribution persists one journey's attribution record and the
// per-touchpoint attributed values in a single transaction. The whole
// record is replaced: a journey is never left partially attributed.
func (r *JourneyRepo) SaveAttribution(ctx context.Context, j *domain.Journey) error {
	if j.Attribution == nil {
		return fmt.Errorf("journey %s has no attribution to save", j.ID)
	}

	weightsJSON, err := json.Marshal(j.Attribution.Weights)
	if err != nil {
		return fmt.Errorf("marshal weights: %w", err)
	}
	breakdownJSON, err := json.Marshal(j.Attribution.ChannelBreakdown)
	if err != nil {
		return fmt.Errorf("marshal channel breakdown: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO journey_attributions (journey_id, identity_key, model_id, weights, total_value, channel_breakdown, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (journey_id) DO UPDATE SET
			model_id = EXCLUDED.model_id,
			weights = EXCLUDED.weights,
			total_value = EXCLUDED.total_value,
			channel_breakdown = EXCLUDED.channel_breakdown,
			computed_at = EXCLUDED.computed_at
	`, j.ID, j.IdentityKey, j.Attribution.ModelID, weightsJSON,
		j.Attribution.TotalValue, breakdownJSON, j.Attribution.ComputedAt)
	if err != nil {
		return fmt.Errorf("save attribution for journey %s: %w", j.ID, err)
	}

	for _, tp := range j.Touchpoints {
		if _, err := tx.ExecContext(ctx, `
			UPDATE touchpoints SET value_actual = $1 WHERE id = $2
		`, tp.Value.Actual, tp.ID); err != nil {
			return fmt.Errorf("update touchpoint %s: %w", tp.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit attribution for journey %s: %w", j.ID, err)
	}
	return nil
}
