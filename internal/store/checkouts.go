package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"checkout-service/internal/models"
)

// SaveCheckout stores the checkout report; later states overwrite earlier ones.
func (s *Store) SaveCheckout(ctx context.Context, report *models.CartDiscountReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal checkout report: %w", err)
	}

	query := `
		INSERT INTO checkouts (id, customer_id, state, final_price, report, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET state = EXCLUDED.state, final_price = EXCLUDED.final_price, report = EXCLUDED.report`

	_, err = s.db.ExecContext(ctx, query,
		report.CheckoutID, report.CustomerID, report.State, report.FinalPrice, payload, report.CreatedAt)
	return err
}

// GetCheckout retrieves a stored checkout report
func (s *Store) GetCheckout(ctx context.Context, id string) (*models.CartDiscountReport, error) {
	var rec models.CheckoutRecord
	err := s.db.GetContext(ctx, &rec,
		"SELECT id, customer_id, state, final_price, report, created_at FROM checkouts WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrCheckoutNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	var report models.CartDiscountReport
	if err := json.Unmarshal(rec.Report, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkout report: %w", err)
	}
	return &report, nil
}

// TransitionReservation moves the stored reservation status from one value to another in a single
// conditional update, so concurrent callers cannot both win.
func (s *Store) TransitionReservation(ctx context.Context, id, from, to string) (*models.CartDiscountReport, error) {
	query := `
		UPDATE checkouts
		SET report = jsonb_set(report, '{reservation,status}', to_jsonb($3::text))
		WHERE id = $1 AND report->'reservation'->>'status' = $2
		RETURNING report`

	var payload []byte
	err := s.db.GetContext(ctx, &payload, query, id, from, to)
	if errors.Is(err, sql.ErrNoRows) {
		var current sql.NullString
		err = s.db.GetContext(ctx, &current,
			"SELECT report->'reservation'->>'status' FROM checkouts WHERE id = $1", id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", models.ErrCheckoutNotFound, id)
		}
		if err != nil {
			return nil, err
		}
		status := "missing"
		if current.Valid {
			status = current.String
		}
		return nil, fmt.Errorf("%w: checkout %s reservation is %s", models.ErrInvalidRequest, id, status)
	}
	if err != nil {
		return nil, err
	}

	var report models.CartDiscountReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkout report: %w", err)
	}
	return &report, nil
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
