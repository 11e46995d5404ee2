package database

import (
	"context"
	"time"

	"prediction-api/internal/models"
)

type CreatePredictionParams struct {
	ModelType         string
	RequesterUsername string
	Datetime          time.Time
}

// CreatePrediction appends one row to the usage log. Rows are never updated
// or deleted afterwards.
func (q *Queries) CreatePrediction(ctx context.Context, params CreatePredictionParams) (*models.Prediction, error) {
	query := `
		INSERT INTO predictions (datetime, model_type, requester_username)
		VALUES ($1, $2, $3)
		RETURNING id, datetime, model_type, requester_username
	`
	var prediction models.Prediction

	err := q.db.QueryRow(ctx, query, params.Datetime.UTC(), params.ModelType, params.RequesterUsername).Scan(
		&prediction.ID,
		&prediction.Datetime,
		&prediction.ModelType,
		&prediction.RequesterUsername,
	)
	if err != nil {
		return nil, err
	}

	return &prediction, nil
}

func (q *Queries) ListPredictionsByUser(ctx context.Context, username string, limit int) ([]models.Prediction, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, datetime, model_type, requester_username
		FROM predictions
		WHERE requester_username = $1
		ORDER BY id DESC
		LIMIT $2
	`
	rows, err := q.db.Query(ctx, query, username, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var predictions []models.Prediction
	for rows.Next() {
		var prediction models.Prediction
		err := rows.Scan(
			&prediction.ID,
			&prediction.Datetime,
			&prediction.ModelType,
			&prediction.RequesterUsername,
		)
		if err != nil {
			return nil, err
		}
		predictions = append(predictions, prediction)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	if predictions == nil {
		return []models.Prediction{}, nil
	}

	return predictions, nil
}

func (q *Queries) CountPredictionsByUser(ctx context.Context, username string) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, `SELECT count(*) FROM predictions WHERE requester_username = $1`, username).Scan(&count)
	return count, err
}
