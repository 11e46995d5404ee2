package database

import (
	"context"
	"errors"
	"fmt"

	"prediction-api/internal/models"

	"github.com/jackc/pgx/v5"
)

// ErrCreditsNotFound means the credits row for an existing user is missing.
// Registration creates the row in the same transaction as the user, so this
// is an invariant violation, not a user error.
var ErrCreditsNotFound = errors.New("credits row not found")

type InsufficientFundsError struct {
	Required  int64
	Available int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: %d credits required, %d available", e.Required, e.Available)
}

// InitializeCredits creates the credits row for a freshly registered user.
// Called exactly once, inside the registration transaction.
func (q *Queries) InitializeCredits(ctx context.Context, username string, startingAmount int64) error {
	query := `INSERT INTO credits (owner_username, amount) VALUES ($1, $2)`
	_, err := q.db.Exec(ctx, query, username, startingAmount)
	return err
}

func (q *Queries) GetCredits(ctx context.Context, username string) (*models.Credits, error) {
	query := `SELECT owner_username, amount FROM credits WHERE owner_username = $1`

	var credits models.Credits
	err := q.db.QueryRow(ctx, query, username).Scan(
		&credits.OwnerUsername,
		&credits.Amount,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCreditsNotFound
		}
		return nil, err
	}

	return &credits, nil
}

// DebitCredits subtracts cost from the user's balance in a single
// conditional UPDATE. The balance can never go negative: if it is below
// cost the statement matches no row and an InsufficientFundsError carrying
// the current balance is returned instead. Concurrent debits for the same
// user serialize on the row lock; different users never contend.
func (q *Queries) DebitCredits(ctx context.Context, username string, cost int64) (int64, error) {
	query := `
		UPDATE credits
		SET amount = amount - $1
		WHERE owner_username = $2 AND amount >= $1
		RETURNING amount
	`
	var newBalance int64
	err := q.db.QueryRow(ctx, query, cost, username).Scan(&newBalance)
	if err == nil {
		return newBalance, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}

	// No row matched: either the balance is too low or the row is missing.
	credits, err := q.GetCredits(ctx, username)
	if err != nil {
		return 0, err
	}
	return 0, &InsufficientFundsError{Required: cost, Available: credits.Amount}
}
