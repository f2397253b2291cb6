package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/libranet/apiserver/types"
)

// OTPRepository handles persistence for email verification codes.
type OTPRepository struct {
	db Querier
}

func NewOTPRepository(db Querier) *OTPRepository {
	return &OTPRepository{db: db}
}

func (r *OTPRepository) Create(ctx context.Context, otp types.OTPVerification) (types.OTPVerification, error) {
	otp.CreatedAt = time.Now()

	const query = `
		INSERT INTO otp_verifications (user_id, code, expires_at, consumed, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	if err := r.db.QueryRowContext(ctx, query, otp.UserID, otp.Code, otp.ExpiresAt, otp.Consumed, otp.CreatedAt).Scan(&otp.ID); err != nil {
		return types.OTPVerification{}, err
	}
	return otp, nil
}

// FindValid returns the most recent unconsumed, unexpired code matching
// userID and code, locking the row for the rest of the transaction.
func (r *OTPRepository) FindValid(ctx context.Context, userID int, code string, now time.Time) (types.OTPVerification, error) {
	const query = `
		SELECT id, user_id, code, expires_at, consumed, created_at
		FROM otp_verifications
		WHERE user_id = $1 AND code = $2 AND consumed = FALSE AND expires_at > $3
		ORDER BY created_at DESC, id DESC
		LIMIT 1
		FOR UPDATE`
	var otp types.OTPVerification
	err := r.db.QueryRowContext(ctx, query, userID, code, now).Scan(
		&otp.ID,
		&otp.UserID,
		&otp.Code,
		&otp.ExpiresAt,
		&otp.Consumed,
		&otp.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.OTPVerification{}, ErrNotFound
		}
		return types.OTPVerification{}, err
	}
	return otp, nil
}

// Consume marks a single unconsumed code as used.
func (r *OTPRepository) Consume(ctx context.Context, id int) error {
	const query = `UPDATE otp_verifications SET consumed = TRUE WHERE id = $1 AND consumed = FALSE`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return expectAffected(result)
}

// InvalidateForUser consumes every outstanding code of the user.
func (r *OTPRepository) InvalidateForUser(ctx context.Context, userID int) error {
	const query = `UPDATE otp_verifications SET consumed = TRUE WHERE user_id = $1 AND consumed = FALSE`
	_, err := r.db.ExecContext(ctx, query, userID)
	return err
}
