package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/libranet/apiserver/types"
)

const transactionColumns = `id, user_id, book_id, request_id, borrowed_at, due_date, returned_at, status, created_at`

// TransactionRepository handles persistence for loans.
type TransactionRepository struct {
	db Querier
}

func NewTransactionRepository(db Querier) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, loan types.Transaction) (types.Transaction, error) {
	loan.CreatedAt = time.Now()

	const query = `
		INSERT INTO transactions (user_id, book_id, request_id, borrowed_at, due_date, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		loan.UserID,
		loan.BookID,
		loan.RequestID,
		loan.BorrowedAt,
		loan.DueDate,
		loan.Status,
		loan.CreatedAt,
	).Scan(&loan.ID); err != nil {
		return types.Transaction{}, err
	}
	return loan, nil
}

func (r *TransactionRepository) Get(ctx context.Context, id int) (types.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	return scanTransaction(r.db.QueryRowContext(ctx, query, id))
}

// GetForUpdate reads a loan and locks its row until the enclosing
// transaction ends.
func (r *TransactionRepository) GetForUpdate(ctx context.Context, id int) (types.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1 FOR UPDATE`
	return scanTransaction(r.db.QueryRowContext(ctx, query, id))
}

// List returns loans newest first.
func (r *TransactionRepository) List(ctx context.Context, filter types.TransactionFilter) ([]types.Transaction, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.UserID != 0 {
		args = append(args, filter.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	loans := make([]types.Transaction, 0)
	for rows.Next() {
		loan, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return loans, nil
}

// MarkReturned closes an ACTIVE loan. It returns ErrNotFound when the loan
// does not exist or is not active.
func (r *TransactionRepository) MarkReturned(ctx context.Context, id int, returnedAt time.Time) error {
	const query = `
		UPDATE transactions SET status = 'RETURNED', returned_at = $1
		WHERE id = $2 AND status = 'ACTIVE'`
	result, err := r.db.ExecContext(ctx, query, returnedAt, id)
	if err != nil {
		return err
	}
	return expectAffected(result)
}

func scanTransaction(row rowScanner) (types.Transaction, error) {
	var loan types.Transaction
	err := row.Scan(
		&loan.ID,
		&loan.UserID,
		&loan.BookID,
		&loan.RequestID,
		&loan.BorrowedAt,
		&loan.DueDate,
		&loan.ReturnedAt,
		&loan.Status,
		&loan.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Transaction{}, ErrNotFound
		}
		return types.Transaction{}, err
	}
	return loan, nil
}
