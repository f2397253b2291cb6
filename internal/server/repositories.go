package server

import (
	"context"
	"database/sql"

	"github.com/libranet/apiserver/internal/services"
	"github.com/libranet/apiserver/internal/store"
)

// NewRepositories binds every Postgres repository to q.
func NewRepositories(q store.Querier) services.Repositories {
	return services.Repositories{
		Users:      store.NewUserRepository(q),
		OTPs:       store.NewOTPRepository(q),
		Categories: store.NewCategoryRepository(q),
		Books:      store.NewBookRepository(q),
		Requests:   store.NewBookRequestRepository(q),
		Loans:      store.NewTransactionRepository(q),
	}
}

// TxManager runs service units of work in a database transaction.
type TxManager struct {
	db *sql.DB
}

func NewTxManager(db *sql.DB) *TxManager {
	return &TxManager{db: db}
}

func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context, repos services.Repositories) error) error {
	return store.WithTx(ctx, m.db, func(tx *sql.Tx) error {
		return fn(ctx, NewRepositories(tx))
	})
}
