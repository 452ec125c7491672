package pgsql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/payflowhq/escrow_backend/internal/apperrors"
	"github.com/payflowhq/escrow_backend/internal/core/domain"
	portsrepo "github.com/payflowhq/escrow_backend/internal/core/ports/repositories"
	"github.com/payflowhq/escrow_backend/internal/models"
	"github.com/payflowhq/escrow_backend/internal/utils/mapping"
)

// PgxTransactionRepository persists escrow transactions and their history,
// and owns the atomic transition commit. It delegates the ledger legs to the
// wallet repository so both sides of a transition share one database
// transaction.
type PgxTransactionRepository struct {
	BaseRepository
	walletRepo portsrepo.WalletRepositoryFacade
}

// NewTransactionRepository creates a new repository for escrow transactions.
func NewTransactionRepository(pool *pgxpool.Pool, walletRepo portsrepo.WalletRepositoryFacade) *PgxTransactionRepository {
	return &PgxTransactionRepository{
		BaseRepository: BaseRepository{Pool: pool},
		walletRepo:     walletRepo,
	}
}

var _ portsrepo.TransactionRepositoryFacade = (*PgxTransactionRepository)(nil)

const transactionColumns = `
	transaction_id, transaction_uid, buyer_id, seller_id,
	amount, currency, fee_amount, fee_percentage,
	status, wallet_id, parent_transaction_id, metadata, expires_at,
	escrow_held_at, completed_at, disputed_at, refunded_at, canceled_at,
	created_at, created_by, last_updated_at, last_updated_by
`

const insertTransactionQuery = `
	INSERT INTO transactions (` + transactionColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22);
`

const insertHistoryQuery = `
	INSERT INTO transaction_history
		(history_id, transaction_id, previous_status, new_status, initiator_id, initiator_type, reason, metadata, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
`

func insertHistoryTx(ctx context.Context, tx pgx.Tx, h models.TransactionHistory) error {
	_, err := tx.Exec(ctx, insertHistoryQuery,
		h.HistoryID, h.TransactionID, h.PreviousStatus, h.NewStatus,
		h.InitiatorID, h.InitiatorType, h.Reason, h.Metadata, h.CreatedAt,
	)
	if err != nil {
		return apperrors.NewAppError(500, "failed to insert history for transaction "+h.TransactionID, err)
	}
	return nil
}

// SaveTransaction inserts a new transaction with its creation history row.
func (r *PgxTransactionRepository) SaveTransaction(ctx context.Context, txn domain.Transaction, history domain.TransactionHistoryEntry) error {
	tx, err := r.Begin(ctx)
	if err != nil {
		return err
	}
	defer r.Rollback(ctx, tx)

	m := mapping.ToModelTransaction(txn)
	_, err = tx.Exec(ctx, insertTransactionQuery,
		m.TransactionID, m.TransactionUID, m.BuyerID, m.SellerID,
		m.Amount, m.Currency, m.FeeAmount, m.FeePercentage,
		m.Status, m.WalletID, m.ParentTransactionID, m.Metadata, m.ExpiresAt,
		m.EscrowHeldAt, m.CompletedAt, m.DisputedAt, m.RefundedAt, m.CanceledAt,
		m.CreatedAt, m.CreatedBy, m.LastUpdatedAt, m.LastUpdatedBy,
	)
	if err != nil {
		return apperrors.NewAppError(500, "failed to save transaction "+m.TransactionID, err)
	}

	if err := insertHistoryTx(ctx, tx, mapping.ToModelHistory(history)); err != nil {
		return err
	}
	return r.Commit(ctx, tx)
}

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var m models.Transaction
	err := row.Scan(
		&m.TransactionID, &m.TransactionUID, &m.BuyerID, &m.SellerID,
		&m.Amount, &m.Currency, &m.FeeAmount, &m.FeePercentage,
		&m.Status, &m.WalletID, &m.ParentTransactionID, &m.Metadata, &m.ExpiresAt,
		&m.EscrowHeldAt, &m.CompletedAt, &m.DisputedAt, &m.RefundedAt, &m.CanceledAt,
		&m.CreatedAt, &m.CreatedBy, &m.LastUpdatedAt, &m.LastUpdatedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrTransactionNotFound
		}
		return nil, apperrors.NewAppError(500, "failed to scan transaction row", err)
	}
	return &m, nil
}

// FindTransactionByID retrieves a transaction by its id.
func (r *PgxTransactionRepository) FindTransactionByID(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	row := r.Pool.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE transaction_id = $1;`, transactionID)
	m, err := scanTransaction(row)
	if err != nil {
		return nil, err
	}
	txn := mapping.ToDomainTransaction(*m)
	return &txn, nil
}

// CommitTransition applies a transition plan atomically. The transaction row
// lock linearizes concurrent transitions: whichever commit wins advances the
// status, and the loser fails the ExpectedStatus re-check with
// apperrors.ErrInvalidTransition instead of double-moving funds.
func (r *PgxTransactionRepository) CommitTransition(ctx context.Context, plan domain.TransitionPlan) (*domain.Transaction, error) {
	tx, err := r.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Rollback(ctx, tx)

	var currentStatus string
	err = tx.QueryRow(ctx,
		`SELECT status FROM transactions WHERE transaction_id = $1 FOR UPDATE;`,
		plan.Transaction.TransactionID).Scan(&currentStatus)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrTransactionNotFound
		}
		return nil, apperrors.NewAppError(500, "failed to lock transaction "+plan.Transaction.TransactionID, err)
	}
	if currentStatus != string(plan.ExpectedStatus) {
		return nil, fmt.Errorf("transaction %s is %s, expected %s: %w",
			plan.Transaction.TransactionID, currentStatus, plan.ExpectedStatus, apperrors.ErrInvalidTransition)
	}

	if len(plan.Legs) > 0 {
		now := plan.Transaction.LastUpdatedAt
		if now.IsZero() {
			now = time.Now().UTC()
		}
		_, err = r.walletRepo.ApplyLegsInTx(ctx, tx, plan.Legs, plan.Transaction.TransactionID, now)
		if err != nil {
			return nil, err
		}
	}

	m := mapping.ToModelTransaction(plan.Transaction)
	_, err = tx.Exec(ctx, `
		UPDATE transactions SET
			status = $2, fee_amount = $3,
			escrow_held_at = $4, completed_at = $5, disputed_at = $6, refunded_at = $7, canceled_at = $8,
			last_updated_at = $9, last_updated_by = $10
		WHERE transaction_id = $1;`,
		m.TransactionID, m.Status, m.FeeAmount,
		m.EscrowHeldAt, m.CompletedAt, m.DisputedAt, m.RefundedAt, m.CanceledAt,
		m.LastUpdatedAt, m.LastUpdatedBy,
	)
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to update transaction "+m.TransactionID, err)
	}

	if err := insertHistoryTx(ctx, tx, mapping.ToModelHistory(plan.History)); err != nil {
		return nil, err
	}

	if err := r.Commit(ctx, tx); err != nil {
		return nil, err
	}
	committed := plan.Transaction
	return &committed, nil
}

// ListExpired returns transactions past their expiration in any of the given
// statuses, oldest expiry first.
func (r *PgxTransactionRepository) ListExpired(ctx context.Context, statuses []domain.TransactionStatus, asOf time.Time, limit int) ([]domain.Transaction, error) {
	statusStrings := make([]string, 0, len(statuses))
	for _, s := range statuses {
		statusStrings = append(statusStrings, string(s))
	}

	rows, err := r.Pool.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE status = ANY($1) AND expires_at < $2
		ORDER BY expires_at
		LIMIT $3;`,
		statusStrings, asOf, limit)
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to query expired transactions", err)
	}
	defer rows.Close()

	var result []domain.Transaction
	for rows.Next() {
		m, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, mapping.ToDomainTransaction(*m))
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewAppError(500, "error iterating expired transactions", err)
	}
	return result, nil
}

// FindHistoryByTransactionID returns the status audit trail, oldest first.
func (r *PgxTransactionRepository) FindHistoryByTransactionID(ctx context.Context, transactionID string) ([]domain.TransactionHistoryEntry, error) {
	rows, err := r.Pool.Query(ctx, `
		SELECT history_id, transaction_id, previous_status, new_status, initiator_id, initiator_type, reason, metadata, created_at
		FROM transaction_history
		WHERE transaction_id = $1
		ORDER BY created_at, history_id;`,
		transactionID)
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to query history for transaction "+transactionID, err)
	}
	defer rows.Close()

	entries := []domain.TransactionHistoryEntry{}
	for rows.Next() {
		var h models.TransactionHistory
		err := rows.Scan(&h.HistoryID, &h.TransactionID, &h.PreviousStatus, &h.NewStatus,
			&h.InitiatorID, &h.InitiatorType, &h.Reason, &h.Metadata, &h.CreatedAt)
		if err != nil {
			return nil, apperrors.NewAppError(500, "failed to scan history row for transaction "+transactionID, err)
		}
		entries = append(entries, mapping.ToDomainHistory(h))
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewAppError(500, "error iterating history for transaction "+transactionID, err)
	}
	return entries, nil
}
