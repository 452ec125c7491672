package pgsql

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/payflowhq/escrow_backend/internal/apperrors"
	"github.com/payflowhq/escrow_backend/internal/core/domain"
	portsrepo "github.com/payflowhq/escrow_backend/internal/core/ports/repositories"
	"github.com/payflowhq/escrow_backend/internal/models"
	"github.com/payflowhq/escrow_backend/internal/utils/mapping"
)

// PgxWalletRepository persists wallets, balances and the append-only ledger.
type PgxWalletRepository struct {
	BaseRepository
}

// NewWalletRepository creates a new repository for wallet and ledger data.
func NewWalletRepository(pool *pgxpool.Pool) *PgxWalletRepository {
	return &PgxWalletRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.WalletRepositoryFacade = (*PgxWalletRepository)(nil)

const walletColumns = `
	wallet_id, wallet_uid, owner_id, system_kind, status,
	daily_debit_limit, monthly_debit_limit,
	created_at, created_by, last_updated_at, last_updated_by
`

// SaveWallet inserts a new wallet with no balance rows yet.
func (r *PgxWalletRepository) SaveWallet(ctx context.Context, wallet domain.Wallet) error {
	m := mapping.ToModelWallet(wallet)
	query := `
		INSERT INTO wallets (` + walletColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
	`
	_, err := r.Pool.Exec(ctx, query,
		m.WalletID, m.WalletUID, m.OwnerID, m.SystemKind, m.Status,
		m.DailyDebitLimit, m.MonthlyDebitLimit,
		m.CreatedAt, m.CreatedBy, m.LastUpdatedAt, m.LastUpdatedBy,
	)
	if err != nil {
		return apperrors.NewAppError(500, "failed to save wallet "+m.WalletID, err)
	}
	return nil
}

func (r *PgxWalletRepository) scanWallet(row pgx.Row) (*models.Wallet, error) {
	var m models.Wallet
	err := row.Scan(
		&m.WalletID, &m.WalletUID, &m.OwnerID, &m.SystemKind, &m.Status,
		&m.DailyDebitLimit, &m.MonthlyDebitLimit,
		&m.CreatedAt, &m.CreatedBy, &m.LastUpdatedAt, &m.LastUpdatedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrWalletNotFound
		}
		return nil, apperrors.NewAppError(500, "failed to scan wallet row", err)
	}
	return &m, nil
}

func (r *PgxWalletRepository) loadBalances(ctx context.Context, walletID string) ([]models.WalletBalance, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT wallet_id, currency, balance FROM wallet_balances WHERE wallet_id = $1;`, walletID)
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to query balances for wallet "+walletID, err)
	}
	defer rows.Close()

	var balances []models.WalletBalance
	for rows.Next() {
		var b models.WalletBalance
		if err := rows.Scan(&b.WalletID, &b.Currency, &b.Balance); err != nil {
			return nil, apperrors.NewAppError(500, "failed to scan balance row for wallet "+walletID, err)
		}
		balances = append(balances, b)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewAppError(500, "error iterating balance rows for wallet "+walletID, err)
	}
	return balances, nil
}

// FindWalletByID retrieves a wallet with all its currency balances.
func (r *PgxWalletRepository) FindWalletByID(ctx context.Context, walletID string) (*domain.Wallet, error) {
	row := r.Pool.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE wallet_id = $1;`, walletID)
	m, err := r.scanWallet(row)
	if err != nil {
		return nil, err
	}
	balances, err := r.loadBalances(ctx, walletID)
	if err != nil {
		return nil, err
	}
	wallet := mapping.ToDomainWallet(*m, balances)
	return &wallet, nil
}

// FindWalletByOwnerID retrieves the user wallet owned by ownerID.
func (r *PgxWalletRepository) FindWalletByOwnerID(ctx context.Context, ownerID string) (*domain.Wallet, error) {
	row := r.Pool.QueryRow(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE owner_id = $1 AND system_kind IS NULL;`, ownerID)
	m, err := r.scanWallet(row)
	if err != nil {
		return nil, err
	}
	balances, err := r.loadBalances(ctx, m.WalletID)
	if err != nil {
		return nil, err
	}
	wallet := mapping.ToDomainWallet(*m, balances)
	return &wallet, nil
}

// GetOrCreateSystemWallet returns the singleton system wallet of the given
// kind. The create path races safely against concurrent callers: the insert
// lands on the partial unique index over system_kind, so at most one row can
// ever exist per kind.
func (r *PgxWalletRepository) GetOrCreateSystemWallet(ctx context.Context, kind domain.SystemWalletKind) (*domain.Wallet, error) {
	now := time.Now().UTC()
	insert := `
		INSERT INTO wallets (` + walletColumns + `)
		VALUES ($1, $2, $3, $4, $5, 0, 0, $6, $7, $6, $7)
		ON CONFLICT (system_kind) WHERE system_kind IS NOT NULL DO NOTHING;
	`
	_, err := r.Pool.Exec(ctx, insert,
		uuid.NewString(), uuid.NewString(), domain.SystemOwnerID, string(kind), string(domain.WalletActive),
		now, domain.SystemOwnerID,
	)
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to ensure system wallet "+string(kind), err)
	}

	row := r.Pool.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE system_kind = $1;`, string(kind))
	m, err := r.scanWallet(row)
	if err != nil {
		return nil, err
	}
	balances, err := r.loadBalances(ctx, m.WalletID)
	if err != nil {
		return nil, err
	}
	wallet := mapping.ToDomainWallet(*m, balances)
	return &wallet, nil
}

// UpdateWalletStatus changes the wallet's administrative status.
func (r *PgxWalletRepository) UpdateWalletStatus(ctx context.Context, walletID string, status domain.WalletStatus, updatedBy string, updatedAt time.Time) error {
	tag, err := r.Pool.Exec(ctx,
		`UPDATE wallets SET status = $2, last_updated_at = $3, last_updated_by = $4 WHERE wallet_id = $1;`,
		walletID, string(status), updatedAt, updatedBy)
	if err != nil {
		return apperrors.NewAppError(500, "failed to update wallet status "+walletID, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrWalletNotFound
	}
	return nil
}

// ApplyEntry mutates one balance and appends its ledger row in one commit.
func (r *PgxWalletRepository) ApplyEntry(ctx context.Context, walletID, currency string, amount decimal.Decimal, relatedTxID *string, description string) (*domain.LedgerEntry, error) {
	tx, err := r.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Rollback(ctx, tx)

	var txID string
	if relatedTxID != nil {
		txID = *relatedTxID
	}
	leg := domain.LedgerLeg{WalletID: walletID, Currency: currency, Amount: amount, Description: description}
	entries, err := r.ApplyLegsInTx(ctx, tx, []domain.LedgerLeg{leg}, txID, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	if err := r.Commit(ctx, tx); err != nil {
		return nil, err
	}
	return &entries[0], nil
}

// balanceKey orders (wallet, currency) pairs for deterministic locking.
type balanceKey struct {
	walletID string
	currency string
}

// ApplyLegsInTx applies ledger legs inside an existing database transaction.
// Balance rows are created on demand, locked in (wallet_id, currency) order
// to avoid deadlocks, re-read under the lock, and chained into entries with
// balance_before/balance_after. A debit that would go negative fails the
// whole transaction with apperrors.ErrInsufficientFunds.
func (r *PgxWalletRepository) ApplyLegsInTx(ctx context.Context, tx pgx.Tx, legs []domain.LedgerLeg, relatedTxID string, now time.Time) ([]domain.LedgerEntry, error) {
	keys := make([]balanceKey, 0, len(legs))
	seen := make(map[balanceKey]struct{}, len(legs))
	for _, leg := range legs {
		k := balanceKey{walletID: leg.WalletID, currency: leg.Currency}
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].walletID != keys[j].walletID {
			return keys[i].walletID < keys[j].walletID
		}
		return keys[i].currency < keys[j].currency
	})

	// Ensure a balance row exists for each pair, then lock them in order.
	balances := make(map[balanceKey]decimal.Decimal, len(keys))
	for _, k := range keys {
		_, err := tx.Exec(ctx,
			`INSERT INTO wallet_balances (wallet_id, currency, balance) VALUES ($1, $2, 0)
			 ON CONFLICT (wallet_id, currency) DO NOTHING;`,
			k.walletID, k.currency)
		if err != nil {
			return nil, apperrors.NewAppError(500, "failed to ensure balance row for wallet "+k.walletID, err)
		}

		var balance decimal.Decimal
		err = tx.QueryRow(ctx,
			`SELECT balance FROM wallet_balances WHERE wallet_id = $1 AND currency = $2 FOR UPDATE;`,
			k.walletID, k.currency).Scan(&balance)
		if err != nil {
			return nil, apperrors.NewAppError(500, "failed to lock balance for wallet "+k.walletID, err)
		}
		balances[k] = balance
	}

	var relatedTx *string
	if relatedTxID != "" {
		relatedTx = &relatedTxID
	}

	entries := make([]domain.LedgerEntry, 0, len(legs))
	for _, leg := range legs {
		k := balanceKey{walletID: leg.WalletID, currency: leg.Currency}
		before := balances[k]
		after := before.Add(leg.Amount)
		if after.IsNegative() {
			return nil, fmt.Errorf("wallet %s would hold %s %s: %w",
				leg.WalletID, after, leg.Currency, apperrors.ErrInsufficientFunds)
		}
		balances[k] = after

		entry := domain.LedgerEntry{
			EntryID:       uuid.NewString(),
			WalletID:      leg.WalletID,
			TransactionID: relatedTx,
			Amount:        leg.Amount,
			Currency:      leg.Currency,
			BalanceBefore: before,
			BalanceAfter:  after,
			Direction:     domain.DirectionFor(leg.Amount),
			Description:   leg.Description,
			CreatedAt:     now,
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO wallet_ledger_entries
				(entry_id, wallet_id, transaction_id, amount, currency, balance_before, balance_after, direction, description, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);`,
			entry.EntryID, entry.WalletID, entry.TransactionID, entry.Amount, entry.Currency,
			entry.BalanceBefore, entry.BalanceAfter, string(entry.Direction), entry.Description, entry.CreatedAt,
		)
		if err != nil {
			return nil, apperrors.NewAppError(500, "failed to insert ledger entry for wallet "+leg.WalletID, err)
		}
		entries = append(entries, entry)
	}

	for k, balance := range balances {
		_, err := tx.Exec(ctx,
			`UPDATE wallet_balances SET balance = $3 WHERE wallet_id = $1 AND currency = $2;`,
			k.walletID, k.currency, balance)
		if err != nil {
			return nil, apperrors.NewAppError(500, "failed to update balance for wallet "+k.walletID, err)
		}
	}

	return entries, nil
}

// ListEntries returns ledger entries for a (wallet, currency) pair, oldest first.
func (r *PgxWalletRepository) ListEntries(ctx context.Context, walletID, currency string) ([]domain.LedgerEntry, error) {
	rows, err := r.Pool.Query(ctx, `
		SELECT entry_id, wallet_id, transaction_id, amount, currency, balance_before, balance_after, direction, description, created_at
		FROM wallet_ledger_entries
		WHERE wallet_id = $1 AND currency = $2
		ORDER BY created_at, entry_id;`,
		walletID, currency)
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to query ledger entries for wallet "+walletID, err)
	}
	defer rows.Close()

	entries := []models.LedgerEntry{}
	for rows.Next() {
		var e models.LedgerEntry
		err := rows.Scan(&e.EntryID, &e.WalletID, &e.TransactionID, &e.Amount, &e.Currency,
			&e.BalanceBefore, &e.BalanceAfter, &e.Direction, &e.Description, &e.CreatedAt)
		if err != nil {
			return nil, apperrors.NewAppError(500, "failed to scan ledger entry for wallet "+walletID, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewAppError(500, "error iterating ledger entries for wallet "+walletID, err)
	}
	return mapping.ToDomainLedgerEntrySlice(entries), nil
}

// SumEntries recomputes a balance from the entry chain.
func (r *PgxWalletRepository) SumEntries(ctx context.Context, walletID, currency string) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.Pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM wallet_ledger_entries
		WHERE wallet_id = $1 AND currency = $2;`,
		walletID, currency).Scan(&sum)
	if err != nil {
		return decimal.Zero, apperrors.NewAppError(500, "failed to sum ledger entries for wallet "+walletID, err)
	}
	return sum, nil
}

// SumDebitsSince totals withdrawal magnitudes (debits not tied to an escrow
// transaction) since the given instant.
func (r *PgxWalletRepository) SumDebitsSince(ctx context.Context, walletID, currency string, since time.Time) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.Pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(-amount), 0)
		FROM wallet_ledger_entries
		WHERE wallet_id = $1 AND currency = $2 AND amount < 0 AND transaction_id IS NULL AND created_at >= $3;`,
		walletID, currency, since).Scan(&sum)
	if err != nil {
		return decimal.Zero, apperrors.NewAppError(500, "failed to sum debits for wallet "+walletID, err)
	}
	return sum, nil
}
