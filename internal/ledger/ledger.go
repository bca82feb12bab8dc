package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"reviewer-multisig-go/internal/rewards"
)

const (
	StatusPrepared = "prepared"
	StatusExecuted = "executed"
)

// ErrBatchNotFound is returned when no batch matches a multisig and index.
var ErrBatchNotFound = errors.New("batch not found")

// Ledger records reward batches paid out of a multisig vault.
type Ledger struct {
	db *sql.DB
}

// Batch is one vault transaction paying a set of rewards.
type Batch struct {
	ID               int64           `json:"id"`
	Multisig         string          `json:"multisig"`
	TransactionIndex uint64          `json:"transaction_index"`
	Status           string          `json:"status"`
	Total            decimal.Decimal `json:"total"`
	PrepareSignature string          `json:"prepare_signature"`
	ExecuteSignature string          `json:"execute_signature,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	ExecutedAt       *time.Time      `json:"executed_at,omitempty"`
}

// Payout is a single reward inside a batch.
type Payout struct {
	ID       int64           `json:"id"`
	BatchID  int64           `json:"batch_id"`
	Wallet   string          `json:"wallet"`
	Sum      decimal.Decimal `json:"sum"`
	Lamports uint64          `json:"lamports"`
}

// Open opens or creates the sqlite database at path. Use ":memory:" for a
// throwaway ledger.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	// sqlite allows one writer; a single connection also keeps ":memory:"
	// databases from being split across the pool.
	db.SetMaxOpenConns(1)

	l := &Ledger{db: db}
	if err := l.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create ledger schema: %w", err)
	}
	return l, nil
}

func (l *Ledger) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS batches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		multisig TEXT NOT NULL,
		transaction_index INTEGER NOT NULL,
		status TEXT NOT NULL,
		total TEXT NOT NULL,
		prepare_signature TEXT NOT NULL,
		execute_signature TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		executed_at DATETIME,
		UNIQUE(multisig, transaction_index)
	);

	CREATE TABLE IF NOT EXISTS payouts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		batch_id INTEGER NOT NULL,
		wallet TEXT NOT NULL,
		sum TEXT NOT NULL,
		lamports INTEGER NOT NULL,
		FOREIGN KEY(batch_id) REFERENCES batches(id)
	);

	CREATE INDEX IF NOT EXISTS idx_payouts_batch
		ON payouts(batch_id);

	CREATE INDEX IF NOT EXISTS idx_payouts_wallet
		ON payouts(wallet);
	`

	_, err := l.db.Exec(schema)
	return err
}

// RecordPrepared stores a batch whose vault transaction was created and
// approved, together with its payouts.
func (l *Ledger) RecordPrepared(multisig string, index uint64, prepareSignature string, results []rewards.Result) (*Batch, error) {
	tx, err := l.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO batches (multisig, transaction_index, status, total, prepare_signature, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		multisig, index, StatusPrepared, rewards.Total(results).String(), prepareSignature, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert batch %d: %w", index, err)
	}
	batchID, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	stmt, err := tx.Prepare(
		`INSERT INTO payouts (batch_id, wallet, sum, lamports) VALUES (?, ?, ?, ?)`,
	)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	for _, r := range results {
		lamports, err := r.Lamports()
		if err != nil {
			return nil, fmt.Errorf("payout to %s: %w", r.Wallet, err)
		}
		if _, err := stmt.Exec(batchID, r.Wallet, r.Sum.String(), int64(lamports)); err != nil {
			return nil, fmt.Errorf("failed to insert payout to %s: %w", r.Wallet, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"multisig": multisig,
		"index":    index,
		"payouts":  len(results),
	}).Debug("recorded prepared batch")

	return l.GetBatch(multisig, index)
}

// MarkExecuted records the execute signature of a prepared batch.
func (l *Ledger) MarkExecuted(multisig string, index uint64, signature string) error {
	res, err := l.db.Exec(
		`UPDATE batches SET status = ?, execute_signature = ?, executed_at = ?
		 WHERE multisig = ? AND transaction_index = ?`,
		StatusExecuted, signature, time.Now().UTC(), multisig, index,
	)
	if err != nil {
		return fmt.Errorf("failed to mark batch %d executed: %w", index, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s/%d", ErrBatchNotFound, multisig, index)
	}
	return nil
}

const batchColumns = `id, multisig, transaction_index, status, total, prepare_signature,
	execute_signature, created_at, executed_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanBatch(row scanner) (*Batch, error) {
	var (
		b          Batch
		total      string
		executedAt sql.NullTime
	)
	err := row.Scan(&b.ID, &b.Multisig, &b.TransactionIndex, &b.Status, &total,
		&b.PrepareSignature, &b.ExecuteSignature, &b.CreatedAt, &executedAt)
	if err != nil {
		return nil, err
	}
	if b.Total, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("batch %d has invalid total %q: %w", b.ID, total, err)
	}
	if executedAt.Valid {
		t := executedAt.Time
		b.ExecutedAt = &t
	}
	return &b, nil
}

// GetBatch retrieves the batch for a multisig transaction index.
func (l *Ledger) GetBatch(multisig string, index uint64) (*Batch, error) {
	row := l.db.QueryRow(
		`SELECT `+batchColumns+` FROM batches WHERE multisig = ? AND transaction_index = ?`,
		multisig, index,
	)
	b, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%d", ErrBatchNotFound, multisig, index)
	}
	return b, err
}

// ListBatches returns every batch of a multisig, newest index first.
func (l *Ledger) ListBatches(multisig string) ([]Batch, error) {
	rows, err := l.db.Query(
		`SELECT `+batchColumns+` FROM batches WHERE multisig = ? ORDER BY transaction_index DESC`,
		multisig,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	batches := []Batch{}
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, *b)
	}
	return batches, rows.Err()
}

// ListPayouts returns the payouts of a batch in insertion order.
func (l *Ledger) ListPayouts(batchID int64) ([]Payout, error) {
	rows, err := l.db.Query(
		`SELECT id, batch_id, wallet, sum, lamports FROM payouts WHERE batch_id = ? ORDER BY id`,
		batchID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payouts := []Payout{}
	for rows.Next() {
		var (
			p   Payout
			sum string
		)
		if err := rows.Scan(&p.ID, &p.BatchID, &p.Wallet, &sum, &p.Lamports); err != nil {
			return nil, err
		}
		if p.Sum, err = decimal.NewFromString(sum); err != nil {
			return nil, fmt.Errorf("payout %d has invalid sum %q: %w", p.ID, sum, err)
		}
		payouts = append(payouts, p)
	}
	return payouts, rows.Err()
}

// Close closes the database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}
