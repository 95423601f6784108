package pg

import (
	"context"
	"fmt"
	"time"

	"trade_sim/internal/models"
	"trade_sim/internal/modules/ledger"
	"trade_sim/pkg/db"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS strategy_states (
	strategy_id TEXT PRIMARY KEY,
	cash        DOUBLE PRECISION NOT NULL CHECK (cash >= 0),
	units       DOUBLE PRECISION NOT NULL CHECK (units >= 0),
	last_window TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS trade_log (
	strategy_id  TEXT NOT NULL,
	window_start TIMESTAMPTZ NOT NULL,
	action       TEXT NOT NULL,
	quantity     DOUBLE PRECISION NOT NULL,
	price        DOUBLE PRECISION NOT NULL,
	cash_after   DOUBLE PRECISION NOT NULL,
	units_after  DOUBLE PRECISION NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (strategy_id, window_start)
);
`

const uniqueViolation = "23505"

// LedgerStore implement db store
type LedgerStore struct {
	tx   db.TxManager
	conn db.Transaction
}

// New instance
func New(tx db.TxManager) *LedgerStore {
	return &LedgerStore{tx: tx, conn: tx.Conn()}
}

func (s *LedgerStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.conn.Exec(ctx, schema); err != nil {
		return fmt.Errorf("LedgerStore.EnsureSchema: %w", err)
	}
	return nil
}

// WithinTx привязывает копию store к одной pgx-транзакции.
func (s *LedgerStore) WithinTx(ctx context.Context, fn func(ctx context.Context, st ledger.Store) error) error {
	return s.tx.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		return fn(ctxTx, &LedgerStore{tx: s.tx, conn: tx})
	})
}

func (s *LedgerStore) State(ctx context.Context, id models.StrategyID) (st models.StrategyState, found bool, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("LedgerStore.State: %w", err)
		}
	}()

	row := s.conn.QueryRow(ctx, `
		SELECT strategy_id, cash, units, last_window
		FROM strategy_states
		WHERE strategy_id = $1`,
		string(id),
	)
	var sid string
	err = row.Scan(&sid, &st.Cash, &st.Units, &st.LastWindow)
	if err == pgx.ErrNoRows {
		return models.StrategyState{}, false, nil
	}
	if err != nil {
		return models.StrategyState{}, false, err
	}
	st.StrategyID = models.StrategyID(sid)
	return st, true, nil
}

func (s *LedgerStore) SaveState(ctx context.Context, st models.StrategyState) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("LedgerStore.SaveState: %w", err)
		}
	}()

	_, err = s.conn.Exec(ctx, `
		INSERT INTO strategy_states (strategy_id, cash, units, last_window)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (strategy_id) DO UPDATE SET
			cash = EXCLUDED.cash,
			units = EXCLUDED.units,
			last_window = EXCLUDED.last_window`,
		string(st.StrategyID), st.Cash, st.Units, st.LastWindow,
	)
	return err
}

func (s *LedgerStore) Entry(ctx context.Context, id models.StrategyID, window time.Time) (e models.TradeLogEntry, found bool, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("LedgerStore.Entry: %w", err)
		}
	}()

	row := s.conn.QueryRow(ctx, `
		SELECT strategy_id, window_start, action, quantity, price, cash_after, units_after, created_at
		FROM trade_log
		WHERE strategy_id = $1 AND window_start = $2`,
		string(id), window,
	)
	e, err = scanEntry(row)
	if err == pgx.ErrNoRows {
		return models.TradeLogEntry{}, false, nil
	}
	if err != nil {
		return models.TradeLogEntry{}, false, err
	}
	return e, true, nil
}

func (s *LedgerStore) AppendEntry(ctx context.Context, e models.TradeLogEntry) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO trade_log (strategy_id, window_start, action, quantity, price, cash_after, units_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		string(e.StrategyID), e.WindowStart, string(e.Action), e.Quantity, e.Price, e.CashAfter, e.UnitsAfter, e.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ledger.ErrDuplicateEntry
		}
		return fmt.Errorf("LedgerStore.AppendEntry: %w", err)
	}
	return nil
}

func (s *LedgerStore) History(ctx context.Context, id models.StrategyID, limit int) (entries []models.TradeLogEntry, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("LedgerStore.History: %w", err)
		}
	}()

	rows, err := s.conn.Query(ctx, `
		SELECT strategy_id, window_start, action, quantity, price, cash_after, units_after, created_at
		FROM trade_log
		WHERE strategy_id = $1
		ORDER BY window_start
		LIMIT $2`,
		string(id), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(row pgx.Row) (models.TradeLogEntry, error) {
	var e models.TradeLogEntry
	var sid, action string
	err := row.Scan(&sid, &e.WindowStart, &action, &e.Quantity, &e.Price, &e.CashAfter, &e.UnitsAfter, &e.CreatedAt)
	if err != nil {
		return models.TradeLogEntry{}, err
	}
	e.StrategyID = models.StrategyID(sid)
	e.Action = models.Action(action)
	return e, nil
}
