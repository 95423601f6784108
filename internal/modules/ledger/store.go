package ledger

import (
	"context"
	"time"

	"trade_sim/internal/models"

	"github.com/pkg/errors"
)

// ErrDuplicateEntry возвращает AppendEntry, когда на (strategy_id,
// window_start) запись уже есть. Это штатный исход при повторном триггере,
// а не авария: тик обязан быть безопасным к повторам.
var ErrDuplicateEntry = errors.New("trade log entry already exists")

// Store — персистентное состояние стратегий и append-only журнал сделок.
//
// WithinTx исполняет fn поверх store, привязанного к одной транзакции:
// read-decide-write одного тика атомарен относительно других тиков
// той же стратегии.
type Store interface {
	State(ctx context.Context, id models.StrategyID) (models.StrategyState, bool, error)
	SaveState(ctx context.Context, st models.StrategyState) error

	Entry(ctx context.Context, id models.StrategyID, window time.Time) (models.TradeLogEntry, bool, error)
	AppendEntry(ctx context.Context, e models.TradeLogEntry) error

	// History returns the trade log of one strategy, oldest first.
	History(ctx context.Context, id models.StrategyID, limit int) ([]models.TradeLogEntry, error)

	WithinTx(ctx context.Context, fn func(ctx context.Context, s Store) error) error
}
