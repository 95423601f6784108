package notify

import (
	"fmt"
	"sync"

	"trade_sim/pkg/logger"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier — канал для алертов, требующих внимания оператора:
// переполнение буфера записи, policy-fault стратегии, провал reconcile.
type Notifier interface {
	Send(msg string)
	Sendf(format string, args ...any)
}

// Telegram — пассивный нотифайер, только исходящие сообщения.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64

	mu sync.Mutex
}

func NewTelegram(token string, chatID int64) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Telegram{
		bot:    b,
		chatID: chatID,
	}, nil
}

func (t *Telegram) Send(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	m := tgbot.NewMessage(t.chatID, msg)
	if _, err := t.bot.Send(m); err != nil {
		logger.Error("telegram send failed: %v", err)
	}
}

func (t *Telegram) Sendf(format string, args ...any) {
	t.Send(fmt.Sprintf(format, args...))
}

// Noop используется, когда токен не задан; алерты уходят только в лог.
type Noop struct{}

func (Noop) Send(msg string) {
	logger.Error("ALERT: %s", msg)
}

func (Noop) Sendf(format string, args ...any) {
	logger.Error("ALERT: "+format, args...)
}
