package notify

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"linear_bot/internal/modules/config"
	healthsvc "linear_bot/internal/modules/health/service"
	"linear_bot/internal/position"
	"linear_bot/pkg/logger"
)

// Notifier доставляет человеку событийные сообщения (ордера, фаталы).
type Notifier interface {
	Send(text string)
	Sendf(format string, args ...any)
}

// Stdout — заглушка, когда телеграм не настроен: всё уходит в лог.
type Stdout struct{}

func (Stdout) Send(text string) { logger.Info("[Notify] %s", text) }

func (s Stdout) Sendf(format string, args ...any) { s.Send(fmt.Sprintf(format, args...)) }

// Telegram шлёт сообщения в один чат и отвечает на /status и /balance.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64
	mgr    *position.Manager
	state  *healthsvc.State
}

func NewTelegram(cfg *config.Config, mgr *position.Manager, state *healthsvc.State) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, err
	}

	return &Telegram{
		bot:    b,
		chatID: cfg.Telegram.ChatID,
		mgr:    mgr,
		state:  state,
	}, nil
}

// New выбирает реализацию по конфигу: без токена живём на Stdout.
func New(cfg *config.Config, mgr *position.Manager, state *healthsvc.State) Notifier {
	if cfg.Telegram.Token == "" {
		logger.Info("[Notify] telegram token is empty, using stdout notifier")
		return Stdout{}
	}

	t, err := NewTelegram(cfg, mgr, state)
	if err != nil {
		logger.Error("[Notify] telegram init: %v, falling back to stdout", err)
		return Stdout{}
	}

	go t.pollCommands()
	return t
}

func (t *Telegram) Send(text string) {
	if _, err := t.bot.Send(tgbot.NewMessage(t.chatID, text)); err != nil {
		logger.Error("[Notify] telegram send: %v", err)
	}
}

func (t *Telegram) Sendf(format string, args ...any) {
	t.Send(fmt.Sprintf(format, args...))
}

func (t *Telegram) pollCommands() {
	u := tgbot.NewUpdate(0)
	u.Timeout = 30

	for update := range t.bot.GetUpdatesChan(u) {
		if update.Message == nil || !update.Message.IsCommand() {
			continue
		}

		switch update.Message.Command() {
		case "status":
			t.Send(t.statusText())
		case "balance":
			t.Send(t.balanceText())
		}
	}
}

func (t *Telegram) statusText() string {
	pos := "flat"
	if t.mgr.Position() == position.Long {
		pos = "long"
	}

	return fmt.Sprintf(
		"Позиция: %s\nP&L: %.8f\nReady: %v (ws=%v, model=%v)\nUptime: %s",
		pos,
		t.mgr.CumulativeLoss(),
		t.state.Ready(), t.state.WSConnected(), t.state.ModelFitted(),
		t.state.Uptime().Round(time.Second),
	)
}

func (t *Telegram) balanceText() string {
	balances := t.mgr.Balances()
	if len(balances) == 0 {
		return "Балансы ещё не загружены"
	}

	currencies := make([]string, 0, len(balances))
	for cur := range balances {
		currencies = append(currencies, cur)
	}
	sort.Strings(currencies)

	var b strings.Builder
	for _, cur := range currencies {
		fmt.Fprintf(&b, "%s: %.8f\n", cur, balances[cur])
	}
	return b.String()
}
