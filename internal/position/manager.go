package position

import (
	"context"
	"sync"

	"linear_bot/internal/modules/config"
	"linear_bot/pkg/logger"
)

const (
	// Flat — позиции нет, Long — одна направленная позиция.
	// Шортов стратегия не берёт.
	Flat = 0
	Long = 1
)

// BalanceAPI — кусок биржевого API, который нужен менеджеру.
type BalanceAPI interface {
	LoadBalances(ctx context.Context) (map[string]float64, error)
}

// Manager владеет состоянием позиции, риск-бюджетом и балансами счёта.
// Всё состояние меняется только методами менеджера; стратегия ходит через них.
type Manager struct {
	api   BalanceAPI
	risk  float64
	base  string
	quote string

	// fatal вызывается при ошибках, с которыми торговать дальше небезопасно.
	// По умолчанию logger.Fatal; в тестах подменяется.
	fatal func(format string, args ...interface{})

	mu                 sync.Mutex
	position           int
	previousPosition   int
	openOrderPrice     float64
	openOrderSize      float64
	remainingOrderSize float64
	cumLoss            float64
	balances           map[string]float64
	loaded             bool
	canShort           bool
	activeRequest      bool
}

func NewManager(api BalanceAPI, cfg *config.Config) *Manager {
	m := &Manager{
		api:   api,
		risk:  cfg.Strategy.RiskTolerance,
		base:  cfg.Strategy.BaseCurrency,
		quote: cfg.Strategy.QuoteCurrency,
		fatal: logger.Fatal,
	}

	logger.Info("[Manager] Risk tolerance: %.1f%%", m.risk*100)
	return m
}

// SetFatalHandler подменяет обработчик фатальных ошибок (для тестов).
func (m *Manager) SetFatalHandler(f func(format string, args ...interface{})) {
	m.fatal = f
}

// SetPosition записывает позицию, автоматически запоминая предыдущую.
// previousPosition всегда позволяет ровно один шаг отката.
func (m *Manager) SetPosition(pos int) {
	m.mu.Lock()
	m.previousPosition = m.position
	m.position = pos
	m.mu.Unlock()
}

func (m *Manager) Position() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position
}

func (m *Manager) PreviousPosition() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.previousPosition
}

// RollbackPosition восстанавливает позицию из previousPosition.
func (m *Manager) RollbackPosition() {
	m.mu.Lock()
	prev := m.previousPosition
	m.previousPosition = m.position
	m.position = prev
	m.mu.Unlock()
}

func (m *Manager) Risk() float64 { return m.risk }

func (m *Manager) CanShort() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.canShort
}

// Balance возвращает баланс валюты. Торговля без правды о балансе небезопасна,
// поэтому незагруженные балансы и неизвестная валюта — фатальная остановка.
func (m *Manager) Balance(currency string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.loaded {
		m.fatal("[Manager] Balance requested before balances were loaded")
		return 0
	}
	v, ok := m.balances[currency]
	if !ok {
		m.fatal("[Manager] Unable to load balances for %s", currency)
		return 0
	}
	return v
}

// BeginRequest пытается занять single-flight флаг биржевого вызова.
// false — другой вызов ещё в полёте, вызывающий обязан отступить.
func (m *Manager) BeginRequest() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeRequest {
		return false
	}
	m.activeRequest = true
	return true
}

func (m *Manager) EndRequest() {
	m.mu.Lock()
	m.activeRequest = false
	m.mu.Unlock()
}

func (m *Manager) ActiveRequest() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeRequest
}

// SetOpenOrder фиксирует параметры подтверждённого открывающего ордера.
func (m *Manager) SetOpenOrder(price, size, remaining float64) {
	m.mu.Lock()
	m.openOrderPrice = price
	m.openOrderSize = size
	m.remainingOrderSize = remaining
	m.mu.Unlock()
}

func (m *Manager) OpenOrderPrice() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openOrderPrice
}

func (m *Manager) OpenOrderSize() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openOrderSize
}

func (m *Manager) RemainingOrderSize() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remainingOrderSize
}

func (m *Manager) SetRemainingOrderSize(v float64) {
	m.mu.Lock()
	m.remainingOrderSize = v
	m.mu.Unlock()
}

// ShrinkOpenOrder уменьшает размер открытого ордера на уже исполненный остаток
// (частично исполненный ордер, снятый с книги).
func (m *Manager) ShrinkOpenOrder() {
	m.mu.Lock()
	if m.remainingOrderSize != 0 {
		m.openOrderSize -= m.remainingOrderSize
	}
	m.mu.Unlock()
}

// CalculateLoss аккумулирует реализованный P&L закрытия по цене closingPrice.
// Эффективный размер — открытый размер минус неисполненный остаток.
func (m *Manager) CalculateLoss(closingPrice float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	priceDiff := closingPrice - m.openOrderPrice
	size := m.openOrderSize
	if m.remainingOrderSize > 0 {
		size -= m.remainingOrderSize
	}

	profit := size * priceDiff
	m.cumLoss += profit

	logger.Info("[Manager] Trade profit: %.8f", profit)
	logger.Info("[Manager] Running profit: %.8f", m.cumLoss)

	return m.cumLoss
}

func (m *Manager) CumulativeLoss() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cumLoss
}

// ClosePosition сбрасывает ордерный трекинг в ноль и перезапрашивает балансы.
func (m *Manager) ClosePosition(ctx context.Context) {
	m.mu.Lock()
	m.previousPosition = m.position
	m.position = Flat
	m.openOrderPrice = 0
	m.openOrderSize = 0
	m.remainingOrderSize = 0
	m.mu.Unlock()

	if err := m.UpdateBalances(ctx); err != nil {
		logger.Error("[Manager] balance refresh after close: %v", err)
	}
}

// UpdateBalances — single-flight обновление балансов. Параллельные попытки не
// ставятся в очередь: занято — просто выходим.
func (m *Manager) UpdateBalances(ctx context.Context) error {
	if !m.BeginRequest() {
		logger.Warn("[Manager] balance refresh skipped: request already in flight")
		return nil
	}
	defer m.EndRequest()

	balances, err := m.api.LoadBalances(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	first := !m.loaded
	m.balances = balances
	m.loaded = true
	if first {
		// одноразовый флаг возможности шорта, решениями пока не используется
		m.canShort = balances[m.base] >= balances[m.quote]
	}
	m.mu.Unlock()

	m.printAllBalances()
	return nil
}

// Balances — копия ненулевых балансов, для /balance и отладки.
func (m *Manager) Balances() map[string]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]float64, len(m.balances))
	for cur, v := range m.balances {
		if v != 0 {
			out[cur] = v
		}
	}
	return out
}

func (m *Manager) printAllBalances() {
	m.mu.Lock()
	defer m.mu.Unlock()

	logger.Info("[Manager] --------- Balances ---------")
	for cur, v := range m.balances {
		if v != 0 {
			logger.Info("[Manager] %s: %.8f", cur, v)
		}
	}
}
