package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"linear_bot/internal/helper"
	"linear_bot/internal/models"
	"linear_bot/internal/modules/config"
	signalsvc "linear_bot/internal/modules/signal/service"
	"linear_bot/internal/position"
	"linear_bot/pkg/logger"
)

// Trader — кусок биржевого API, нужный стратегии.
type Trader interface {
	PlaceOrder(ctx context.Context, req models.OrderRequest) (models.Order, error)
	CancelAll(ctx context.Context) ([]string, error)
	HasOpenOrders() bool
}

// BookView — top-of-book на чтение.
type BookView interface {
	BestBid() (px, sz float64)
	BestAsk() (px, sz float64)
}

// OrderStore сохраняет записи ордеров; ошибки логируются и не блокируют решение.
type OrderStore interface {
	SaveOrder(ctx context.Context, rec models.OrderRecord) error
}

type Notifier interface {
	Sendf(format string, args ...any)
}

// Engine — машина состояний над позицией {flat, long}: на каждый сигнальный тик
// сверяет EFPC подогнанной модели с порогом и открывает/двигает/закрывает
// позицию через биржевого коллаборатора.
type Engine struct {
	mgr    *position.Manager
	trader Trader
	book   BookView
	store  OrderStore
	n      Notifier

	product      string
	threshold    float64
	minOrderSize float64
	quote        string
	timeout      time.Duration

	mu       sync.Mutex
	lastEFPC float64

	// fatal подменяется в тестах
	fatal func(format string, args ...interface{})

	wg sync.WaitGroup
}

func NewEngine(
	cfg *config.Config,
	mgr *position.Manager,
	trader Trader,
	book BookView,
	store OrderStore,
	n Notifier,
) *Engine {
	return &Engine{
		mgr:          mgr,
		trader:       trader,
		book:         book,
		store:        store,
		n:            n,
		product:      cfg.Product,
		threshold:    cfg.Strategy.Threshold,
		minOrderSize: cfg.Strategy.MinOrderSize,
		quote:        cfg.Strategy.QuoteCurrency,
		timeout:      cfg.Strategy.RequestTimeout,
		fatal:        logger.Fatal,
	}
}

func (e *Engine) SetFatalHandler(f func(format string, args ...interface{})) {
	e.fatal = f
}

// CalculateEFPC — сглаженное предсказание сдвига цены: сырое значение модели,
// усреднённое с предыдущим (однополюсный фильтр с коэффициентом 0.5).
func (e *Engine) CalculateEFPC(snap signalsvc.Snapshot, model models.LinearModel) float64 {
	raw := model.B +
		model.VOICoeff*snap.VOI +
		model.OIRCoeff*snap.OIR +
		model.MPBCoeff*snap.MPB

	e.mu.Lock()
	efpc := (raw + e.lastEFPC) / 2
	if helper.IsFinite(efpc) {
		e.lastEFPC = efpc
	}
	e.mu.Unlock()

	return efpc
}

// OnSignal оценивает свежий снапшот против модели и решает, что делать с
// позицией. Вызывается из единственной горутины сэмплера; биржевые вызовы
// уходят в фоновые цепочки под single-flight флагом менеджера.
func (e *Engine) OnSignal(ctx context.Context, snap signalsvc.Snapshot, model models.LinearModel) {
	efpc := e.CalculateEFPC(snap, model)
	if !helper.IsFinite(efpc) {
		// нулевой спред/объём дают нечисловой сигнал — на таком не торгуем
		logger.Warn("[Strategy] non-finite EFPC, skipping tick")
		return
	}

	bidPx, _ := e.book.BestBid()
	askPx, _ := e.book.BestAsk()

	// -- MOVE ORDER: лонг с отдыхающим ордером, цена ушла от лучшего бида
	if e.mgr.Position() == position.Long &&
		e.trader.HasOpenOrders() &&
		efpc >= e.threshold &&
		e.mgr.OpenOrderPrice() != bidPx {

		e.wg.Add(1)
		go e.runMove(ctx, askPx)
	}

	// -- BUY TO OPEN
	if e.mgr.Position() == position.Flat &&
		efpc >= e.threshold &&
		!e.mgr.ActiveRequest() {

		if e.trader.HasOpenOrders() {
			// видимо, висит закрывающий ордер, а сигнал развернулся в лонг
			e.wg.Add(1)
			go e.runCancel(ctx)
			return
		}

		price := bidPx
		size := e.mgr.Risk() * e.mgr.Balance(e.quote) / price

		logger.Debug("[Strategy] attempting order of size %.8f at price %.8f", size, price)

		if size <= e.minOrderSize {
			logger.Warn("[Strategy] order size %.8f is lower than the minimum of %.3f", size, e.minOrderSize)
			return
		}

		// ставим позицию заранее, чтобы следующий тик не создал второй ордер
		e.mgr.SetPosition(position.Long)

		e.wg.Add(1)
		go e.runPlace(ctx, models.OrderRequest{
			Product:  e.product,
			Side:     models.SideBuy,
			Price:    price,
			Size:     size,
			Type:     "limit",
			PostOnly: true,
		})

		// -- SELL TO CLOSE
	} else if e.mgr.Position() == position.Long &&
		efpc <= -e.threshold &&
		!e.mgr.ActiveRequest() {

		if e.trader.HasOpenOrders() {
			// висит открывающий ордер, сигнал развернулся в шорт
			e.wg.Add(1)
			go e.runCancel(ctx)
			return
		}

		price := askPx
		size := e.mgr.OpenOrderSize() - e.mgr.RemainingOrderSize()
		if size <= 0 {
			size = e.mgr.OpenOrderSize()
		}

		if size == 0 || !helper.IsFinite(size) {
			logger.Warn("[Strategy] attempting to close order with no size")
			return
		}

		e.mgr.SetPosition(position.Flat)

		e.wg.Add(1)
		go e.runPlace(ctx, models.OrderRequest{
			Product:  e.product,
			Side:     models.SideSell,
			Price:    price,
			Size:     size,
			Type:     "limit",
			PostOnly: true,
		})
	}
}

// Wait дожидается завершения всех фоновых биржевых цепочек (graceful stop).
func (e *Engine) Wait() {
	e.wg.Wait()
}

// runMove: снять ордера и перевыставить покупку на цент ниже аска.
func (e *Engine) runMove(ctx context.Context, askPx float64) {
	defer e.wg.Done()

	if !e.mgr.BeginRequest() {
		logger.Warn("[Strategy] move skipped: request already in flight")
		return
	}
	defer e.mgr.EndRequest()

	cctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	ids, err := e.trader.CancelAll(cctx)
	if err != nil {
		logger.Error("[Strategy] move cancel: %v", err)
		return
	}
	logger.Info("[Strategy] Orders cancelled: %v", ids)

	price := askPx - 0.01
	size := e.mgr.Risk() * e.mgr.Balance(e.quote) / price

	e.placeOrder(ctx, models.OrderRequest{
		Product:  e.product,
		Side:     models.SideBuy,
		Price:    price,
		Size:     size,
		Type:     "limit",
		PostOnly: true,
	})
}

func (e *Engine) runCancel(ctx context.Context) {
	defer e.wg.Done()

	if !e.mgr.BeginRequest() {
		logger.Warn("[Strategy] cancel skipped: request already in flight")
		return
	}
	defer e.mgr.EndRequest()

	cctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	ids, err := e.trader.CancelAll(cctx)
	if err != nil {
		logger.Error("[Strategy] cancel orders: %v", err)
		return
	}
	logger.Info("[Strategy] Orders cancelled: %v", ids)
}

func (e *Engine) runPlace(ctx context.Context, req models.OrderRequest) {
	defer e.wg.Done()

	if !e.mgr.BeginRequest() {
		logger.Warn("[Strategy] place skipped: request already in flight")
		return
	}
	defer e.mgr.EndRequest()

	e.placeOrder(ctx, req)
}

// placeOrder выполняет вызов и обрабатывает его завершение. Оптимистичная
// позиция — только замок на время полёта запроса: после завершения вызова она
// всегда откатывается, правду о позиции дальше устанавливают асинхронные
// события жизненного цикла ордера.
func (e *Engine) placeOrder(ctx context.Context, req models.OrderRequest) {
	cctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	order, err := e.trader.PlaceOrder(cctx, req)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "insufficient funds") {
			// наш учёт баланса разошёлся с биржей; повторять такой ордер бессмысленно
			e.fatal("[Strategy] Attempting to place order larger than current balance, shutting down: %v", err)
			return
		}
		// транзиентная ошибка: снимаем авансовую позицию, следующий тик попробует сам
		logger.Error("[Strategy] place order: %v", err)
		e.mgr.RollbackPosition()
		return
	}

	if order.Rejected() {
		logger.Warn("[Strategy] Order was rejected: %s", order.RejectReason)
	} else {
		logger.Debug("[Strategy] Order: %+v", order)

		// цену входа трекаем только по покупкам: по ней потом считается
		// реализованный результат закрытия
		if order.Side == models.SideBuy {
			e.mgr.SetOpenOrder(order.Price, order.Size, order.Size)
		}

		rec := models.OrderRecord{
			OrderID:   order.ID,
			Timestamp: order.Time,
			Product:   order.Product,
			Price:     order.Price,
			Size:      order.Size,
			Side:      order.Side,
			Type:      recordType(order.Side),
		}
		if err := e.store.SaveOrder(ctx, rec); err != nil {
			logger.Error("[Strategy] save order: %v", err)
		}

		if e.n != nil {
			e.n.Sendf("📝 %s %s %.6f @ %.2f", rec.Type, rec.Side, rec.Size, rec.Price)
		}
	}

	e.mgr.RollbackPosition()
}

func recordType(side models.Side) string {
	if side == models.SideSell {
		return "close"
	}
	return "open"
}
