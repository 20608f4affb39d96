package runner

import (
	"context"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"

	"linear_bot/internal/exchange"
	"linear_bot/internal/models"
	"linear_bot/internal/modules/config"
	healthsvc "linear_bot/internal/modules/health/service"
	signalsvc "linear_bot/internal/modules/signal/service"
	stratsvc "linear_bot/internal/modules/strategy/service"
	"linear_bot/internal/notify"
	"linear_bot/internal/position"
	"linear_bot/internal/storage"
	"linear_bot/pkg/logger"
)

// Runner связывает сэмплер и пользовательский фид биржи: по таймеру строит
// снапшоты, перефиттит модель и дёргает стратегию; асинхронно разбирает
// события жизненного цикла ордеров и доводит позицию до правды.
type Runner struct {
	cfg    *config.Config
	engine *signalsvc.Engine
	strat  *stratsvc.Engine
	mgr    *position.Manager
	exch   *exchange.Client
	store  *storage.Store
	state  *healthsvc.State
	n      notify.Notifier

	// fatal подменяется в тестах
	fatal func(format string, args ...interface{})

	lastMid    float64
	hasLastMid bool
}

func NewRunner(
	cfg *config.Config,
	engine *signalsvc.Engine,
	strat *stratsvc.Engine,
	mgr *position.Manager,
	exch *exchange.Client,
	store *storage.Store,
	state *healthsvc.State,
	n notify.Notifier,
) *Runner {
	return &Runner{
		cfg:    cfg,
		engine: engine,
		strat:  strat,
		mgr:    mgr,
		exch:   exch,
		store:  store,
		state:  state,
		n:      n,
		fatal:  logger.Fatal,
	}
}

// Bootstrap загружает стартовые балансы. Без правды о балансах торговать
// нельзя, поэтому отказ биржи останавливает процесс целиком.
func (r *Runner) Bootstrap(ctx context.Context) {
	if err := r.mgr.UpdateBalances(ctx); err != nil {
		r.fatal("[Runner] Unable to load balances: %v", err)
	}
}

func (r *Runner) Start(ctx context.Context) {
	go r.tickLoop(ctx)
	go r.eventLoop(ctx)
}

// tickLoop — единственный писатель в буфер снапшотов.
func (r *Runner) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Strategy.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	span := opentracing.StartSpan("sampler.tick")
	defer span.Finish()

	snap := r.engine.BuildSnapshot()
	r.state.TouchTick()

	span.SetTag("mid", snap.MidPrice)
	span.SetTag("voi", snap.VOI)

	r.persistSignal(ctx, snap)

	// перефиттим, как только буфер полон; дальше — на каждом тике
	if data := r.engine.BuildLinearData(); len(data.VOI) > 0 {
		model := r.engine.BuildLinearModel(data)
		r.engine.SetModel(model)
		r.state.SetModelFitted()
	}

	if model, ok := r.engine.Model(); ok {
		r.strat.OnSignal(ctx, snap, model)
	}
}

func (r *Runner) persistSignal(ctx context.Context, snap signalsvc.Snapshot) {
	delta := 0.0
	if r.hasLastMid {
		delta = snap.MidPrice - r.lastMid
	}
	r.lastMid = snap.MidPrice
	r.hasLastMid = true

	rec := models.SignalRecord{
		VOI:        snap.VOI,
		DeltaPrice: delta,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}

	// запись не должна задерживать сэмплер
	go func() {
		if err := r.store.SaveSignal(ctx, rec); err != nil {
			logger.Error("[Runner] save signal: %v", err)
		}
	}()
}

// eventLoop доводит позицию и ордерный трекинг до правды биржи.
func (r *Runner) eventLoop(ctx context.Context) {
	for ev := range r.exch.StreamOrderEvents(ctx) {
		r.handleEvent(ctx, ev)
	}
}

func (r *Runner) handleEvent(ctx context.Context, ev models.OrderEvent) {
	switch ev.Kind {

	case models.OrderPlaced:
		if !r.exch.IsOwnOrder(ev.OrderID) {
			// чужой ордер на нашем счёте: кто-то торгует руками, выходим
			r.fatal("[Runner] Unknown order %s placed on account, refusing to continue", ev.OrderID)
			return
		}
		// пока наш запрос в полёте, эхо размещения ожидаемо. В остальное время
		// ордер в сторону уже открытой позиции (ещё покупка в лонге, продажа
		// без позиции) значит, что стратегия сошла с ума: стоп немедленно
		if !r.mgr.ActiveRequest() {
			pos := r.mgr.Position()
			if (pos == position.Long && ev.Side == models.SideBuy) ||
				(pos == position.Flat && ev.Side == models.SideSell) {
				r.fatal("[Runner] Order %s opens the %s side with a matching position already open, refusing to continue", ev.OrderID, ev.Side)
				return
			}
		}
		if r.mgr.Position() == position.Long && ev.Side == models.SideBuy {
			r.mgr.SetOpenOrder(ev.Price, ev.Size, ev.Remaining)
		}

	case models.OrderFilled:
		r.mgr.SetRemainingOrderSize(ev.Remaining)
		rec := models.TradeRecord{
			OrderID:   ev.OrderID,
			Timestamp: ev.Time,
			Side:      ev.Side,
			Price:     ev.Price,
			Size:      ev.Size,
		}
		if err := r.store.SaveTrade(ctx, rec); err != nil {
			logger.Error("[Runner] save trade: %v", err)
		}

	case models.OrderFinalized:
		if ev.Side == models.SideSell {
			loss := r.mgr.CalculateLoss(ev.Price)
			r.mgr.ClosePosition(ctx)
			r.n.Sendf("✅ Position closed at %.2f, running P&L %.8f", ev.Price, loss)
		} else {
			// открывающая покупка исполнилась целиком
			r.mgr.SetPosition(position.Long)
		}

	case models.OrderCancelled:
		r.mgr.ShrinkOpenOrder()
		if ev.Side == models.SideBuy {
			// частично исполненную покупку сняли с книги: лонг на остаток
			if r.mgr.OpenOrderSize() > 0 {
				r.mgr.SetPosition(position.Long)
			} else {
				r.mgr.SetPosition(position.Flat)
			}
		}

	case models.OrderRejected:
		logger.Warn("[Runner] Order %s rejected: %s", ev.OrderID, ev.Reason)

	case models.OrderFailed:
		if strings.Contains(ev.Reason, "insufficient funds") {
			// баланс разошёлся с нашим учётом, дальше торговать нельзя
			r.fatal("[Runner] Order failed: %s", ev.Reason)
			return
		}
		logger.Error("[Runner] Order failed: %s", ev.Reason)
		// размещение не состоялось: возвращаем позицию, выставленную авансом
		if r.mgr.Position() == position.Long {
			r.mgr.SetPosition(position.Flat)
		} else {
			r.mgr.SetPosition(position.Long)
		}
	}
}
