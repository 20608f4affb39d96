package service

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"linear_bot/internal/models"
	"linear_bot/internal/modules/config"
	signalsvc "linear_bot/internal/modules/signal/service"
	"linear_bot/internal/position"
	"linear_bot/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init("error"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type fakeTrader struct {
	mu        sync.Mutex
	open      bool
	placed    []models.OrderRequest
	cancelled int
	reject    string
	fail      error         // если задана, PlaceOrder падает с этой ошибкой
	gate      chan struct{} // если задан, PlaceOrder ждёт его закрытия
}

func (f *fakeTrader) PlaceOrder(ctx context.Context, req models.OrderRequest) (models.Order, error) {
	if f.gate != nil {
		<-f.gate
	}
	if f.fail != nil {
		return models.Order{}, f.fail
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.placed = append(f.placed, req)

	o := models.Order{
		ID:      "o-1",
		Time:    time.Now(),
		Product: req.Product,
		Price:   req.Price,
		Size:    req.Size,
		Side:    req.Side,
		Status:  "open",
	}
	if f.reject != "" {
		o.Status = "rejected"
		o.RejectReason = f.reject
	}
	return o, nil
}

func (f *fakeTrader) CancelAll(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled++
	return []string{"o-1"}, nil
}

func (f *fakeTrader) HasOpenOrders() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeTrader) placedOrders() []models.OrderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.OrderRequest, len(f.placed))
	copy(out, f.placed)
	return out
}

type staticBook struct{ bid, ask float64 }

func (b staticBook) BestBid() (float64, float64) { return b.bid, 1 }
func (b staticBook) BestAsk() (float64, float64) { return b.ask, 1 }

type memStore struct {
	mu   sync.Mutex
	recs []models.OrderRecord
}

func (s *memStore) SaveOrder(ctx context.Context, rec models.OrderRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	return nil
}

func (s *memStore) records() []models.OrderRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.OrderRecord, len(s.recs))
	copy(out, s.recs)
	return out
}

type nopNotifier struct{}

func (nopNotifier) Send(string)          {}
func (nopNotifier) Sendf(string, ...any) {}

type fixedBalances map[string]float64

func (f fixedBalances) LoadBalances(ctx context.Context) (map[string]float64, error) {
	return f, nil
}

func strategyConfig() *config.Config {
	cfg := &config.Config{Product: "BTC-USD"}
	cfg.Strategy.Threshold = 0.2
	cfg.Strategy.RiskTolerance = 0.1
	cfg.Strategy.MinOrderSize = 0.001
	cfg.Strategy.QuoteCurrency = "USD"
	cfg.Strategy.BaseCurrency = "BTC"
	cfg.Strategy.RequestTimeout = time.Second
	return cfg
}

func testEngine(t *testing.T, trader *fakeTrader, book BookView, balances map[string]float64) (*Engine, *position.Manager, *memStore) {
	t.Helper()

	cfg := strategyConfig()
	mgr := position.NewManager(fixedBalances(balances), cfg)
	if err := mgr.UpdateBalances(context.Background()); err != nil {
		t.Fatalf("UpdateBalances: %v", err)
	}

	store := &memStore{}
	return NewEngine(cfg, mgr, trader, book, store, nopNotifier{}), mgr, store
}

func TestCalculateEFPCSmoothing(t *testing.T) {
	e, _, _ := testEngine(t, &fakeTrader{}, staticBook{bid: 100, ask: 101}, map[string]float64{"USD": 1000})

	model := models.LinearModel{B: 1}
	snap := signalsvc.Snapshot{}

	// lastEFPC стартует с нуля: первое значение — половина сырого
	if got := e.CalculateEFPC(snap, model); math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("first EFPC = %v, want 0.5", got)
	}
	// второе: (1 + 0.5) / 2
	if got := e.CalculateEFPC(snap, model); math.Abs(got-0.75) > 1e-9 {
		t.Fatalf("second EFPC = %v, want 0.75", got)
	}
}

func TestCalculateEFPCUsesAllFeatures(t *testing.T) {
	e, _, _ := testEngine(t, &fakeTrader{}, staticBook{bid: 100, ask: 101}, map[string]float64{"USD": 1000})

	model := models.LinearModel{B: 0.1, VOICoeff: 2, OIRCoeff: 3, MPBCoeff: 4}
	snap := signalsvc.Snapshot{VOI: 1, OIR: 0.5, MPB: 0.25}

	raw := 0.1 + 2*1 + 3*0.5 + 4*0.25
	if got := e.CalculateEFPC(snap, model); math.Abs(got-raw/2) > 1e-9 {
		t.Fatalf("EFPC = %v, want %v", got, raw/2)
	}
}

func TestOpenLongPlacesBuyAtBestBid(t *testing.T) {
	trader := &fakeTrader{gate: make(chan struct{})}
	e, mgr, store := testEngine(t, trader, staticBook{bid: 100, ask: 101}, map[string]float64{"USD": 1000})

	// raw EFPC = 1.0, сглаженный 0.5 >= 0.2
	e.OnSignal(context.Background(), signalsvc.Snapshot{}, models.LinearModel{B: 1})

	// позиция выставлена оптимистично, пока запрос ещё в полёте
	if mgr.Position() != position.Long {
		t.Fatalf("position right after signal = %d, want %d", mgr.Position(), position.Long)
	}

	close(trader.gate)
	e.Wait()

	placed := trader.placedOrders()
	if len(placed) != 1 {
		t.Fatalf("placed %d orders, want 1", len(placed))
	}
	req := placed[0]
	if req.Side != models.SideBuy || !req.PostOnly {
		t.Fatalf("unexpected order %+v", req)
	}
	if math.Abs(req.Price-100) > 1e-9 {
		t.Fatalf("price = %v, want 100", req.Price)
	}
	// 10% от 1000 USD по цене 100
	if math.Abs(req.Size-1) > 1e-9 {
		t.Fatalf("size = %v, want 1", req.Size)
	}

	// после завершения вызова позиция откатывается: правду скажет users-фид
	if mgr.Position() != position.Flat {
		t.Fatalf("position after settle = %d, want %d", mgr.Position(), position.Flat)
	}
	if math.Abs(mgr.OpenOrderPrice()-100) > 1e-9 {
		t.Fatalf("open order price = %v, want 100", mgr.OpenOrderPrice())
	}

	recs := store.records()
	if len(recs) != 1 || recs[0].Type != "open" {
		t.Fatalf("order records = %+v, want one open record", recs)
	}
}

func TestOpenLongSkippedBelowMinSize(t *testing.T) {
	trader := &fakeTrader{}
	e, mgr, _ := testEngine(t, trader, staticBook{bid: 100, ask: 101}, map[string]float64{"USD": 0.5})

	e.OnSignal(context.Background(), signalsvc.Snapshot{}, models.LinearModel{B: 1})
	e.Wait()

	if len(trader.placedOrders()) != 0 {
		t.Fatal("order placed despite size below minimum")
	}
	if mgr.Position() != position.Flat {
		t.Fatal("position changed despite skipped order")
	}
}

func TestBelowThresholdDoesNothing(t *testing.T) {
	trader := &fakeTrader{}
	e, mgr, _ := testEngine(t, trader, staticBook{bid: 100, ask: 101}, map[string]float64{"USD": 1000})

	e.OnSignal(context.Background(), signalsvc.Snapshot{}, models.LinearModel{B: 0.1})
	e.Wait()

	if len(trader.placedOrders()) != 0 || trader.cancelled != 0 {
		t.Fatal("exchange touched on weak signal")
	}
	if mgr.Position() != position.Flat {
		t.Fatal("position changed on weak signal")
	}
}

func TestNonFiniteEFPCIsIgnored(t *testing.T) {
	trader := &fakeTrader{}
	e, _, _ := testEngine(t, trader, staticBook{bid: 100, ask: 101}, map[string]float64{"USD": 1000})

	e.OnSignal(context.Background(), signalsvc.Snapshot{VOI: math.NaN()}, models.LinearModel{VOICoeff: 1})
	e.Wait()

	if len(trader.placedOrders()) != 0 {
		t.Fatal("order placed on NaN signal")
	}

	// NaN не отравляет сглаживание: следующий конечный сигнал работает
	if got := e.CalculateEFPC(signalsvc.Snapshot{}, models.LinearModel{B: 1}); math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("EFPC after NaN tick = %v, want 0.5", got)
	}
}

func TestCloseLongSellsFilledSize(t *testing.T) {
	trader := &fakeTrader{}
	e, mgr, _ := testEngine(t, trader, staticBook{bid: 100, ask: 101}, map[string]float64{"USD": 1000})

	mgr.SetPosition(position.Long)
	mgr.SetOpenOrder(100, 2, 0.5)

	// raw EFPC = -1.0, сглаженный -0.5 <= -0.2
	e.OnSignal(context.Background(), signalsvc.Snapshot{}, models.LinearModel{B: -1})
	e.Wait()

	placed := trader.placedOrders()
	if len(placed) != 1 {
		t.Fatalf("placed %d orders, want 1", len(placed))
	}
	req := placed[0]
	if req.Side != models.SideSell {
		t.Fatalf("side = %s, want sell", req.Side)
	}
	if math.Abs(req.Price-101) > 1e-9 {
		t.Fatalf("price = %v, want best ask 101", req.Price)
	}
	// продаём исполненную часть: 2 - 0.5
	if math.Abs(req.Size-1.5) > 1e-9 {
		t.Fatalf("size = %v, want 1.5", req.Size)
	}
}

func TestCloseWithOpenOrdersCancelsFirst(t *testing.T) {
	trader := &fakeTrader{open: true}
	e, mgr, _ := testEngine(t, trader, staticBook{bid: 100, ask: 101}, map[string]float64{"USD": 1000})

	mgr.SetPosition(position.Long)
	mgr.SetOpenOrder(100, 2, 2)

	e.OnSignal(context.Background(), signalsvc.Snapshot{}, models.LinearModel{B: -1})
	e.Wait()

	if trader.cancelled != 1 {
		t.Fatalf("cancelled %d times, want 1", trader.cancelled)
	}
	if len(trader.placedOrders()) != 0 {
		t.Fatal("order placed in the same tick as cancellation")
	}
}

func TestRepositionMovesRestingOrder(t *testing.T) {
	trader := &fakeTrader{open: true}
	e, mgr, _ := testEngine(t, trader, staticBook{bid: 100, ask: 101}, map[string]float64{"USD": 1000})

	mgr.SetPosition(position.Long)
	// ордер отстал от лучшего бида
	mgr.SetOpenOrder(99, 1, 1)

	e.OnSignal(context.Background(), signalsvc.Snapshot{}, models.LinearModel{B: 1})
	e.Wait()

	if trader.cancelled != 1 {
		t.Fatalf("cancelled %d times, want 1", trader.cancelled)
	}

	placed := trader.placedOrders()
	if len(placed) != 1 {
		t.Fatalf("placed %d orders, want 1", len(placed))
	}
	// перевыставляемся на цент ниже лучшего аска
	if math.Abs(placed[0].Price-100.99) > 1e-9 {
		t.Fatalf("price = %v, want 100.99", placed[0].Price)
	}
}

func TestRejectedOrderRollsBack(t *testing.T) {
	trader := &fakeTrader{reject: "post only mode"}
	e, mgr, store := testEngine(t, trader, staticBook{bid: 100, ask: 101}, map[string]float64{"USD": 1000})

	e.OnSignal(context.Background(), signalsvc.Snapshot{}, models.LinearModel{B: 1})
	e.Wait()

	if mgr.Position() != position.Flat {
		t.Fatalf("position after reject = %d, want %d", mgr.Position(), position.Flat)
	}
	if len(store.records()) != 0 {
		t.Fatal("rejected order was persisted")
	}
}

func TestInsufficientFundsPlacementIsFatal(t *testing.T) {
	trader := &fakeTrader{fail: fmt.Errorf(`PlaceOrder http 400: {"message":"Insufficient funds"}`)}
	e, _, _ := testEngine(t, trader, staticBook{bid: 100, ask: 101}, map[string]float64{"USD": 1000})

	var fatalMsg string
	e.SetFatalHandler(func(format string, args ...interface{}) {
		fatalMsg = fmt.Sprintf(format, args...)
	})

	e.OnSignal(context.Background(), signalsvc.Snapshot{}, models.LinearModel{B: 1})
	e.Wait()

	if !strings.Contains(fatalMsg, "Insufficient funds") {
		t.Fatalf("expected fatal on insufficient funds placement, got %q", fatalMsg)
	}
}

func TestTransientPlacementErrorRollsBack(t *testing.T) {
	trader := &fakeTrader{fail: fmt.Errorf("dial tcp: connection refused")}
	e, mgr, _ := testEngine(t, trader, staticBook{bid: 100, ask: 101}, map[string]float64{"USD": 1000})

	e.SetFatalHandler(func(format string, args ...interface{}) {
		t.Errorf("transient error escalated to fatal: "+format, args...)
	})

	e.OnSignal(context.Background(), signalsvc.Snapshot{}, models.LinearModel{B: 1})
	e.Wait()

	// авансовый лонг снят, следующий тик может попробовать снова
	if mgr.Position() != position.Flat {
		t.Fatalf("position after failed placement = %d, want %d", mgr.Position(), position.Flat)
	}
}

func TestActiveRequestBlocksNewDecision(t *testing.T) {
	trader := &fakeTrader{}
	e, mgr, _ := testEngine(t, trader, staticBook{bid: 100, ask: 101}, map[string]float64{"USD": 1000})

	if !mgr.BeginRequest() {
		t.Fatal("BeginRequest failed")
	}
	defer mgr.EndRequest()

	e.OnSignal(context.Background(), signalsvc.Snapshot{}, models.LinearModel{B: 1})
	e.Wait()

	if len(trader.placedOrders()) != 0 {
		t.Fatal("order placed while another request in flight")
	}
	if mgr.Position() != position.Flat {
		t.Fatal("position changed while another request in flight")
	}
}
