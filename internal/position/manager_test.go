package position

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"testing"

	"linear_bot/internal/modules/config"
	"linear_bot/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init("error"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type fakeBalanceAPI struct {
	balances map[string]float64
	err      error
	calls    int
}

func (f *fakeBalanceAPI) LoadBalances(ctx context.Context) (map[string]float64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.balances, nil
}

func testManager(api *fakeBalanceAPI) *Manager {
	cfg := &config.Config{}
	cfg.Strategy.RiskTolerance = 0.1
	cfg.Strategy.BaseCurrency = "BTC"
	cfg.Strategy.QuoteCurrency = "USD"
	return NewManager(api, cfg)
}

func TestSetPositionTracksPrevious(t *testing.T) {
	m := testManager(&fakeBalanceAPI{})

	m.SetPosition(Long)
	if m.Position() != Long || m.PreviousPosition() != Flat {
		t.Fatalf("position/previous = %d/%d, want %d/%d", m.Position(), m.PreviousPosition(), Long, Flat)
	}

	m.SetPosition(Flat)
	if m.Position() != Flat || m.PreviousPosition() != Long {
		t.Fatalf("position/previous = %d/%d, want %d/%d", m.Position(), m.PreviousPosition(), Flat, Long)
	}
}

func TestRollbackPositionSwaps(t *testing.T) {
	m := testManager(&fakeBalanceAPI{})

	m.SetPosition(Long)
	m.RollbackPosition()

	if m.Position() != Flat {
		t.Fatalf("position after rollback = %d, want %d", m.Position(), Flat)
	}
	if m.PreviousPosition() != Long {
		t.Fatalf("previous after rollback = %d, want %d", m.PreviousPosition(), Long)
	}
}

func TestBalanceBeforeLoadIsFatal(t *testing.T) {
	m := testManager(&fakeBalanceAPI{})

	var fatalMsg string
	m.SetFatalHandler(func(format string, args ...interface{}) {
		fatalMsg = fmt.Sprintf(format, args...)
	})

	m.Balance("USD")
	if fatalMsg == "" {
		t.Fatal("expected fatal on balance read before load")
	}
}

func TestBalanceUnknownCurrencyIsFatal(t *testing.T) {
	api := &fakeBalanceAPI{balances: map[string]float64{"USD": 1000}}
	m := testManager(api)

	if err := m.UpdateBalances(context.Background()); err != nil {
		t.Fatalf("UpdateBalances: %v", err)
	}

	var fatalMsg string
	m.SetFatalHandler(func(format string, args ...interface{}) {
		fatalMsg = fmt.Sprintf(format, args...)
	})

	m.Balance("EUR")
	if fatalMsg == "" {
		t.Fatal("expected fatal on unknown currency")
	}
}

func TestUpdateBalancesError(t *testing.T) {
	api := &fakeBalanceAPI{err: errors.New("боом")}
	m := testManager(api)

	if err := m.UpdateBalances(context.Background()); err == nil {
		t.Fatal("expected error from UpdateBalances")
	}
}

func TestUpdateBalancesSkippedWhileRequestInFlight(t *testing.T) {
	api := &fakeBalanceAPI{balances: map[string]float64{"USD": 1000}}
	m := testManager(api)

	if !m.BeginRequest() {
		t.Fatal("BeginRequest failed on idle manager")
	}
	defer m.EndRequest()

	if err := m.UpdateBalances(context.Background()); err != nil {
		t.Fatalf("UpdateBalances: %v", err)
	}
	if api.calls != 0 {
		t.Fatalf("LoadBalances called %d times while request in flight, want 0", api.calls)
	}
}

func TestBeginRequestSingleFlight(t *testing.T) {
	m := testManager(&fakeBalanceAPI{})

	if !m.BeginRequest() {
		t.Fatal("first BeginRequest failed")
	}
	if m.BeginRequest() {
		t.Fatal("second BeginRequest succeeded while first in flight")
	}
	m.EndRequest()
	if !m.BeginRequest() {
		t.Fatal("BeginRequest failed after EndRequest")
	}
}

func TestCalculateLoss(t *testing.T) {
	m := testManager(&fakeBalanceAPI{})

	// куплено 2, осталось невыполнено 0.5 — эффективный размер 1.5
	m.SetOpenOrder(100, 2, 0.5)

	got := m.CalculateLoss(105)
	want := (105.0 - 100.0) * 1.5
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("CalculateLoss = %v, want %v", got, want)
	}

	// накопленный результат суммируется
	m.SetOpenOrder(105, 1, 0)
	got = m.CalculateLoss(103)
	want += (103.0 - 105.0) * 1
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("cumulative loss = %v, want %v", got, want)
	}
}

func TestShrinkOpenOrder(t *testing.T) {
	m := testManager(&fakeBalanceAPI{})

	m.SetOpenOrder(100, 2, 0.5)
	m.ShrinkOpenOrder()

	if got := m.OpenOrderSize(); math.Abs(got-1.5) > 1e-9 {
		t.Fatalf("OpenOrderSize after shrink = %v, want 1.5", got)
	}
}

func TestClosePositionResetsTracking(t *testing.T) {
	api := &fakeBalanceAPI{balances: map[string]float64{"USD": 1000, "BTC": 1}}
	m := testManager(api)

	m.SetPosition(Long)
	m.SetOpenOrder(100, 2, 0.5)
	m.ClosePosition(context.Background())

	if m.Position() != Flat {
		t.Fatalf("position after close = %d, want %d", m.Position(), Flat)
	}
	if m.OpenOrderPrice() != 0 || m.OpenOrderSize() != 0 || m.RemainingOrderSize() != 0 {
		t.Fatal("order tracking not reset after close")
	}
	if api.calls != 1 {
		t.Fatalf("expected balance refresh after close, got %d calls", api.calls)
	}
}

func TestCanShortDecidedOnFirstLoad(t *testing.T) {
	api := &fakeBalanceAPI{balances: map[string]float64{"USD": 100, "BTC": 200}}
	m := testManager(api)

	if err := m.UpdateBalances(context.Background()); err != nil {
		t.Fatalf("UpdateBalances: %v", err)
	}
	if !m.CanShort() {
		t.Fatal("expected canShort with base >= quote")
	}

	// повторная загрузка флаг не пересматривает
	api.balances = map[string]float64{"USD": 1000, "BTC": 0}
	if err := m.UpdateBalances(context.Background()); err != nil {
		t.Fatalf("UpdateBalances: %v", err)
	}
	if !m.CanShort() {
		t.Fatal("canShort flag must stick after first load")
	}
}
