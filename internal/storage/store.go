package storage

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"

	"linear_bot/internal/models"
	"linear_bot/pkg/db"
)

// Store пишет ордера, сделки и сигналы в postgres. Каждая запись хранит и
// плоские колонки для выборок, и исходный json целиком.
type Store struct {
	db db.TxManager
}

func NewStore(txm db.TxManager) *Store {
	return &Store{db: txm}
}

const schema = `
CREATE TABLE IF NOT EXISTS orders (
    id         BIGSERIAL PRIMARY KEY,
    order_id   TEXT        NOT NULL,
    ts         TIMESTAMPTZ NOT NULL,
    product    TEXT        NOT NULL,
    price      DOUBLE PRECISION NOT NULL,
    size       DOUBLE PRECISION NOT NULL,
    side       TEXT        NOT NULL,
    order_type TEXT        NOT NULL,
    payload    JSONB       NOT NULL
);
CREATE TABLE IF NOT EXISTS trades (
    id       BIGSERIAL PRIMARY KEY,
    order_id TEXT        NOT NULL,
    ts       TIMESTAMPTZ NOT NULL,
    side     TEXT        NOT NULL,
    price    DOUBLE PRECISION NOT NULL,
    size     DOUBLE PRECISION NOT NULL,
    payload  JSONB       NOT NULL
);
CREATE TABLE IF NOT EXISTS signals (
    id          BIGSERIAL PRIMARY KEY,
    ts          TEXT             NOT NULL,
    voi         DOUBLE PRECISION NOT NULL,
    delta_price DOUBLE PRECISION NOT NULL,
    payload     JSONB            NOT NULL
);
`

func (s *Store) EnsureSchema(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("storage.EnsureSchema: %w", err)
		}
	}()

	return s.db.RunMaster(ctx, func(ctxTx context.Context, tx db.Transaction) error {
		_, err := tx.Exec(ctxTx, schema)
		return err
	})
}

func (s *Store) SaveOrder(ctx context.Context, rec models.OrderRecord) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("storage.SaveOrder: %w", err)
		}
	}()

	payload, err := sonic.Marshal(rec)
	if err != nil {
		return err
	}

	return s.db.RunMaster(ctx, func(ctxTx context.Context, tx db.Transaction) error {
		_, err := tx.Exec(ctxTx,
			`INSERT INTO orders (order_id, ts, product, price, size, side, order_type, payload)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			rec.OrderID, rec.Timestamp, rec.Product, rec.Price, rec.Size, string(rec.Side), rec.Type, payload,
		)
		return err
	})
}

func (s *Store) SaveTrade(ctx context.Context, rec models.TradeRecord) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("storage.SaveTrade: %w", err)
		}
	}()

	payload, err := sonic.Marshal(rec)
	if err != nil {
		return err
	}

	return s.db.RunMaster(ctx, func(ctxTx context.Context, tx db.Transaction) error {
		_, err := tx.Exec(ctxTx,
			`INSERT INTO trades (order_id, ts, side, price, size, payload)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			rec.OrderID, rec.Timestamp, string(rec.Side), rec.Price, rec.Size, payload,
		)
		return err
	})
}

func (s *Store) SaveSignal(ctx context.Context, rec models.SignalRecord) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("storage.SaveSignal: %w", err)
		}
	}()

	payload, err := sonic.Marshal(rec)
	if err != nil {
		return err
	}

	return s.db.RunMaster(ctx, func(ctxTx context.Context, tx db.Transaction) error {
		_, err := tx.Exec(ctxTx,
			`INSERT INTO signals (ts, voi, delta_price, payload)
			 VALUES ($1, $2, $3, $4)`,
			rec.Timestamp, rec.VOI, rec.DeltaPrice, payload,
		)
		return err
	})
}
