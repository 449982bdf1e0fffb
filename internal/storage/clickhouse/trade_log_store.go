package clickhouse

import (
	"context"
	"fmt"
	"time"

	"solana-trade-bot/internal/domain"
	"solana-trade-bot/internal/observability"
	"solana-trade-bot/internal/storage"
)

// observe feeds a query's duration and outcome into the db metrics.
func observe(op string, start time.Time, err *error) {
	observability.RecordDBQuery("clickhouse", op, time.Since(start).Seconds(), *err)
}

// TradeLogStore is a ClickHouse implementation of storage.TradeLogStore.
// The underlying table is append-only; MergeTree does not enforce
// uniqueness and the log never needs it.
type TradeLogStore struct {
	conn *Conn
}

var _ storage.TradeLogStore = (*TradeLogStore)(nil)

// NewTradeLogStore creates a trade log store on the given connection.
func NewTradeLogStore(conn *Conn) *TradeLogStore {
	return &TradeLogStore{conn: conn}
}

const insertTradeQuery = `
	INSERT INTO trade_log (
		chat_id, direction, mint, amount, signature,
		ok, fail_reason, amount_in, amount_out, executed_at
	)`

func (s *TradeLogStore) Insert(ctx context.Context, r *domain.TradeRecord) error {
	if r == nil {
		return fmt.Errorf("%w: nil record", storage.ErrInvalidInput)
	}
	return s.InsertBulk(ctx, []*domain.TradeRecord{r})
}

// InsertBulk appends multiple records in one batch.
func (s *TradeLogStore) InsertBulk(ctx context.Context, records []*domain.TradeRecord) (err error) {
	if len(records) == 0 {
		return nil
	}
	defer observe("insert", time.Now(), &err)

	batch, err := s.conn.PrepareBatch(ctx, insertTradeQuery)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range records {
		if r == nil {
			return fmt.Errorf("%w: nil record in batch", storage.ErrInvalidInput)
		}
		err := batch.Append(
			r.ChatID, r.Direction, r.Mint, r.Amount, r.Signature,
			r.OK, r.FailReason, r.AmountIn, r.AmountOut, r.ExecutedAt,
		)
		if err != nil {
			return fmt.Errorf("append record: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

func (s *TradeLogStore) GetByChatID(ctx context.Context, chatID int64, limit int) (_ []*domain.TradeRecord, err error) {
	defer observe("get", time.Now(), &err)
	query := `
		SELECT chat_id, direction, mint, amount, signature,
		       ok, fail_reason, amount_in, amount_out, executed_at
		FROM trade_log
		WHERE chat_id = ?
		ORDER BY executed_at DESC`
	args := []interface{}{chatID}
	if limit > 0 {
		query += `
		LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query trade log: %w", err)
	}
	defer rows.Close()

	var records []*domain.TradeRecord
	for rows.Next() {
		var r domain.TradeRecord
		err := rows.Scan(
			&r.ChatID, &r.Direction, &r.Mint, &r.Amount, &r.Signature,
			&r.OK, &r.FailReason, &r.AmountIn, &r.AmountOut, &r.ExecutedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}
