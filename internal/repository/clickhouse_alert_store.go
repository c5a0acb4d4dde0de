package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"QuantWatch/internal/domain/models"
	domrepo "QuantWatch/internal/domain/repository"
	pkgch "QuantWatch/pkg/clickhouse"
	applogger "QuantWatch/pkg/logger"
)

const DefaultAlertTable = "alerts"

// AlertSchema returns the DDL for the alert archive table.
func AlertSchema(table string, ttlDays int) []string {
	if ttlDays <= 0 {
		ttlDays = 90
	}
	return []string{fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            id        String,
            ts        DateTime64(3, 'UTC'),
            symbol    LowCardinality(String),
            tier      LowCardinality(String),
            type      LowCardinality(String),
            severity  LowCardinality(String),
            message   String,
            data      String
        )
        ENGINE = MergeTree
        PARTITION BY toYYYYMM(ts)
        ORDER BY (symbol, ts)
        TTL toDateTime(ts) + INTERVAL %d DAY`, table, ttlDays)}
}

// CHAlertStore archives dispatched alerts in ClickHouse. It is also a bus
// subscriber so archiving runs off the engine path.
type CHAlertStore struct {
	ch    *pkgch.Client
	table string
	l     *applogger.Logger
}

func NewCHAlertStore(ch *pkgch.Client, table string) *CHAlertStore {
	if table == "" {
		table = DefaultAlertTable
	}
	return &CHAlertStore{ch: ch, table: table, l: applogger.Nop()}
}

// SetLogger injects a structured logger.
func (s *CHAlertStore) SetLogger(l *applogger.Logger) {
	if l != nil {
		s.l = l
	}
}

// Init creates the table if missing.
func (s *CHAlertStore) Init(ctx context.Context, ttlDays int) error {
	return s.ch.InitSchema(ctx, AlertSchema(s.table, ttlDays))
}

func (s *CHAlertStore) Name() string { return "clickhouse-archive" }

func (s *CHAlertStore) OnInstrumentUpdate(context.Context, models.InstrumentUpdate) error { return nil }

func (s *CHAlertStore) OnAlert(ctx context.Context, a models.AlertEvent) error {
	return s.Store(ctx, a)
}

func (s *CHAlertStore) Store(ctx context.Context, a models.AlertEvent) error {
	row, err := alertRow(a)
	if err != nil {
		return err
	}
	q := fmt.Sprintf("INSERT INTO %s (id, ts, symbol, tier, type, severity, message, data) VALUES (?, ?, ?, ?, ?, ?, ?, ?)", s.table)
	if err := s.ch.InsertBatch(ctx, q, [][]any{row}); err != nil {
		s.l.Error("clickhouse alert insert error",
			applogger.String("table", s.table),
			applogger.String("symbol", a.Symbol.String()),
			applogger.Error(err),
		)
		return fmt.Errorf("store alert: %w", err)
	}
	return nil
}

// Recent returns the newest archived alerts, optionally for one symbol.
func (s *CHAlertStore) Recent(ctx context.Context, symbol models.Symbol, limit int) ([]models.ArchivedAlert, error) {
	if limit <= 0 {
		limit = 100
	}
	q := fmt.Sprintf(`
        SELECT id, ts, symbol, tier, type, severity, message, data
        FROM %s
        WHERE (? = '' OR symbol = ?)
        ORDER BY ts DESC
        LIMIT ?`, s.table)
	rows, err := s.ch.DB().QueryContext(ctx, q, string(symbol), string(symbol), limit)
	if err != nil {
		s.l.Error("clickhouse alert query error", applogger.String("table", s.table), applogger.Error(err))
		return nil, fmt.Errorf("recent alerts: %w", err)
	}
	defer rows.Close()
	return scanAlerts(rows)
}

func (s *CHAlertStore) Health(ctx context.Context) error {
	if err := s.ch.Health(ctx); err != nil {
		return fmt.Errorf("%w: %v", models.ErrArchiveUnavailable, err)
	}
	return nil
}

func alertRow(a models.AlertEvent) ([]any, error) {
	data, err := json.Marshal(a.Data)
	if err != nil {
		return nil, fmt.Errorf("encode alert data: %w", err)
	}
	return []any{
		a.ID,
		a.Timestamp.UTC(),
		string(a.Symbol),
		string(a.Tier),
		string(a.Type),
		string(a.Severity),
		a.Message,
		string(data),
	}, nil
}

func scanAlerts(rows *sql.Rows) ([]models.ArchivedAlert, error) {
	out := make([]models.ArchivedAlert, 0, 64)
	for rows.Next() {
		var (
			a                          models.ArchivedAlert
			ts                         time.Time
			symbol, tier, kind, sev, d string
		)
		if err := rows.Scan(&a.ID, &ts, &symbol, &tier, &kind, &sev, &a.Message, &d); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Timestamp = ts.UTC()
		a.Symbol = models.Symbol(symbol)
		a.Tier = models.Tier(tier)
		a.Type = models.RuleKind(kind)
		a.Severity = models.Severity(sev)
		a.Data = json.RawMessage(d)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

var (
	_ domrepo.AlertArchive = (*CHAlertStore)(nil)
	_ domrepo.Subscriber   = (*CHAlertStore)(nil)
)
