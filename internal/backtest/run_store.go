package backtest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"spotguard/internal/ledger"

	_ "modernc.org/sqlite"
)

// RunStore 管理 backtest_runs/backtest_trades 两张表。
type RunStore struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// NewRunStore 打开（必要时创建）回测历史库。path 为 ":memory:" 时只在内存中保存。
func NewRunStore(path string) (*RunStore, error) {
	if path == "" {
		return nil, fmt.Errorf("run store path is required")
	}
	dsn := "file::memory:?_pragma=foreign_keys(1)"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		dsn = fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureRunSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &RunStore{db: db, path: path}, nil
}

func (s *RunStore) Path() string { return s.path }

func (s *RunStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func ensureRunSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS backtest_runs (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			timeframe TEXT NOT NULL,
			status TEXT NOT NULL,
			candles INTEGER NOT NULL DEFAULT 0,
			start_ts INTEGER NOT NULL DEFAULT 0,
			end_ts INTEGER NOT NULL DEFAULT 0,
			config_json TEXT NOT NULL,
			in_stats_json TEXT,
			out_stats_json TEXT,
			verdict TEXT,
			warning TEXT,
			report_path TEXT,
			chart_path TEXT,
			message TEXT,
			created_at INTEGER NOT NULL,
			completed_at INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS backtest_trades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			segment TEXT NOT NULL,
			entry_ts INTEGER NOT NULL,
			exit_ts INTEGER NOT NULL,
			entry_price REAL NOT NULL,
			exit_price REAL NOT NULL,
			quantity REAL NOT NULL,
			capital REAL NOT NULL,
			fees REAL NOT NULL,
			pnl REAL NOT NULL,
			pnl_pct REAL NOT NULL,
			reason TEXT NOT NULL,
			confidence REAL NOT NULL DEFAULT 0,
			holding_candles INTEGER NOT NULL,
			FOREIGN KEY(run_id) REFERENCES backtest_runs(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_backtest_trades_run ON backtest_trades(run_id, segment);`,
		`CREATE INDEX IF NOT EXISTS idx_backtest_runs_created ON backtest_runs(created_at DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("init backtest schema: %w", err)
		}
	}
	return nil
}

// InsertRun 写入一条 run 记录，通常在开始回测时以 running 状态写入。
func (s *RunStore) InsertRun(ctx context.Context, run Run) error {
	cfgJSON, err := json.Marshal(run.Config)
	if err != nil {
		return err
	}
	created := run.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO backtest_runs
			(id, symbol, timeframe, status, candles, start_ts, end_ts, config_json, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Symbol, run.Timeframe, run.Status, run.Candles, run.StartTS, run.EndTS,
		string(cfgJSON), run.Message, created.UnixMilli())
	return err
}

// CompleteRun 写入两段统计与产物路径，并把状态置为 done。
func (s *RunStore) CompleteRun(ctx context.Context, run Run) error {
	in, out, err := run.MarshalStats()
	if err != nil {
		return err
	}
	completed := run.CompletedAt
	if completed.IsZero() {
		completed = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE backtest_runs
		SET status=?, candles=?, start_ts=?, end_ts=?, in_stats_json=?, out_stats_json=?, verdict=?,
		    warning=?, report_path=?, chart_path=?, message=?, completed_at=?
		WHERE id=?`,
		RunStatusDone, run.Candles, run.StartTS, run.EndTS, string(in), string(out), run.Verdict,
		run.Warning, run.ReportPath, run.ChartPath, run.Message, completed.UnixMilli(), run.ID)
	return err
}

// FailRun 标记失败并记录原因。
func (s *RunStore) FailRun(ctx context.Context, id, message string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE backtest_runs SET status=?, message=?, completed_at=? WHERE id=?`,
		RunStatusFailed, message, time.Now().UnixMilli(), id)
	return err
}

// InsertTrades 在一个事务里写入某段的全部成交。
func (s *RunStore) InsertTrades(ctx context.Context, runID, segment string, trades []Trade) error {
	if len(trades) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO backtest_trades
			(run_id, segment, entry_ts, exit_ts, entry_price, exit_price, quantity, capital,
			fees, pnl, pnl_pct, reason, confidence, holding_candles)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, t := range trades {
		if _, err := stmt.ExecContext(ctx, runID, segment, t.EntryTime.UnixMilli(), t.ExitTime.UnixMilli(),
			t.EntryPrice, t.ExitPrice, t.Quantity, t.CapitalUSDT, t.Fees, t.PnL, t.PnLPct,
			string(t.Reason), t.Confidence, t.HoldingCandles); err != nil {
			return err
		}
	}
	return tx.Commit()
}

const runColumns = `id, symbol, timeframe, status, candles, start_ts, end_ts, config_json, in_stats_json,
	out_stats_json, verdict, warning, report_path, chart_path, message, created_at, completed_at`

func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+`
		FROM backtest_runs
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, run)
	}
	return list, rows.Err()
}

func (s *RunStore) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM backtest_runs WHERE id=?`, id)
	return scanRun(row)
}

// ListTrades 返回某次回测某段的成交，segment 为空时返回全部。
func (s *RunStore) ListTrades(ctx context.Context, runID, segment string) ([]Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entry_ts, exit_ts, entry_price, exit_price, quantity, capital, fees, pnl, pnl_pct,
		       reason, confidence, holding_candles
		FROM backtest_trades
		WHERE run_id=? AND (?='' OR segment=?)
		ORDER BY id ASC`, runID, segment, segment)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Trade
	for rows.Next() {
		var t Trade
		var entry, exit int64
		var reason string
		if err := rows.Scan(&entry, &exit, &t.EntryPrice, &t.ExitPrice, &t.Quantity, &t.CapitalUSDT,
			&t.Fees, &t.PnL, &t.PnLPct, &reason, &t.Confidence, &t.HoldingCandles); err != nil {
			return nil, err
		}
		t.EntryTime = timeFromMillis(entry)
		t.ExitTime = timeFromMillis(exit)
		t.Reason = ledger.ExitReason(reason)
		out = append(out, t)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (Run, error) {
	var run Run
	var cfgStr string
	var inStr, outStr, verdict, warning, report, chart, message sql.NullString
	var createdAt int64
	var completedAt sql.NullInt64
	if err := row.Scan(&run.ID, &run.Symbol, &run.Timeframe, &run.Status, &run.Candles,
		&run.StartTS, &run.EndTS, &cfgStr, &inStr, &outStr, &verdict, &warning, &report, &chart,
		&message, &createdAt, &completedAt); err != nil {
		return Run{}, err
	}
	run.Verdict = verdict.String
	run.Warning = warning.String
	run.ReportPath = report.String
	run.ChartPath = chart.String
	run.Message = message.String
	run.CreatedAt = timeFromMillis(createdAt)
	if completedAt.Valid {
		run.CompletedAt = timeFromMillis(completedAt.Int64)
	}
	if err := json.Unmarshal([]byte(cfgStr), &run.Config); err != nil {
		return Run{}, err
	}
	if inStr.Valid && inStr.String != "" {
		if err := json.Unmarshal([]byte(inStr.String), &run.InSample); err != nil {
			return Run{}, err
		}
	}
	if outStr.Valid && outStr.String != "" {
		if err := json.Unmarshal([]byte(outStr.String), &run.OutOfSample); err != nil {
			return Run{}, err
		}
	}
	return run, nil
}

func timeFromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
