// Package datastore persists every entity of the screener in PostgreSQL via
// pgx. All bulk writes use upserts keyed by the entities' natural unique keys
// so recomputation and resume are idempotent.
package datastore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/your-org/momet-screener/internal/joblog"
	"github.com/your-org/momet-screener/internal/marketdata"
	"github.com/your-org/momet-screener/internal/scenario"
	"github.com/your-org/momet-screener/internal/strategy"
)

// Repository handles database operations for all screener entities.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository on top of an existing pool.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Connect opens a pgx pool and verifies the connection.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// EnsureSymbol inserts the symbol if it does not exist yet and returns the
// stored row either way.
func (r *Repository) EnsureSymbol(ctx context.Context, code, exchange string) (marketdata.Symbol, error) {
	query := `
        INSERT INTO symbols (code, exchange)
        VALUES ($1, $2)
        ON CONFLICT (code) DO UPDATE SET exchange = EXCLUDED.exchange, updated_at = now()
        RETURNING id, code, exchange, name, is_active;
    `
	var sym marketdata.Symbol
	err := r.db.QueryRow(ctx, query, code, exchange).
		Scan(&sym.ID, &sym.Code, &sym.Exchange, &sym.Name, &sym.IsActive)
	if err != nil {
		return marketdata.Symbol{}, fmt.Errorf("ensure symbol %s: %w", code, err)
	}
	return sym, nil
}

// AllActiveSymbols returns every active symbol, ordered by code.
func (r *Repository) AllActiveSymbols(ctx context.Context) ([]marketdata.Symbol, error) {
	query := `
        SELECT id, code, exchange, name, is_active
        FROM symbols
        WHERE is_active
        ORDER BY code;
    `
	return r.scanSymbols(ctx, query)
}

// ActiveSymbols returns the active symbols attached to a scenario, ordered by
// code.
func (r *Repository) ActiveSymbols(ctx context.Context, scenarioID int64) ([]marketdata.Symbol, error) {
	query := `
        SELECT s.id, s.code, s.exchange, s.name, s.is_active
        FROM symbols s
        JOIN scenario_symbols ss ON ss.symbol_id = s.id
        WHERE ss.scenario_id = $1 AND s.is_active
        ORDER BY s.code;
    `
	return r.scanSymbols(ctx, query, scenarioID)
}

func (r *Repository) scanSymbols(ctx context.Context, query string, args ...interface{}) ([]marketdata.Symbol, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query symbols: %w", err)
	}
	defer rows.Close()

	var symbols []marketdata.Symbol
	for rows.Next() {
		var sym marketdata.Symbol
		if err := rows.Scan(&sym.ID, &sym.Code, &sym.Exchange, &sym.Name, &sym.IsActive); err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

// CreateScenario validates the scenario, stamps its content hash and inserts
// it.
func (r *Repository) CreateScenario(ctx context.Context, scn *scenario.Scenario) error {
	if err := scn.Validate(); err != nil {
		return err
	}
	scn.Hash = scn.ComputeHash()

	query := `
        INSERT INTO scenarios (name, description, is_default, a, b, c, d, e, n1, n2, n3, n4, config_hash)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
        RETURNING id;
    `
	err := r.db.QueryRow(ctx, query,
		scn.Name, scn.Description, scn.IsDefault,
		scn.A, scn.B, scn.C, scn.D, scn.E,
		scn.N1, scn.N2, scn.N3, scn.N4, scn.Hash,
	).Scan(&scn.ID)
	if err != nil {
		return fmt.Errorf("insert scenario %s: %w", scn.Name, err)
	}
	return nil
}

// ScenarioByName loads one scenario.
func (r *Repository) ScenarioByName(ctx context.Context, name string) (*scenario.Scenario, error) {
	return r.scanScenario(ctx, `
        SELECT id, name, description, is_default, a, b, c, d, e, n1, n2, n3, n4, config_hash
        FROM scenarios
        WHERE name = $1;
    `, name)
}

// DefaultScenario loads the scenario flagged as default.
func (r *Repository) DefaultScenario(ctx context.Context) (*scenario.Scenario, error) {
	return r.scanScenario(ctx, `
        SELECT id, name, description, is_default, a, b, c, d, e, n1, n2, n3, n4, config_hash
        FROM scenarios
        WHERE is_default
        LIMIT 1;
    `)
}

func (r *Repository) scanScenario(ctx context.Context, query string, args ...interface{}) (*scenario.Scenario, error) {
	var scn scenario.Scenario
	err := r.db.QueryRow(ctx, query, args...).Scan(
		&scn.ID, &scn.Name, &scn.Description, &scn.IsDefault,
		&scn.A, &scn.B, &scn.C, &scn.D, &scn.E,
		&scn.N1, &scn.N2, &scn.N3, &scn.N4, &scn.Hash,
	)
	if err != nil {
		return nil, fmt.Errorf("load scenario: %w", err)
	}
	return &scn, nil
}

// RuleSetByStrategyName loads a strategy's rules as a RuleSet, returning the
// strategy ID alongside.
func (r *Repository) RuleSetByStrategyName(ctx context.Context, name string) (*strategy.RuleSet, int64, error) {
	var strategyID int64
	err := r.db.QueryRow(ctx, `SELECT id FROM strategies WHERE name = $1;`, name).Scan(&strategyID)
	if err != nil {
		return nil, 0, fmt.Errorf("load strategy %s: %w", name, err)
	}

	rows, err := r.db.Query(ctx, `
        SELECT action, signal, position_size_pct
        FROM strategy_rules
        WHERE strategy_id = $1
        ORDER BY action, signal;
    `, strategyID)
	if err != nil {
		return nil, 0, fmt.Errorf("load rules for %s: %w", name, err)
	}
	defer rows.Close()

	var rules []strategy.Rule
	for rows.Next() {
		var rule strategy.Rule
		if err := rows.Scan(&rule.Action, &rule.Signal, &rule.SizePct); err != nil {
			return nil, 0, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	rs, err := strategy.NewRuleSet(name, rules)
	if err != nil {
		return nil, 0, err
	}
	return rs, strategyID, nil
}

// InsertJobLog persists one observability record.
func (r *Repository) InsertJobLog(ctx context.Context, e joblog.Entry) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO job_logs (job_name, level, message, created_at)
        VALUES ($1, $2, $3, $4);
    `, e.JobName, e.Level, e.Message, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert job log: %w", err)
	}
	return nil
}

// DeleteOldJobLogs prunes entries older than the retention window and returns
// the number of rows removed.
func (r *Repository) DeleteOldJobLogs(ctx context.Context, maxAge time.Duration) (int64, error) {
	threshold := time.Now().UTC().Add(-maxAge)
	tag, err := r.db.Exec(ctx, `DELETE FROM job_logs WHERE created_at < $1;`, threshold)
	if err != nil {
		return 0, fmt.Errorf("delete old job logs: %w", err)
	}
	return tag.RowsAffected(), nil
}
