// Package store persists install plans to a SQL database.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"netpath-verifier/internal/invariant"
	"netpath-verifier/internal/model"
)

const (
	StageBorder    = "border"
	StageInvariant = "invariant"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS compiled_rule (
		stage VARCHAR(16) NOT NULL,
		device VARCHAR(64) NOT NULL,
		seq INTEGER NOT NULL,
		table_name VARCHAR(128) NOT NULL,
		match_json TEXT NOT NULL,
		action VARCHAR(128) NOT NULL,
		params_json TEXT NOT NULL,
		priority INTEGER NOT NULL,
		PRIMARY KEY (stage, device, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS compile_failure (
		invariant_id INTEGER NOT NULL PRIMARY KEY,
		name VARCHAR(128) NOT NULL,
		message TEXT NOT NULL
	)`,
}

const insertRule = `INSERT INTO compiled_rule
	(stage, device, seq, table_name, match_json, action, params_json, priority)
	VALUES (:stage, :device, :seq, :table_name, :match_json, :action, :params_json, :priority)`

const insertFailure = `INSERT INTO compile_failure (invariant_id, name, message)
	VALUES (:invariant_id, :name, :message)`

type ruleRow struct {
	Stage    string `db:"stage"`
	Device   string `db:"device"`
	Seq      int    `db:"seq"`
	Table    string `db:"table_name"`
	Match    string `db:"match_json"`
	Action   string `db:"action"`
	Params   string `db:"params_json"`
	Priority int    `db:"priority"`
}

type failureRow struct {
	ID      int    `db:"invariant_id"`
	Name    string `db:"name"`
	Message string `db:"message"`
}

type Store struct {
	db *sqlx.DB
}

// Open connects to a sqlite3 or mysql database.
func Open(driver, dsn string) (*Store, error) {
	switch driver {
	case "sqlite3", "mysql":
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach %s store: %w", driver, err)
	}
	return New(db), nil
}

func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate store: %w", err)
		}
	}
	return nil
}

// SavePlan replaces the stored plan with plan in a single transaction.
func (s *Store) SavePlan(ctx context.Context, plan *invariant.Plan) (err error) {
	rows, err := planRows(plan)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM compiled_rule"); err != nil {
		return fmt.Errorf("failed to clear rules: %w", err)
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM compile_failure"); err != nil {
		return fmt.Errorf("failed to clear failures: %w", err)
	}
	for _, row := range rows {
		if _, err = tx.NamedExecContext(ctx, insertRule, row); err != nil {
			return fmt.Errorf("failed to insert rule %s/%d: %w", row.Device, row.Seq, err)
		}
	}
	for _, f := range plan.Failures {
		row := failureRow{ID: f.ID, Name: f.Name, Message: f.Error}
		if _, err = tx.NamedExecContext(ctx, insertFailure, row); err != nil {
			return fmt.Errorf("failed to insert failure %d: %w", f.ID, err)
		}
	}
	return tx.Commit()
}

// LoadPlan reads back the stored plan.
func (s *Store) LoadPlan(ctx context.Context) (*invariant.Plan, error) {
	var rows []ruleRow
	query := "SELECT stage, device, seq, table_name, match_json, action, params_json, priority FROM compiled_rule ORDER BY stage, device, seq"
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	plan := &invariant.Plan{
		Border:     make(invariant.RuleMap),
		Invariants: make(invariant.RuleMap),
		Failures:   []invariant.Failure{},
	}
	for _, row := range rows {
		rule := model.Rule{Table: row.Table, Action: row.Action, Priority: model.Priority(row.Priority)}
		if err := json.Unmarshal([]byte(row.Match), &rule.Match); err != nil {
			return nil, fmt.Errorf("rule %s/%d: invalid match: %w", row.Device, row.Seq, err)
		}
		if err := json.Unmarshal([]byte(row.Params), &rule.Params); err != nil {
			return nil, fmt.Errorf("rule %s/%d: invalid params: %w", row.Device, row.Seq, err)
		}
		switch row.Stage {
		case StageBorder:
			plan.Border[row.Device] = append(plan.Border[row.Device], rule)
		case StageInvariant:
			plan.Invariants[row.Device] = append(plan.Invariants[row.Device], rule)
		default:
			return nil, fmt.Errorf("rule %s/%d: unknown stage %q", row.Device, row.Seq, row.Stage)
		}
	}

	var failures []failureRow
	if err := s.db.SelectContext(ctx, &failures, "SELECT invariant_id, name, message FROM compile_failure ORDER BY invariant_id"); err != nil {
		return nil, fmt.Errorf("failed to load failures: %w", err)
	}
	for _, f := range failures {
		plan.Failures = append(plan.Failures, invariant.Failure{ID: f.ID, Name: f.Name, Error: f.Message})
	}
	return plan, nil
}

func planRows(plan *invariant.Plan) ([]ruleRow, error) {
	var rows []ruleRow
	for _, stage := range []struct {
		name  string
		rules invariant.RuleMap
	}{{StageBorder, plan.Border}, {StageInvariant, plan.Invariants}} {
		for _, device := range stage.rules.Devices() {
			for i, rule := range stage.rules[device] {
				match, err := json.Marshal(rule.Match)
				if err != nil {
					return nil, err
				}
				params, err := json.Marshal(rule.Params)
				if err != nil {
					return nil, err
				}
				rows = append(rows, ruleRow{
					Stage:    stage.name,
					Device:   device,
					Seq:      i,
					Table:    rule.Table,
					Match:    string(match),
					Action:   rule.Action,
					Params:   string(params),
					Priority: int(rule.Priority),
				})
			}
		}
	}
	return rows, nil
}
