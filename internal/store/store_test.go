package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netpath-verifier/internal/invariant"
	"netpath-verifier/internal/model"
)

func samplePlan() *invariant.Plan {
	return &invariant.Plan{
		Border: invariant.RuleMap{
			"s1": {
				{
					Table:    "MyIngress.encapsulation",
					Match:    map[string]model.MatchField{"hdr.ipv4.protocol": model.Exact(0x91)},
					Action:   "NoAction",
					Priority: model.PriorityHigh,
				},
			},
		},
		Invariants: invariant.RuleMap{
			"s1": {
				{
					Table:    "MyIngress.regex_init",
					Match:    map[string]model.MatchField{"standard_metadata.ingress_port": model.Range(3, 3)},
					Action:   "MyIngress.regex_init",
					Params:   map[string]uint64{"state": 1, "invariantId": 0},
					Priority: model.PriorityHigh,
				},
				{
					Table:    "MyEgress.regex_transition",
					Match:    map[string]model.MatchField{"meta.state": model.Exact(1)},
					Action:   "MyEgress.violate",
					Params:   map[string]uint64{"invariantId": 0},
					Priority: model.PriorityLow,
				},
			},
		},
		Failures: []invariant.Failure{{ID: 1, Name: "broken", Error: "syntax error"}},
	}
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return New(sqlx.NewDb(sqlDB, "mysql")), mock
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("postgres", "host=localhost")
	assert.ErrorContains(t, err, "unsupported store driver")
}

func TestMigrate(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS compiled_rule").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS compile_failure").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSavePlan(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM compiled_rule").WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec("DELETE FROM compile_failure").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO compiled_rule").
		WithArgs(StageBorder, "s1", 0, "MyIngress.encapsulation", sqlmock.AnyArg(), "NoAction", "null", 3).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO compiled_rule").
		WithArgs(StageInvariant, "s1", 0, "MyIngress.regex_init", sqlmock.AnyArg(), "MyIngress.regex_init", `{"invariantId":0,"state":1}`, 3).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectExec("INSERT INTO compiled_rule").
		WithArgs(StageInvariant, "s1", 1, "MyEgress.regex_transition", sqlmock.AnyArg(), "MyEgress.violate", sqlmock.AnyArg(), 1).
		WillReturnResult(sqlmock.NewResult(3, 1))
	mock.ExpectExec("INSERT INTO compile_failure").
		WithArgs(1, "broken", "syntax error").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, s.SavePlan(context.Background(), samplePlan()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSavePlanRollsBackOnError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM compiled_rule").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM compile_failure").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO compiled_rule").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := s.SavePlan(context.Background(), samplePlan())
	require.ErrorIs(t, err, assert.AnError)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadPlanRejectsUnknownStage(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("FROM compiled_rule").
		WillReturnRows(sqlmock.NewRows([]string{"stage", "device", "seq", "table_name", "match_json", "action", "params_json", "priority"}).
			AddRow("staging", "s1", 0, "MyIngress.encapsulation", "{}", "NoAction", "null", 3))

	_, err := s.LoadPlan(context.Background())
	assert.ErrorContains(t, err, "unknown stage")
}

// TestSQLiteRoundTrip needs the cgo sqlite3 driver and is skipped without it.
func TestSQLiteRoundTrip(t *testing.T) {
	s, err := Open("sqlite3", filepath.Join(t.TempDir(), "plan.db"))
	if err != nil {
		t.Skipf("sqlite3 not available: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Migrate(ctx))

	want := samplePlan()
	require.NoError(t, s.SavePlan(ctx, want))
	// Saving again replaces the previous plan.
	require.NoError(t, s.SavePlan(ctx, want))

	got, err := s.LoadPlan(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
