package dbcheck

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const portalSchema = `
CREATE TABLE userMaster (devID INTEGER PRIMARY KEY, username TEXT);
CREATE TABLE credit_card_details (devID INTEGER, customer_profile_id TEXT, customer_payment_id TEXT, masked_card_number TEXT);
CREATE TABLE appmaster (devID INTEGER, customer_profile_id TEXT, customer_payment_id TEXT);
CREATE TABLE publisAppMaster (devID INTEGER, status TEXT);
`

func openPortal(t *testing.T, seed ...string) *sql.DB {
	t.Helper()
	db, dialect, err := Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "portal.db"))
	require.NoError(t, err)
	require.Equal(t, DialectSQLite, dialect)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(portalSchema)
	require.NoError(t, err)
	for _, stmt := range seed {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	return db
}

var (
	seedUser    = `INSERT INTO userMaster VALUES (42, 'Sai')`
	seedCard    = `INSERT INTO credit_card_details VALUES (42, 'prof-1', 'pay-1', 'XXXX1111')`
	seedApp     = `INSERT INTO appmaster VALUES (42, 'prof-1', 'pay-1')`
	seedPublic  = `INSERT INTO publisAppMaster VALUES (42, 'Public')`
	seedPrivate = `INSERT INTO publisAppMaster VALUES (42, 'Draft')`
)

func TestCheck(t *testing.T) {
	tests := []struct {
		name       string
		seed       []string
		wantSteps  int
		wantPassed bool
		failedStep string
	}{
		{"fully provisioned", []string{seedUser, seedCard, seedApp, seedPublic}, 4, true, ""},
		{"unknown user", nil, 1, false, StepUser},
		{"missing card", []string{seedUser}, 2, false, StepCreditCard},
		{"empty card fields", []string{seedUser, `INSERT INTO credit_card_details VALUES (42, 'prof-1', '', 'XXXX1111')`}, 2, false, StepCreditCard},
		{"mismatched app ids", []string{seedUser, seedCard, `INSERT INTO appmaster VALUES (42, 'prof-2', 'pay-1')`}, 3, false, StepAppMaster},
		{"not public", []string{seedUser, seedCard, seedApp, seedPrivate}, 4, false, StepPublished},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := openPortal(t, tt.seed...)
			v := NewValidator(db, DialectSQLite, zerolog.Nop())

			report, err := v.Check(context.Background(), "Sai")
			require.NoError(t, err)
			require.Len(t, report.Steps, tt.wantSteps)
			assert.Equal(t, tt.wantPassed, report.Passed())

			if tt.failedStep != "" {
				last := report.Steps[len(report.Steps)-1]
				assert.Equal(t, tt.failedStep, last.Name)
				assert.False(t, last.Passed)
			}
		})
	}
}

func TestCheckReportFields(t *testing.T) {
	db := openPortal(t, seedUser, seedCard, seedApp, seedPublic)
	report, err := NewValidator(db, DialectSQLite, zerolog.Nop()).Check(context.Background(), "Sai")
	require.NoError(t, err)

	assert.Equal(t, "42", report.DevID)
	assert.Equal(t, "prof-1", report.CustomerProfileID)
	assert.Equal(t, "pay-1", report.CustomerPaymentID)
	assert.Equal(t, "XXXX1111", report.MaskedCardNumber)
	assert.Equal(t, "Public", report.Status)
	assert.Equal(t, []string{StepUser, StepCreditCard, StepAppMaster, StepPublished},
		[]string{report.Steps[0].Name, report.Steps[1].Name, report.Steps[2].Name, report.Steps[3].Name})
}

func TestCheckDatabaseError(t *testing.T) {
	db, _, err := Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "empty.db"))
	require.NoError(t, err)
	defer db.Close()

	_, err = NewValidator(db, DialectSQLite, zerolog.Nop()).Check(context.Background(), "Sai")
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	q := `SELECT a FROM t WHERE x = ? AND y = ? AND s = 'Public'`
	assert.Equal(t, `SELECT a FROM t WHERE x = @p1 AND y = @p2 AND s = 'Public'`, DialectSQLServer.rebind(q))
	assert.Equal(t, `SELECT a FROM t WHERE x = $1 AND y = $2 AND s = 'Public'`, DialectPostgres.rebind(q))
	assert.Equal(t, q, DialectSQLite.rebind(q))
}

func TestParseDialect(t *testing.T) {
	for in, want := range map[string]Dialect{"mssql": DialectSQLServer, "PostgreSQL": DialectPostgres, "sqlite3": DialectSQLite} {
		got, err := ParseDialect(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseDialect("oracle")
	assert.Error(t, err)

	_, _, err = Open(context.Background(), "sqlite", "")
	assert.Error(t, err)
}
