// Package dbcheck verifies that a registered developer account was fully
// provisioned in the portal database.
package dbcheck

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/microsoft/go-mssqldb"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// Dialect decides how query parameters are written.
type Dialect string

const (
	DialectSQLServer Dialect = "sqlserver"
	DialectPostgres  Dialect = "postgres"
	DialectSQLite    Dialect = "sqlite"
)

// driverNames maps a dialect to its database/sql driver.
var driverNames = map[Dialect]string{
	DialectSQLServer: "sqlserver",
	DialectPostgres:  "pgx",
	DialectSQLite:    "sqlite",
}

// ParseDialect accepts a dialect or driver name.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(s) {
	case "sqlserver", "mssql":
		return DialectSQLServer, nil
	case "postgres", "postgresql", "pgx":
		return DialectPostgres, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	}
	return "", fmt.Errorf("unsupported database driver %q", s)
}

// placeholder returns the n-th (1-based) parameter marker.
func (d Dialect) placeholder(n int) string {
	switch d {
	case DialectSQLServer:
		return "@p" + strconv.Itoa(n)
	case DialectPostgres:
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// rebind rewrites ? markers into the dialect's form.
func (d Dialect) rebind(query string) string {
	if d == DialectSQLite {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(d.placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Open opens a database and pings it.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, Dialect, error) {
	dialect, err := ParseDialect(driver)
	if err != nil {
		return nil, "", err
	}
	if dsn == "" {
		return nil, "", errors.New("DB_DSN is required")
	}

	db, err := sql.Open(driverNames[dialect], dsn)
	if err != nil {
		return nil, "", fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("ping database: %w", err)
	}
	return db, dialect, nil
}

const (
	StepUser       = "userMaster"
	StepCreditCard = "credit_card_details"
	StepAppMaster  = "appmaster"
	StepPublished  = "publisAppMaster"
)

const (
	queryDevID = `SELECT devID FROM userMaster WHERE username = ?`

	queryCreditCard = `SELECT customer_profile_id, customer_payment_id, masked_card_number
FROM credit_card_details
WHERE devID = ?
AND customer_profile_id IS NOT NULL AND customer_profile_id != ''
AND customer_payment_id IS NOT NULL AND customer_payment_id != ''
AND masked_card_number IS NOT NULL AND masked_card_number != ''`

	queryAppMaster = `SELECT customer_profile_id, customer_payment_id
FROM appmaster
WHERE devID = ? AND customer_profile_id = ? AND customer_payment_id = ?`

	queryPublished = `SELECT status FROM publisAppMaster WHERE devID = ? AND status = 'Public'`
)

// Step is one check in a report.
type Step struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Message string `json:"message"`
}

// Report is the outcome of checking one account.
type Report struct {
	Username          string `json:"username"`
	DevID             string `json:"dev_id,omitempty"`
	CustomerProfileID string `json:"customer_profile_id,omitempty"`
	CustomerPaymentID string `json:"customer_payment_id,omitempty"`
	MaskedCardNumber  string `json:"masked_card_number,omitempty"`
	Status            string `json:"status,omitempty"`
	Steps             []Step `json:"steps"`
}

// Passed reports whether all four checks succeeded.
func (r *Report) Passed() bool {
	return len(r.Steps) == 4 && r.Steps[3].Passed
}

func (r *Report) pass(name, msg string) {
	r.Steps = append(r.Steps, Step{Name: name, Passed: true, Message: msg})
}

func (r *Report) fail(name, msg string) {
	r.Steps = append(r.Steps, Step{Name: name, Message: msg})
}

// Validator runs the account checks.
type Validator struct {
	db      *sql.DB
	dialect Dialect
	log     zerolog.Logger
}

func NewValidator(db *sql.DB, dialect Dialect, log zerolog.Logger) *Validator {
	return &Validator{db: db, dialect: dialect, log: log}
}

// Check walks userMaster, credit_card_details, appmaster and publisAppMaster
// in order and stops at the first failed check. A failed check is recorded in
// the report; only database errors are returned as errors.
func (v *Validator) Check(ctx context.Context, username string) (*Report, error) {
	r := &Report{Username: username}

	found, err := v.row(ctx, queryDevID, []any{username}, &r.DevID)
	if err != nil {
		return r, fmt.Errorf("query %s: %w", StepUser, err)
	}
	if !found {
		r.fail(StepUser, "user not found in userMaster")
		return r, nil
	}
	r.pass(StepUser, "user found, devID "+r.DevID)

	found, err = v.row(ctx, queryCreditCard, []any{r.DevID},
		&r.CustomerProfileID, &r.CustomerPaymentID, &r.MaskedCardNumber)
	if err != nil {
		return r, fmt.Errorf("query %s: %w", StepCreditCard, err)
	}
	if !found {
		r.fail(StepCreditCard, "credit card details incomplete or missing")
		return r, nil
	}
	r.pass(StepCreditCard, "credit card details present, card "+r.MaskedCardNumber)

	var profile, payment string
	found, err = v.row(ctx, queryAppMaster, []any{r.DevID, r.CustomerProfileID, r.CustomerPaymentID}, &profile, &payment)
	if err != nil {
		return r, fmt.Errorf("query %s: %w", StepAppMaster, err)
	}
	if !found {
		r.fail(StepAppMaster, "profile/payment ids don't match between credit_card_details and appmaster")
		return r, nil
	}
	r.pass(StepAppMaster, "profile/payment ids match")

	found, err = v.row(ctx, queryPublished, []any{r.DevID}, &r.Status)
	if err != nil {
		return r, fmt.Errorf("query %s: %w", StepPublished, err)
	}
	if !found {
		r.fail(StepPublished, "app status is not 'Public' in publisAppMaster")
		return r, nil
	}
	r.pass(StepPublished, "app status is 'Public'")

	v.log.Info().Str("username", username).Str("dev_id", r.DevID).Msg("account fully provisioned")
	return r, nil
}

// row scans the first row of query into dest. Columns are scanned through
// sql.NullString so numeric devIDs and NULLs are handled alike.
func (v *Validator) row(ctx context.Context, query string, args []any, dest ...*string) (bool, error) {
	q := v.dialect.rebind(query)
	v.log.Debug().Str("query", q).Msg("dbcheck")

	vals := make([]sql.NullString, len(dest))
	ptrs := make([]any, len(dest))
	for i := range vals {
		ptrs[i] = &vals[i]
	}

	err := v.db.QueryRowContext(ctx, q, args...).Scan(ptrs...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	for i, d := range dest {
		*d = vals[i].String
	}
	return true, nil
}
