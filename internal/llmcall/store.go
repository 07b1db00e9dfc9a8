package llmcall

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// ErrNotFound is returned by Get when no call has the requested ID.
var ErrNotFound = errors.New("llm call not found")

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond

	// Fixed-width UTC timestamps so that text comparison orders correctly.
	timeLayout = "2006-01-02T15:04:05.000000000Z"

	defaultListLimit = 100
)

// Store persists call records in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// QueryFilter specifies filters for listing calls.
type QueryFilter struct {
	Endpoint  string
	PromptKey string
	Model     string
	RequestID string
	After     *time.Time
	Before    *time.Time
	Success   *bool
	Limit     int
	Offset    int
}

// Open initializes or connects to the call database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("store path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	err = s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to reset call history)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

const insertSQL = `INSERT INTO llm_calls (
	id, timestamp, latency_ms, endpoint, request_id, prompt_key, prompt_hash, prompt,
	model, temperature, prompt_tokens, completion_tokens, response,
	success, error, parse_error, used_fallback
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const selectColumns = `id, timestamp, latency_ms, endpoint, request_id, prompt_key, prompt_hash, prompt,
	model, temperature, prompt_tokens, completion_tokens, response,
	success, error, parse_error, used_fallback`

// Insert stores a single call.
func (s *Store) Insert(ctx context.Context, call *Call) error {
	if call == nil {
		return errors.New("call is nil")
	}
	return s.InsertBatch(ctx, []*Call{call})
}

// InsertBatch stores calls in one transaction.
func (s *Store) InsertBatch(ctx context.Context, calls []*Call) error {
	if len(calls) == 0 {
		return nil
	}
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin insert tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		stmt, err := tx.PrepareContext(ctx, insertSQL)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, call := range calls {
			if call == nil {
				continue
			}
			if _, err := stmt.ExecContext(ctx, insertArgs(call)...); err != nil {
				return fmt.Errorf("insert call %s: %w", call.ID, err)
			}
		}
		return tx.Commit()
	})
}

// Get retrieves a single call by ID.
func (s *Store) Get(ctx context.Context, id string) (*Call, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM llm_calls WHERE id = ?", id)
	call, err := scanCall(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get call %s: %w", id, err)
	}
	return call, nil
}

// List retrieves calls matching the filter, newest first.
func (s *Store) List(ctx context.Context, filter QueryFilter) ([]Call, error) {
	ctx = ensureContext(ctx)
	where, args := filter.where()

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := "SELECT " + selectColumns + " FROM llm_calls" + where +
		" ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}
	defer rows.Close()

	var calls []Call
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		calls = append(calls, *call)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate calls: %w", err)
	}
	return calls, nil
}

// CountByEndpoint returns the number of recorded calls per endpoint,
// restricted to the filter's time and status conditions.
func (s *Store) CountByEndpoint(ctx context.Context, filter QueryFilter) (map[string]int, error) {
	ctx = ensureContext(ctx)
	where, args := filter.where()

	rows, err := s.db.QueryContext(ctx,
		"SELECT endpoint, COUNT(1) FROM llm_calls"+where+" GROUP BY endpoint", args...)
	if err != nil {
		return nil, fmt.Errorf("count calls: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			endpoint string
			count    int
		)
		if err := rows.Scan(&endpoint, &count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[endpoint] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}
	return counts, nil
}

// DeleteBefore removes calls recorded before cutoff and returns how many were removed.
func (s *Store) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx, "DELETE FROM llm_calls WHERE timestamp < ?", formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete calls: %w", err)
	}
	return res.RowsAffected()
}

func (f QueryFilter) where() (string, []any) {
	var (
		conditions []string
		args       []any
	)
	add := func(cond string, arg any) {
		conditions = append(conditions, cond)
		args = append(args, arg)
	}

	if f.Endpoint != "" {
		add("endpoint = ?", f.Endpoint)
	}
	if f.PromptKey != "" {
		add("prompt_key = ?", f.PromptKey)
	}
	if f.Model != "" {
		add("model = ?", f.Model)
	}
	if f.RequestID != "" {
		add("request_id = ?", f.RequestID)
	}
	if f.Success != nil {
		add("success = ?", boolToInt(*f.Success))
	}
	if f.After != nil {
		add("timestamp > ?", formatTime(*f.After))
	}
	if f.Before != nil {
		add("timestamp < ?", formatTime(*f.Before))
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (*Call, error) {
	var (
		call         Call
		timestamp    string
		requestID    sql.NullString
		promptKey    sql.NullString
		promptHash   sql.NullString
		prompt       sql.NullString
		model        sql.NullString
		temperature  sql.NullFloat64
		response     sql.NullString
		success      int
		errMsg       sql.NullString
		parseErr     sql.NullString
		usedFallback int
	)
	if err := row.Scan(
		&call.ID, &timestamp, &call.LatencyMs, &call.Endpoint, &requestID,
		&promptKey, &promptHash, &prompt, &model, &temperature,
		&call.PromptTokens, &call.CompletionTokens, &response,
		&success, &errMsg, &parseErr, &usedFallback,
	); err != nil {
		return nil, err
	}

	if ts, err := time.Parse(timeLayout, timestamp); err == nil {
		call.Timestamp = ts
	} else if ts, err := time.Parse(time.RFC3339Nano, timestamp); err == nil {
		call.Timestamp = ts.UTC()
	}
	call.RequestID = requestID.String
	call.PromptKey = promptKey.String
	call.PromptHash = promptHash.String
	call.Prompt = prompt.String
	call.Model = model.String
	if temperature.Valid {
		t := temperature.Float64
		call.Temperature = &t
	}
	call.Response = response.String
	call.Success = success != 0
	call.Error = errMsg.String
	call.ParseError = parseErr.String
	call.UsedFallback = usedFallback != 0
	return &call, nil
}

func insertArgs(c *Call) []any {
	ts := c.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return []any{
		c.ID,
		formatTime(ts),
		c.LatencyMs,
		c.Endpoint,
		nullableString(c.RequestID),
		nullableString(c.PromptKey),
		nullableString(c.PromptHash),
		nullableString(c.Prompt),
		nullableString(c.Model),
		nullableFloat(c.Temperature),
		c.PromptTokens,
		c.CompletionTokens,
		c.Response,
		boolToInt(c.Success),
		nullableString(c.Error),
		nullableString(c.ParseError),
		boolToInt(c.UsedFallback),
	}
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableFloat(value *float64) any {
	if value == nil {
		return nil
	}
	return *value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
