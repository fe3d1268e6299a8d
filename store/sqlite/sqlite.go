/*
Package sqlite provides a SQLite-backed implementation of the ledger storage
interfaces.

PURPOSE:
  Implements ledger.TxStore using SQLite. In production the same patterns
  apply to PostgreSQL - only minor SQL dialect differences.

INVARIANT ENFORCEMENT:
  The two uniqueness invariants live in the schema as partial unique indexes,
  so they hold even against concurrent writers the service never saw:

    idx_one_active_session:  UNIQUE(provider_id, client_id) WHERE status='active'
    idx_one_pending_request: UNIQUE(client_id) WHERE status='pending'

  CreateSessionIfNoActive / CreateRequestIfNonePending are plain inserts;
  a constraint violation is translated to ledger.ConflictError. The service
  level pre-checks are a fast path only.

KEY TABLES:
  clients:          Billing parties with current hourly rate
  sessions:         Work sessions (status machine lives in the ledger package)
  payment_requests: Pending/fulfilled batches (session ids as JSON)
  payments:         Immutable settlement records
  activities:       Append-only journal; seq AUTOINCREMENT breaks timestamp ties

WAL MODE:
  Opened with WAL for better concurrency: multiple readers don't block, one
  writer at a time, better crash recovery. busy_timeout avoids spurious
  SQLITE_BUSY under writer contention.

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil { log.Fatal(err) }
  defer store.Close()
  svc := ledger.NewService(store, "provider-1")

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper migration
  tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/store.go: interface definitions
  - ledger/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/session-ledger/ledger"
)

// =============================================================================
// STORE
// =============================================================================

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements ledger.Store against either the database or an open
// transaction.
type queries struct {
	q dbtx
}

// Store implements ledger.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
	queries
}

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, queries: queries{q: db}}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS clients (
		id TEXT PRIMARY KEY,
		provider_id TEXT NOT NULL,
		name TEXT NOT NULL,
		hourly_rate TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL REFERENCES clients(id),
		provider_id TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT,
		hourly_rate TEXT NOT NULL,
		crew_size INTEGER NOT NULL,
		duration_hours TEXT NOT NULL DEFAULT '0',
		person_hours TEXT NOT NULL DEFAULT '0',
		amount TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- One active session per (provider, client). The real guard; the service
	-- pre-check only improves the error payload.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_one_active_session
		ON sessions(provider_id, client_id) WHERE status = 'active';

	CREATE INDEX IF NOT EXISTS idx_sessions_client_status
		ON sessions(client_id, status);

	CREATE TABLE IF NOT EXISTS payment_requests (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL REFERENCES clients(id),
		provider_id TEXT NOT NULL,
		session_ids TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		total_person_hours TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- One pending request per client.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_one_pending_request
		ON payment_requests(client_id) WHERE status = 'pending';

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL REFERENCES clients(id),
		session_ids TEXT NOT NULL,
		amount TEXT NOT NULL,
		method TEXT NOT NULL,
		paid_at TEXT NOT NULL
	);

	-- Append-only journal. seq breaks timestamp ties for stable ordering.
	CREATE TABLE IF NOT EXISTS activities (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		type TEXT NOT NULL,
		client_id TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		data TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_activities_client_time
		ON activities(client_id, timestamp, seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONS (ledger.TxStore)
// =============================================================================

// WithTx executes fn within a database transaction. Serialized with a mutex:
// SQLite allows one writer at a time anyway, and holding it avoids
// busy-timeout churn between our own transactions.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{q: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// =============================================================================
// CLIENTS
// =============================================================================

func (s *queries) CreateClient(ctx context.Context, c ledger.Client) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO clients (id, provider_id, name, hourly_rate, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.ProviderID, c.Name, c.HourlyRate.String(), formatTime(c.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &ledger.ConflictError{Kind: "client", ClientID: c.ID, ExistingID: string(c.ID)}
		}
		return fmt.Errorf("failed to create client: %w", err)
	}
	return nil
}

func (s *queries) GetClient(ctx context.Context, id ledger.ClientID) (*ledger.Client, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, provider_id, name, hourly_rate, created_at
		FROM clients WHERE id = ?`, id)

	c, err := scanClient(row)
	if err == sql.ErrNoRows {
		return nil, &ledger.NotFoundError{Kind: "client", ID: string(id)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return c, nil
}

func (s *queries) ListClients(ctx context.Context, provider ledger.ProviderID) ([]ledger.Client, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, provider_id, name, hourly_rate, created_at
		FROM clients WHERE provider_id = ?
		ORDER BY created_at, id`, provider)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	var clients []ledger.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, *c)
	}
	return clients, rows.Err()
}

func (s *queries) UpdateClientRate(ctx context.Context, id ledger.ClientID, rate decimal.Decimal) error {
	res, err := s.q.ExecContext(ctx, `UPDATE clients SET hourly_rate = ? WHERE id = ?`,
		rate.String(), id)
	if err != nil {
		return fmt.Errorf("failed to update client rate: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &ledger.NotFoundError{Kind: "client", ID: string(id)}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(r rowScanner) (*ledger.Client, error) {
	var c ledger.Client
	var rate, createdAt string
	if err := r.Scan(&c.ID, &c.ProviderID, &c.Name, &rate, &createdAt); err != nil {
		return nil, err
	}
	c.HourlyRate = mustDecimal(rate)
	c.CreatedAt = parseTime(createdAt)
	return &c, nil
}

// =============================================================================
// SESSIONS
// =============================================================================

const sessionColumns = `id, client_id, provider_id, start_time, end_time,
	hourly_rate, crew_size, duration_hours, person_hours, amount, status, created_at`

func (s *queries) CreateSessionIfNoActive(ctx context.Context, sess ledger.Session) error {
	var endTime sql.NullString
	if sess.EndTime != nil {
		endTime = sql.NullString{String: formatTime(*sess.EndTime), Valid: true}
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.ClientID, sess.ProviderID,
		formatTime(sess.StartTime), endTime,
		sess.HourlyRate.String(), sess.CrewSize,
		sess.DurationHours.String(), sess.PersonHours.String(), sess.Amount.String(),
		sess.Status, formatTime(sess.CreatedAt),
	)
	if err != nil {
		if isActiveSessionConflict(err) {
			return &ledger.ConflictError{Kind: "active_session", ClientID: sess.ClientID}
		}
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (s *queries) GetSession(ctx context.Context, id ledger.SessionID) (*ledger.Session, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)

	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, &ledger.NotFoundError{Kind: "session", ID: string(id)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return sess, nil
}

func (s *queries) UpdateSession(ctx context.Context, sess ledger.Session) error {
	var endTime sql.NullString
	if sess.EndTime != nil {
		endTime = sql.NullString{String: formatTime(*sess.EndTime), Valid: true}
	}

	res, err := s.q.ExecContext(ctx, `
		UPDATE sessions SET
			end_time = ?, crew_size = ?, duration_hours = ?,
			person_hours = ?, amount = ?, status = ?
		WHERE id = ?`,
		endTime, sess.CrewSize, sess.DurationHours.String(),
		sess.PersonHours.String(), sess.Amount.String(), sess.Status, sess.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &ledger.NotFoundError{Kind: "session", ID: string(sess.ID)}
	}
	return nil
}

func (s *queries) SessionsByClient(ctx context.Context, client ledger.ClientID, statuses ...ledger.SessionStatus) ([]ledger.Session, error) {
	return s.querySessions(ctx, []ledger.ClientID{client}, statuses)
}

func (s *queries) SessionsByClients(ctx context.Context, clients []ledger.ClientID, statuses ...ledger.SessionStatus) ([]ledger.Session, error) {
	if len(clients) == 0 {
		return nil, nil
	}
	return s.querySessions(ctx, clients, statuses)
}

func (s *queries) querySessions(ctx context.Context, clients []ledger.ClientID, statuses []ledger.SessionStatus) ([]ledger.Session, error) {
	var args []any
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE client_id IN (` + placeholders(len(clients)) + `)`
	for _, c := range clients {
		args = append(args, c)
	}
	if len(statuses) > 0 {
		query += ` AND status IN (` + placeholders(len(statuses)) + `)`
		for _, st := range statuses {
			args = append(args, st)
		}
	}
	query += ` ORDER BY start_time, id`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []ledger.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

func (s *queries) ActiveSession(ctx context.Context, provider ledger.ProviderID, client ledger.ClientID) (*ledger.Session, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE provider_id = ? AND client_id = ? AND status = 'active'`,
		provider, client)

	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query active session: %w", err)
	}
	return sess, nil
}

func scanSession(r rowScanner) (*ledger.Session, error) {
	var sess ledger.Session
	var startTime, createdAt, rate, duration, personHours, amount string
	var endTime sql.NullString

	err := r.Scan(&sess.ID, &sess.ClientID, &sess.ProviderID, &startTime, &endTime,
		&rate, &sess.CrewSize, &duration, &personHours, &amount, &sess.Status, &createdAt)
	if err != nil {
		return nil, err
	}

	sess.StartTime = parseTime(startTime)
	if endTime.Valid {
		t := parseTime(endTime.String)
		sess.EndTime = &t
	}
	sess.HourlyRate = mustDecimal(rate)
	sess.DurationHours = mustDecimal(duration)
	sess.PersonHours = mustDecimal(personHours)
	sess.Amount = mustDecimal(amount)
	sess.CreatedAt = parseTime(createdAt)
	return &sess, nil
}

// =============================================================================
// PAYMENT REQUESTS
// =============================================================================

func (s *queries) CreateRequestIfNonePending(ctx context.Context, r ledger.PaymentRequest) error {
	ids, err := json.Marshal(r.SessionIDs)
	if err != nil {
		return fmt.Errorf("failed to encode session ids: %w", err)
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO payment_requests
		(id, client_id, provider_id, session_ids, total_amount, total_person_hours, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ClientID, r.ProviderID, string(ids),
		r.TotalAmount.String(), r.TotalPersonHours.String(),
		r.Status, formatTime(r.CreatedAt),
	)
	if err != nil {
		if isPendingRequestConflict(err) {
			return &ledger.ConflictError{Kind: "pending_request", ClientID: r.ClientID}
		}
		return fmt.Errorf("failed to create payment request: %w", err)
	}
	return nil
}

func (s *queries) PendingRequest(ctx context.Context, client ledger.ClientID) (*ledger.PaymentRequest, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, client_id, provider_id, session_ids, total_amount, total_person_hours, status, created_at
		FROM payment_requests
		WHERE client_id = ? AND status = 'pending'
		ORDER BY created_at DESC LIMIT 1`, client)

	r, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query pending request: %w", err)
	}
	return r, nil
}

func (s *queries) UpdateRequestStatus(ctx context.Context, id ledger.RequestID, status ledger.RequestStatus) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE payment_requests SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update request status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &ledger.NotFoundError{Kind: "request", ID: string(id)}
	}
	return nil
}

func scanRequest(r rowScanner) (*ledger.PaymentRequest, error) {
	var req ledger.PaymentRequest
	var ids, total, hours, createdAt string

	err := r.Scan(&req.ID, &req.ClientID, &req.ProviderID, &ids, &total, &hours,
		&req.Status, &createdAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(ids), &req.SessionIDs); err != nil {
		return nil, fmt.Errorf("failed to decode session ids: %w", err)
	}
	req.TotalAmount = mustDecimal(total)
	req.TotalPersonHours = mustDecimal(hours)
	req.CreatedAt = parseTime(createdAt)
	return &req, nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

func (s *queries) CreatePayment(ctx context.Context, p ledger.Payment) error {
	ids, err := json.Marshal(p.SessionIDs)
	if err != nil {
		return fmt.Errorf("failed to encode session ids: %w", err)
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO payments (id, client_id, session_ids, amount, method, paid_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.ClientID, string(ids), p.Amount.String(), p.Method, formatTime(p.PaidAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// =============================================================================
// ACTIVITY JOURNAL - Append-only; no UPDATE or DELETE statements exist
// =============================================================================

func (s *queries) AppendActivity(ctx context.Context, a ledger.Activity) error {
	data, err := ledger.EncodeActivityData(a.Data)
	if err != nil {
		return fmt.Errorf("failed to encode activity data: %w", err)
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO activities (id, type, client_id, timestamp, data)
		VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.Type(), a.ClientID, formatTime(a.Timestamp), string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to append activity: %w", err)
	}
	return nil
}

func (s *queries) Activities(ctx context.Context, filter ledger.ActivityFilter) ([]ledger.Activity, error) {
	query := `SELECT seq, id, type, client_id, timestamp, data FROM activities WHERE 1=1`
	var args []any

	if filter.ClientID != nil {
		query += ` AND client_id = ?`
		args = append(args, *filter.ClientID)
	}
	if len(filter.Types) > 0 {
		query += ` AND type IN (` + placeholders(len(filter.Types)) + `)`
		for _, t := range filter.Types {
			args = append(args, t)
		}
	}
	if filter.From != nil {
		query += ` AND timestamp >= ?`
		args = append(args, formatTime(*filter.From))
	}
	if filter.To != nil {
		query += ` AND timestamp <= ?`
		args = append(args, formatTime(*filter.To))
	}
	query += ` ORDER BY timestamp, seq`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, filter.Limit)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}
	defer rows.Close()

	var activities []ledger.Activity
	for rows.Next() {
		var a ledger.Activity
		var typ ledger.ActivityType
		var ts, data string
		if err := rows.Scan(&a.Seq, &a.ID, &typ, &a.ClientID, &ts, &data); err != nil {
			return nil, err
		}
		a.Timestamp = parseTime(ts)
		a.Data, err = ledger.DecodeActivityData(typ, []byte(data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode activity %s: %w", a.ID, err)
		}
		activities = append(activities, a)
	}
	return activities, rows.Err()
}

// =============================================================================
// DEV HELPERS
// =============================================================================

// Reset clears all data. Used by demo scenario loaders only.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		DELETE FROM activities;
		DELETE FROM payments;
		DELETE FROM payment_requests;
		DELETE FROM sessions;
		DELETE FROM clients;
	`)
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

// RFC3339Nano: session durations are computed from reloaded start times, so
// sub-second precision must survive the round trip.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isActiveSessionConflict(err error) bool {
	// The partial index reports the indexed columns, not the index name.
	return isUniqueConstraintError(err) &&
		strings.Contains(err.Error(), "sessions.provider_id")
}

func isPendingRequestConflict(err error) bool {
	return isUniqueConstraintError(err) &&
		strings.Contains(err.Error(), "payment_requests.client_id")
}
