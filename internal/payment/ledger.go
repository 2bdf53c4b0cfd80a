package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

type SessionStatus string

const (
	StatusInitiated SessionStatus = "INITIATED"
	// StatusAwaitingPayment: the gateway opened a session the buyer still
	// has to pay on the gateway's page.
	StatusAwaitingPayment SessionStatus = "AWAITING_PAYMENT"
	StatusPaid            SessionStatus = "PAYMENT_COMPLETED"
	StatusCompleted       SessionStatus = "COMPLETED"
	StatusFailed          SessionStatus = "FAILED"
)

func (s SessionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Session is one checkout attempt as recorded in the ledger.
type Session struct {
	ID             string
	IdempotencyKey string
	UserID         string
	Amount         decimal.Decimal
	Status         SessionStatus
	GatewaySession string
	PaymentRef     string
	OrderID        string
	FailureReason  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Ledger records checkout sessions in Postgres. Idempotency keys are scoped
// to the user that sent them.
type Ledger struct {
	db *sql.DB
}

func NewLedger(cred *Credentials) (*Ledger, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	return &Ledger{db: db}, nil
}

func (l *Ledger) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(l.db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

const sessionColumns = `id, COALESCE(idempotency_key, ''), user_id, amount, status,
	COALESCE(gateway_session, ''), COALESCE(payment_ref, ''), COALESCE(order_id, ''),
	COALESCE(failure_reason, ''), created_at, updated_at`

// Begin opens a session for key. When userID already has a session with the
// same key it is returned with created set to false.
func (l *Ledger) Begin(ctx context.Context, key, userID string, amount decimal.Decimal) (*Session, bool, error) {
	var nullableKey sql.NullString
	if key != "" {
		nullableKey = sql.NullString{String: key, Valid: true}
	}

	row := l.db.QueryRowContext(ctx, `
		INSERT INTO payment_sessions (id, idempotency_key, user_id, amount, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, idempotency_key) DO NOTHING
		RETURNING `+sessionColumns,
		uuid.NewString(), nullableKey, userID, amount.String(), string(StatusInitiated))

	s, err := scanSession(row)
	if err == nil {
		return s, true, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return nil, false, fmt.Errorf("failed to begin payment session: %w", err)
	}

	existing, err := l.ByIdempotencyKey(ctx, userID, key)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (l *Ledger) ByIdempotencyKey(ctx context.Context, userID, key string) (*Session, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM payment_sessions WHERE user_id = $1 AND idempotency_key = $2`, userID, key)
	s, err := scanSession(row)
	if err != nil && !errors.Is(err, ErrSessionNotFound) {
		return nil, fmt.Errorf("failed to get payment session: %w", err)
	}
	return s, err
}

func (l *Ledger) Get(ctx context.Context, id string) (*Session, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM payment_sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	if err != nil && !errors.Is(err, ErrSessionNotFound) {
		return nil, fmt.Errorf("failed to get payment session: %w", err)
	}
	return s, err
}

func (l *Ledger) MarkPaid(ctx context.Context, id, gatewaySession, paymentRef string) error {
	return l.update(ctx, id, `status = $2, gateway_session = $3, payment_ref = $4`,
		string(StatusPaid), gatewaySession, paymentRef)
}

// AwaitPayment records the gateway session the buyer was sent to.
func (l *Ledger) AwaitPayment(ctx context.Context, id, gatewaySession string) error {
	return l.update(ctx, id, `status = $2, gateway_session = $3`, string(StatusAwaitingPayment), gatewaySession)
}

// AttachOrder links the order created for a session that is still waiting
// for payment.
func (l *Ledger) AttachOrder(ctx context.Context, id, orderID string) error {
	return l.update(ctx, id, `order_id = $2`, orderID)
}

func (l *Ledger) Complete(ctx context.Context, id, orderID string) error {
	return l.update(ctx, id, `status = $2, order_id = $3`, string(StatusCompleted), orderID)
}

func (l *Ledger) Fail(ctx context.Context, id, reason string) error {
	return l.update(ctx, id, `status = $2, failure_reason = $3`, string(StatusFailed), reason)
}

// Stuck lists sessions untouched for olderThan that are either paid without
// an order or still waiting for the buyer to pay.
func (l *Ledger) Stuck(ctx context.Context, olderThan time.Duration) ([]*Session, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM payment_sessions
		WHERE status IN ($1, $2) AND updated_at < NOW() - make_interval(secs => $3)
		ORDER BY updated_at`,
		string(StatusPaid), string(StatusAwaitingPayment), olderThan.Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to query stuck sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (l *Ledger) update(ctx context.Context, id, set string, args ...any) error {
	res, err := l.db.ExecContext(ctx,
		`UPDATE payment_sessions SET `+set+`, updated_at = NOW() WHERE id = $1`,
		append([]any{id}, args...)...)
	if err != nil {
		return fmt.Errorf("failed to update payment session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update payment session: %w", err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var (
		s      Session
		amount string
		status string
	)
	err := row.Scan(&s.ID, &s.IdempotencyKey, &s.UserID, &amount, &status,
		&s.GatewaySession, &s.PaymentRef, &s.OrderID, &s.FailureReason, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	s.Status = SessionStatus(status)
	if s.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	return &s, nil
}
