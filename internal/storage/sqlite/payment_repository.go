package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Brymax254/safari-payments/internal/domain"
)

// PaymentRepository implements domain.Repository on SQLite. Terminal
// transitions use a conditional UPDATE so that at most one writer wins even
// when callback and IPN reconcile the same payment concurrently.
type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `id, merchant_ref, tracking_id, provider, amount, currency, description,
	payer_email, payer_phone, payer_first_name, payer_last_name,
	status, redirect_url, failure_reason, channel, created_at, updated_at, confirmed_at`

func (r *PaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO payments (`+paymentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.MerchantRef,
		nullable(p.TrackingID),
		string(p.Provider),
		p.Amount.String(),
		p.Currency,
		p.Description,
		p.PayerEmail,
		p.PayerPhone,
		p.PayerFirstName,
		p.PayerLastName,
		string(p.Status),
		p.RedirectURL,
		p.FailureReason,
		p.Channel,
		p.CreatedAt.UTC(),
		p.UpdatedAt.UTC(),
		nullTime(p.ConfirmedAt),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return domain.NewPaymentError(domain.ErrDuplicateRequest,
			"merchant reference already exists: "+p.MerchantRef, "DUPLICATE_REFERENCE")
	}
	return err
}

func (r *PaymentRepository) FindByMerchantRef(ctx context.Context, ref string) (*domain.Payment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE merchant_ref = ?`, ref)
	return scanPayment(row)
}

func (r *PaymentRepository) FindByTrackingID(ctx context.Context, trackingID string) (*domain.Payment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE tracking_id = ?`, trackingID)
	return scanPayment(row)
}

func (r *PaymentRepository) MarkSubmitted(ctx context.Context, id, trackingID, redirectURL string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE payments
		 SET status = ?, tracking_id = ?, redirect_url = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(domain.StatusSubmitted),
		trackingID,
		redirectURL,
		time.Now().UTC(),
		id,
		string(domain.StatusPending),
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}

	// Distinguish "payment missing" from "payment no longer pending".
	var current string
	err = r.db.QueryRowContext(ctx, `SELECT status FROM payments WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("payment %s is %s, expected %s", id, current, domain.StatusPending)
}

// Finalize moves a payment into a terminal status. The WHERE clause admits
// only statuses the lifecycle allows to reach the target; zero affected rows
// with an existing payment means another writer finalized it first.
func (r *PaymentRepository) Finalize(ctx context.Context, id string, status domain.Status, reason, channel string, confirmedAt time.Time) (bool, error) {
	var confirmed interface{}
	if !confirmedAt.IsZero() {
		confirmed = confirmedAt.UTC()
	}

	args := []interface{}{
		string(status),
		reason,
		channel,
		confirmed,
		time.Now().UTC(),
		id,
	}
	placeholders := ""
	for _, from := range []domain.Status{domain.StatusPending, domain.StatusSubmitted} {
		if !domain.CanTransition(from, status) {
			continue
		}
		if placeholders != "" {
			placeholders += ", "
		}
		placeholders += "?"
		args = append(args, string(from))
	}
	if placeholders == "" {
		return false, fmt.Errorf("no status can transition to %s", status)
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE payments
		 SET status = ?, failure_reason = ?, channel = ?, confirmed_at = ?, updated_at = ?
		 WHERE id = ? AND status IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 1 {
		return true, nil
	}

	// Distinguish "lost the race" from "no such payment" and from an
	// illegal transition attempt.
	var current string
	err = r.db.QueryRowContext(ctx, `SELECT status FROM payments WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return false, domain.ErrNotFound
	}
	if err != nil {
		return false, err
	}
	if domain.Status(current).Terminal() {
		return false, nil
	}
	return false, fmt.Errorf("illegal transition %s -> %s for payment %s", current, status, id)
}

func scanPayment(row *sql.Row) (*domain.Payment, error) {
	var (
		p          domain.Payment
		provider   string
		status     string
		amount     string
		tracking   sql.NullString
		confirmed  sql.NullTime
	)

	err := row.Scan(
		&p.ID,
		&p.MerchantRef,
		&tracking,
		&provider,
		&amount,
		&p.Currency,
		&p.Description,
		&p.PayerEmail,
		&p.PayerPhone,
		&p.PayerFirstName,
		&p.PayerLastName,
		&status,
		&p.RedirectURL,
		&p.FailureReason,
		&p.Channel,
		&p.CreatedAt,
		&p.UpdatedAt,
		&confirmed,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	p.Provider = domain.Provider(provider)
	p.Status = domain.Status(status)
	p.TrackingID = tracking.String
	if confirmed.Valid {
		t := confirmed.Time
		p.ConfirmedAt = &t
	}
	p.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}
