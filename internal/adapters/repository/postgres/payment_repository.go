package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/sokopay/api/internal/core/domain"
	"github.com/sokopay/api/internal/core/ports"
)

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) ports.PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `id, user_id, amount, phone_number, description, account_reference,
	status, checkout_request_id, mpesa_receipt_id, result_code, result_desc, created_at, updated_at`

func (r *PaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (id, user_id, amount, phone_number, description, account_reference, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		payment.ID, payment.UserID, payment.Amount, payment.PhoneNumber,
		payment.Description, payment.AccountReference, string(payment.Status),
		payment.CreatedAt, payment.UpdatedAt,
	)
	return err
}

func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PaymentRepository) GetByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE checkout_request_id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, checkoutRequestID))
}

func (r *PaymentRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := []*domain.Payment{}
	for rows.Next() {
		payment, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, payment)
	}
	return payments, rows.Err()
}

func (r *PaymentRepository) MarkStkPushSent(ctx context.Context, id uuid.UUID, checkoutRequestID string) (bool, error) {
	query := `
		UPDATE payments
		SET status = $3, checkout_request_id = $2, updated_at = now()
		WHERE id = $1 AND status = $4
	`
	res, err := r.db.ExecContext(ctx, query, id, checkoutRequestID,
		string(domain.PaymentStatusStkPushSent), string(domain.PaymentStatusInitiated))
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *PaymentRepository) Finalize(ctx context.Context, id uuid.UUID, status domain.PaymentStatus, resultCode int, resultDesc string, receiptID *string) (bool, error) {
	// Conditional on a non-terminal status: whichever terminal transition is
	// persisted first wins, the loser sees zero rows affected.
	query := `
		UPDATE payments
		SET status = $2, result_code = $3, result_desc = $4,
		    mpesa_receipt_id = COALESCE($5, mpesa_receipt_id), updated_at = now()
		WHERE id = $1 AND status IN ($6, $7)
	`
	res, err := r.db.ExecContext(ctx, query, id, string(status), resultCode, resultDesc, receiptID,
		string(domain.PaymentStatusInitiated), string(domain.PaymentStatusStkPushSent))
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PaymentRepository) scanOne(row *sql.Row) (*domain.Payment, error) {
	payment, err := r.scanRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return payment, nil
}

func (r *PaymentRepository) scanRow(row rowScanner) (*domain.Payment, error) {
	payment := &domain.Payment{}
	var status string
	err := row.Scan(
		&payment.ID, &payment.UserID, &payment.Amount, &payment.PhoneNumber,
		&payment.Description, &payment.AccountReference, &status,
		&payment.CheckoutRequestID, &payment.MpesaReceiptID,
		&payment.ResultCode, &payment.ResultDesc,
		&payment.CreatedAt, &payment.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	payment.Status = domain.PaymentStatus(status)
	return payment, nil
}
