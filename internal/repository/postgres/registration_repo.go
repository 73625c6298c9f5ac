package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"campusclubs/internal/domain"
)

// registrationRepository serves both registration tables; they share one shape and differ only
// in table and target column names.
type registrationRepository struct {
	DB        dbtx
	kind      domain.Kind
	table     string
	targetCol string
	columns   string
}

func newRegistrationRepository(db dbtx, kind domain.Kind, table, targetCol string) *registrationRepository {
	return &registrationRepository{
		DB:        db,
		kind:      kind,
		table:     table,
		targetCol: targetCol,
		columns: fmt.Sprintf(`id, %s, user_type, user_id, public_name, public_email, public_phone, public_student_id,
		registered_by_id, registration_code, registration_status, payment_status, amount, currency,
		payment_method, transaction_id, payment_amount, payment_currency, gateway_response, payment_processed_at, failure_reason,
		success_url, fail_url, cancel_url, registered_at, confirmed_at, cancelled_at, refunded_at, email_sent, created_at, updated_at`, targetCol),
	}
}

func newEventRegistrationRepository(db dbtx) *registrationRepository {
	return newRegistrationRepository(db, domain.KindEvent, "event_registrations", "event_id")
}

func newClubRegistrationRepository(db dbtx) *registrationRepository {
	return newRegistrationRepository(db, domain.KindClub, "club_registrations", "club_id")
}

// NewEventRegistrationRepository returns the event registration store running on db.
func NewEventRegistrationRepository(db *sql.DB) domain.RegistrationRepository {
	return newEventRegistrationRepository(db)
}

// NewClubRegistrationRepository returns the club registration store running on db.
func NewClubRegistrationRepository(db *sql.DB) domain.RegistrationRepository {
	return newClubRegistrationRepository(db)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *registrationRepository) scan(row rowScanner) (*domain.Registration, error) {
	reg := &domain.Registration{Kind: r.kind}
	var (
		userType, regStatus, payStatus                        string
		userID, registeredBy                                  sql.NullString
		publicName, publicEmail, publicPhone, publicStudentID sql.NullString
		method, txnID, payCurrency, failure                   sql.NullString
		payAmount                                             sql.NullInt64
		gatewayResp                                           []byte
		processedAt, confirmedAt, cancelledAt, refundedAt     sql.NullTime
	)
	err := row.Scan(
		&reg.ID, &reg.TargetID, &userType, &userID, &publicName, &publicEmail, &publicPhone, &publicStudentID,
		&registeredBy, &reg.RegistrationCode, &regStatus, &payStatus, &reg.Amount, &reg.Currency,
		&method, &txnID, &payAmount, &payCurrency, &gatewayResp, &processedAt, &failure,
		&reg.ReturnURLs.Success, &reg.ReturnURLs.Fail, &reg.ReturnURLs.Cancel,
		&reg.RegisteredAt, &confirmedAt, &cancelledAt, &refundedAt, &reg.EmailSent, &reg.CreatedAt, &reg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	reg.UserType = domain.UserType(userType)
	reg.RegistrationStatus = domain.RegistrationStatus(regStatus)
	reg.PaymentStatus = domain.PaymentStatus(payStatus)
	if userID.Valid {
		reg.UserID = &userID.String
	}
	if registeredBy.Valid {
		reg.RegisteredByID = &registeredBy.String
	}
	if publicEmail.Valid {
		reg.PublicInfo = &domain.PublicInfo{
			Name:      publicName.String,
			Email:     publicEmail.String,
			Phone:     publicPhone.String,
			StudentID: publicStudentID.String,
		}
	}
	if method.Valid || txnID.Valid {
		info := &domain.PaymentInfo{
			Method:        method.String,
			TransactionID: txnID.String,
			Amount:        payAmount.Int64,
			Currency:      payCurrency.String,
			FailureReason: failure.String,
		}
		if len(gatewayResp) > 0 {
			info.GatewayResponse = gatewayResp
		}
		if processedAt.Valid {
			info.ProcessedAt = &processedAt.Time
		}
		reg.PaymentInfo = info
	}
	if confirmedAt.Valid {
		reg.ConfirmedAt = &confirmedAt.Time
	}
	if cancelledAt.Valid {
		reg.CancelledAt = &cancelledAt.Time
	}
	if refundedAt.Valid {
		reg.RefundedAt = &refundedAt.Time
	}
	return reg, nil
}

func (r *registrationRepository) getOne(ctx context.Context, where string, args ...any) (*domain.Registration, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s`, r.columns, r.table, where)
	reg, err := r.scan(r.DB.QueryRowContext(ctx, query, args...))
	if err != nil {
		if noRow(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return reg, nil
}

func (r *registrationRepository) Create(ctx context.Context, reg *domain.Registration) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (%s, user_type, user_id, public_name, public_email, public_phone, public_student_id,
			registered_by_id, registration_code, registration_status, payment_status, amount, currency,
			payment_method, payment_amount, payment_currency, payment_processed_at,
			success_url, fail_url, cancel_url, registered_at, confirmed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
		RETURNING id
	`, r.table, r.targetCol)

	var publicName, publicEmail, publicPhone, publicStudentID sql.NullString
	if reg.PublicInfo != nil {
		publicName = sql.NullString{String: reg.PublicInfo.Name, Valid: true}
		publicEmail = sql.NullString{String: reg.PublicInfo.Email, Valid: true}
		publicPhone = sql.NullString{String: reg.PublicInfo.Phone, Valid: true}
		publicStudentID = sql.NullString{String: reg.PublicInfo.StudentID, Valid: reg.PublicInfo.StudentID != ""}
	}
	var method, payCurrency sql.NullString
	var payAmount sql.NullInt64
	var processedAt sql.NullTime
	if reg.PaymentInfo != nil {
		method = sql.NullString{String: reg.PaymentInfo.Method, Valid: true}
		payAmount = sql.NullInt64{Int64: reg.PaymentInfo.Amount, Valid: true}
		payCurrency = sql.NullString{String: reg.PaymentInfo.Currency, Valid: true}
		if reg.PaymentInfo.ProcessedAt != nil {
			processedAt = sql.NullTime{Time: *reg.PaymentInfo.ProcessedAt, Valid: true}
		}
	}

	err := r.DB.QueryRowContext(ctx, query,
		reg.TargetID, string(reg.UserType), nullString(reg.UserID),
		publicName, publicEmail, publicPhone, publicStudentID,
		nullString(reg.RegisteredByID), reg.RegistrationCode,
		string(reg.RegistrationStatus), string(reg.PaymentStatus), reg.Amount, reg.Currency,
		method, payAmount, payCurrency, processedAt,
		reg.ReturnURLs.Success, reg.ReturnURLs.Fail, reg.ReturnURLs.Cancel,
		reg.RegisteredAt, nullTime(reg.ConfirmedAt), reg.CreatedAt, reg.UpdatedAt,
	).Scan(&reg.ID)
	if err != nil {
		switch pqCode(err) {
		case pqUniqueViolation:
			if strings.Contains(constraintName(err), "_active_") {
				return domain.ErrDuplicateRegistration
			}
			return fmt.Errorf("insert %s: %w", r.table, err)
		case pqCheckViolation:
			if strings.HasSuffix(constraintName(err), "_subject_check") {
				return domain.ErrInvalidSubject
			}
		}
		return err
	}
	return nil
}

func (r *registrationRepository) GetByID(ctx context.Context, id string) (*domain.Registration, error) {
	return r.getOne(ctx, `id = $1`, id)
}

func (r *registrationRepository) GetByCode(ctx context.Context, code string) (*domain.Registration, error) {
	return r.getOne(ctx, `registration_code = $1`, strings.ToUpper(strings.TrimSpace(code)))
}

func (r *registrationRepository) GetByTransactionID(ctx context.Context, transactionID string) (*domain.Registration, error) {
	return r.getOne(ctx, `transaction_id = $1`, transactionID)
}

func (r *registrationRepository) FindActive(ctx context.Context, targetID string, subject domain.Subject) (*domain.Registration, error) {
	active := pq.Array(statusStrings(domain.ActiveStatuses))
	if subject.PublicInfo != nil {
		where := fmt.Sprintf(`%s = $1 AND lower(public_email) = lower($2) AND registration_status = ANY($3) LIMIT 1`, r.targetCol)
		return r.getOne(ctx, where, targetID, strings.TrimSpace(subject.PublicInfo.Email), active)
	}
	where := fmt.Sprintf(`%s = $1 AND user_id = $2 AND registration_status = ANY($3) LIMIT 1`, r.targetCol)
	return r.getOne(ctx, where, targetID, subject.UserID, active)
}

func (r *registrationRepository) AttachPayment(ctx context.Context, id string, info *domain.PaymentInfo, at time.Time) (*domain.Registration, error) {
	query := fmt.Sprintf(`
		UPDATE %s SET
			payment_status = 'processing',
			payment_method = $2,
			transaction_id = $3,
			payment_amount = $4,
			payment_currency = $5,
			gateway_response = $6::jsonb,
			updated_at = $7
		WHERE id = $1 AND registration_status = 'pending' AND payment_status = 'pending'
		RETURNING %s
	`, r.table, r.columns)
	reg, err := r.scan(r.DB.QueryRowContext(ctx, query,
		id, info.Method, info.TransactionID, info.Amount, info.Currency, nullJSON(info.GatewayResponse), at,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrStaleTransition
		}
		return nil, fmt.Errorf("attach payment: %w", err)
	}
	return reg, nil
}

func (r *registrationRepository) Transition(ctx context.Context, id string, change domain.StatusChange) (*domain.Registration, error) {
	query := fmt.Sprintf(`
		UPDATE %s SET
			registration_status = $2::text,
			payment_status = $3::text,
			confirmed_at = CASE WHEN $2::text = 'confirmed' THEN $4::timestamptz ELSE confirmed_at END,
			cancelled_at = CASE WHEN $2::text = 'cancelled' THEN $4::timestamptz ELSE cancelled_at END,
			refunded_at = CASE WHEN $2::text = 'refunded' THEN $4::timestamptz ELSE refunded_at END,
			payment_processed_at = CASE WHEN $3::text IN ('completed', 'failed') AND transaction_id IS NOT NULL
				THEN COALESCE(payment_processed_at, $4::timestamptz) ELSE payment_processed_at END,
			gateway_response = COALESCE($5::jsonb, gateway_response),
			failure_reason = COALESCE(NULLIF($6::text, ''), failure_reason),
			updated_at = $4::timestamptz
		WHERE id = $1 AND registration_status = ANY($7) AND payment_status = ANY($8)
		RETURNING %s
	`, r.table, r.columns)
	reg, err := r.scan(r.DB.QueryRowContext(ctx, query,
		id, string(change.ToStatus), string(change.ToPayment), change.At,
		nullJSON(change.GatewayResponse), change.FailureReason,
		pq.Array(statusStrings(change.FromStatus)), pq.Array(paymentStrings(change.FromPayment)),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrStaleTransition
		}
		return nil, fmt.Errorf("transition %s: %w", r.table, err)
	}
	return reg, nil
}

func (r *registrationRepository) ClaimEmail(ctx context.Context, id string) (bool, error) {
	query := fmt.Sprintf(`UPDATE %s SET email_sent = TRUE, updated_at = NOW() WHERE id = $1 AND email_sent = FALSE`, r.table)
	result, err := r.DB.ExecContext(ctx, query, id)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *registrationRepository) ReleaseEmail(ctx context.Context, id string) error {
	query := fmt.Sprintf(`UPDATE %s SET email_sent = FALSE, updated_at = NOW() WHERE id = $1 AND email_sent = TRUE`, r.table)
	if _, err := r.DB.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("release email claim: %w", err)
	}
	return nil
}

func (r *registrationRepository) CountConfirmed(ctx context.Context, targetID string) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = $1 AND registration_status = 'confirmed'`, r.table, r.targetCol)
	var n int
	if err := r.DB.QueryRowContext(ctx, query, targetID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *registrationRepository) CountHeld(ctx context.Context, targetID string, since time.Time) (int, error) {
	query := fmt.Sprintf(`
		SELECT COUNT(*) FROM %s
		WHERE %s = $1 AND registration_status IN ('pending', 'paid') AND created_at >= $2
	`, r.table, r.targetCol)
	var n int
	if err := r.DB.QueryRowContext(ctx, query, targetID, since).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *registrationRepository) ListByTarget(ctx context.Context, targetID string, params domain.PaginationParams) ([]*domain.Registration, int, error) {
	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = $1`, r.table, r.targetCol)
	if err := r.DB.QueryRowContext(ctx, countQuery, targetID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE %s = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, r.columns, r.table, r.targetCol)
	rows, err := r.DB.QueryContext(ctx, query, targetID, params.PageSize, params.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	regs := make([]*domain.Registration, 0)
	for rows.Next() {
		reg, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		regs = append(regs, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return regs, total, nil
}

func statusStrings(in []domain.RegistrationStatus) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

func paymentStrings(in []domain.PaymentStatus) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// nullJSON passes raw JSON as text so lib/pq does not encode it as bytea.
func nullJSON(raw []byte) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}
