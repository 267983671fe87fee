package registration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"udyam/internal/registration/models"
	"udyam/pkg/platform/sentinel"
	txcontext "udyam/pkg/platform/tx"
)

const (
	uniqueViolation       = "23505"
	udyamNumberConstraint = "registrations_udyam_number_key"
)

// Postgres persists registrations in the registrations table.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Postgres) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Postgres) Create(ctx context.Context, reg *models.Registration) error {
	query := `
		INSERT INTO registrations (
			id, aadhaar_number, entrepreneur_name, status, step_completed,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		reg.ID,
		reg.AadhaarNumber,
		reg.EntrepreneurName,
		string(reg.Status),
		reg.StepCompleted,
		reg.CreatedAt,
		reg.UpdatedAt,
	)
	if err != nil {
		return translate(err, "insert registration")
	}
	return nil
}

const selectRegistration = `
	SELECT id, aadhaar_number, entrepreneur_name, organization_type, pan_number,
	       gstin, filed_itr, status, step_completed, udyam_number,
	       reference_number, created_at, updated_at, completed_at
	FROM registrations
`

// FindByID locks the row when called inside a transaction so concurrent
// submissions serialise.
func (s *Postgres) FindByID(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	query := selectRegistration + `WHERE id = $1`
	if _, ok := txcontext.From(ctx); ok {
		query += ` FOR UPDATE`
	}
	return s.scanOne(s.execer(ctx).QueryRowContext(ctx, query, id))
}

func (s *Postgres) FindByAadhaar(ctx context.Context, aadhaarNumber string) (*models.Registration, error) {
	return s.scanOne(s.execer(ctx).QueryRowContext(ctx, selectRegistration+`WHERE aadhaar_number = $1`, aadhaarNumber))
}

func (s *Postgres) HasCompletedPAN(ctx context.Context, pan string) (bool, error) {
	var exists bool
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM registrations WHERE pan_number = $1 AND status = 'completed')`,
		pan,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check completed pan: %w", err)
	}
	return exists, nil
}

func (s *Postgres) Update(ctx context.Context, reg *models.Registration) error {
	query := `
		UPDATE registrations SET
			entrepreneur_name = $2,
			organization_type = $3,
			pan_number        = $4,
			gstin             = $5,
			filed_itr         = $6,
			status            = $7,
			step_completed    = GREATEST(step_completed, $8),
			udyam_number      = $9,
			reference_number  = $10,
			updated_at        = $11,
			completed_at      = $12
		WHERE id = $1
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		reg.ID,
		reg.EntrepreneurName,
		nullString(string(reg.OrganizationType)),
		nullString(reg.PANNumber),
		nullString(reg.GSTIN),
		nullString(reg.FiledITR),
		string(reg.Status),
		reg.StepCompleted,
		nullString(reg.UdyamNumber),
		nullString(reg.ReferenceNumber),
		reg.UpdatedAt,
		reg.CompletedAt,
	)
	if err != nil {
		return translate(err, "update registration")
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update registration: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) scanOne(row *sql.Row) (*models.Registration, error) {
	var reg models.Registration
	var orgType, pan, gstin, filedITR, udyamNumber, referenceNumber sql.NullString
	var status string
	var completedAt sql.NullTime
	err := row.Scan(
		&reg.ID,
		&reg.AadhaarNumber,
		&reg.EntrepreneurName,
		&orgType,
		&pan,
		&gstin,
		&filedITR,
		&status,
		&reg.StepCompleted,
		&udyamNumber,
		&referenceNumber,
		&reg.CreatedAt,
		&reg.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan registration: %w", err)
	}
	reg.OrganizationType = models.OrganizationType(orgType.String)
	reg.PANNumber = pan.String
	reg.GSTIN = gstin.String
	reg.FiledITR = filedITR.String
	reg.Status = models.Status(status)
	reg.UdyamNumber = udyamNumber.String
	reg.ReferenceNumber = referenceNumber.String
	if completedAt.Valid {
		t := completedAt.Time
		reg.CompletedAt = &t
	}
	return &reg, nil
}

// translate maps unique violations to store errors. The Udyam number
// constraint is distinguished so callers can retry.
func translate(err error, op string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		if pqErr.Constraint == udyamNumberConstraint {
			return ErrUdyamNumberTaken
		}
		return fmt.Errorf("%s: %w", op, sentinel.ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
