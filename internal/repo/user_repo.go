package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/otpgate/server/internal/model"
)

// ErrNotFound is returned by keyed lookups when no row matches.
var ErrNotFound = errors.New("not found")

// UserRepo defines the interface for user repository operations
type UserRepo interface {
	GetByMobile(ctx context.Context, mobile string) (model.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (model.User, error)
	Create(ctx context.Context, mobile, passwordHash, otp string) (model.User, error)
	// UpdateOTP overwrites the user's current OTP. An empty code clears it.
	UpdateOTP(ctx context.Context, id uuid.UUID, otp string) (model.User, error)
}

type userRepo struct {
	db *sql.DB
}

// NewUserRepo creates a Postgres-backed UserRepo
func NewUserRepo(db *sql.DB) UserRepo {
	return &userRepo{db: db}
}

const userColumns = "id, mobile_number, password_hash, otp, created_at, updated_at"

func scanUser(row *sql.Row) (model.User, error) {
	var u model.User
	var idStr string
	var otp sql.NullString
	err := row.Scan(&idStr, &u.MobileNumber, &u.PasswordHash, &otp, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, fmt.Errorf("scan user: %w", err)
	}
	u.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.User{}, fmt.Errorf("parse user ID: %w", err)
	}
	if otp.Valid {
		u.OTP = otp.String
	}
	return u, nil
}

// GetByMobile retrieves a user by mobile number
func (r *userRepo) GetByMobile(ctx context.Context, mobile string) (model.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE mobile_number = $1
	`, mobile)
	return scanUser(row)
}

// GetByID retrieves a user by ID
func (r *userRepo) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, id)
	return scanUser(row)
}

// Create inserts a new user with its first challenge code already set
func (r *userRepo) Create(ctx context.Context, mobile, passwordHash, otp string) (model.User, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO users (mobile_number, password_hash, otp)
		VALUES ($1, $2, $3)
		RETURNING `+userColumns+`
	`, mobile, passwordHash, otp)
	u, err := scanUser(row)
	if err != nil {
		return model.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// UpdateOTP replaces the user's current OTP unconditionally
func (r *userRepo) UpdateOTP(ctx context.Context, id uuid.UUID, otp string) (model.User, error) {
	var code interface{}
	if otp != "" {
		code = otp
	}
	row := r.db.QueryRowContext(ctx, `
		UPDATE users
		SET otp = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns+`
	`, id, code)
	return scanUser(row)
}
