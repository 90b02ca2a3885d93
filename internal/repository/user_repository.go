package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/waqasameen944/Bus-Booking-System/internal/model"
	"github.com/waqasameen944/Bus-Booking-System/internal/utils"
)

// UserRepo persists accounts used to obtain access tokens.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// Create hashes password and inserts the user, returning its ID.  The
// email is stored lower-cased.
func (r *UserRepo) Create(ctx context.Context, name, email, password, role string, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (name, email, password_hash, role) VALUES (?,?,?,?)",
		strings.TrimSpace(name), email, hash, role)
	if err != nil {
		if _, dup := duplicateKey(err); dup {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.  sql.ErrNoRows is
// returned unchanged when no account matches.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var u model.User
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,name,email,password_hash,role,created_at,updated_at FROM users WHERE email=? LIMIT 1",
		email).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// GetByID fetches a user by primary key.  sql.ErrNoRows is returned
// unchanged when no account matches.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	var u model.User
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,name,email,password_hash,role,created_at,updated_at FROM users WHERE id=? LIMIT 1",
		id).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// ProfileUpdate carries the account fields a user may change.  Empty
// fields are left as they are.
type ProfileUpdate struct {
	Name     string
	Email    string
	Password string
}

// UpdateProfile applies u to the account and returns the stored result.
// A taken email yields ErrEmailExists; an unknown id yields sql.ErrNoRows.
func (r *UserRepo) UpdateProfile(ctx context.Context, id uint64, u ProfileUpdate, cost int) (model.User, error) {
	var sets []string
	var args []any
	if name := strings.TrimSpace(u.Name); name != "" {
		sets = append(sets, "name=?")
		args = append(args, name)
	}
	if email := strings.ToLower(strings.TrimSpace(u.Email)); email != "" {
		sets = append(sets, "email=?")
		args = append(args, email)
	}
	if u.Password != "" {
		hash, err := utils.HashPassword(u.Password, cost)
		if err != nil {
			return model.User{}, err
		}
		sets = append(sets, "password_hash=?")
		args = append(args, hash)
	}
	if len(sets) > 0 {
		args = append(args, id)
		_, err := r.DB.ExecContext(ctx, "UPDATE users SET "+strings.Join(sets, ", ")+" WHERE id=?", args...)
		if err != nil {
			if _, dup := duplicateKey(err); dup {
				return model.User{}, ErrEmailExists
			}
			return model.User{}, err
		}
	}
	// MySQL reports 0 affected rows for unchanged values.
	return r.GetByID(ctx, id)
}

// EnsureAdmin creates the bootstrap admin account unless the email is
// already registered.  It reports whether an account was created.
func (r *UserRepo) EnsureAdmin(ctx context.Context, name, email, password string, cost int) (bool, error) {
	_, err := r.Create(ctx, name, email, password, model.RoleAdmin, cost)
	if errors.Is(err, ErrEmailExists) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
