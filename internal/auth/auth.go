package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"paperfolio/internal/models"
)

var (
	// ErrInvalidCredentials covers both unknown usernames and wrong
	// passwords so login failures stay indistinguishable.
	ErrInvalidCredentials = errors.New("invalid username and/or password")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrUserNotFound       = errors.New("user not found")
)

// ValidationError is a user-facing rejection of a malformed registration or
// login form.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// IsValidation reports whether err is a form-validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

const uniqueViolation = "23505"

// Service verifies credentials and creates accounts.
type Service struct {
	db *sql.DB
}

func New(database *sql.DB) *Service { return &Service{db: database} }

// Register creates a user with a bcrypt-hashed password and returns it.
// The caller is responsible for establishing the session.
func (s *Service) Register(ctx context.Context, username, password, confirmation string) (*models.User, error) {
	if username == "" {
		return nil, &ValidationError{Msg: "must provide username"}
	}
	if password == "" {
		return nil, &ValidationError{Msg: "must provide password"}
	}
	if password != confirmation {
		return nil, &ValidationError{Msg: "passwords don't match"}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	var u models.User
	err = s.db.QueryRowContext(ctx,
		"INSERT INTO users (username, hash) VALUES ($1, $2) RETURNING id, username, hash, cash, created_at",
		username, string(hash),
	).Scan(&u.ID, &u.Username, &u.Hash, &u.Cash, &u.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("inserting user: %w", err)
	}

	return &u, nil
}

// Login returns the user matching the credentials, or ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, username, password string) (*models.User, error) {
	if username == "" {
		return nil, &ValidationError{Msg: "must provide username"}
	}
	if password == "" {
		return nil, &ValidationError{Msg: "must provide password"}
	}

	var u models.User
	err := s.db.QueryRowContext(ctx,
		"SELECT id, username, hash, cash, created_at FROM users WHERE username = $1",
		username,
	).Scan(&u.ID, &u.Username, &u.Hash, &u.Cash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(u.Hash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	return &u, nil
}

// UserByID loads a user by primary key. A missing id is ErrUserNotFound,
// distinct from a credential failure.
func (s *Service) UserByID(ctx context.Context, id int) (*models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx,
		"SELECT id, username, hash, cash, created_at FROM users WHERE id = $1",
		id,
	).Scan(&u.ID, &u.Username, &u.Hash, &u.Cash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return &u, nil
}
