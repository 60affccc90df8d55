package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/infinityhole/api/internal/user"
)

// ErrInvalidCredentials is returned when the login or password does not match.
var ErrInvalidCredentials = errors.New("invalid username or password")

// ErrUserExists is returned when registering a taken username or email.
var ErrUserExists = errors.New("username or email already registered")

// Result is returned by a successful register or login.
type Result struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expiresAt"`
	User      *user.User `json:"user"`
}

// Service contains the business logic for password authentication.
type Service struct {
	repo     *Repository
	userSvc  *user.Service
	secret   []byte
	tokenTTL time.Duration
	cost     int
}

// NewService creates a new auth Service.
func NewService(repo *Repository, userSvc *user.Service, jwtSecret string, tokenTTL time.Duration) *Service {
	return &Service{
		repo:     repo,
		userSvc:  userSvc,
		secret:   []byte(jwtSecret),
		tokenTTL: tokenTTL,
		cost:     bcrypt.DefaultCost,
	}
}

// Register creates an account and issues a token. Inputs must already be validated.
func (s *Service) Register(ctx context.Context, username, email, password string) (*Result, error) {
	exists, err := s.repo.UserExists(ctx, username, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u, err := s.userSvc.Create(ctx, username, email, string(hash))
	if err != nil {
		// lost a race with a concurrent registration
		if errors.Is(err, user.ErrAlreadyExists) {
			return nil, ErrUserExists
		}
		return nil, err
	}

	slog.Info("auth: user registered", "user_id", u.ID, "username", u.Username)
	return s.issue(u)
}

// Login verifies the password for a username or email and issues a token.
func (s *Service) Login(ctx context.Context, login, password string) (*Result, error) {
	c, err := s.repo.FindCredentials(ctx, login)
	if errors.Is(err, errNoCredentials) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	u, err := s.userSvc.GetByID(ctx, c.UserID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return s.issue(u)
}

func (s *Service) issue(u *user.User) (*Result, error) {
	token, exp, err := s.issueToken(u.ID, u.Username)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &Result{Token: token, ExpiresAt: exp, User: u}, nil
}

// issueToken creates a signed HS256 JWT for the given user.
func (s *Service) issueToken(userID, username string) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(s.tokenTTL)
	claims := jwt.MapClaims{
		"sub":      userID,
		"username": username,
		"iat":      now.Unix(),
		"exp":      exp.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	return signed, exp.UTC(), err
}
