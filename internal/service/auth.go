package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/vingo-app/vingo-backend/internal/domain"
	"github.com/vingo-app/vingo-backend/internal/storage"
	"github.com/vingo-app/vingo-backend/pkg/config"
)

const (
	minPasswordLength = 6
	minMobileDigits   = 10
)

// AuthService handles sign-up, sign-in and session tokens
type AuthService struct {
	store       storage.Store
	revocations *TokenRevocations
	cfg         *config.Config
	logger      *zap.Logger
}

// NewAuthService creates a new AuthService
func NewAuthService(store storage.Store, revocations *TokenRevocations, cfg *config.Config, logger *zap.Logger) *AuthService {
	return &AuthService{
		store:       store,
		revocations: revocations,
		cfg:         cfg,
		logger:      logger.Named("auth-service"),
	}
}

// SignUp registers a new user and returns a session token
func (s *AuthService) SignUp(ctx context.Context, req *domain.SignUpRequest) (*domain.User, string, error) {
	email := domain.NormalizeEmail(req.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, "", fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	if !req.Role.IsValid() {
		return nil, "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, req.Role)
	}
	if len(req.Password) < minPasswordLength {
		return nil, "", fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	if countDigits(req.Mobile) < minMobileDigits {
		return nil, "", fmt.Errorf("%w: mobile number must have at least %d digits", ErrInvalidInput, minMobileDigits)
	}
	if strings.TrimSpace(req.FullName) == "" {
		return nil, "", fmt.Errorf("%w: full name required", ErrInvalidInput)
	}

	if _, err := s.store.Users().GetByEmail(ctx, email); err == nil {
		return nil, "", ErrUserExists
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, "", fmt.Errorf("failed to check user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}

	user := &domain.User{
		ID:           domain.NewID(),
		FullName:     strings.TrimSpace(req.FullName),
		Email:        email,
		Mobile:       strings.TrimSpace(req.Mobile),
		PasswordHash: string(hash),
		Role:         req.Role,
	}

	if err := s.store.Users().Create(ctx, user); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, "", ErrUserExists
		}
		return nil, "", fmt.Errorf("failed to create user: %w", err)
	}

	token, err := s.GenerateToken(user)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	s.logger.Info("User signed up", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
	return user, token, nil
}

// SignIn authenticates a user with email and password
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*domain.User, string, error) {
	user, err := s.store.Users().GetByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("failed to get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.GenerateToken(user)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	s.logger.Info("User signed in", zap.String("user_id", user.ID))
	return user, token, nil
}

// SignOut revokes the token so it can no longer be used
func (s *AuthService) SignOut(tokenString string) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return
	}

	jti, _ := claims["jti"].(string)
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return
	}
	s.revocations.Revoke(jti, exp.Time)
}

// GenerateToken issues a session token for user
func (s *AuthService) GenerateToken(user *domain.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": user.ID,
		"role":    string(user.Role),
		"jti":     uuid.New().String(),
		"iss":     s.cfg.JWT.Issuer,
		"exp":     now.Add(s.TokenTTL()).Unix(),
		"iat":     now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWT.Secret))
}

// TokenTTL returns how long issued tokens stay valid
func (s *AuthService) TokenTTL() time.Duration {
	hours := s.cfg.JWT.ExpiryHours
	if hours <= 0 {
		hours = 7 * 24
	}
	return time.Duration(hours) * time.Hour
}

// ValidateToken validates a session token and returns the user ID
func (s *AuthService) ValidateToken(tokenString string) (string, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return "", err
	}

	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", errors.New("invalid token claims")
	}

	if jti, _ := claims["jti"].(string); s.revocations.IsRevoked(jti) {
		return "", errors.New("token revoked")
	}

	return userID, nil
}

func (s *AuthService) parse(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.JWT.Secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}
