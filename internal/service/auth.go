package service

import (
	"context"
	"errors"
	"time"

	"github.com/managenergy/dashboard-bfa-go/internal/domain"
	"github.com/managenergy/dashboard-bfa-go/internal/infra/observability"
	"github.com/managenergy/dashboard-bfa-go/internal/port"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var authTracer = otel.Tracer("service/auth")

// SessionClaims are the JWT claims of a dashboard session token.
type SessionClaims struct {
	Sub  string `json:"sub"`
	SID  string `json:"sid"`
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// AuthService owns the session lifecycle: it authenticates against the
// backend, mints session tokens, and keeps the session store and the
// per-session data caches in sync.
type AuthService struct {
	backend   port.AuthBackend
	sessions  port.SessionStore
	registry  *CacheRegistry
	metrics   *observability.Metrics
	logger    *zap.Logger
	jwtSecret []byte
	accessTTL time.Duration
}

func NewAuthService(backend port.AuthBackend, sessions port.SessionStore, registry *CacheRegistry, metrics *observability.Metrics, logger *zap.Logger, jwtSecret string, accessTTL time.Duration) *AuthService {
	return &AuthService{
		backend:   backend,
		sessions:  sessions,
		registry:  registry,
		metrics:   metrics,
		logger:    logger,
		jwtSecret: []byte(jwtSecret),
		accessTTL: accessTTL,
	}
}

// Register creates an account. The account stays inactive until activation.
func (s *AuthService) Register(ctx context.Context, req domain.RegisterRequest) (*domain.User, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Register")
	defer span.End()

	if req.Email == "" {
		return nil, &domain.ErrValidation{Field: "email", Message: "required"}
	}
	if len(req.Password) < 8 {
		return nil, &domain.ErrValidation{Field: "password", Message: "must be at least 8 characters"}
	}
	return s.backend.Register(ctx, req.Email, req.Password)
}

// Activate enables a registered account.
func (s *AuthService) Activate(ctx context.Context, req domain.ActivateRequest) error {
	ctx, span := authTracer.Start(ctx, "AuthService.Activate")
	defer span.End()

	if req.Email == "" {
		return &domain.ErrValidation{Field: "email", Message: "required"}
	}
	return s.backend.Activate(ctx, req.Email)
}

// Login authenticates the user, opens a session, and warms the session's
// data cache so the first dashboard render finds everything in place.
func (s *AuthService) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Login")
	defer span.End()

	user, err := s.backend.Login(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}

	sessionID := uuid.New().String()
	token, err := s.signSessionToken(user.ID, sessionID)
	if err != nil {
		return nil, err
	}

	s.sessions.Set(sessionID, user)
	s.registry.For(ctx, sessionID, user)
	s.metrics.SetActiveSessions(s.sessions.Len())

	s.logger.Info("user logged in",
		zap.String("user_id", user.ID),
		zap.String("session_id", sessionID),
	)

	return &domain.LoginResponse{
		Token:     token,
		ExpiresIn: int(s.accessTTL.Seconds()),
		User:      user,
	}, nil
}

// Logout tears down the session: backend logout, session cleared, data
// cache unbound and dropped.
func (s *AuthService) Logout(ctx context.Context, sessionID, userID string) error {
	ctx, span := authTracer.Start(ctx, "AuthService.Logout")
	defer span.End()

	if err := s.backend.Logout(ctx, userID); err != nil {
		s.logger.Warn("backend logout failed", zap.Error(err))
	}
	s.sessions.Clear(sessionID)
	s.registry.Drop(ctx, sessionID)
	s.metrics.SetActiveSessions(s.sessions.Len())
	return nil
}

// CurrentUser re-verifies the session against the backend. Used by the SPA
// at startup to decide whether the persisted session is still valid.
func (s *AuthService) CurrentUser(ctx context.Context, sessionID string) (*domain.User, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.CurrentUser")
	defer span.End()

	user, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, &domain.ErrUnauthorized{Message: "session expired"}
	}
	verified, err := s.backend.CurrentUser(ctx, user.ID)
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "session no longer valid"}
	}
	s.sessions.Set(sessionID, verified)
	return verified, nil
}

// Resolve maps a bearer token to its session and user, for the auth
// middleware. Only the in-memory session store is consulted; the backend
// round-trip is reserved for CurrentUser.
func (s *AuthService) Resolve(tokenString string) (sessionID string, user *domain.User, err error) {
	claims, err := s.ValidateSessionToken(tokenString)
	if err != nil {
		return "", nil, err
	}
	user, ok := s.sessions.Get(claims.SID)
	if !ok {
		return "", nil, &domain.ErrUnauthorized{Message: "session expired"}
	}
	if user.ID != claims.Sub {
		return "", nil, &domain.ErrUnauthorized{Message: "token does not match session"}
	}
	return claims.SID, user, nil
}

func (s *AuthService) signSessionToken(userID, sessionID string) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		Sub:  userID,
		SID:  sessionID,
		Type: "session",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			Issuer:    "managenergy-dashboard",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateSessionToken parses and verifies a session token.
func (s *AuthService) ValidateSessionToken(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, &domain.ErrUnauthorized{Message: "invalid token"}
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || claims.Type != "session" {
		return nil, &domain.ErrUnauthorized{Message: "invalid token"}
	}
	return claims, nil
}
