package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/DarkSword404/CTF-Platform/internal/domain"
	"github.com/DarkSword404/CTF-Platform/internal/infrastructure"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// UserService handles credentials, sessions and self-service profile logic
type UserService struct {
	userRepo  domain.UserRepository
	solveRepo domain.SolveRepository
	jwtConfig *infrastructure.JWTConfig
	tracer    trace.Tracer
	logger    *zap.Logger
	now       func() time.Time
}

// NewUserService creates a new user service
func NewUserService(
	userRepo domain.UserRepository,
	solveRepo domain.SolveRepository,
	jwtConfig *infrastructure.JWTConfig,
	tracer trace.Tracer,
	logger *zap.Logger,
) *UserService {
	return &UserService{
		userRepo:  userRepo,
		solveRepo: solveRepo,
		jwtConfig: jwtConfig,
		tracer:    tracer,
		logger:    logger,
		now:       time.Now,
	}
}

// TokenPair represents access and refresh tokens
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Register creates a new account holding the default user role
func (s *UserService) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.User, *TokenPair, error) {
	ctx, span := s.tracer.Start(ctx, "UserService.Register")
	defer span.End()

	span.SetAttributes(attribute.String("user.username", req.Username))

	if err := domain.ValidatePassword(req.Password); err != nil {
		return nil, nil, err
	}

	users := s.userRepo.WithContext(ctx)
	exists, err := users.ExistsByUsernameOrEmail(req.Username, req.Email)
	if err != nil {
		s.logger.Error("Failed to check existing user", zap.Error(err))
		return nil, nil, err
	}
	if exists {
		return nil, nil, domain.ErrDuplicateIdentity
	}

	user := &domain.User{
		Username: strings.TrimSpace(req.Username),
		Email:    strings.TrimSpace(req.Email),
		Nickname: req.Nickname,
		IsActive: true,
	}
	if err := user.SetPassword(req.Password); err != nil {
		s.logger.Error("Failed to hash password", zap.Error(err))
		return nil, nil, domain.ErrInternalServer
	}

	if err := users.Create(user, domain.RoleUser); err != nil {
		if !errors.Is(err, domain.ErrDuplicateIdentity) {
			s.logger.Error("Failed to create user", zap.Error(err))
		}
		return nil, nil, err
	}

	tokens, err := s.generateTokenPair(user)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("User registered successfully",
		zap.String("user_id", user.ID.String()),
		zap.String("username", user.Username),
	)

	span.SetAttributes(attribute.String("user.id", user.ID.String()))
	return user, tokens, nil
}

// Login authenticates by username or email and returns tokens
func (s *UserService) Login(ctx context.Context, identifier, password string) (*domain.User, *TokenPair, error) {
	ctx, span := s.tracer.Start(ctx, "UserService.Login")
	defer span.End()

	users := s.userRepo.WithContext(ctx)
	user, err := users.FindByUsernameOrEmail(strings.TrimSpace(identifier))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, nil, domain.ErrInvalidCredentials
		}
		return nil, nil, err
	}

	if !user.VerifyPassword(password) {
		return nil, nil, domain.ErrInvalidCredentials
	}
	if err := accountUsable(user); err != nil {
		return nil, nil, err
	}

	now := s.now()
	if err := users.TouchLastLogin(user.ID, now); err != nil {
		s.logger.Warn("Failed to record last login", zap.String("user_id", user.ID.String()), zap.Error(err))
	} else {
		user.LastLoginAt = &now
	}

	tokens, err := s.generateTokenPair(user)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("User logged in",
		zap.String("user_id", user.ID.String()),
		zap.String("username", user.Username),
	)

	span.SetAttributes(attribute.String("user.id", user.ID.String()))
	return user, tokens, nil
}

// RefreshToken issues a new token pair from a refresh token
func (s *UserService) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	ctx, span := s.tracer.Start(ctx, "UserService.RefreshToken")
	defer span.End()

	userID, err := s.parseToken(refreshToken, tokenTypeRefresh)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.WithContext(ctx).FindByID(userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidToken
		}
		return nil, err
	}
	if err := accountUsable(user); err != nil {
		return nil, err
	}

	return s.generateTokenPair(user)
}

// ValidateAccessToken validates an access token and returns the user ID
func (s *UserService) ValidateAccessToken(tokenString string) (uuid.UUID, error) {
	return s.parseToken(tokenString, tokenTypeAccess)
}

// ResolvePrincipal loads the caller with roles. Inactive and locked accounts
// are refused.
func (s *UserService) ResolvePrincipal(ctx context.Context, userID uuid.UUID) (domain.Principal, error) {
	user, err := s.userRepo.WithContext(ctx).FindByID(userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.Principal{}, domain.ErrInvalidToken
		}
		return domain.Principal{}, err
	}
	if err := accountUsable(user); err != nil {
		return domain.Principal{}, err
	}
	return domain.NewPrincipal(user), nil
}

// GetUserByID retrieves a user by their ID
func (s *UserService) GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	ctx, span := s.tracer.Start(ctx, "UserService.GetUserByID")
	defer span.End()

	span.SetAttributes(attribute.String("user.id", id.String()))
	return s.userRepo.WithContext(ctx).FindByID(id)
}

// UpdateProfile applies the self-service profile fields
func (s *UserService) UpdateProfile(ctx context.Context, id uuid.UUID, req *domain.UpdateProfileRequest) (*domain.User, error) {
	ctx, span := s.tracer.Start(ctx, "UserService.UpdateProfile")
	defer span.End()

	users := s.userRepo.WithContext(ctx)
	user, err := users.FindByID(id)
	if err != nil {
		return nil, err
	}

	if req.Nickname != nil {
		user.Nickname = strings.TrimSpace(*req.Nickname)
	}
	if req.Bio != nil {
		user.Bio = *req.Bio
	}
	if req.AvatarURL != nil {
		user.AvatarURL = strings.TrimSpace(*req.AvatarURL)
	}

	if err := users.Update(user); err != nil {
		return nil, err
	}
	return user, nil
}

// ChangePassword verifies the current password and stores the new one
func (s *UserService) ChangePassword(ctx context.Context, id uuid.UUID, req *domain.ChangePasswordRequest) error {
	ctx, span := s.tracer.Start(ctx, "UserService.ChangePassword")
	defer span.End()

	users := s.userRepo.WithContext(ctx)
	user, err := users.FindByID(id)
	if err != nil {
		return err
	}
	if !user.VerifyPassword(req.OldPassword) {
		return domain.ErrIncorrectPassword
	}
	if err := domain.ValidatePassword(req.NewPassword); err != nil {
		return err
	}
	if err := user.SetPassword(req.NewPassword); err != nil {
		return domain.ErrInternalServer
	}
	if err := users.Update(user); err != nil {
		return err
	}

	s.logger.Info("Password changed", zap.String("user_id", id.String()))
	return nil
}

// GetSolves returns the user's most recent submissions
func (s *UserService) GetSolves(ctx context.Context, id uuid.UUID, limit int) ([]domain.Solve, error) {
	ctx, span := s.tracer.Start(ctx, "UserService.GetSolves")
	defer span.End()

	return s.solveRepo.WithContext(ctx).FindByUserID(id, limit)
}

func accountUsable(user *domain.User) error {
	if user.IsLocked {
		return domain.ErrAccountLocked
	}
	if !user.IsActive {
		return domain.ErrAccountInactive
	}
	return nil
}

// generateTokenPair creates access and refresh tokens for a user
func (s *UserService) generateTokenPair(user *domain.User) (*TokenPair, error) {
	now := s.now()
	accessExpiry := now.Add(s.jwtConfig.AccessTokenExpiry)
	refreshExpiry := now.Add(s.jwtConfig.RefreshTokenExpiry)

	accessClaims := jwt.MapClaims{
		"sub":      user.ID.String(),
		"username": user.Username,
		"type":     tokenTypeAccess,
		"iat":      now.Unix(),
		"exp":      accessExpiry.Unix(),
		"iss":      s.jwtConfig.Issuer,
	}
	accessToken := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims)
	accessTokenString, err := accessToken.SignedString([]byte(s.jwtConfig.SecretKey))
	if err != nil {
		return nil, err
	}

	refreshClaims := jwt.MapClaims{
		"sub":  user.ID.String(),
		"type": tokenTypeRefresh,
		"iat":  now.Unix(),
		"exp":  refreshExpiry.Unix(),
		"iss":  s.jwtConfig.Issuer,
	}
	refreshToken := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims)
	refreshTokenString, err := refreshToken.SignedString([]byte(s.jwtConfig.SecretKey))
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  accessTokenString,
		RefreshToken: refreshTokenString,
		ExpiresAt:    accessExpiry,
	}, nil
}

// parseToken validates a token of the wanted type and returns its subject
func (s *UserService) parseToken(tokenString, wantType string) (uuid.UUID, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, domain.ErrInvalidToken
		}
		return []byte(s.jwtConfig.SecretKey), nil
	}, jwt.WithIssuer(s.jwtConfig.Issuer), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return uuid.Nil, domain.ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, domain.ErrInvalidToken
	}
	if tokenType, _ := claims["type"].(string); tokenType != wantType {
		return uuid.Nil, domain.ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	id, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, domain.ErrInvalidToken
	}
	return id, nil
}
