package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"farm-market/internal/auth"
	"farm-market/internal/models"
	"farm-market/internal/store"
	"farm-market/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	verificationTTL  = 24 * time.Hour
	passwordResetTTL = time.Hour
)

// LoginPolicy configures account lockout.
type LoginPolicy struct {
	MaxAttempts     int
	LockoutDuration time.Duration
}

// AuthService registers and authenticates users.
type AuthService struct {
	store  *store.Store
	tokens *auth.TokenIssuer
	mailer Mailer
	policy LoginPolicy
	logger *zap.Logger
	now    Clock
}

func NewAuthService(store *store.Store, tokens *auth.TokenIssuer, mailer Mailer, policy LoginPolicy) *AuthService {
	return &AuthService{
		store:  store,
		tokens: tokens,
		mailer: mailer,
		policy: policy,
		logger: util.GetLogger(),
		now:    time.Now,
	}
}

// WithClock replaces the service clock used for lockout and token expiry checks.
func (s *AuthService) WithClock(now Clock) *AuthService {
	s.now = now
	return s
}

// RegisterInput is the body of a registration request.
type RegisterInput struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	FullName string  `json:"full_name"`
	Phone    *string `json:"phone"`
}

// RegisterFarmerInput adds the farm to a registration.
type RegisterFarmerInput struct {
	RegisterInput
	FarmName *string `json:"farm_name"`
}

// TokenPair is returned by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// PasswordPolicy describes the password rules for clients.
type PasswordPolicy struct {
	MinLength    int      `json:"min_length"`
	Requirements []string `json:"requirements"`
}

// PasswordRequirements returns the password rules.
func (s *AuthService) PasswordRequirements() PasswordPolicy {
	return PasswordPolicy{MinLength: auth.MinPasswordLength, Requirements: auth.PasswordRequirements}
}

func (s *AuthService) newUser(in RegisterInput, role models.Role) (*models.User, string, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, "", Validation("invalid email address")
	}
	name := strings.Join(strings.Fields(in.FullName), " ")
	if name == "" {
		return nil, "", Validation("full name is required")
	}
	if problems := auth.ValidatePassword(in.Password); len(problems) > 0 {
		return nil, "", Validation("password does not meet requirements").WithDetail("problems", problems)
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, "", err
	}

	now := s.now()
	token := uuid.NewString()
	expires := now.Add(verificationTTL).UTC()
	return &models.User{
		Email:                      email,
		PasswordHash:               hash,
		FullName:                   name,
		Phone:                      in.Phone,
		Role:                       role,
		EmailVerificationToken:     &token,
		EmailVerificationExpiresAt: &expires,
		CreatedAt:                  now,
	}, token, nil
}

// Register creates an unverified consumer account and sends a verification email.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	ctx, span := util.StartSpan(ctx, "AuthService.Register")
	defer span.End()

	user, token, err := s.newUser(in, models.RoleConsumer)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, Conflict("an account with this email already exists")
		}
		return nil, err
	}

	s.logger.Info("User registered", zap.String("user_id", user.ID))
	s.sendVerification(ctx, user, token)
	return user, nil
}

// RegisterFarmer creates a farmer account together with its farm profile.
func (s *AuthService) RegisterFarmer(ctx context.Context, in RegisterFarmerInput) (*models.User, *models.Farmer, error) {
	ctx, span := util.StartSpan(ctx, "AuthService.RegisterFarmer")
	defer span.End()

	user, token, err := s.newUser(in.RegisterInput, models.RoleFarmer)
	if err != nil {
		return nil, nil, err
	}

	farmer := &models.Farmer{
		FarmingPractices:      models.StringList{},
		ProfileCompletionStep: 1,
		CreatedAt:             user.CreatedAt,
	}
	if in.FarmName != nil {
		if name := strings.TrimSpace(*in.FarmName); name != "" {
			farmer.FarmName = &name
		}
	}

	if err := s.store.CreateFarmerAccount(ctx, user, farmer); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, nil, Conflict("an account with this email already exists")
		}
		return nil, nil, err
	}

	s.logger.Info("Farmer registered",
		zap.String("user_id", user.ID),
		zap.String("farmer_id", farmer.ID))
	s.sendVerification(ctx, user, token)
	return user, farmer, nil
}

func (s *AuthService) sendVerification(ctx context.Context, user *models.User, token string) {
	if err := s.mailer.SendVerification(ctx, user.Email, user.FullName, token); err != nil {
		s.logger.Error("Failed to send verification email", zap.Error(err))
	}
}

// VerifyEmail consumes a verification token.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) error {
	user, err := s.store.GetUserByVerificationToken(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return Validation("invalid verification token")
	}
	if err != nil {
		return err
	}
	if user.EmailVerified {
		return Validation("email is already verified")
	}
	now := s.now()
	if user.EmailVerificationExpiresAt != nil && !user.EmailVerificationExpiresAt.After(now) {
		return Validation("verification token has expired")
	}
	return s.store.MarkEmailVerified(ctx, user.ID, now)
}

// Login checks credentials and issues tokens. Repeated failures lock the
// account for the configured duration.
func (s *AuthService) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	ctx, span := util.StartSpan(ctx, "AuthService.Login")
	defer span.End()

	user, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		util.LoginAttemptsTotal.WithLabelValues("unknown_user").Inc()
		return nil, Unauthorized("invalid email or password")
	}
	if err != nil {
		return nil, err
	}

	now := s.now()
	if user.LockedAt(now) {
		util.LoginAttemptsTotal.WithLabelValues("locked").Inc()
		return nil, Locked("account is locked due to too many failed login attempts").
			WithDetail("locked_until", user.LockedUntil.UTC())
	}

	if !auth.CheckPassword(user.PasswordHash, password) {
		return nil, s.failLogin(ctx, user, now)
	}

	if !user.EmailVerified {
		util.LoginAttemptsTotal.WithLabelValues("unverified").Inc()
		return nil, Forbidden("please verify your email before logging in")
	}

	if err := s.store.RecordSuccessfulLogin(ctx, user.ID, now); err != nil {
		return nil, err
	}
	util.LoginAttemptsTotal.WithLabelValues("ok").Inc()
	return s.issue(user)
}

func (s *AuthService) failLogin(ctx context.Context, user *models.User, now time.Time) error {
	attempts := user.FailedLoginAttempts + 1
	var lockedUntil *time.Time
	if s.policy.MaxAttempts > 0 && attempts >= s.policy.MaxAttempts {
		until := now.Add(s.policy.LockoutDuration)
		lockedUntil = &until
		attempts = 0
	}

	if err := s.store.RecordFailedLogin(ctx, user.ID, attempts, lockedUntil, now); err != nil {
		return err
	}

	if lockedUntil != nil {
		util.LoginAttemptsTotal.WithLabelValues("locked").Inc()
		s.logger.Warn("Account locked", zap.String("user_id", user.ID))
		return Locked("account is locked due to too many failed login attempts").
			WithDetail("locked_until", lockedUntil.UTC())
	}
	util.LoginAttemptsTotal.WithLabelValues("bad_password").Inc()
	return Unauthorized("invalid email or password")
}

func (s *AuthService) issue(user *models.User) (*TokenPair, error) {
	access, err := s.tokens.Issue(user.ID, string(user.Role), auth.AccessToken)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.Issue(user.ID, string(user.Role), auth.RefreshToken)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int(s.tokens.AccessTTL().Seconds()),
	}, nil
}

// Refresh exchanges a refresh token for a new pair, picking up role changes.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.tokens.Verify(refreshToken, auth.RefreshToken)
	if err != nil {
		return nil, Unauthorized("invalid refresh token")
	}
	user, err := s.store.GetUserByID(ctx, claims.UserID())
	if errors.Is(err, store.ErrNotFound) {
		return nil, Unauthorized("invalid refresh token")
	}
	if err != nil {
		return nil, err
	}
	if user.LockedAt(s.now()) {
		return nil, Locked("account is locked due to too many failed login attempts")
	}
	return s.issue(user)
}

// ForgotPassword emails a reset token. Unknown emails are ignored so the
// response does not reveal which accounts exist.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	now := s.now()
	token := uuid.NewString()
	if err := s.store.SetPasswordResetToken(ctx, user.ID, token, now.Add(passwordResetTTL), now); err != nil {
		return err
	}
	if err := s.mailer.SendPasswordReset(ctx, user.Email, user.FullName, token); err != nil {
		s.logger.Error("Failed to send password reset email", zap.Error(err))
	}
	return nil
}

// ResetPassword sets a new password using a reset token.
func (s *AuthService) ResetPassword(ctx context.Context, token, password string) error {
	user, err := s.store.GetUserByResetToken(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return Validation("invalid or expired reset token")
	}
	if err != nil {
		return err
	}
	now := s.now()
	if user.PasswordResetExpiresAt == nil || !user.PasswordResetExpiresAt.After(now) {
		return Validation("invalid or expired reset token")
	}
	if problems := auth.ValidatePassword(password); len(problems) > 0 {
		return Validation("password does not meet requirements").WithDetail("problems", problems)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	return s.store.ResetPassword(ctx, user.ID, hash, now)
}

// CurrentUser returns the authenticated user's account.
func (s *AuthService) CurrentUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NotFound("user not found")
	}
	return user, err
}
