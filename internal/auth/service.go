// Package auth manages API accounts and issues the bearer tokens that
// protect the REST API.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/smartlibrary/library/internal/db"
	"github.com/smartlibrary/library/internal/domain"
	"github.com/smartlibrary/library/internal/repo"
)

// Claims is the JWT payload.
type Claims struct {
	UserID string      `json:"uid"`
	Email  string      `json:"email"`
	Role   domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID string
	Email  string
	Role   domain.Role
}

// HasRole reports whether the principal holds one of roles.
func (p *Principal) HasRole(roles ...domain.Role) bool {
	if p == nil {
		return false
	}
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

// RegisterInput is a self-service sign-up. Registered users get the member role.
type RegisterInput struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// CreateUserInput creates an account with any role.
type CreateUserInput struct {
	Name     string      `json:"name" validate:"required,max=100"`
	Email    string      `json:"email" validate:"required,email,max=255"`
	Password string      `json:"password" validate:"required,min=6,max=72"`
	Role     domain.Role `json:"role" validate:"required,role"`
}

// LoginInput holds credentials.
type LoginInput struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// UserView is an account as returned to clients. It never carries the hash.
type UserView struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Email       string      `json:"email"`
	Role        domain.Role `json:"role"`
	Active      bool        `json:"isActive"`
	LastLoginAt *time.Time  `json:"lastLoginAt,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
}

func newView(u *db.User) UserView {
	return UserView{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		Role:        u.Role,
		Active:      u.Active,
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
	}
}

// Session is the result of a successful register or login.
type Session struct {
	User      UserView  `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Options configures token issuing.
type Options struct {
	Secret     string
	Issuer     string
	TTL        time.Duration
	BcryptCost int
}

// Service handles accounts and tokens
type Service struct {
	store  *repo.Store
	log    *zap.Logger
	secret []byte
	issuer string
	ttl    time.Duration
	cost   int
	now    func() time.Time
}

// NewService creates an auth service. An empty secret is rejected.
func NewService(store *repo.Store, log *zap.Logger, opts Options) (*Service, error) {
	if opts.Secret == "" {
		return nil, errors.New("jwt secret must not be empty")
	}
	if opts.TTL <= 0 {
		opts.TTL = 7 * 24 * time.Hour
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		store:  store,
		log:    log,
		secret: []byte(opts.Secret),
		issuer: opts.Issuer,
		ttl:    opts.TTL,
		cost:   opts.BcryptCost,
		now:    db.NowUTC,
	}, nil
}

// Register creates a member account and signs it in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	user, err := s.CreateUser(ctx, CreateUserInput{
		Name:     in.Name,
		Email:    in.Email,
		Password: in.Password,
		Role:     domain.RoleMember,
	})
	if err != nil {
		return nil, err
	}
	return s.session(*user)
}

// CreateUser creates an account with the requested role.
func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (*UserView, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)
	if err := domain.Validate(in); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, err
	}

	user := &db.User{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: string(hash),
		Role:         in.Role,
		Active:       true,
	}
	if err := s.store.Users.Create(ctx, user); err != nil {
		return nil, err
	}

	view := newView(user)
	return &view, nil
}

// Login checks credentials and issues a token. Unknown emails, inactive
// accounts and wrong passwords fail the same way.
func (s *Service) Login(ctx context.Context, in LoginInput) (*Session, error) {
	if err := domain.Validate(in); err != nil {
		return nil, err
	}

	user, err := s.store.Users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(in.Email)))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.Active {
		return nil, domain.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		s.log.Info("Login rejected", zap.String("user_id", user.ID))
		return nil, domain.ErrInvalidCredentials
	}

	now := s.now()
	if err := s.store.Users.TouchLogin(ctx, user.ID, now); err != nil {
		s.log.Warn("Login time not recorded", zap.String("user_id", user.ID), zap.Error(err))
	} else {
		user.LastLoginAt = &now
	}

	return s.session(newView(user))
}

// Profile returns the account of userID.
func (s *Service) Profile(ctx context.Context, userID string) (*UserView, error) {
	user, err := s.store.Users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	view := newView(user)
	return &view, nil
}

// ParseToken validates a bearer token and returns its principal.
func (s *Service) ParseToken(tokenStr string) (*Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, domain.Wrap(domain.ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, domain.ErrInvalidToken
	}
	return &Principal{UserID: claims.UserID, Email: claims.Email, Role: claims.Role}, nil
}

// EnsureBootstrapAdmin creates an admin account when email is set and no
// admin exists yet. It reports whether an account was created.
func (s *Service) EnsureBootstrapAdmin(ctx context.Context, email, password string) (bool, error) {
	if email == "" {
		return false, nil
	}

	admins, err := s.store.Users.CountByRole(ctx, domain.RoleAdmin)
	if err != nil {
		return false, err
	}
	if admins > 0 {
		return false, nil
	}

	_, err = s.CreateUser(ctx, CreateUserInput{
		Name:     "Administrator",
		Email:    email,
		Password: password,
		Role:     domain.RoleAdmin,
	})
	if err != nil {
		return false, err
	}
	s.log.Info("Bootstrap admin created", zap.String("email", email))
	return true, nil
}

func (s *Service) session(view UserView) (*Session, error) {
	now := s.now()
	expires := now.Add(s.ttl)
	claims := &Claims{
		UserID: view.ID,
		Email:  view.Email,
		Role:   view.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   view.ID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, err
	}
	return &Session{User: view, Token: token, ExpiresAt: expires}, nil
}
