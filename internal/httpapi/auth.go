package httpapi

import (
	"context"
	"errors"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"barvault/backend/internal/apperr"
	"barvault/backend/internal/domain"
)

type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	users    UserStore
}

type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error)
	CreateUser(ctx context.Context, user domain.User) error
}

// barClaims carries the tenant next to the standard claims so every request
// can be scoped without a user lookup.
type barClaims struct {
	jwtlib.RegisteredClaims
	OrganizationID int64  `json:"org_id"`
	Role           string `json:"role"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, users UserStore) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}

	return &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		users:    users,
	}
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || strings.TrimSpace(req.Password) == "" {
		return domain.LoginResponse{}, apperr.Unauthorized("invalid credentials")
	}

	user, err := a.users.GetUserByEmail(ctx, email)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return domain.LoginResponse{}, apperr.Unauthorized("invalid credentials")
		}
		return domain.LoginResponse{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return domain.LoginResponse{}, apperr.Unauthorized("invalid credentials")
	}
	if !user.Active {
		return domain.LoginResponse{}, apperr.Unauthorized("account is inactive")
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(user, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken: token,
		Role:        user.Role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

// Account returns the caller's own user record.
func (a *AuthManager) Account(ctx context.Context, principal domain.Principal) (domain.UserAccount, error) {
	user, err := a.users.GetUser(ctx, principal.UserID)
	if err != nil {
		return domain.UserAccount{}, err
	}
	return user.Account(), nil
}

// CreateAccount creates a user in the caller's organization. Only admins may
// create accounts, and the role defaults to staff.
func (a *AuthManager) CreateAccount(ctx context.Context, principal domain.Principal, req domain.UserCreateRequest) (domain.UserAccount, error) {
	if !principal.IsAdmin() {
		return domain.UserAccount{}, apperr.Forbidden("admin role required")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return domain.UserAccount{}, apperr.BadRequest("valid email is required")
	}
	if len(req.Password) < 8 {
		return domain.UserAccount{}, apperr.BadRequest("password must be at least 8 characters")
	}
	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = domain.RoleStaff
	}
	if role != domain.RoleAdmin && role != domain.RoleStaff {
		return domain.UserAccount{}, apperr.BadRequest("role must be %q or %q", domain.RoleAdmin, domain.RoleStaff)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.UserAccount{}, err
	}

	user := domain.User{
		ID:             uuid.New(),
		OrganizationID: principal.OrganizationID,
		Email:          email,
		Name:           strings.TrimSpace(req.Name),
		PasswordHash:   string(hash),
		Role:           role,
		Active:         true,
		CreatedAt:      time.Now().UTC(),
	}
	if err := a.users.CreateUser(ctx, user); err != nil {
		return domain.UserAccount{}, err
	}
	return user.Account(), nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Principal, error) {
	claims := &barClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Principal{}, apperr.Unauthorized("invalid or expired token")
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Principal{}, apperr.Unauthorized("invalid token subject")
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return domain.Principal{}, apperr.Unauthorized("invalid token subject")
	}
	if claims.OrganizationID < 1 || claims.Role == "" {
		return domain.Principal{}, apperr.Unauthorized("invalid token claims")
	}

	return domain.Principal{
		UserID:         userID,
		OrganizationID: claims.OrganizationID,
		Role:           claims.Role,
	}, nil
}

func (a *AuthManager) sign(user *domain.User, expiresAt time.Time) (string, error) {
	claims := barClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "barvault",
		},
		OrganizationID: user.OrganizationID,
		Role:           user.Role,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}
