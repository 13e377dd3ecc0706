package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AutoSentinel/AutoSentinel/internal/common/auth"
	"github.com/AutoSentinel/AutoSentinel/internal/common/config"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrUsernameTaken      = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Service holds the account use cases, independent of the transport.
type Service struct {
	repo    *Repo
	authCfg config.AuthConfig
}

func NewService(repo *Repo, authCfg config.AuthConfig) *Service {
	return &Service{repo: repo, authCfg: authCfg}
}

// RegisterInput is the registration payload.
type RegisterInput struct {
	Username    string
	Password    string
	Email       string
	Phone       string
	CompanyName string
	Role        string
}

// Register creates an account. Unknown or empty roles fall back to guest;
// privileged roles cannot be self-assigned.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	username := strings.TrimSpace(in.Username)
	if username == "" || in.Password == "" {
		return nil, fmt.Errorf("username/password required")
	}

	if _, err := s.repo.FindByUsername(ctx, username); err == nil {
		return nil, ErrUsernameTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	role := strings.TrimSpace(in.Role)
	if !ValidRole(role) {
		role = RoleGuest
	}
	switch role {
	case RoleAuditor, RoleSystemAdmin:
		// assigned by an operator, never at self-registration
		role = RoleGuest
	}

	salt, err := GenerateSaltHex()
	if err != nil {
		return nil, err
	}
	hash, err := HashPassword(in.Password, salt)
	if err != nil {
		return nil, err
	}

	u := &User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		PasswordSalt: salt,
		Email:        strings.TrimSpace(in.Email),
		Phone:        strings.TrimSpace(in.Phone),
		CompanyName:  strings.TrimSpace(in.CompanyName),
		Roles:        RolesJoin([]string{role}),
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login verifies credentials and issues an access token.
func (s *Service) Login(ctx context.Context, username, password string) (token string, expiresAt time.Time, u *User, err error) {
	if s == nil || s.repo == nil {
		return "", time.Time{}, nil, fmt.Errorf("service not initialized")
	}
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", time.Time{}, nil, fmt.Errorf("username/password required")
	}

	u, err = s.repo.FindByUsername(ctx, username)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", time.Time{}, nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", time.Time{}, nil, err
	}
	if !VerifyPassword(password, u.PasswordSalt, u.PasswordHash) {
		return "", time.Time{}, nil, ErrInvalidCredentials
	}

	ttl := time.Duration(s.authCfg.TokenTTLHour) * time.Hour
	token, expiresAt, err = auth.GenerateAccessToken(s.authCfg, u.ID, u.RolesSlice(), ttl)
	if err != nil {
		return "", time.Time{}, nil, err
	}
	return token, expiresAt, u, nil
}

// Get returns the account by id.
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("id required")
	}
	return s.repo.FindByID(ctx, id)
}

// ProfileUpdate carries the mutable profile fields.
type ProfileUpdate struct {
	Email        *string
	Phone        *string
	CompanyName  *string
	ConsentUsage *bool
}

// UpdateProfile applies the non-nil fields. Granting data-usage consent
// records the consent time; revoking clears it.
func (s *Service) UpdateProfile(ctx context.Context, id string, in ProfileUpdate) (*User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Email != nil {
		u.Email = strings.TrimSpace(*in.Email)
	}
	if in.Phone != nil {
		u.Phone = strings.TrimSpace(*in.Phone)
	}
	if in.CompanyName != nil {
		u.CompanyName = strings.TrimSpace(*in.CompanyName)
	}
	if in.ConsentUsage != nil && *in.ConsentUsage != u.ConsentUsage {
		u.ConsentUsage = *in.ConsentUsage
		if u.ConsentUsage {
			now := time.Now()
			u.ConsentAt = &now
		} else {
			u.ConsentAt = nil
		}
	}
	if err := s.repo.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Verify marks an account verified and promotes a guest to verified buyer.
func (s *Service) Verify(ctx context.Context, id string) (*User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.VerifiedAt == nil {
		now := time.Now()
		u.VerifiedAt = &now
	}
	roles := u.RolesSlice()
	if len(roles) == 1 && roles[0] == RoleGuest {
		u.Roles = RolesJoin([]string{RoleVerifiedBuyer})
	}
	if err := s.repo.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}
