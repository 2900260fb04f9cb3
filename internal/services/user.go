package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/jjudge-oj/accounts/internal/apperror"
	"github.com/jjudge-oj/accounts/internal/store"
	"github.com/jjudge-oj/accounts/types"
)

// UserRepository defines persistence operations for users.
// Implementations enforce a unique email and make each token
// operation a single atomic update.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
	Delete(ctx context.Context, id string) error
	AddToken(ctx context.Context, id, token string) error
	RemoveToken(ctx context.Context, id, token string) error
	ClearTokens(ctx context.Context, id string) error
	SetAvatar(ctx context.Context, id string, data []byte) error
	GetAvatar(ctx context.Context, id string) ([]byte, error)
}

// UpdateField names a user field that may be changed through a partial update.
type UpdateField string

const (
	FieldName     UpdateField = "name"
	FieldEmail    UpdateField = "email"
	FieldPassword UpdateField = "password"
	FieldAge      UpdateField = "age"
)

var allowedUpdates = map[UpdateField]struct{}{
	FieldName:     {},
	FieldEmail:    {},
	FieldPassword: {},
	FieldAge:      {},
}

var (
	ErrInvalidUpdates = apperror.Validation("Invalid updates")
	ErrEmailTaken     = apperror.Validation("Email is already in use")
)

// RegisterInput is the data accepted when creating an account.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Age      int
}

// UserService encapsulates user use-cases.
type UserService struct {
	repo        UserRepository
	credentials *CredentialService
}

func NewUserService(repo UserRepository, credentials *CredentialService) *UserService {
	return &UserService{repo: repo, credentials: credentials}
}

func (s *UserService) GetByID(ctx context.Context, id string) (types.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, apperror.NotFound("user not found", err)
		}
		return types.User{}, apperror.Internal("failed to load user", err)
	}
	return user, nil
}

// Create validates and persists a new account. The password is hashed before
// anything is written.
func (s *UserService) Create(ctx context.Context, in RegisterInput) (types.User, error) {
	user := types.User{
		Name:  strings.TrimSpace(in.Name),
		Email: NormalizeEmail(in.Email),
		Age:   in.Age,
	}
	if err := validateProfile(user); err != nil {
		return types.User{}, err
	}

	hash, err := s.credentials.HashPassword(in.Password)
	if err != nil {
		return types.User{}, err
	}
	user.PasswordHash = hash

	created, err := s.repo.Create(ctx, user)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return types.User{}, ErrEmailTaken
		}
		return types.User{}, apperror.Internal("failed to create user", err)
	}
	return created, nil
}

func (s *UserService) FindForLogin(ctx context.Context, email, password string) (types.User, error) {
	return s.credentials.Authenticate(ctx, email, password)
}

// ApplyPartialUpdate changes only the allowed fields present in updates.
// A disallowed key, an undecodable value or a failed validation rejects the
// whole update and nothing is persisted.
func (s *UserService) ApplyPartialUpdate(ctx context.Context, user types.User, updates map[string]json.RawMessage) (types.User, error) {
	for key := range updates {
		if _, ok := allowedUpdates[UpdateField(key)]; !ok {
			return types.User{}, ErrInvalidUpdates
		}
	}

	next := user
	var newPassword *string
	for key, raw := range updates {
		switch UpdateField(key) {
		case FieldName:
			var name string
			if err := json.Unmarshal(raw, &name); err != nil {
				return types.User{}, apperror.Validationf(err, "name must be a string")
			}
			next.Name = strings.TrimSpace(name)
		case FieldEmail:
			var email string
			if err := json.Unmarshal(raw, &email); err != nil {
				return types.User{}, apperror.Validationf(err, "email must be a string")
			}
			next.Email = NormalizeEmail(email)
		case FieldPassword:
			var password string
			if err := json.Unmarshal(raw, &password); err != nil {
				return types.User{}, apperror.Validationf(err, "password must be a string")
			}
			newPassword = &password
		case FieldAge:
			var age int
			if err := json.Unmarshal(raw, &age); err != nil {
				return types.User{}, apperror.Validationf(err, "age must be an integer")
			}
			next.Age = age
		}
	}

	if err := validateProfile(next); err != nil {
		return types.User{}, err
	}
	if newPassword != nil {
		hash, err := s.credentials.HashPassword(*newPassword)
		if err != nil {
			return types.User{}, err
		}
		next.PasswordHash = hash
	}

	updated, err := s.repo.Update(ctx, next)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicateEmail):
			return types.User{}, ErrEmailTaken
		case errors.Is(err, store.ErrNotFound):
			return types.User{}, apperror.NotFound("user not found", err)
		}
		return types.User{}, apperror.Internal("failed to update user", err)
	}
	return updated, nil
}

// Remove deletes the account record. Notifications are the caller's concern.
func (s *UserService) Remove(ctx context.Context, user types.User) error {
	if err := s.repo.Delete(ctx, user.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperror.NotFound("user not found", err)
		}
		return apperror.Internal("failed to delete user", err)
	}
	return nil
}

func validateProfile(user types.User) error {
	err := validation.Errors{
		"name":  validation.Validate(user.Name, validation.Required),
		"email": validation.Validate(user.Email, validation.Required, is.Email),
		"age":   validation.Validate(user.Age, validation.Min(0)),
	}.Filter()
	if err != nil {
		return apperror.New(apperror.KindValidation, err.Error(), err)
	}
	return nil
}
