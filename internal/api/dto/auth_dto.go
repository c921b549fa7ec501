package dto

import (
	"errors"
	"time"

	validation "github.com/jellydator/validation"
	"github.com/jellydator/validation/is"

	"github.com/spec-kit/community-service/internal/domain"
	"github.com/spec-kit/community-service/internal/permission"
	apperrors "github.com/spec-kit/community-service/pkg/util/errorutil"
)

var passwordRules = []validation.Rule{validation.Required, validation.Length(8, 128)}

// RegisterRequest payload for new accounts.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks the registration payload.
func (r *RegisterRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 255)),
		validation.Field(&r.Email, validation.Required, is.EmailFormat, validation.Length(3, 320)),
		validation.Field(&r.Password, passwordRules...),
	)
}

// LoginRequest payload for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks the login payload.
func (r *LoginRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Email, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

// RefreshRequest is the body of POST /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Validate checks the refresh payload.
func (r *RefreshRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.RefreshToken, validation.Required),
	)
}

// PasswordResetRequest starts a reset.
type PasswordResetRequest struct {
	Email string `json:"email"`
}

// Validate checks the reset request.
func (r *PasswordResetRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Email, validation.Required, is.EmailFormat),
	)
}

// PasswordResetConfirmRequest completes a reset.
type PasswordResetConfirmRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

// Validate checks the reset confirmation.
func (r *PasswordResetConfirmRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.NewPassword, passwordRules...),
	)
}

// PasswordChangeRequest changes the caller's password.
type PasswordChangeRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// Validate checks the password change payload.
func (r *PasswordChangeRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.CurrentPassword, validation.Required),
		validation.Field(&r.NewPassword, append(passwordRules, validation.NotIn(r.CurrentPassword).Error("must differ from the current password"))...),
	)
}

// PermissionCheckRequest asks whether the caller holds a permission.
type PermissionCheckRequest struct {
	Permission   string `json:"permission"`
	ResourceType string `json:"resourceType"`
	ResourceID   string `json:"resourceId"`
}

// Validate checks the permission check payload.
func (r *PermissionCheckRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Permission, validation.Required, validation.By(knownPermission)),
		validation.Field(&r.ResourceType, validation.By(knownResourceType)),
		validation.Field(&r.ResourceID, validation.When(r.ResourceType != "", validation.Required)),
	)
}

// RoleChangeRequest assigns a new role.
type RoleChangeRequest struct {
	Role string `json:"role"`
}

// Validate checks the role payload.
func (r *RoleChangeRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Role, validation.Required, validation.By(knownRole)),
	)
}

// UserResponse is the public view of an account.
type UserResponse struct {
	ID    string      `json:"id"`
	Role  domain.Role `json:"role"`
	Name  string      `json:"name"`
	Email string      `json:"email"`
}

// AuthResponse is returned by login, register and refresh.
type AuthResponse struct {
	AccessToken      string       `json:"accessToken"`
	RefreshToken     string       `json:"refreshToken"`
	AccessExpiresAt  time.Time    `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time    `json:"refreshExpiresAt"`
	User             UserResponse `json:"user"`
}

// NewUserResponse maps a user to its public view.
func NewUserResponse(user *domain.User) UserResponse {
	return UserResponse{ID: user.ID, Role: user.Role, Name: user.Name, Email: user.Email}
}

// NewAuthResponse builds the token response.
func NewAuthResponse(user *domain.User, pair *domain.TokenPair) AuthResponse {
	return AuthResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
		User:             NewUserResponse(user),
	}
}

// ValidationError converts jellydator errors into a 400 with per-field details.
func ValidationError(err error) error {
	if err == nil {
		return nil
	}
	var fieldErrs validation.Errors
	if errors.As(err, &fieldErrs) {
		details := make(map[string]any, len(fieldErrs))
		for field, fieldErr := range fieldErrs {
			details[field] = fieldErr.Error()
		}
		return apperrors.NewValidationError("invalid request", details)
	}
	return apperrors.NewValidationError(err.Error(), nil)
}

func knownPermission(value interface{}) error {
	s, _ := value.(string)
	if s != "" && !permission.Permission(s).Known() {
		return validation.NewError("validation_unknown_permission", "unknown permission")
	}
	return nil
}

func knownRole(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, ok := domain.ParseRole(s); !ok {
		return validation.NewError("validation_unknown_role", "unknown role")
	}
	return nil
}

func knownResourceType(value interface{}) error {
	s, _ := value.(string)
	if s != "" && !domain.ResourceType(s).Valid() {
		return validation.NewError("validation_unknown_resource_type", "unknown resource type")
	}
	return nil
}
