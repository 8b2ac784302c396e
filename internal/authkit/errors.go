package authkit

import "errors"

var (
	// ErrValidation marks user-correctable input problems. Use ValidationError to carry the message.
	ErrValidation = errors.New("auth.validation")
	// ErrConflict indicates the email is already registered.
	ErrConflict = errors.New("auth.conflict")
	// ErrInvalidCredentials covers both an unknown email and a wrong password.
	ErrInvalidCredentials = errors.New("auth.invalid_credentials")
	// ErrInvalidRefreshToken covers unknown, expired, and already redeemed refresh tokens.
	ErrInvalidRefreshToken = errors.New("auth.invalid_refresh_token")
	// ErrNotFound indicates an authenticated user no longer resolves.
	ErrNotFound = errors.New("auth.not_found")
	// ErrForbidden indicates the caller's role is not admitted.
	ErrForbidden = errors.New("auth.forbidden")
	// ErrUnauthorized indicates a missing or invalid identity.
	ErrUnauthorized = errors.New("auth.unauthorized")

	// ErrUnsupportedDialect indicates that no GORM dialector is available for the scheme.
	ErrUnsupportedDialect = errors.New("store.unsupported_dialect")
)

// ValidationError is a user-facing input error whose message is surfaced verbatim.
type ValidationError struct {
	Message string
}

// NewValidationError constructs a ValidationError with the given message.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message}
}

func (validationError *ValidationError) Error() string {
	return validationError.Message
}

// Is reports ValidationError as ErrValidation for errors.Is.
func (validationError *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
