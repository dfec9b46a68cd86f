package domain

import "errors"

// Domain errors - these are business logic errors that should be translated
// to appropriate HTTP status codes by the handler layer

var (
	// Credential errors
	ErrUserNotFound       = errors.New("user not found")
	ErrDuplicateIdentity  = errors.New("username or email already registered")
	ErrWeakCredential     = errors.New("password must be 8 to 72 bytes long and contain letters and digits")
	ErrInvalidCredentials = errors.New("invalid username/email or password")
	ErrAccountLocked      = errors.New("account is locked")
	ErrAccountInactive    = errors.New("account is inactive")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrIncorrectPassword  = errors.New("current password is incorrect")
	ErrRoleNotFound       = errors.New("role not found")
	ErrCannotDeleteAdmin  = errors.New("admin users cannot be deleted")

	// Challenge errors
	ErrChallengeNotFound       = errors.New("challenge not found")
	ErrChallengeTitleTaken     = errors.New("challenge title already exists")
	ErrInvalidCategory         = errors.New("invalid challenge category")
	ErrInvalidDifficulty       = errors.New("invalid difficulty level")
	ErrInvalidScore            = errors.New("score must be a positive integer")
	ErrInvalidFlagFormat       = errors.New("invalid flag format")
	ErrInvalidStatus           = errors.New("invalid challenge status")
	ErrInvalidStatusTransition = errors.New("status transition not allowed")
	ErrChallengePublished      = errors.New("published challenges can only be deleted by an admin")

	// Submission errors
	ErrChallengeNotAcceptingSubmissions = errors.New("challenge is not accepting submissions")
	ErrEmptyFlag                        = errors.New("flag must not be empty")

	// AI errors
	ErrNoProviderAvailable = errors.New("no AI provider available")
	ErrProviderNotFound    = errors.New("AI provider not found")
	ErrProviderExists      = errors.New("AI provider already configured")
	ErrUnsupportedProvider = errors.New("unsupported AI provider")
	ErrProviderCall        = errors.New("AI provider call failed")

	// Container errors
	ErrContainerBackendUnavailable = errors.New("container backend unavailable")
	ErrBuildFailed                 = errors.New("image build failed")
	ErrContainerNotFound           = errors.New("not found")
	ErrNoContainerImage            = errors.New("challenge has no container image")

	// General errors
	ErrInternalServer = errors.New("internal server error")
	ErrBadRequest     = errors.New("bad request")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
)

// DomainError wraps an error with additional context
type DomainError struct {
	Err     error
	Message string
	Code    string
}

func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError with the given error and message
func NewDomainError(err error, message string) *DomainError {
	return &DomainError{
		Err:     err,
		Message: message,
	}
}

// WrapError wraps an error with additional context
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return &DomainError{
		Err:     err,
		Message: message,
	}
}

// BuildFailed reports an image build failure carrying the daemon's detail.
func BuildFailed(detail string) error {
	return &DomainError{
		Err:     ErrBuildFailed,
		Message: "image build failed: " + detail,
		Code:    "BUILD_FAILED",
	}
}

// Invalid reports a validation failure on a single field.
func Invalid(field, reason string) error {
	return &DomainError{
		Err:     ErrBadRequest,
		Message: field + ": " + reason,
		Code:    "VALIDATION",
	}
}
