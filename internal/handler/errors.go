package handler

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DarkSword404/CTF-Platform/internal/domain"
	"github.com/DarkSword404/CTF-Platform/internal/middleware"
)

// errorStatus pairs a sentinel with the HTTP status it surfaces as
type errorStatus struct {
	err    error
	status int
}

// Ordered: the first match wins, so specific sentinels precede generic ones.
var errorStatuses = []errorStatus{
	{domain.ErrInvalidCredentials, http.StatusUnauthorized},
	{domain.ErrInvalidToken, http.StatusUnauthorized},
	{domain.ErrAccountLocked, http.StatusUnauthorized},
	{domain.ErrAccountInactive, http.StatusUnauthorized},
	{domain.ErrUnauthorized, http.StatusUnauthorized},
	{domain.ErrForbidden, http.StatusForbidden},
	{domain.ErrCannotDeleteAdmin, http.StatusForbidden},

	{domain.ErrUserNotFound, http.StatusNotFound},
	{domain.ErrChallengeNotFound, http.StatusNotFound},
	{domain.ErrProviderNotFound, http.StatusNotFound},
	{domain.ErrContainerNotFound, http.StatusNotFound},

	{domain.ErrChallengeTitleTaken, http.StatusConflict},
	{domain.ErrProviderExists, http.StatusConflict},

	{domain.ErrDuplicateIdentity, http.StatusBadRequest},
	{domain.ErrWeakCredential, http.StatusBadRequest},
	{domain.ErrIncorrectPassword, http.StatusBadRequest},
	{domain.ErrRoleNotFound, http.StatusBadRequest},
	{domain.ErrInvalidCategory, http.StatusBadRequest},
	{domain.ErrInvalidDifficulty, http.StatusBadRequest},
	{domain.ErrInvalidScore, http.StatusBadRequest},
	{domain.ErrInvalidFlagFormat, http.StatusBadRequest},
	{domain.ErrInvalidStatus, http.StatusBadRequest},
	{domain.ErrInvalidStatusTransition, http.StatusBadRequest},
	{domain.ErrChallengePublished, http.StatusBadRequest},
	{domain.ErrChallengeNotAcceptingSubmissions, http.StatusBadRequest},
	{domain.ErrEmptyFlag, http.StatusBadRequest},
	{domain.ErrUnsupportedProvider, http.StatusBadRequest},
	{domain.ErrNoContainerImage, http.StatusBadRequest},
	{domain.ErrBadRequest, http.StatusBadRequest},
}

// External failures whose detail stays in the logs
var sanitizedErrors = []error{
	domain.ErrNoProviderAvailable,
	domain.ErrProviderCall,
	domain.ErrBuildFailed,
	domain.ErrContainerBackendUnavailable,
}

// statusFor resolves the HTTP status for a service error
func statusFor(err error) int {
	for _, entry := range errorStatuses {
		if errors.Is(err, entry.err) {
			return entry.status
		}
	}
	return http.StatusInternalServerError
}

// respondError writes the error body for a service failure
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	status := statusFor(err)
	if status != http.StatusInternalServerError {
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	log := middleware.Logger(c, logger)
	for _, sentinel := range sanitizedErrors {
		if errors.Is(err, sentinel) {
			log.Error("External service failure", zap.Error(err))
			c.JSON(status, gin.H{"error": sentinel.Error()})
			return
		}
	}

	log.Error("Unhandled service error", zap.Error(err))
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": "Internal server error"})
}

// respondBindError reports a malformed body with per-field validation messages
func respondBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			details[fieldName(fe)] = validationMessage(fe)
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": details,
		})
		return
	}

	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request body",
		"details": err.Error(),
	})
}

func fieldName(fe validator.FieldError) string {
	name := fe.Field()
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + fe.Param() + sizeUnit(fe)
	case "max":
		return "must be at most " + fe.Param() + sizeUnit(fe)
	case "oneof":
		return "must be one of: " + fe.Param()
	case "url":
		return "must be a valid URL"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	default:
		return "failed the " + fe.Tag() + " check"
	}
}

// sizeUnit names what min and max count for the field's kind
func sizeUnit(fe validator.FieldError) string {
	switch fe.Kind() {
	case reflect.String:
		return " characters"
	case reflect.Slice, reflect.Array, reflect.Map:
		return " items"
	default:
		return ""
	}
}

// parseID reads a uuid path parameter, answering 400 when malformed
func parseID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + param})
		return uuid.Nil, false
	}
	return id, true
}
