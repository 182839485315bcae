package service

import (
	"errors"
	"net/http"
)

// Failure codes reported to callers
const (
	CodeInvalidFormat          = "invalid_format"
	CodeValidation             = "validation_error"
	CodeUnauthorized           = "unauthorized"
	CodeForbidden              = "forbidden"
	CodeLicenseNotFound        = "license_not_found"
	CodeActivationNotFound     = "activation_not_found"
	CodeLicenseSuspended       = "license_suspended"
	CodeLicenseCancelled       = "license_cancelled"
	CodeLicenseExpired         = "license_expired"
	CodeLicenseInactive        = "license_inactive"
	CodeActivationLimitReached = "activation_limit_reached"
	CodeNotActivated           = "not_activated"
	CodeQuotaExceeded          = "quota_exceeded"
	CodeRateLimited            = "rate_limited"
	CodeInvalidStatus          = "invalid_status"
	CodeEmailTaken             = "email_taken"
	CodeInternal               = "internal_error"
)

// PolicyError is a business-rule or input rejection. Anything else returned
// by the service is an infrastructure failure.
type PolicyError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
}

func (e *PolicyError) Error() string {
	return e.Code + ": " + e.Message
}

// AsPolicyError unwraps err into a *PolicyError if it is one
func AsPolicyError(err error) (*PolicyError, bool) {
	var pe *PolicyError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

func inputError(code, msg string) *PolicyError {
	return &PolicyError{Code: code, Message: msg, HTTPStatus: http.StatusBadRequest}
}

func notFound(code, msg string) *PolicyError {
	return &PolicyError{Code: code, Message: msg, HTTPStatus: http.StatusNotFound}
}

func denied(code, msg string) *PolicyError {
	return &PolicyError{Code: code, Message: msg, HTTPStatus: http.StatusForbidden}
}

var (
	errInvalidFormat   = inputError(CodeInvalidFormat, "Invalid license key format")
	errDomainRequired  = inputError(CodeValidation, "A valid domain is required")
	errLicenseNotFound = notFound(CodeLicenseNotFound, "License not found")
	errNotActivated    = denied(CodeNotActivated, "License is not activated for this domain")
	errSuspended       = denied(CodeLicenseSuspended, "License has been suspended")
	errCancelled       = denied(CodeLicenseCancelled, "License has been cancelled")
	errExpired         = denied(CodeLicenseExpired, "License has expired")
)
