package catalog

import (
	"github.com/jmgilman/go/errors"
)

// reasonsKey is the error context key carrying the machine-readable reason
// list attached to domain errors.
const reasonsKey = "reasons"

// The four error kinds surfaced by this core, mapped onto platform error
// codes. Validation, domain and not-found errors force transaction rollback
// and surface verbatim; infra errors from the database do the same, while
// infra errors from the cache layer are logged and swallowed by the caller
// (see txn).

// Validation reports malformed or out-of-range input the caller can fix.
func Validation(message string) error {
	return errors.New(errors.CodeInvalidInput, message)
}

// Validationf is Validation with a formatted message.
func Validationf(format string, args ...any) error {
	return errors.Newf(errors.CodeInvalidInput, format, args...)
}

// Domain reports a business-rule violation, always checked against fresh
// uncached state. Reasons are machine-readable and reachable through
// DomainReasons.
func Domain(message string, reasons ...string) error {
	err := errors.New(errors.CodeConflict, message)
	if len(reasons) > 0 {
		return errors.WithContext(err, reasonsKey, reasons)
	}
	return err
}

// NotFound reports that a referenced identity does not exist.
func NotFound(entityType string, id any) error {
	return errors.Newf(errors.CodeNotFound, "%s %v not found", entityType, id)
}

// Infra wraps a database or cache transport failure.
func Infra(err error, message string) error {
	return errors.Wrap(err, errors.CodeDatabase, message)
}

// Infraf is Infra with a formatted message.
func Infraf(err error, format string, args ...any) error {
	return errors.Wrapf(err, errors.CodeDatabase, format, args...)
}

// ErrAuditImmutable is returned for any attempt to update, delete or
// restore an audit record. The only sanctioned removal path is the
// out-of-band retention cleanup.
var ErrAuditImmutable = errors.New(errors.CodeInternal, "audit records are immutable")

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool {
	return errors.GetCode(err) == errors.CodeInvalidInput
}

// IsDomain reports whether err is a business-rule violation.
func IsDomain(err error) bool {
	return errors.GetCode(err) == errors.CodeConflict
}

// IsNotFound reports whether err is a missing-identity error.
func IsNotFound(err error) bool {
	return errors.GetCode(err) == errors.CodeNotFound
}

// IsInfra reports whether err is an infrastructure failure.
func IsInfra(err error) bool {
	code := errors.GetCode(err)
	return code == errors.CodeDatabase || code == errors.CodeInternal
}

// DomainReasons extracts the reason list from a domain error. Returns nil
// for other error kinds or when no reasons were attached.
func DomainReasons(err error) []string {
	var platformErr errors.PlatformError
	if !errors.As(err, &platformErr) {
		return nil
	}
	ctx := platformErr.Context()
	if ctx == nil {
		return nil
	}
	reasons, _ := ctx[reasonsKey].([]string)
	return reasons
}
