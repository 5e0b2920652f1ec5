package authprovider

import (
	"errors"
	"fmt"

	"github.com/go-ldap/ldap/v3"
)

// ErrorCategory категория ошибки каталога для логирования и выбора реакции.
type ErrorCategory string

const (
	ErrorCategoryConnection     ErrorCategory = "connection"
	ErrorCategoryAuthentication ErrorCategory = "authentication"
	ErrorCategoryPermission     ErrorCategory = "permission"
	ErrorCategoryNotFound       ErrorCategory = "not_found"
	ErrorCategoryFilter         ErrorCategory = "filter"
	ErrorCategoryServer         ErrorCategory = "server"
	ErrorCategoryUnknown        ErrorCategory = "unknown"
)

// DirectoryError ошибка операции с каталогом с кодом результата LDAP.
type DirectoryError struct {
	Operation string
	Category  ErrorCategory
	Code      uint16
	Cause     error
}

func (e *DirectoryError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("LDAP %s failed (code %d, %s): %v", e.Operation, e.Code, e.Category, e.Cause)
	}
	return fmt.Sprintf("LDAP %s failed (%s): %v", e.Operation, e.Category, e.Cause)
}

func (e *DirectoryError) Unwrap() error {
	return e.Cause
}

// Message текст для лога, указывающий администратору на вероятную причину.
func (e *DirectoryError) Message() string {
	switch {
	case e.Category == ErrorCategoryConnection:
		return "LDAP server is not reachable"
	case e.Operation == "bind" && e.Category == ErrorCategoryAuthentication:
		return "LDAP server credentials (LDAP_AUTH_DN and LDAP_AUTH_PASSWORD) invalid"
	case e.Code == ldap.LDAPResultOperationsError:
		return "LDAP query failed. Maybe you need auth credentials for performing searches?"
	case e.Category == ErrorCategoryNotFound:
		return "LDAP distinguished name (LDAP_BASE_DN) is malformed or does not exist."
	case e.Category == ErrorCategoryFilter:
		return "LDAP filter (LDAP_SEARCH_FILTER) is malformed"
	}
	return "Fatal LDAP error"
}

func newDirectoryError(operation string, err error) *DirectoryError {
	de := &DirectoryError{Operation: operation, Cause: err, Category: ErrorCategoryUnknown}

	var ldapErr *ldap.Error
	if errors.As(err, &ldapErr) {
		de.Code = ldapErr.ResultCode
		de.Category = categorizeError(ldapErr.ResultCode)
	}
	return de
}

func categorizeError(code uint16) ErrorCategory {
	switch code {
	case ldap.ErrorNetwork,
		ldap.LDAPResultServerDown,
		ldap.LDAPResultConnectError,
		ldap.LDAPResultTimeout:
		return ErrorCategoryConnection

	case ldap.LDAPResultInvalidCredentials,
		ldap.LDAPResultInappropriateAuthentication,
		ldap.LDAPResultStrongAuthRequired,
		ldap.LDAPResultAuthMethodNotSupported,
		ldap.ErrorEmptyPassword:
		return ErrorCategoryAuthentication

	case ldap.LDAPResultInsufficientAccessRights,
		ldap.LDAPResultUnwillingToPerform:
		return ErrorCategoryPermission

	case ldap.LDAPResultNoSuchObject,
		ldap.LDAPResultReferral,
		ldap.LDAPResultInvalidDNSyntax:
		return ErrorCategoryNotFound

	case ldap.LDAPResultFilterError,
		ldap.ErrorFilterCompile,
		ldap.ErrorFilterDecompile:
		return ErrorCategoryFilter

	case ldap.LDAPResultOperationsError,
		ldap.LDAPResultUnavailable,
		ldap.LDAPResultBusy,
		ldap.LDAPResultTimeLimitExceeded,
		ldap.LDAPResultAdminLimitExceeded:
		return ErrorCategoryServer
	}
	return ErrorCategoryUnknown
}
