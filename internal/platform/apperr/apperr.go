package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// ===== Error model (catalog/members/ledger/lending 共通) =====

type Code string

const (
	CodeInvalidArgument       Code = "INVALID_ARGUMENT"
	CodeUnauthenticated       Code = "UNAUTHENTICATED"
	CodeForbidden             Code = "FORBIDDEN"
	CodeNotFound              Code = "NOT_FOUND"
	CodeConflict              Code = "CONFLICT"
	CodeNoCopiesAvailable     Code = "NO_COPIES_AVAILABLE"
	CodeMemberInactive        Code = "MEMBER_INACTIVE"
	CodeAlreadyReturned       Code = "ALREADY_RETURNED"
	CodeRenewNotAllowed       Code = "RENEW_NOT_ALLOWED"
	CodeInternalInconsistency Code = "INTERNAL_INCONSISTENCY"
	CodeInternal              Code = "INTERNAL"
)

type APIError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

// Is matches on Code only, so errors.Is(err, apperr.NoCopiesAvailable) works
// whatever message the store attached.
func (e *APIError) Is(target error) bool {
	var t *APIError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func ErrInvalid(msg string) *APIError         { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func ErrUnauthenticated(msg string) *APIError { return &APIError{Code: CodeUnauthenticated, Message: msg} }
func ErrForbidden(msg string) *APIError       { return &APIError{Code: CodeForbidden, Message: msg} }
func ErrNotFound(msg string) *APIError        { return &APIError{Code: CodeNotFound, Message: msg} }
func ErrConflict(msg string) *APIError        { return &APIError{Code: CodeConflict, Message: msg} }
func ErrNoCopies(msg string) *APIError        { return &APIError{Code: CodeNoCopiesAvailable, Message: msg} }
func ErrMemberInactive(msg string) *APIError  { return &APIError{Code: CodeMemberInactive, Message: msg} }
func ErrAlreadyReturned(msg string) *APIError { return &APIError{Code: CodeAlreadyReturned, Message: msg} }
func ErrRenewNotAllowed(msg string) *APIError { return &APIError{Code: CodeRenewNotAllowed, Message: msg} }
func ErrInconsistent(msg string) *APIError    { return &APIError{Code: CodeInternalInconsistency, Message: msg} }
func ErrInternal(msg string) *APIError        { return &APIError{Code: CodeInternal, Message: msg} }

// 比較用の番兵（errors.Is 専用、メッセージは見ない）
var (
	InvalidArgument       = &APIError{Code: CodeInvalidArgument}
	NotFound              = &APIError{Code: CodeNotFound}
	Conflict              = &APIError{Code: CodeConflict}
	NoCopiesAvailable     = &APIError{Code: CodeNoCopiesAvailable}
	MemberInactive        = &APIError{Code: CodeMemberInactive}
	AlreadyReturned       = &APIError{Code: CodeAlreadyReturned}
	RenewNotAllowed       = &APIError{Code: CodeRenewNotAllowed}
	InternalInconsistency = &APIError{Code: CodeInternalInconsistency}
)

// CodeOf returns the code carried by err, CodeInternal for anything that is
// not an *APIError.
func CodeOf(err error) Code {
	var api *APIError
	if errors.As(err, &api) {
		return api.Code
	}
	return CodeInternal
}

func ToHTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeNoCopiesAvailable, CodeAlreadyReturned, CodeRenewNotAllowed:
		return http.StatusConflict
	case CodeMemberInactive:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// ---------- response body ----------

type ErrorDTO struct {
	Error struct {
		Code    Code   `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func Body(code Code, msg string) ErrorDTO {
	var e ErrorDTO
	e.Error.Code = code
	e.Error.Message = msg
	return e
}

func FromErr(err error) ErrorDTO {
	var api *APIError
	if errors.As(err, &api) {
		return Body(api.Code, api.Message)
	}
	// 内部エラーの詳細はクライアントに返さない
	return Body(CodeInternal, "internal error")
}
