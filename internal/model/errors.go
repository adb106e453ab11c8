package model

import (
	"errors"
	"fmt"
)

// ErrorKind классифицирует ошибки по способу реакции на них.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindValidation
	KindNotFound
	KindForbidden
	KindConflict
	KindExternal
	KindConsistency
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindExternal:
		return "external"
	case KindConsistency:
		return "consistency"
	default:
		return "unknown"
	}
}

// Error описывает типизированную ошибку доменной операции.
type Error struct {
	Kind ErrorKind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Msg != "":
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf создаёт типизированную ошибку указанного вида.
func Errorf(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap оборачивает причину в типизированную ошибку.
func Wrap(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// TableOccupiedError возвращается, если столик уже удерживается другой сессией.
type TableOccupiedError struct {
	TableID       string
	ReservationID string
	UserID        string
	UserName      string
}

func (e *TableOccupiedError) Error() string {
	return fmt.Sprintf("table %s is occupied by reservation %s (user %s)", e.TableID, e.ReservationID, e.UserID)
}

// CouponNotApplicableError возвращается, если купон не даёт скидки для текущего счёта.
type CouponNotApplicableError struct {
	Code   string
	Reason string
}

func (e *CouponNotApplicableError) Error() string {
	return fmt.Sprintf("coupon %q is not applicable: %s", e.Code, e.Reason)
}

// KindOf определяет вид ошибки.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	var occupied *TableOccupiedError
	if errors.As(err, &occupied) {
		return KindConflict
	}

	var coupon *CouponNotApplicableError
	if errors.As(err, &coupon) {
		return KindValidation
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return KindUnknown
}
