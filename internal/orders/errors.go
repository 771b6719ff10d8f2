package orders

import (
	"fmt"

	"github.com/pkg/errors"
)

// Storage sentinels. Repositories wrap these; services translate them.
var (
	ErrNotFound   = errors.New("record not found")
	ErrDuplicate  = errors.New("record already exists")
	ErrReferenced = errors.New("record is still referenced")
	// ErrInsufficientStock is returned by a strict decrement that would go below zero.
	ErrInsufficientStock = errors.New("insufficient stock")
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is what services return to callers. Msg is safe to show to clients;
// Err keeps the cause for logs.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(msg string) error { return &Error{Kind: KindValidation, Msg: msg} }

func NotFound(msg string) error { return &Error{Kind: KindNotFound, Msg: msg} }

func Conflict(msg string, cause error) error {
	return &Error{Kind: KindConflict, Msg: msg, Err: cause}
}

func Internal(cause error) error {
	return &Error{Kind: KindInternal, Msg: "internal server error", Err: cause}
}

// KindOf reports the taxonomy kind of err; unknown errors are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// PublicMessage returns the client-facing message for err.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return "internal server error"
}

const (
	MsgMissingData      = "missing required data"
	MsgProductsMissing  = "one or more products do not exist"
	MsgInvalidQuantity  = "quantity must be a positive integer"
	MsgUserNotFound     = "user not found"
	MsgOrderNotFound    = "order not found"
	MsgInvalidStatus    = "invalid order status"
	MsgProductNotFound  = "product not found"
	MsgProductExists    = "product already exists"
	MsgProductInUse     = "product is referenced by orders"
	MsgInvalidProduct   = "invalid product data"
	MsgInvalidPrice     = "price must have at most two decimals and be below 10000000000"
	MsgInsufficientFmt  = "insufficient stock for product %s"
	MsgProductNameLimit = "product name must be at most 50 characters"
)
