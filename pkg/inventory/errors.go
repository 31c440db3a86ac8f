package inventory

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the inventory service.
var (
	ErrNotFound             = errors.New("item not found")
	ErrConflict             = errors.New("item already exists")
	ErrInvalidQuantity      = errors.New("invalid quantity")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrEmptyCart            = errors.New("cart is empty")
	ErrSnapshotFailed       = errors.New("snapshot write failed")
	ErrUnknownSession       = errors.New("unknown session")
	ErrSessionClosed        = errors.New("session closed")
	ErrUnknownRef           = errors.New("unknown reference number")
	ErrInvalidItemID        = errors.New("invalid item id")
	ErrInvalidItemName      = errors.New("invalid item name")
	ErrInvalidPriceCents    = errors.New("invalid price cents")
	ErrInvalidServiceConfig = errors.New("invalid service config")
)

// InsufficientStockError reports which item ran short and how much was left.
type InsufficientStockError struct {
	ItemID    ItemID
	Available int64
}

// Error returns the formatted error message.
func (stockError *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: %d available", stockError.ItemID.String(), stockError.Available)
}

// Unwrap matches the ErrInsufficientStock sentinel.
func (stockError *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
