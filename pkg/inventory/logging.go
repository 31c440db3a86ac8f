package inventory

import "context"

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing inventory operation.
type OperationLog struct {
	Operation   string
	ItemID      ItemID
	Quantity    int64
	AmountCents int64
	ReceiptID   string
	Status      string
	Error       error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithReceiptArchiver wires a collaborator that stores committed receipts.
func WithReceiptArchiver(archiver ReceiptArchiver) ServiceOption {
	return func(service *Service) {
		service.archiver = archiver
	}
}
