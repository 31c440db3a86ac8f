package inventory

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// DisplayView returns the ledger with the session's own reservations
// subtracted, for the purchase view. The ledger itself is untouched; the
// overlay only changes what the client sees as available to reserve.
func (service *Service) DisplayView(session *Session) []ListedItem {
	listed := service.ledger.List()
	if session == nil {
		return listed
	}
	for position, candidate := range listed {
		reserved := session.Reserved(candidate.ID)
		if reserved == 0 {
			continue
		}
		available := candidate.Item.Quantity - reserved
		if available < 0 {
			available = 0
		}
		listed[position].Item.Quantity = available
	}
	return listed
}

// AddLine reserves quantity units of id into the session. Available stock is
// the current ledger quantity minus what this session already holds; other
// sessions are not counted, so a conflicting cart surfaces at checkout
// instead. The item's name and price are captured into the line now.
func (service *Service) AddLine(ctx context.Context, session *Session, id ItemID, quantity int64) error {
	operationError := func() error {
		if quantity <= 0 {
			return ErrInvalidQuantity
		}
		item, err := service.ledger.Get(id)
		if err != nil {
			return err
		}
		return session.addChecked(id, quantity, item)
	}()
	service.logOperation(ctx, OperationLog{
		Operation: operationAddLine,
		ItemID:    id,
		Quantity:  quantity,
		Error:     operationError,
	})
	return operationError
}

// CancelSession discards the session's lines. Under the deferred policy the
// ledger never saw the reservations, so no restore or snapshot is needed.
func (service *Service) CancelSession(ctx context.Context, session *Session) error {
	operationError := session.Cancel()
	service.logOperation(ctx, OperationLog{
		Operation: operationCancel,
		Error:     operationError,
	})
	return operationError
}

// Checkout validates every line against the current ledger and commits the
// deduction in one atomic step: either all lines settle or none do. The
// session is claimed first, so a second checkout on the same session fails
// with ErrSessionClosed before it can reach the ledger. Stock may have moved
// since the lines were added, so a line can fail here with InsufficientStock
// even though AddLine accepted it; in that case the session is reopened
// intact so the client can adjust and retry. On success the session is
// closed, the snapshot is saved, and the receipt is returned. If the save
// fails the checkout is still committed in memory and the receipt is returned
// alongside ErrSnapshotFailed.
func (service *Service) Checkout(ctx context.Context, session *Session) (Receipt, error) {
	lines, err := session.beginCommit()
	if err != nil {
		service.logCheckout(ctx, Receipt{}, err)
		return Receipt{}, err
	}
	if len(lines) == 0 {
		session.abortCommit()
		service.logCheckout(ctx, Receipt{}, ErrEmptyCart)
		return Receipt{}, ErrEmptyCart
	}
	if err := service.ledger.Deduct(lines); err != nil {
		session.abortCommit()
		service.logCheckout(ctx, Receipt{}, err)
		return Receipt{}, err
	}
	session.finishCommit()
	receipt := service.buildReceipt(lines)
	persistError := service.persist(ctx)
	if service.archiver != nil {
		if archiveErr := service.archiver.ArchiveReceipt(ctx, receipt); archiveErr != nil {
			// Receipt archiving is best effort; record the failure without
			// failing the checkout.
			service.logOperation(ctx, OperationLog{
				Operation:   operationCheckout,
				AmountCents: receipt.TotalCents,
				ReceiptID:   receipt.ReceiptID,
				Status:      operationStatusError,
				Error:       WrapError(operationCheckout, "receipt", "archive", archiveErr),
			})
			if persistError == nil {
				return receipt, nil
			}
		}
	}
	service.logCheckout(ctx, receipt, persistError)
	return receipt, persistError
}

func (service *Service) buildReceipt(lines []Line) Receipt {
	receiptLines := make([]ReceiptLine, 0, len(lines))
	var total int64
	for _, line := range lines {
		subtotal := line.Quantity * line.PriceCents
		total += subtotal
		receiptLines = append(receiptLines, ReceiptLine{
			ItemID:         line.ItemID,
			Name:           line.Name,
			Quantity:       line.Quantity,
			UnitPriceCents: line.PriceCents,
			SubtotalCents:  subtotal,
		})
	}
	return Receipt{
		ReceiptID:      uuid.NewString(),
		Lines:          receiptLines,
		TotalCents:     total,
		CreatedUnixUTC: service.nowFn(),
	}
}

func (service *Service) logCheckout(ctx context.Context, receipt Receipt, operationError error) {
	entry := OperationLog{
		Operation:   operationCheckout,
		AmountCents: receipt.TotalCents,
		ReceiptID:   receipt.ReceiptID,
		Error:       operationError,
	}
	var stockError *InsufficientStockError
	if errors.As(operationError, &stockError) {
		entry.ItemID = stockError.ItemID
	}
	service.logOperation(ctx, entry)
}
