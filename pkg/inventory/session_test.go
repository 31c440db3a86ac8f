package inventory

import (
	"errors"
	"testing"
)

func TestSessionAddMergesLinesPerItem(test *testing.T) {
	test.Parallel()
	session := NewSession()
	idA := mustItemID(test, "SKU-A")
	idB := mustItemID(test, "SKU-B")
	anchors := Item{Name: "Anchors", Quantity: 100, PriceCents: 300}
	bolts := Item{Name: "Bolts", Quantity: 100, PriceCents: 150}

	if err := session.addChecked(idA, 2, anchors); err != nil {
		test.Fatalf("add: %v", err)
	}
	if err := session.addChecked(idB, 1, bolts); err != nil {
		test.Fatalf("add: %v", err)
	}
	if err := session.addChecked(idA, 3, anchors); err != nil {
		test.Fatalf("add merge: %v", err)
	}

	lines := session.Lines()
	if len(lines) != 2 {
		test.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0].ItemID != idA || lines[0].Quantity != 5 {
		test.Fatalf("expected first line SKU-A x5, got %s x%d", lines[0].ItemID.String(), lines[0].Quantity)
	}
	if session.Reserved(idA) != 5 {
		test.Fatalf("expected 5 reserved for SKU-A, got %d", session.Reserved(idA))
	}
	if session.Reserved(mustItemID(test, "SKU-C")) != 0 {
		test.Fatalf("expected 0 reserved for an unknown item")
	}
}

func TestSessionAddCheckedCountsOwnReservation(test *testing.T) {
	test.Parallel()
	session := NewSession()
	id := mustItemID(test, "SKU-A")
	anchors := Item{Name: "Anchors", Quantity: 5, PriceCents: 300}

	if err := session.addChecked(id, 4, anchors); err != nil {
		test.Fatalf("add: %v", err)
	}
	err := session.addChecked(id, 2, anchors)
	var stockError *InsufficientStockError
	if !errors.As(err, &stockError) {
		test.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if stockError.Available != 1 {
		test.Fatalf("expected 1 available, got %d", stockError.Available)
	}
	if session.Reserved(id) != 4 {
		test.Fatalf("expected reservation unchanged at 4, got %d", session.Reserved(id))
	}
}

func TestSessionTotalUsesCapturedPrices(test *testing.T) {
	test.Parallel()
	session := NewSession()
	if err := session.addChecked(mustItemID(test, "SKU-A"), 3, Item{Name: "Anchors", Quantity: 100, PriceCents: 250}); err != nil {
		test.Fatalf("add: %v", err)
	}
	if err := session.addChecked(mustItemID(test, "SKU-B"), 2, Item{Name: "Bolts", Quantity: 100, PriceCents: 150}); err != nil {
		test.Fatalf("add: %v", err)
	}
	if total := session.TotalCents(); total != 1050 {
		test.Fatalf("expected total 1050, got %d", total)
	}
}

func TestSessionCancelIsTerminal(test *testing.T) {
	test.Parallel()
	session := NewSession()
	anchors := Item{Name: "Anchors", Quantity: 100, PriceCents: 300}
	if err := session.addChecked(mustItemID(test, "SKU-A"), 1, anchors); err != nil {
		test.Fatalf("add: %v", err)
	}
	if err := session.Cancel(); err != nil {
		test.Fatalf("cancel: %v", err)
	}

	if err := session.Cancel(); !errors.Is(err, ErrSessionClosed) {
		test.Fatalf("expected ErrSessionClosed on second cancel, got %v", err)
	}
	if err := session.addChecked(mustItemID(test, "SKU-A"), 1, anchors); !errors.Is(err, ErrSessionClosed) {
		test.Fatalf("expected ErrSessionClosed on add after cancel, got %v", err)
	}
	if len(session.Lines()) != 0 {
		test.Fatalf("expected no lines after cancel")
	}
}

func TestBeginCommitClaimsSessionExclusively(test *testing.T) {
	test.Parallel()
	session := NewSession()
	anchors := Item{Name: "Anchors", Quantity: 100, PriceCents: 300}
	if err := session.addChecked(mustItemID(test, "SKU-A"), 2, anchors); err != nil {
		test.Fatalf("add: %v", err)
	}

	lines, err := session.beginCommit()
	if err != nil {
		test.Fatalf("begin commit: %v", err)
	}
	if len(lines) != 1 || lines[0].Quantity != 2 {
		test.Fatalf("unexpected claimed lines: %+v", lines)
	}

	// While the claim is held no other attempt or add can slip in.
	if _, err := session.beginCommit(); !errors.Is(err, ErrSessionClosed) {
		test.Fatalf("expected ErrSessionClosed for a second claim, got %v", err)
	}
	if err := session.addChecked(mustItemID(test, "SKU-A"), 1, anchors); !errors.Is(err, ErrSessionClosed) {
		test.Fatalf("expected ErrSessionClosed for an add under claim, got %v", err)
	}
	if err := session.Cancel(); !errors.Is(err, ErrSessionClosed) {
		test.Fatalf("expected ErrSessionClosed for a cancel under claim, got %v", err)
	}
}

func TestAbortCommitReopensSessionIntact(test *testing.T) {
	test.Parallel()
	session := NewSession()
	anchors := Item{Name: "Anchors", Quantity: 100, PriceCents: 300}
	if err := session.addChecked(mustItemID(test, "SKU-A"), 2, anchors); err != nil {
		test.Fatalf("add: %v", err)
	}
	if _, err := session.beginCommit(); err != nil {
		test.Fatalf("begin commit: %v", err)
	}

	session.abortCommit()

	lines := session.Lines()
	if len(lines) != 1 || lines[0].Quantity != 2 {
		test.Fatalf("expected cart intact after abort, got %+v", lines)
	}
	if err := session.addChecked(mustItemID(test, "SKU-A"), 1, anchors); err != nil {
		test.Fatalf("expected add to work after abort, got %v", err)
	}
}

func TestFinishCommitClosesSession(test *testing.T) {
	test.Parallel()
	session := NewSession()
	anchors := Item{Name: "Anchors", Quantity: 100, PriceCents: 300}
	if err := session.addChecked(mustItemID(test, "SKU-A"), 2, anchors); err != nil {
		test.Fatalf("add: %v", err)
	}
	if _, err := session.beginCommit(); err != nil {
		test.Fatalf("begin commit: %v", err)
	}

	session.finishCommit()

	if len(session.Lines()) != 0 {
		test.Fatalf("expected no lines after commit")
	}
	if _, err := session.beginCommit(); !errors.Is(err, ErrSessionClosed) {
		test.Fatalf("expected ErrSessionClosed after commit, got %v", err)
	}
	if err := session.addChecked(mustItemID(test, "SKU-A"), 1, anchors); !errors.Is(err, ErrSessionClosed) {
		test.Fatalf("expected ErrSessionClosed on add after commit, got %v", err)
	}
}

func TestSessionManagerLifecycle(test *testing.T) {
	test.Parallel()
	manager := NewSessionManager()

	token, session := manager.Begin()
	if token == "" || session == nil {
		test.Fatalf("expected a token and a session")
	}
	if manager.Count() != 1 {
		test.Fatalf("expected 1 tracked session, got %d", manager.Count())
	}

	resumed, err := manager.Resume(token)
	if err != nil {
		test.Fatalf("resume: %v", err)
	}
	if resumed != session {
		test.Fatalf("expected resume to return the same session")
	}

	manager.Release(token)
	if manager.Count() != 0 {
		test.Fatalf("expected 0 tracked sessions, got %d", manager.Count())
	}
	if _, err := manager.Resume(token); !errors.Is(err, ErrUnknownSession) {
		test.Fatalf("expected ErrUnknownSession after release, got %v", err)
	}
	manager.Release(token)
}
