package inventory

const (
	operationAddItem       = "add_item"
	operationUpdateItem    = "update_item"
	operationRemoveItem    = "remove_item"
	operationRemovePartial = "remove_partial"
	operationAdjust        = "adjust_quantity"
	operationAddLine       = "add_line"
	operationCancel        = "cancel"
	operationCheckout      = "checkout"
	operationFlush         = "flush"

	operationStatusOK    = "ok"
	operationStatusError = "error"
)
