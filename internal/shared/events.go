package shared

import "context"

// Document types carried by DocumentEvent.
const (
	DocumentPurchaseOrder = "purchase_order"
	DocumentGRN           = "grn"
	DocumentSalesOrder    = "sales_order"
)

// DocumentEvent announces a committed document change to downstream dispatchers.
type DocumentEvent struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Number  string `json:"number"`
	Status  string `json:"status"`
	ActorID int64  `json:"actor_id"`
}

// Notifier hands document events to the asynchronous dispatch pipeline.
type Notifier interface {
	DocumentCreated(ctx context.Context, event DocumentEvent) error
}
