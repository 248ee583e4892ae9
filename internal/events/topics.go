package events

// Topic constants for domain events emitted by the billing core.
const (
	TopicInvoiceCreated       = "invoice.created"
	TopicInvoiceStatusChanged = "invoice.status_changed"
	TopicInvoiceDeleted       = "invoice.deleted"
)

// DefaultTopics returns every topic the billing core emits.
func DefaultTopics() []string {
	return []string{
		TopicInvoiceCreated,
		TopicInvoiceStatusChanged,
		TopicInvoiceDeleted,
	}
}

// InvoiceCreated is the payload of TopicInvoiceCreated.
type InvoiceCreated struct {
	InvoiceID   string   `json:"invoiceId"`
	Code        string   `json:"code"`
	Type        string   `json:"type"`
	Total       int64    `json:"total"`
	VoucherCode string   `json:"voucherCode,omitempty"`
	ProductIDs  []string `json:"productIds"`
}

// InvoiceStatusChanged is the payload of TopicInvoiceStatusChanged.
type InvoiceStatusChanged struct {
	InvoiceID string `json:"invoiceId"`
	Code      string `json:"code"`
	From      string `json:"from"`
	To        string `json:"to"`
}

// InvoiceDeleted is the payload of TopicInvoiceDeleted.
type InvoiceDeleted struct {
	InvoiceID  string   `json:"invoiceId"`
	Code       string   `json:"code"`
	ProductIDs []string `json:"productIds"`
}
