// Package queue defines the background tasks run by cmd/worker on asynq.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Task type names.
const (
	TypeLowStockCheck = "inventory:low_stock_check"
	TypeExpiryScan    = "inventory:expiry_scan"
)

// QueueDefault is the asynq queue all inventory tasks use.
const QueueDefault = "inventory"

// LowStockCheckPayload lists the products whose stock just went down.
type LowStockCheckPayload struct {
	InvoiceID  string   `json:"invoiceId,omitempty"`
	ProductIDs []string `json:"productIds"`
}

// NewLowStockCheckTask builds the task enqueued after an invoice is created.
// The task id is derived from the invoice so a re-emitted event does not
// schedule a second check.
func NewLowStockCheckTask(invoiceID string, productIDs []string) (*asynq.Task, error) {
	payload, err := json.Marshal(LowStockCheckPayload{InvoiceID: invoiceID, ProductIDs: productIDs})
	if err != nil {
		return nil, fmt.Errorf("queue: encode low stock payload: %w", err)
	}
	opts := []asynq.Option{
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(5),
		asynq.Timeout(30 * time.Second),
	}
	if invoiceID != "" {
		opts = append(opts, asynq.TaskID("low-stock:"+invoiceID), asynq.Retention(time.Hour))
	}
	return asynq.NewTask(TypeLowStockCheck, payload, opts...), nil
}

// NewExpiryScanTask builds the scheduled expiry scan.
func NewExpiryScanTask() *asynq.Task {
	return asynq.NewTask(TypeExpiryScan, nil,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(3),
		asynq.Timeout(2*time.Minute),
	)
}
