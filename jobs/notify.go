package jobs

import (
	"context"
)

// NotifyEnqueuer bridges the payments service to the queue. Every
// recorded payment becomes a follow-up task. With a nil client every
// enqueue is a no-op.
type NotifyEnqueuer struct {
	client *Client
}

// NewNotifyEnqueuer builds the bridge.
func NewNotifyEnqueuer(client *Client) *NotifyEnqueuer {
	return &NotifyEnqueuer{client: client}
}

// PaymentRecorded enqueues the follow-up for one payment.
func (n *NotifyEnqueuer) PaymentRecorded(ctx context.Context, paymentID int64) error {
	if n == nil || n.client == nil {
		return nil
	}
	task, err := NewPaymentNotifyTask(paymentID)
	if err != nil {
		return err
	}
	_, err = n.client.Enqueue(ctx, task)
	return err
}
