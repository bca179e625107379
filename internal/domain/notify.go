package domain

import "context"

// Notifier is the outbound notification boundary for newly created orders.
// Message formatting and transport live behind it, outside this module.
type Notifier interface {
	SendOrder(ctx context.Context, order Order) error
}

// NoopNotifier reports every send as successful without doing anything.
type NoopNotifier struct{}

func (NoopNotifier) SendOrder(context.Context, Order) error { return nil }
