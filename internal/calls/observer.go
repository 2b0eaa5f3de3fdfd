package calls

import "context"

// Observer is notified after a lifecycle change is committed.
// Implementations must not block for long and cannot veto the change.
type Observer interface {
	CallCreated(ctx context.Context, c Call)
	CallStatusChanged(ctx context.Context, c Call, from Status)
}

type observers []Observer

func (os observers) created(ctx context.Context, c Call) {
	for _, o := range os {
		o.CallCreated(ctx, c)
	}
}

func (os observers) changed(ctx context.Context, c Call, from Status) {
	for _, o := range os {
		o.CallStatusChanged(ctx, c, from)
	}
}
