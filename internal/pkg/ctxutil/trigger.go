package ctxutil

import "context"

type triggerKey struct{}

// Trigger identifies the surface that started a stage pass and, for pollers, which loop.
type Trigger struct {
	Source string
	Worker string
}

func WithTrigger(ctx context.Context, t Trigger) context.Context {
	return context.WithValue(Default(ctx), triggerKey{}, t)
}

func GetTrigger(ctx context.Context) (Trigger, bool) {
	if ctx == nil {
		return Trigger{}, false
	}
	t, ok := ctx.Value(triggerKey{}).(Trigger)
	return t, ok
}
