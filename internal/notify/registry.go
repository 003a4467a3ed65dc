// Package notify fans notification events out to the configured sinks.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ariefcatur/go-fresh-market/internal/domain"
	"go.uber.org/zap"
)

// Registry is the process-wide set of sinks. Build one in main and pass it
// to the components that emit events.
type Registry struct {
	mu    sync.RWMutex
	names []string
	sinks map[string]domain.Notifier
}

func NewRegistry() *Registry {
	return &Registry{sinks: map[string]domain.Notifier{}}
}

// Register adds or replaces a named sink.
func (r *Registry) Register(name string, n domain.Notifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sinks[name]; !ok {
		r.names = append(r.names, name)
	}
	r.sinks[name] = n
}

func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sinks[name]; !ok {
		return
	}
	delete(r.sinks, name)
	for i, n := range r.names {
		if n == name {
			r.names = append(r.names[:i], r.names[i+1:]...)
			break
		}
	}
}

// Sinks returns the registered sink names in registration order.
func (r *Registry) Sinks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.names...)
}

// Notify hands ev to every sink. One failing sink does not stop the others.
func (r *Registry) Notify(ctx context.Context, ev domain.Event) error {
	r.mu.RLock()
	names := append([]string(nil), r.names...)
	sinks := make([]domain.Notifier, 0, len(names))
	for _, n := range names {
		sinks = append(sinks, r.sinks[n])
	}
	r.mu.RUnlock()

	var errs []error
	for i, s := range sinks {
		if err := s.Notify(ctx, ev); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", names[i], err))
		}
	}
	return errors.Join(errs...)
}

// LogSink writes events to the structured log.
type LogSink struct {
	Log *zap.Logger
}

func (s LogSink) Notify(_ context.Context, ev domain.Event) error {
	s.Log.Info("notification",
		zap.String("type", string(ev.Type)),
		zap.String("recipient", ev.Recipient),
		zap.String("order_id", ev.OrderID),
		zap.String("product_id", ev.ProductID),
		zap.Any("metadata", ev.Metadata),
	)
	return nil
}
