package event

import (
	"strings"
	"sync"

	"github.com/erp/recurring-billing/internal/domain/shared"
)

// HandlerRegistry maps event types to handlers.
//
// A subscription is one of:
//   - an exact event type, e.g. "recurring_order.paid"
//   - a prefix ending in ".*", e.g. "subscription.*"
//   - nothing, which receives every event
type HandlerRegistry struct {
	mu       sync.RWMutex
	exact    map[string][]shared.EventHandler
	prefixes map[string][]shared.EventHandler // "subscription." -> handlers
	wildcard []shared.EventHandler
}

// NewHandlerRegistry creates a new handler registry
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		exact:    make(map[string][]shared.EventHandler),
		prefixes: make(map[string][]shared.EventHandler),
	}
}

// Register adds a handler for the given event types or prefixes
func (r *HandlerRegistry) Register(handler shared.EventHandler, eventTypes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(eventTypes) == 0 {
		r.wildcard = append(r.wildcard, handler)
		return
	}
	for _, eventType := range eventTypes {
		if prefix, ok := strings.CutSuffix(eventType, "*"); ok {
			if prefix == "" {
				r.wildcard = append(r.wildcard, handler)
				continue
			}
			r.prefixes[prefix] = append(r.prefixes[prefix], handler)
			continue
		}
		r.exact[eventType] = append(r.exact[eventType], handler)
	}
}

// Unregister removes a handler from every subscription
func (r *HandlerRegistry) Unregister(handler shared.EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.wildcard = removeHandler(r.wildcard, handler)
	pruneHandler(r.exact, handler)
	pruneHandler(r.prefixes, handler)
}

// GetHandlers returns the handlers that receive eventType. A handler that
// matches through more than one subscription is returned once.
func (r *HandlerRegistry) GetHandlers(eventType string) []shared.EventHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []shared.EventHandler
	seen := make(map[shared.EventHandler]bool)
	add := func(handlers []shared.EventHandler) {
		for _, h := range handlers {
			if !seen[h] {
				seen[h] = true
				result = append(result, h)
			}
		}
	}

	add(r.exact[eventType])
	for prefix, handlers := range r.prefixes {
		if strings.HasPrefix(eventType, prefix) {
			add(handlers)
		}
	}
	add(r.wildcard)
	return result
}

// Len returns the number of distinct registered handlers
func (r *HandlerRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[shared.EventHandler]bool)
	for _, h := range r.wildcard {
		seen[h] = true
	}
	for _, m := range []map[string][]shared.EventHandler{r.exact, r.prefixes} {
		for _, handlers := range m {
			for _, h := range handlers {
				seen[h] = true
			}
		}
	}
	return len(seen)
}

func pruneHandler(m map[string][]shared.EventHandler, target shared.EventHandler) {
	for key, handlers := range m {
		m[key] = removeHandler(handlers, target)
		if len(m[key]) == 0 {
			delete(m, key)
		}
	}
}

func removeHandler(handlers []shared.EventHandler, target shared.EventHandler) []shared.EventHandler {
	result := make([]shared.EventHandler, 0, len(handlers))
	for _, h := range handlers {
		if h != target {
			result = append(result, h)
		}
	}
	return result
}
