package strategy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/erp/recurring-billing/internal/domain/billing"
	"github.com/erp/recurring-billing/internal/domain/shared"
	"github.com/erp/recurring-billing/internal/domain/shared/strategy"
)

// StrategyRegistry maps strategy names to billing schedule factories,
// subscription types and proraters.
type StrategyRegistry struct {
	mu                sync.RWMutex
	scheduleFactories map[string]billing.ScheduleStrategyFactory
	subscriptionTypes map[string]billing.SubscriptionType
	proraters         map[string]billing.Prorater
	defaults          map[strategy.StrategyType]string
}

// NewStrategyRegistry creates a new strategy registry
func NewStrategyRegistry() *StrategyRegistry {
	return &StrategyRegistry{
		scheduleFactories: make(map[string]billing.ScheduleStrategyFactory),
		subscriptionTypes: make(map[string]billing.SubscriptionType),
		proraters:         make(map[string]billing.Prorater),
		defaults:          make(map[strategy.StrategyType]string),
	}
}

// RegisterScheduleFactory registers a billing schedule strategy factory
func (r *StrategyRegistry) RegisterScheduleFactory(name string, factory billing.ScheduleStrategyFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" || factory == nil {
		return fmt.Errorf("%w: schedule strategy name and factory are required", shared.ErrInvalidInput)
	}
	if _, exists := r.scheduleFactories[name]; exists {
		return fmt.Errorf("%w: schedule strategy '%s' already registered", shared.ErrAlreadyExists, name)
	}
	r.scheduleFactories[name] = factory
	return nil
}

// NewScheduleStrategy builds the named schedule strategy from its configuration,
// or the default strategy if name is empty
func (r *StrategyRegistry) NewScheduleStrategy(name string, config map[string]any) (billing.BillingScheduleStrategy, error) {
	r.mu.RLock()
	if name == "" {
		name = r.defaults[strategy.StrategyTypeBillingSchedule]
	}
	factory, exists := r.scheduleFactories[name]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: schedule strategy '%s' not found", shared.ErrNotFound, name)
	}
	s, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("configure schedule strategy '%s': %w", name, err)
	}
	return s, nil
}

// ScheduleStrategyFor resolves the strategy configured on a billing schedule
func (r *StrategyRegistry) ScheduleStrategyFor(schedule *billing.BillingSchedule) (billing.BillingScheduleStrategy, error) {
	return r.NewScheduleStrategy(schedule.StrategyID, schedule.StrategyConfig)
}

// ListScheduleStrategies returns all registered schedule strategy names
func (r *StrategyRegistry) ListScheduleStrategies() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.scheduleFactories)
}

// UnregisterScheduleFactory removes a schedule strategy factory
func (r *StrategyRegistry) UnregisterScheduleFactory(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.scheduleFactories[name]; !exists {
		return fmt.Errorf("%w: schedule strategy '%s' not found", shared.ErrNotFound, name)
	}
	delete(r.scheduleFactories, name)

	// Clear default if it was this strategy
	if r.defaults[strategy.StrategyTypeBillingSchedule] == name {
		delete(r.defaults, strategy.StrategyTypeBillingSchedule)
	}
	return nil
}

// RegisterSubscriptionType registers a subscription type
func (r *StrategyRegistry) RegisterSubscriptionType(t billing.SubscriptionType) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if _, exists := r.subscriptionTypes[name]; exists {
		return fmt.Errorf("%w: subscription type '%s' already registered", shared.ErrAlreadyExists, name)
	}
	r.subscriptionTypes[name] = t
	return nil
}

// GetSubscriptionType returns a subscription type by name, or the default if name is empty
func (r *StrategyRegistry) GetSubscriptionType(name string) (billing.SubscriptionType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name == "" {
		name = r.defaults[strategy.StrategyTypeSubscriptionType]
		if name == "" {
			return nil, fmt.Errorf("%w: no default subscription type set", shared.ErrNotFound)
		}
	}

	t, exists := r.subscriptionTypes[name]
	if !exists {
		return nil, fmt.Errorf("%w: subscription type '%s' not found", shared.ErrNotFound, name)
	}
	return t, nil
}

// ListSubscriptionTypes returns all registered subscription type names
func (r *StrategyRegistry) ListSubscriptionTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.subscriptionTypes)
}

// UnregisterSubscriptionType removes a subscription type
func (r *StrategyRegistry) UnregisterSubscriptionType(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.subscriptionTypes[name]; !exists {
		return fmt.Errorf("%w: subscription type '%s' not found", shared.ErrNotFound, name)
	}
	delete(r.subscriptionTypes, name)

	if r.defaults[strategy.StrategyTypeSubscriptionType] == name {
		delete(r.defaults, strategy.StrategyTypeSubscriptionType)
	}
	return nil
}

// RegisterProrater registers a prorater
func (r *StrategyRegistry) RegisterProrater(p billing.Prorater) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if _, exists := r.proraters[name]; exists {
		return fmt.Errorf("%w: prorater '%s' already registered", shared.ErrAlreadyExists, name)
	}
	r.proraters[name] = p
	return nil
}

// GetProrater returns a prorater by name, or the default if name is empty
func (r *StrategyRegistry) GetProrater(name string) (billing.Prorater, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name == "" {
		name = r.defaults[strategy.StrategyTypeProrater]
		if name == "" {
			return nil, fmt.Errorf("%w: no default prorater set", shared.ErrNotFound)
		}
	}

	p, exists := r.proraters[name]
	if !exists {
		return nil, fmt.Errorf("%w: prorater '%s' not found", shared.ErrNotFound, name)
	}
	return p, nil
}

// GetProraterOrDefault returns a prorater by name, or the default if not found
func (r *StrategyRegistry) GetProraterOrDefault(name string) billing.Prorater {
	p, err := r.GetProrater(name)
	if err != nil {
		p, _ = r.GetProrater("")
	}
	return p
}

// ListProraters returns all registered prorater names
func (r *StrategyRegistry) ListProraters() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.proraters)
}

// UnregisterProrater removes a prorater
func (r *StrategyRegistry) UnregisterProrater(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.proraters[name]; !exists {
		return fmt.Errorf("%w: prorater '%s' not found", shared.ErrNotFound, name)
	}
	delete(r.proraters, name)

	if r.defaults[strategy.StrategyTypeProrater] == name {
		delete(r.defaults, strategy.StrategyTypeProrater)
	}
	return nil
}

// SetDefault sets the default strategy for a strategy type
func (r *StrategyRegistry) SetDefault(strategyType strategy.StrategyType, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isRegisteredLocked(strategyType, name) {
		return fmt.Errorf("%w: strategy '%s' of type '%s' not found", shared.ErrNotFound, name, strategyType)
	}

	r.defaults[strategyType] = name
	return nil
}

// GetDefault returns the default strategy name for a strategy type
func (r *StrategyRegistry) GetDefault(strategyType strategy.StrategyType) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaults[strategyType]
}

// HasDefault returns true if a default is set for the strategy type
func (r *StrategyRegistry) HasDefault(strategyType strategy.StrategyType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaults[strategyType] != ""
}

// IsRegistered returns true if a strategy with the given name is registered for the type
func (r *StrategyRegistry) IsRegistered(strategyType strategy.StrategyType, name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isRegisteredLocked(strategyType, name)
}

// isRegisteredLocked checks registration without locking (caller must hold lock)
func (r *StrategyRegistry) isRegisteredLocked(strategyType strategy.StrategyType, name string) bool {
	switch strategyType {
	case strategy.StrategyTypeBillingSchedule:
		_, exists := r.scheduleFactories[name]
		return exists
	case strategy.StrategyTypeSubscriptionType:
		_, exists := r.subscriptionTypes[name]
		return exists
	case strategy.StrategyTypeProrater:
		_, exists := r.proraters[name]
		return exists
	default:
		return false
	}
}

// Stats returns registration counts for each strategy type
func (r *StrategyRegistry) Stats() map[strategy.StrategyType]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[strategy.StrategyType]int{
		strategy.StrategyTypeBillingSchedule:  len(r.scheduleFactories),
		strategy.StrategyTypeSubscriptionType: len(r.subscriptionTypes),
		strategy.StrategyTypeProrater:         len(r.proraters),
	}
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
