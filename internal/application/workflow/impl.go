package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/garyjia/koe-workflow/internal/application/dispatcher"
	"github.com/garyjia/koe-workflow/internal/application/port"
	"github.com/garyjia/koe-workflow/internal/domain/entity"
	"github.com/garyjia/koe-workflow/internal/domain/event"
	"github.com/garyjia/koe-workflow/internal/domain/transition"
	domainwf "github.com/garyjia/koe-workflow/internal/domain/workflow"
)

type resultKey struct{}

// requiresRevision reads the pending transition result carried by the fire context
func requiresRevision(ctx context.Context) bool {
	r, ok := ctx.Value(resultKey{}).(transition.Result)
	return ok && r.RequiresRevision
}

// engineImpl is the concrete implementation of CaseEngine
type engineImpl struct {
	caseRepo    port.CaseRepository
	historyRepo port.CaseHistoryRepository
	txManager   port.TransactionManager
	dispatcher  dispatcher.Dispatcher
	now         func() time.Time

	// Cache state machines per case
	mu          sync.RWMutex
	machines    map[string]domainwf.StateMachine
	lastAccess  map[string]time.Time
	cacheExpiry time.Duration
}

// EngineOption configures the case engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the event dispatcher for emitting events
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithCacheExpiry sets the cache expiry duration for state machines
func WithCacheExpiry(expiry time.Duration) EngineOption {
	return func(e *engineImpl) {
		e.cacheExpiry = expiry
	}
}

// WithClock overrides the time source used for history records
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// NewEngine creates a new case engine
func NewEngine(
	caseRepo port.CaseRepository,
	historyRepo port.CaseHistoryRepository,
	txManager port.TransactionManager,
	opts ...EngineOption,
) CaseEngine {
	e := &engineImpl{
		caseRepo:    caseRepo,
		historyRepo: historyRepo,
		txManager:   txManager,
		now:         time.Now,
		machines:    make(map[string]domainwf.StateMachine),
		lastAccess:  make(map[string]time.Time),
		cacheExpiry: 30 * time.Minute,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// GetStateMachine returns the phase machine for a case (creates if not cached)
func (e *engineImpl) GetStateMachine(ctx context.Context, caseID string) (domainwf.StateMachine, error) {
	e.mu.RLock()
	machine, exists := e.machines[caseID]
	lastAccess := e.lastAccess[caseID]
	e.mu.RUnlock()

	if exists && e.now().Sub(lastAccess) < e.cacheExpiry {
		e.mu.Lock()
		e.lastAccess[caseID] = e.now()
		e.mu.Unlock()
		return machine, nil
	}

	c, err := e.loadCase(ctx, caseID)
	if err != nil {
		return nil, err
	}

	machine, err = domainwf.NewCaseMachine(c.Mode, requiresRevision)
	if err != nil {
		return nil, fmt.Errorf("invalid mode %q on case %s: %w", c.Mode, caseID, err)
	}

	e.mu.Lock()
	e.machines[caseID] = machine
	e.lastAccess[caseID] = e.now()
	e.mu.Unlock()

	return machine, nil
}

// GetCurrentState returns the current phase of a case
func (e *engineImpl) GetCurrentState(ctx context.Context, caseID string) (domainwf.State, error) {
	machine, err := e.GetStateMachine(ctx, caseID)
	if err != nil {
		return "", err
	}
	return machine.State(), nil
}

// Preview computes the transition for mode without persisting anything
func (e *engineImpl) Preview(ctx context.Context, caseID string, mode entity.CaseMode, state entity.CaseState) (transition.Result, error) {
	trigger, err := domainwf.TriggerForMode(mode)
	if err != nil {
		return transition.Result{}, fmt.Errorf("no submission in mode %q: %w", mode, err)
	}

	machine, err := e.GetStateMachine(ctx, caseID)
	if err != nil {
		return transition.Result{}, err
	}
	if !machine.CanFire(trigger) {
		return transition.Result{}, fmt.Errorf("%w: trigger %s from state %s", domainwf.ErrInvalidTransition, trigger, machine.State())
	}

	return transition.Compute(mode, state)
}

// Apply computes and persists the transition for a submission made in mode
func (e *engineImpl) Apply(ctx context.Context, caseID string, mode entity.CaseMode, actor entity.Actor, state entity.CaseState, steps ...TxStep) (transition.Result, error) {
	trigger, err := domainwf.TriggerForMode(mode)
	if err != nil {
		return transition.Result{}, fmt.Errorf("no submission in mode %q: %w", mode, err)
	}

	result, err := transition.Compute(mode, state)
	if err != nil {
		return transition.Result{}, err
	}

	if err := e.fire(ctx, caseID, actor, trigger, result, steps); err != nil {
		return transition.Result{}, err
	}
	return result, nil
}

// Accept closes a case in revision when the contractor accepts the owner's position
func (e *engineImpl) Accept(ctx context.Context, caseID string, actor entity.Actor, steps ...TxStep) (transition.Result, error) {
	result := transition.Accepted()
	if err := e.fire(ctx, caseID, actor, domainwf.TriggerAccept, result, steps); err != nil {
		return transition.Result{}, err
	}
	return result, nil
}

func (e *engineImpl) fire(ctx context.Context, caseID string, actor entity.Actor, trigger domainwf.Trigger, result transition.Result, steps []TxStep) error {
	machine, err := e.GetStateMachine(ctx, caseID)
	if err != nil {
		return err
	}

	previousState := machine.State()
	if !machine.CanFire(trigger) {
		return fmt.Errorf("%w: trigger %s from state %s", domainwf.ErrInvalidTransition, trigger, previousState)
	}

	var previous *entity.Case
	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		previous, err = e.loadCase(txCtx, caseID)
		if err != nil {
			return err
		}

		for _, step := range steps {
			if err := step(txCtx); err != nil {
				return err
			}
		}

		if err := machine.Fire(context.WithValue(txCtx, resultKey{}, result), trigger); err != nil {
			return fmt.Errorf("state machine fire failed: %w", err)
		}

		newMode := domainwf.ModeForState(machine.State())
		if newMode != result.NextMode {
			return fmt.Errorf("%w: machine reached %s but transition expects mode %s", domainwf.ErrGuardFailed, machine.State(), result.NextMode)
		}

		if err := e.caseRepo.UpdateStatus(txCtx, caseID, result.NextStatus, newMode); err != nil {
			return fmt.Errorf("failed to update case status: %w", err)
		}

		history := &entity.CaseHistory{
			CaseID:         caseID,
			ActorID:        actorID(actor),
			PreviousStatus: previous.Status,
			NewStatus:      result.NextStatus,
			PreviousMode:   previous.Mode,
			NewMode:        newMode,
			Trigger:        trigger.String(),
			Timestamp:      e.now(),
		}
		if err := e.historyRepo.Create(txCtx, history); err != nil {
			return fmt.Errorf("failed to create history record: %w", err)
		}

		return nil
	})

	// The cached machine may have advanced even if the transaction rolled back
	e.invalidate(caseID)

	if err != nil {
		return err
	}

	if e.dispatcher != nil {
		statusEvent := event.NewEvent(
			event.TypeCaseStatusChanged,
			caseID,
			map[string]any{
				"previous_status":   previous.Status.String(),
				"new_status":        result.NextStatus.String(),
				"previous_mode":     previous.Mode.String(),
				"new_mode":          result.NextMode.String(),
				"trigger":           trigger.String(),
				"requires_revision": result.RequiresRevision,
				"actor_id":          actor.ID,
			},
		)
		e.dispatcher.DispatchAsync(ctx, statusEvent)
	}

	return nil
}

func (e *engineImpl) loadCase(ctx context.Context, caseID string) (*entity.Case, error) {
	c, err := e.caseRepo.GetByID(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch case: %w", err)
	}
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrCaseNotFound, caseID)
	}
	return c, nil
}

func (e *engineImpl) invalidate(caseID string) {
	e.mu.Lock()
	delete(e.machines, caseID)
	delete(e.lastAccess, caseID)
	e.mu.Unlock()
}

func actorID(a entity.Actor) string {
	if a.ID == "" {
		return "system"
	}
	return a.ID
}
