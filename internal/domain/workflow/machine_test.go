package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/garyjia/koe-workflow/internal/domain/entity"
)

func guard(v bool) GuardFunc {
	return func(ctx context.Context) bool { return v }
}

func TestState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    State
		expected bool
	}{
		{StateVarsel, false},
		{StateKoe, false},
		{StateSvar, false},
		{StateRevidering, false},
		{StateFerdig, true},
		{StatePakkePending, false},
		{StatePakkeApproved, true},
		{StatePakkeRejected, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := tt.state.IsTerminal(); got != tt.expected {
				t.Errorf("State.IsTerminal() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestState_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		state    State
		expected bool
	}{
		{"case state", StateSvar, true},
		{"pakke state", StatePakkeRejected, true},
		{"invalid state", State("INVALID"), false},
		{"empty state", State(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsValid(); got != tt.expected {
				t.Errorf("State.IsValid() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestStateForMode(t *testing.T) {
	tests := []struct {
		mode    entity.CaseMode
		want    State
		wantErr bool
	}{
		{entity.ModeVarsel, StateVarsel, false},
		{entity.ModeUnset, StateKoe, false},
		{entity.ModeKoe, StateKoe, false},
		{entity.ModeSvar, StateSvar, false},
		{entity.ModeRevidering, StateRevidering, false},
		{entity.ModeFerdig, StateFerdig, false},
		{entity.CaseMode("bogus"), "", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			got, err := StateForMode(tt.mode)
			if (err != nil) != tt.wantErr {
				t.Fatalf("StateForMode() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("StateForMode() = %v, want %v", got, tt.want)
			}
			if !tt.wantErr && tt.mode != entity.ModeUnset && ModeForState(got) != tt.mode {
				t.Errorf("ModeForState(%v) = %v, want %v", got, ModeForState(got), tt.mode)
			}
		})
	}
}

func TestBuilder_Configure(t *testing.T) {
	builder := NewBuilder()

	config := builder.Configure(StateKoe)
	if config == nil {
		t.Fatal("Configure() returned nil")
	}

	if config2 := builder.Configure(StateKoe); config != config2 {
		t.Error("Configure() should return same config for same state")
	}
}

func TestBuilder_ConfigurePanicsOnInvalidState(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Configure() should panic on invalid state")
		}
	}()

	NewBuilder().Configure(State("INVALID"))
}

func TestBuilder_BuildPanicsOnInvalidInitialState(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Build() should panic on invalid initial state")
		}
	}()

	NewBuilder().Build(State("INVALID"))
}

func TestStateConfiguration_PermitIf_GuardFails(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StateKoe).
		PermitIf(TriggerSubmitKoe, StateSvar, guard(false))

	machine := builder.Build(StateKoe)

	err := machine.Fire(context.Background(), TriggerSubmitKoe)
	if !errors.Is(err, ErrGuardFailed) {
		t.Fatalf("Fire() error = %v, want %v", err, ErrGuardFailed)
	}
	if machine.State() != StateKoe {
		t.Errorf("State should remain %v after failed Fire(), got %v", StateKoe, machine.State())
	}
}

func TestStateMachine_Fire_InvalidTransition(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StateKoe).Permit(TriggerSubmitKoe, StateSvar)

	machine := builder.Build(StateKoe)

	err := machine.Fire(context.Background(), TriggerSubmitSvar)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Fire() error = %v, want %v", err, ErrInvalidTransition)
	}
	if machine.CanFire(TriggerSubmitSvar) {
		t.Error("CanFire() should be false for unconfigured trigger")
	}
}

func TestStateMachine_Fire_TerminalState(t *testing.T) {
	machine := NewBuilder().Build(StateFerdig)

	err := machine.Fire(context.Background(), TriggerSubmitRevision)
	if !errors.Is(err, ErrTerminalState) {
		t.Fatalf("Fire() error = %v, want %v", err, ErrTerminalState)
	}
	if len(machine.PermittedTriggers()) != 0 {
		t.Error("terminal state should permit no triggers")
	}
}

func TestStateMachine_Independence(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StateKoe).Permit(TriggerSubmitKoe, StateSvar)

	machine1 := builder.Build(StateKoe)
	machine2 := builder.Build(StateKoe)

	if err := machine1.Fire(context.Background(), TriggerSubmitKoe); err != nil {
		t.Fatalf("Fire() failed: %v", err)
	}
	if machine2.State() != StateKoe {
		t.Errorf("machine2 state = %v, want %v", machine2.State(), StateKoe)
	}
}

func TestCaseMachine_Paths(t *testing.T) {
	tests := []struct {
		name     string
		start    entity.CaseMode
		revision bool
		triggers []Trigger
		want     State
	}{
		{"varsel then koe", entity.ModeVarsel, false, []Trigger{TriggerSubmitVarsel, TriggerSubmitKoe}, StateSvar},
		{"koe without varsel", entity.ModeVarsel, false, []Trigger{TriggerSubmitKoe}, StateSvar},
		{"unset mode behaves as koe", entity.ModeUnset, false, []Trigger{TriggerSubmitKoe}, StateSvar},
		{"svar requiring revision", entity.ModeSvar, true, []Trigger{TriggerSubmitSvar}, StateRevidering},
		{"svar finalizing", entity.ModeSvar, false, []Trigger{TriggerSubmitSvar}, StateFerdig},
		{"revision round", entity.ModeRevidering, true, []Trigger{TriggerSubmitRevision, TriggerSubmitSvar}, StateRevidering},
		{"contractor accepts", entity.ModeRevidering, false, []Trigger{TriggerAccept}, StateFerdig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			machine, err := NewCaseMachine(tt.start, guard(tt.revision))
			if err != nil {
				t.Fatalf("NewCaseMachine() error = %v", err)
			}
			for _, trigger := range tt.triggers {
				if err := machine.Fire(context.Background(), trigger); err != nil {
					t.Fatalf("Fire(%v) failed: %v", trigger, err)
				}
			}
			if machine.State() != tt.want {
				t.Errorf("State = %v, want %v", machine.State(), tt.want)
			}
		})
	}
}

func TestCaseMachine_RejectsOutOfOrderSubmission(t *testing.T) {
	machine, err := NewCaseMachine(entity.ModeKoe, guard(false))
	if err != nil {
		t.Fatalf("NewCaseMachine() error = %v", err)
	}

	if err := machine.Fire(context.Background(), TriggerSubmitSvar); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Fire(SubmitSvar) from KOE error = %v, want %v", err, ErrInvalidTransition)
	}
}

func TestPakkeMachine(t *testing.T) {
	tests := []struct {
		name    string
		last    bool
		trigger Trigger
		want    State
	}{
		{"intermediate approval", false, TriggerApproveStep, StatePakkePending},
		{"final approval", true, TriggerApproveStep, StatePakkeApproved},
		{"rejection", false, TriggerRejectStep, StatePakkeRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			machine, err := NewPakkeMachine(entity.PakkePending, guard(tt.last))
			if err != nil {
				t.Fatalf("NewPakkeMachine() error = %v", err)
			}
			if err := machine.Fire(context.Background(), tt.trigger); err != nil {
				t.Fatalf("Fire() failed: %v", err)
			}
			if machine.State() != tt.want {
				t.Errorf("State = %v, want %v", machine.State(), tt.want)
			}
			if PakkeStatusForState(machine.State()) == "" {
				t.Error("PakkeStatusForState returned empty status")
			}
		})
	}
}

func TestPakkeMachine_TerminalRefusesSteps(t *testing.T) {
	machine, err := NewPakkeMachine(entity.PakkeRejected, guard(true))
	if err != nil {
		t.Fatalf("NewPakkeMachine() error = %v", err)
	}

	if err := machine.Fire(context.Background(), TriggerApproveStep); !errors.Is(err, ErrTerminalState) {
		t.Errorf("Fire() error = %v, want %v", err, ErrTerminalState)
	}
}

func TestTriggerForMode(t *testing.T) {
	tests := []struct {
		mode entity.CaseMode
		want Trigger
	}{
		{entity.ModeVarsel, TriggerSubmitVarsel},
		{entity.ModeUnset, TriggerSubmitKoe},
		{entity.ModeKoe, TriggerSubmitKoe},
		{entity.ModeSvar, TriggerSubmitSvar},
		{entity.ModeRevidering, TriggerSubmitRevision},
	}

	for _, tt := range tests {
		got, err := TriggerForMode(tt.mode)
		if err != nil || got != tt.want {
			t.Errorf("TriggerForMode(%q) = %v, %v; want %v", tt.mode, got, err, tt.want)
		}
	}

	if _, err := TriggerForMode(entity.ModeFerdig); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("TriggerForMode(ferdig) error = %v, want %v", err, ErrInvalidTransition)
	}
}
