// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package workflow

import (
	"fmt"

	"github.com/AleutianAI/soapgen/services/generator/task"
)

// StateMachine holds the legal run state transitions:
//
//	(start)          → SELECTING_PROMPT : run begins
//	SELECTING_PROMPT → GENERATING       : prompt rendered, attempt counted
//	GENERATING       → COMPLETED        : usable output recorded
//	GENERATING       → FAILED           : call failed or output unusable
//
// COMPLETED and FAILED have no outgoing transitions within a run. The next
// run starts again from SELECTING_PROMPT.
//
// Thread Safety:
//
//	StateMachine is immutable after construction and safe for concurrent use.
type StateMachine struct {
	transitions map[task.RunState]map[task.RunState]bool
}

// NewStateMachine creates a state machine with all valid transitions.
func NewStateMachine() *StateMachine {
	sm := &StateMachine{transitions: make(map[task.RunState]map[task.RunState]bool)}

	// The empty state is a fresh snapshot; terminal states are snapshots
	// from a previous run.
	sm.addTransition("", task.RunStateSelectingPrompt)
	sm.addTransition(task.RunStateCompleted, task.RunStateSelectingPrompt)
	sm.addTransition(task.RunStateFailed, task.RunStateSelectingPrompt)

	sm.addTransition(task.RunStateSelectingPrompt, task.RunStateGenerating)
	sm.addTransition(task.RunStateGenerating, task.RunStateCompleted)
	sm.addTransition(task.RunStateGenerating, task.RunStateFailed)
	return sm
}

func (sm *StateMachine) addTransition(from, to task.RunState) {
	if sm.transitions[from] == nil {
		sm.transitions[from] = make(map[task.RunState]bool)
	}
	sm.transitions[from][to] = true
}

// CanTransition reports whether from → to is legal.
func (sm *StateMachine) CanTransition(from, to task.RunState) bool {
	return sm.transitions[from][to]
}

// Transition moves s to the target state.
//
// Outputs:
//
//	error - ErrInvalidTransition if the transition is not allowed
func (sm *StateMachine) Transition(s *task.State, to task.RunState) error {
	if !sm.CanTransition(s.RunState, to) {
		return fmt.Errorf("%w: %q -> %q", ErrInvalidTransition, s.RunState, to)
	}
	s.RunState = to
	return nil
}
