package input

import "testing"

func TestPressedStateUpdate(t *testing.T) {
	var state PressedState

	if !state.Update(KeyA, true) {
		t.Error("first press reported as duplicate")
	}
	if state.Update(KeyA, true) {
		t.Error("repeat press not suppressed")
	}
	if !state.IsPressed(KeyA) {
		t.Error("key not tracked as pressed")
	}

	if !state.Update(KeyA, false) {
		t.Error("release reported as duplicate")
	}
	if state.Update(KeyA, false) {
		t.Error("repeat release not suppressed")
	}
	if state.IsPressed(KeyA) {
		t.Error("key still pressed after release")
	}
}

func TestPressedStateOutOfRange(t *testing.T) {
	var state PressedState

	if state.Update(10_000, true) {
		t.Error("out-of-range code accepted")
	}
	if state.IsPressed(10_000) {
		t.Error("out-of-range code reported pressed")
	}
}
