// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gate

import (
	"sync"
	"testing"
	"time"

	"github.com/onyxgate/gated/command"
)

type fakeHAL struct {
	mu          sync.Mutex
	limitOpen   bool
	limitClosed bool
	motorOpen   bool
	motorClose  bool
	lamp        bool
}

func (h *fakeHAL) LimitOpen() (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.limitOpen, nil
}

func (h *fakeHAL) LimitClosed() (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.limitClosed, nil
}

func (h *fakeHAL) SetMotorOpen(on bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.motorOpen = on
	return nil
}

func (h *fakeHAL) SetMotorClose(on bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.motorClose = on
	return nil
}

func (h *fakeHAL) SetLamp(on bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lamp = on
	return nil
}

func (h *fakeHAL) setLimits(open, closed bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.limitOpen = open
	h.limitClosed = closed
}

type fakeSink struct {
	mu      sync.Mutex
	updates []Status
	changes []Status
}

func (s *fakeSink) UpdateStatus(st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, st)
}

func (s *fakeSink) NotifyChange(st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changes = append(s.changes, st)
}

func (s *fakeSink) changeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.changes)
}

func (s *fakeSink) lastChange() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changes[len(s.changes)-1]
}

func newTestFSM(hal HAL) *FSM {
	return New(hal, command.NewQueue(), &fakeSink{})
}

func TestColdStartClassifiesClosed(t *testing.T) {
	hal := &fakeHAL{limitClosed: true}
	f := newTestFSM(hal)
	if err := f.step(); err != nil {
		t.Fatalf("step() error: %v", err)
	}
	if f.State() != StateClosed {
		t.Fatalf("State() = %v, want StateClosed", f.State())
	}
	if f.errCode != ErrOK {
		t.Fatalf("errCode = %v, want ErrOK", f.errCode)
	}
}

func TestColdStartClassifiesOpen(t *testing.T) {
	hal := &fakeHAL{limitOpen: true}
	f := newTestFSM(hal)
	f.step()
	if f.State() != StateOpen {
		t.Fatalf("State() = %v, want StateOpen", f.State())
	}
}

func TestColdStartClassifiesUnknown(t *testing.T) {
	hal := &fakeHAL{}
	f := newTestFSM(hal)
	f.step()
	if f.State() != StateUnknown {
		t.Fatalf("State() = %v, want StateUnknown", f.State())
	}
}

func TestBothLimitsAssertedEntersError(t *testing.T) {
	hal := &fakeHAL{limitOpen: true, limitClosed: true}
	f := newTestFSM(hal)
	f.step()
	if f.State() != StateError {
		t.Fatalf("State() = %v, want StateError", f.State())
	}
	if f.errCode != ErrLSInconsistent {
		t.Fatalf("errCode = %v, want ErrLSInconsistent", f.errCode)
	}
	if hal.motorOpen || hal.motorClose {
		t.Fatalf("motor outputs must be de-energized on LS_INCONSISTENT")
	}
}

func TestOpenCommandFromClosedEnergizesMotor(t *testing.T) {
	hal := &fakeHAL{limitClosed: true}
	f := newTestFSM(hal)
	f.step() // classify CLOSED
	f.queue.Enqueue(command.Open)
	f.step()
	if f.State() != StateOpening {
		t.Fatalf("State() = %v, want StateOpening", f.State())
	}
	if !hal.motorOpen {
		t.Fatalf("motor_open should be energized while OPENING")
	}
	if hal.motorClose {
		t.Fatalf("invariant violated: motor_opening and motor_closing both asserted")
	}

	hal.setLimits(true, false)
	f.step()
	if f.State() != StateOpen {
		t.Fatalf("State() = %v, want StateOpen after limit_open asserts", f.State())
	}
	if hal.motorOpen {
		t.Fatalf("motor_open should be de-energized on reaching the limit")
	}
}

func TestRepeatedOpenWhileOpenIsIdempotent(t *testing.T) {
	hal := &fakeHAL{limitOpen: true}
	f := newTestFSM(hal)
	f.step()
	sink := f.sink.(*fakeSink)
	before := sink.changeCount()

	f.queue.Enqueue(command.Open)
	f.step()

	if f.State() != StateOpen {
		t.Fatalf("State() = %v, want StateOpen unchanged", f.State())
	}
	if sink.changeCount() != before {
		t.Fatalf("repeated OPEN while OPEN must not publish a transition, changeCount = %d, want %d", sink.changeCount(), before)
	}
}

func TestReversalDuringOpeningSwitchesDirection(t *testing.T) {
	hal := &fakeHAL{limitClosed: true}
	f := newTestFSM(hal)
	f.step()
	f.queue.Enqueue(command.Open)
	f.step()
	if f.State() != StateOpening {
		t.Fatalf("precondition: State() = %v, want StateOpening", f.State())
	}

	f.applyCommand(command.Close)

	if f.State() != StateClosing {
		t.Fatalf("State() = %v, want StateClosing after reversal", f.State())
	}
	if hal.motorOpen {
		t.Fatalf("motor_open must be de-energized after reversing to close")
	}
	if !hal.motorClose {
		t.Fatalf("motor_close must be energized after reversing to close")
	}
}

func TestMotionTimeoutEntersErrorPastDeadline(t *testing.T) {
	hal := &fakeHAL{}
	f := newTestFSM(hal)
	f.state = StateOpening
	f.motorOpening = true
	hal.motorOpen = true
	f.deadline = time.Now().Add(-1 * time.Millisecond)

	f.applyPositionTransition()

	if f.State() != StateError {
		t.Fatalf("State() = %v, want StateError on expired deadline", f.State())
	}
	if f.errCode != ErrTimeoutOpen {
		t.Fatalf("errCode = %v, want ErrTimeoutOpen", f.errCode)
	}
	if hal.motorOpen {
		t.Fatalf("motor_open must be de-energized on timeout")
	}
}

func TestMotionAtExactDeadlineIsNotATimeout(t *testing.T) {
	hal := &fakeHAL{limitOpen: true}
	f := newTestFSM(hal)
	f.state = StateOpening
	f.limitOpen = true
	f.deadline = time.Now() // boundary: strictly-greater-than comparison

	f.applyPositionTransition()

	if f.State() != StateOpen {
		t.Fatalf("reaching the limit exactly at the deadline must transition to OPEN, got %v", f.State())
	}
	if f.errCode == ErrTimeoutOpen {
		t.Fatalf("boundary deadline must not be treated as a timeout")
	}
}

func TestToggleFromStoppedUsesLimitClosed(t *testing.T) {
	hal := &fakeHAL{}
	f := newTestFSM(hal)
	f.state = StateStopped
	f.limitClosed = true

	f.applyCommand(command.Toggle)

	if f.State() != StateOpening {
		t.Fatalf("TOGGLE from STOPPED while closed should open, got %v", f.State())
	}
}

func TestLampCommandsApplyRegardlessOfState(t *testing.T) {
	hal := &fakeHAL{}
	f := newTestFSM(hal)
	f.state = StateError

	f.applyCommand(command.LampOn)
	if !hal.lamp {
		t.Fatalf("LAMP_ON must energize the lamp even in ERROR")
	}
	f.applyCommand(command.LampOff)
	if hal.lamp {
		t.Fatalf("LAMP_OFF must de-energize the lamp")
	}
}

func TestNotifyChangeFiresExactlyOncePerTransition(t *testing.T) {
	hal := &fakeHAL{limitClosed: true}
	f := newTestFSM(hal)
	sink := f.sink.(*fakeSink)

	f.step() // INITIAL -> CLOSED
	if sink.changeCount() != 1 {
		t.Fatalf("changeCount = %d after first transition, want 1", sink.changeCount())
	}

	f.step() // steady state, no change
	if sink.changeCount() != 1 {
		t.Fatalf("changeCount = %d after steady cycle, want 1", sink.changeCount())
	}

	if sink.lastChange().State != StateClosed {
		t.Fatalf("lastChange().State = %v, want StateClosed", sink.lastChange().State)
	}
}

func TestErrorRecoversWhenLimitsBecomeConsistent(t *testing.T) {
	hal := &fakeHAL{limitOpen: true, limitClosed: true}
	f := newTestFSM(hal)
	f.step()
	if f.State() != StateError {
		t.Fatalf("precondition: State() = %v, want StateError", f.State())
	}

	hal.setLimits(false, true)
	f.step()

	if f.State() != StateClosed {
		t.Fatalf("State() = %v, want StateClosed once limits are consistent again", f.State())
	}
}

func TestManualPushClosedWhileOpenTransitionsToClosed(t *testing.T) {
	hal := &fakeHAL{limitOpen: true}
	f := newTestFSM(hal)
	f.step() // classify OPEN
	if f.State() != StateOpen {
		t.Fatalf("precondition: State() = %v, want StateOpen", f.State())
	}

	hal.setLimits(false, true)
	f.step()

	if f.State() != StateClosed {
		t.Fatalf("State() = %v, want StateClosed after a manual push past limit_closed while OPEN", f.State())
	}
	if f.errCode != ErrOK {
		t.Fatalf("errCode = %v, want ErrOK", f.errCode)
	}
}

func TestManualPushOpenWhileClosedTransitionsToOpen(t *testing.T) {
	hal := &fakeHAL{limitClosed: true}
	f := newTestFSM(hal)
	f.step() // classify CLOSED
	if f.State() != StateClosed {
		t.Fatalf("precondition: State() = %v, want StateClosed", f.State())
	}

	hal.setLimits(true, false)
	f.step()

	if f.State() != StateOpen {
		t.Fatalf("State() = %v, want StateOpen after a manual push past limit_open while CLOSED", f.State())
	}
	if f.errCode != ErrOK {
		t.Fatalf("errCode = %v, want ErrOK", f.errCode)
	}
}

func TestAdminDownParksWithoutKillingTask(t *testing.T) {
	hal := &fakeHAL{limitClosed: true}
	f := newTestFSM(hal)
	f.Start()
	defer f.Stop()

	time.Sleep(5 * IdleCycle)
	f.SetAdminState(AdminDown)
	time.Sleep(5 * IdleCycle)

	f.queue.Enqueue(command.Open)
	time.Sleep(5 * IdleCycle)

	if f.State() == StateOpening {
		t.Fatalf("FSM must not act on commands while parked AdminDown")
	}

	f.SetAdminState(AdminUp)
	time.Sleep(10 * MovingCycle)
	if f.LastExit() == ExitDying {
		t.Fatalf("LastExit() must not report ExitDying while the task is still running")
	}
}
