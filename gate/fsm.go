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
	"time"

	log "github.com/Sirupsen/logrus"
	tomb "gopkg.in/tomb.v2"

	"github.com/onyxgate/gated/command"
)

// ExitReason annotates why the FSM task's dispatch loop returned or
// paused, for log fields only — never on the wire. Generalized from the teacher's
// FsmStateReason.
type ExitReason int

const (
	ExitNone ExitReason = iota
	ExitDying
	ExitSensorFault
)

// FSM is the sole writer of gate_state, motor_*, limit_* and
// error_code (spec §3). One FSM drives one gate.
type FSM struct {
	t     tomb.Tomb
	hal   HAL
	queue *command.Queue
	sink  Sink
	log   *log.Entry

	state    State
	prevRpt  State
	errCode  ErrorCode
	deadline time.Time

	motorOpening bool
	motorClosing bool
	lamp         bool
	limitOpen    bool
	limitClosed  bool

	adminState AdminState
	adminCh    chan AdminState
	lastExit   ExitReason
}

// New builds an FSM in its initial, de-energized state. Start must be
// called to begin the dispatch loop.
func New(hal HAL, queue *command.Queue, sink Sink) *FSM {
	return &FSM{
		hal:     hal,
		queue:   queue,
		sink:    sink,
		log:     log.WithField("component", "gate"),
		state:   StateInitial,
		prevRpt: State(-1), // sentinel distinct from all real states
		errCode: ErrOK,
		adminCh: make(chan AdminState, 1),
	}
}

// Start launches the dispatch loop as a supervised task.
func (f *FSM) Start() {
	f.t.Go(f.loop)
}

// Stop asks the dispatch loop to exit and waits for it.
func (f *FSM) Stop() error {
	f.t.Kill(nil)
	return f.t.Wait()
}

// SetAdminState parks or resumes the FSM without tearing down its
// task. Non-blocking; the most recent request wins.
func (f *FSM) SetAdminState(s AdminState) {
	select {
	case f.adminCh <- s:
	default:
		select {
		case <-f.adminCh:
		default:
		}
		f.adminCh <- s
	}
}

func (f *FSM) State() State {
	return f.state
}

func (f *FSM) loop() error {
	for {
		select {
		case <-f.t.Dying():
			f.lastExit = ExitDying
			f.log.Debug("gate task stopping")
			return nil
		case s := <-f.adminCh:
			f.adminState = s
			if s == AdminDown {
				f.stopMotor()
			}
		default:
		}

		if f.adminState == AdminDown {
			time.Sleep(IdleCycle)
			continue
		}

		if err := f.step(); err != nil {
			f.lastExit = ExitSensorFault
			f.log.WithError(err).Warn("sensor read failed, holding last output")
			time.Sleep(IdleCycle)
			continue
		}
	}
}

// LastExit reports why the dispatch loop most recently paused or
// returned; log-field use only, never published on the wire.
func (f *FSM) LastExit() ExitReason {
	return f.lastExit
}

// step executes one FSM cycle in the order mandated by spec §5:
// sensors -> emergency check -> position transition -> one command ->
// telemetry, then sleeps for the cadence appropriate to the new state.
func (f *FSM) step() error {
	lo, err := debounce(f.hal.LimitOpen)
	if err != nil {
		return err
	}
	lc, err := debounce(f.hal.LimitClosed)
	if err != nil {
		return err
	}
	f.limitOpen = lo
	f.limitClosed = lc

	if lo && lc {
		f.enterError(ErrLSInconsistent)
	} else {
		f.applyPositionTransition()
	}

	if cmd, ok := f.queue.Dequeue(); ok {
		f.applyCommand(cmd)
	}

	f.publish()

	cycle := IdleCycle
	if f.state == StateOpening || f.state == StateClosing {
		cycle = MovingCycle
	}
	time.Sleep(cycle)
	return nil
}

func (f *FSM) applyPositionTransition() {
	switch f.state {
	case StateInitial:
		switch {
		case f.limitClosed && !f.limitOpen:
			f.setState(StateClosed, ErrOK)
		case f.limitOpen && !f.limitClosed:
			f.setState(StateOpen, ErrOK)
		default:
			f.setState(StateUnknown, ErrOK)
		}
	case StateOpen:
		if f.limitClosed {
			f.setState(StateClosed, ErrOK)
		}
	case StateClosed:
		if f.limitOpen {
			f.setState(StateOpen, ErrOK)
		}
	case StateOpening:
		if f.limitOpen {
			f.stopMotor()
			f.setState(StateOpen, ErrOK)
			return
		}
		if time.Now().After(f.deadline) {
			f.stopMotor()
			f.enterError(ErrTimeoutOpen)
		}
	case StateClosing:
		if f.limitClosed {
			f.stopMotor()
			f.setState(StateClosed, ErrOK)
			return
		}
		if time.Now().After(f.deadline) {
			f.stopMotor()
			f.enterError(ErrTimeoutClose)
		}
	case StateStopped, StateUnknown:
		// no autonomous position-based transition; only commands move
		// the gate out of these states (see applyCommand).
	case StateError:
		switch {
		case f.limitOpen && !f.limitClosed:
			f.setState(StateOpen, ErrOK)
		case f.limitClosed && !f.limitOpen:
			f.setState(StateClosed, ErrOK)
		case !f.limitOpen && !f.limitClosed:
			f.setState(StateUnknown, ErrOK)
		}
	}
}

func (f *FSM) applyCommand(cmd command.Command) {
	switch cmd {
	case command.LampOn:
		f.setLamp(true)
		return
	case command.LampOff:
		f.setLamp(false)
		return
	}

	switch f.state {
	case StateOpen:
		if cmd == command.Close || cmd == command.Toggle {
			f.enterMotion(false)
		}
	case StateClosed:
		if cmd == command.Open || cmd == command.Toggle {
			f.enterMotion(true)
		}
	case StateStopped:
		switch cmd {
		case command.Open:
			f.enterMotion(true)
		case command.Close:
			f.enterMotion(false)
		case command.Toggle:
			// OPENING if currently closed, else CLOSING.
			f.enterMotion(f.limitClosed)
		}
	case StateUnknown:
		switch cmd {
		case command.Open, command.Toggle:
			f.enterMotion(true)
		case command.Close:
			f.enterMotion(false)
		}
	case StateOpening:
		switch cmd {
		case command.Stop:
			f.stopMotor()
			f.setState(StateStopped, ErrOK)
		case command.Close:
			f.enterMotion(false)
		case command.Toggle:
			f.stopMotor()
			f.setState(StateStopped, ErrOK)
		}
	case StateClosing:
		switch cmd {
		case command.Stop:
			f.stopMotor()
			f.setState(StateStopped, ErrOK)
		case command.Open:
			f.enterMotion(true)
		case command.Toggle:
			f.stopMotor()
			f.setState(StateStopped, ErrOK)
		}
	case StateError:
		switch cmd {
		case command.Open, command.Toggle:
			f.enterMotion(true)
		case command.Close:
			f.enterMotion(false)
		}
	}
}

// enterMotion energizes the requested direction, resets the motion
// deadline and moves to the matching motion state. Used both for a
// fresh motion command and for a reversal mid-motion.
func (f *FSM) enterMotion(opening bool) {
	f.energize(opening)
	f.deadline = time.Now().Add(MotionTimeout)
	if opening {
		f.setState(StateOpening, ErrOK)
	} else {
		f.setState(StateClosing, ErrOK)
	}
}

// energize enforces the motor control contract of spec §4.1: the
// opposite direction is de-energized and held off for BrakeGap before
// the requested direction is energized.
func (f *FSM) energize(opening bool) {
	if opening && f.motorClosing {
		if err := f.hal.SetMotorClose(false); err != nil {
			f.log.WithError(err).Warn("failed to de-energize close output")
		}
		f.motorClosing = false
		time.Sleep(BrakeGap)
	}
	if !opening && f.motorOpening {
		if err := f.hal.SetMotorOpen(false); err != nil {
			f.log.WithError(err).Warn("failed to de-energize open output")
		}
		f.motorOpening = false
		time.Sleep(BrakeGap)
	}
	if opening {
		if err := f.hal.SetMotorOpen(true); err != nil {
			f.log.WithError(err).Warn("failed to energize open output")
		}
		f.motorOpening = true
	} else {
		if err := f.hal.SetMotorClose(true); err != nil {
			f.log.WithError(err).Warn("failed to energize close output")
		}
		f.motorClosing = true
	}
}

func (f *FSM) stopMotor() {
	if f.motorOpening {
		if err := f.hal.SetMotorOpen(false); err != nil {
			f.log.WithError(err).Warn("failed to de-energize open output")
		}
		f.motorOpening = false
	}
	if f.motorClosing {
		if err := f.hal.SetMotorClose(false); err != nil {
			f.log.WithError(err).Warn("failed to de-energize close output")
		}
		f.motorClosing = false
	}
}

func (f *FSM) setLamp(on bool) {
	if f.lamp == on {
		return
	}
	if err := f.hal.SetLamp(on); err != nil {
		f.log.WithError(err).Warn("failed to set lamp output")
	}
	f.lamp = on
}

func (f *FSM) enterError(code ErrorCode) {
	f.stopMotor()
	f.setState(StateError, code)
}

func (f *FSM) setState(s State, code ErrorCode) {
	if s != f.state {
		f.log.WithFields(log.Fields{
			"old": f.state.String(),
			"new": s.String(),
			"err": code,
		}).Debug("gate state changed")
	}
	f.state = s
	f.errCode = code
	// Change-driven status goes out here, on every change, so that two
	// changes within one cycle each get their own publication (spec §8
	// invariant 5).
	if f.sink != nil && s != f.prevRpt {
		f.prevRpt = s
		f.sink.NotifyChange(f.status())
	}
}

func (f *FSM) status() Status {
	return Status{
		State:       f.state,
		LimitOpen:   f.limitOpen,
		LimitClosed: f.limitClosed,
		MotorOpen:   f.motorOpening,
		MotorClose:  f.motorClosing,
		Err:         f.errCode,
		At:          time.Now(),
	}
}

// publish feeds the Telemetry Publisher's periodic telemetry with the
// snapshot at the end of every cycle. The change-driven status topic is
// fed by setState, once per state change.
func (f *FSM) publish() {
	if f.sink == nil {
		return
	}
	f.sink.UpdateStatus(f.status())
}
