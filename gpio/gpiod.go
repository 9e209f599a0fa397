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

// Package gpio is the only concrete implementation of gate.HAL: two
// active-low limit-switch inputs and three outputs on a Linux GPIO
// character device, via github.com/warthog618/gpiod.
package gpio

import (
	"fmt"

	"github.com/warthog618/gpiod"
)

// Pins names the offsets on chip for each of the five signals named
// in spec §6.
type Pins struct {
	Chip        string
	LimitOpen   int
	LimitClosed int
	MotorOpen   int
	MotorClose  int
	Lamp        int
}

type ChardevHAL struct {
	chip        *gpiod.Chip
	limitOpen   *gpiod.Line
	limitClosed *gpiod.Line
	motorOpen   *gpiod.Line
	motorClose  *gpiod.Line
	lamp        *gpiod.Line
}

// NewChardevHAL requests all five lines up front; GPIO handles are
// acquired once at bootstrap and released on Close, per spec §5's
// resource-acquisition model.
func NewChardevHAL(pins Pins) (*ChardevHAL, error) {
	chip, err := gpiod.NewChip(pins.Chip)
	if err != nil {
		return nil, fmt.Errorf("gpio: open chip %s: %w", pins.Chip, err)
	}

	h := &ChardevHAL{chip: chip}

	h.limitOpen, err = chip.RequestLine(pins.LimitOpen, gpiod.AsInput, gpiod.WithPullUp)
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("gpio: request LIMIT_OPEN: %w", err)
	}
	h.limitClosed, err = chip.RequestLine(pins.LimitClosed, gpiod.AsInput, gpiod.WithPullUp)
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("gpio: request LIMIT_CLOSED: %w", err)
	}
	h.motorOpen, err = chip.RequestLine(pins.MotorOpen, gpiod.AsOutput(0))
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("gpio: request MOTOR_OPEN: %w", err)
	}
	h.motorClose, err = chip.RequestLine(pins.MotorClose, gpiod.AsOutput(0))
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("gpio: request MOTOR_CLOSE: %w", err)
	}
	h.lamp, err = chip.RequestLine(pins.Lamp, gpiod.AsOutput(0))
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("gpio: request LAMP: %w", err)
	}

	return h, nil
}

// LimitOpen and LimitClosed invert the wire value: asserted is 0.
func (h *ChardevHAL) LimitOpen() (bool, error) {
	v, err := h.limitOpen.Value()
	if err != nil {
		return false, err
	}
	return v == 0, nil
}

func (h *ChardevHAL) LimitClosed() (bool, error) {
	v, err := h.limitClosed.Value()
	if err != nil {
		return false, err
	}
	return v == 0, nil
}

func (h *ChardevHAL) SetMotorOpen(on bool) error {
	return h.motorOpen.SetValue(boolToLevel(on))
}

func (h *ChardevHAL) SetMotorClose(on bool) error {
	return h.motorClose.SetValue(boolToLevel(on))
}

func (h *ChardevHAL) SetLamp(on bool) error {
	return h.lamp.SetValue(boolToLevel(on))
}

func (h *ChardevHAL) Close() error {
	for _, l := range []*gpiod.Line{h.limitOpen, h.limitClosed, h.motorOpen, h.motorClose, h.lamp} {
		if l != nil {
			l.Close()
		}
	}
	if h.chip != nil {
		return h.chip.Close()
	}
	return nil
}

func boolToLevel(on bool) int {
	if on {
		return 1
	}
	return 0
}
