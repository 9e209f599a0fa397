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

// Package telemetry turns gate.Status snapshots into the two wire
// streams of spec §4.3: a change-driven status topic and a periodic
// telemetry topic, both published with QoS 1 and retain set.
package telemetry

import (
	"encoding/json"
	"sync"
	"time"

	log "github.com/Sirupsen/logrus"
	tomb "gopkg.in/tomb.v2"

	"github.com/onyxgate/gated/gate"
)

// PubPeriod is the periodic telemetry cadence of spec §4.3.
const PubPeriod = 30 * time.Second

// Broker is the narrow seam telemetry needs from the Broker Channel.
type Broker interface {
	Publish(topic string, qos byte, retain bool, payload []byte) error
}

type wirePayload struct {
	State      string `json:"state"`
	LimitOpen  bool   `json:"lsa_open"`
	LimitClose bool   `json:"lsc_closed"`
	MotorOpen  bool   `json:"motor_open"`
	MotorClose bool   `json:"motor_close"`
	Err        int    `json:"err"`
}

type connectedPayload struct {
	State      string `json:"state"`
	LimitOpen  bool   `json:"lsa_open"`
	LimitClose bool   `json:"lsc_closed"`
	MotorOpen  bool   `json:"motor_open"`
	MotorClose bool   `json:"motor_close"`
}

// Publisher implements gate.Sink.
type Publisher struct {
	t tomb.Tomb

	broker      Broker
	topicStatus string
	topicTele   string
	log         *log.Entry

	mu        sync.Mutex
	latest    gate.Status
	hasLatest bool
}

func NewPublisher(broker Broker, topicStatus, topicTele string) *Publisher {
	return &Publisher{
		broker:      broker,
		topicStatus: topicStatus,
		topicTele:   topicTele,
		log:         log.WithField("component", "telemetry"),
	}
}

// Configure updates the topic names at runtime, e.g. after a
// provisioning-portal mqtt form submission.
func (p *Publisher) Configure(topicStatus, topicTele string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topicStatus = topicStatus
	p.topicTele = topicTele
}

// UpdateStatus records the latest snapshot without publishing; called
// every FSM cycle so the periodic ticker always has a fresh value.
func (p *Publisher) UpdateStatus(s gate.Status) {
	p.mu.Lock()
	p.latest = s
	p.hasLatest = true
	p.mu.Unlock()
}

// NotifyChange publishes the change-driven status message. Called by
// the FSM exactly once per state change (spec §8 invariant 5).
func (p *Publisher) NotifyChange(s gate.Status) {
	p.UpdateStatus(s)
	p.publish(p.statusTopic(), s, true)
}

func (p *Publisher) statusTopic() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.topicStatus
}

func (p *Publisher) teleTopic() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.topicTele
}

// PublishConnected emits the synthetic "just connected" status
// message the Broker Channel sends on connect (spec §4.6): the same
// fields as Status minus err.
func (p *Publisher) PublishConnected() {
	p.mu.Lock()
	s := p.latest
	has := p.hasLatest
	topic := p.topicStatus
	p.mu.Unlock()
	if !has {
		s = gate.Status{State: gate.StateInitial}
	}
	if topic == "" {
		return
	}
	b, err := json.Marshal(connectedPayload{
		State:      s.State.String(),
		LimitOpen:  s.LimitOpen,
		LimitClose: s.LimitClosed,
		MotorOpen:  s.MotorOpen,
		MotorClose: s.MotorClose,
	})
	if err != nil {
		p.log.WithError(err).Warn("failed to marshal connected status")
		return
	}
	if err := p.broker.Publish(topic, 1, true, b); err != nil {
		p.log.WithError(err).Warn("failed to publish connected status")
	}
}

func (p *Publisher) publish(topic string, s gate.Status, retain bool) {
	if topic == "" || p.broker == nil {
		return
	}
	b, err := json.Marshal(wirePayload{
		State:      s.State.String(),
		LimitOpen:  s.LimitOpen,
		LimitClose: s.LimitClosed,
		MotorOpen:  s.MotorOpen,
		MotorClose: s.MotorClose,
		Err:        int(s.Err),
	})
	if err != nil {
		p.log.WithError(err).Warn("failed to marshal status payload")
		return
	}
	if err := p.broker.Publish(topic, 1, retain, b); err != nil {
		p.log.WithError(err).Warn("failed to publish status payload")
	}
}

// Start launches the periodic-telemetry ticker as a supervised task.
func (p *Publisher) Start() {
	p.t.Go(p.run)
}

func (p *Publisher) Stop() error {
	p.t.Kill(nil)
	return p.t.Wait()
}

func (p *Publisher) run() error {
	ticker := time.NewTicker(PubPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-p.t.Dying():
			return nil
		case <-ticker.C:
			p.mu.Lock()
			s := p.latest
			has := p.hasLatest
			p.mu.Unlock()
			topic := p.teleTopic()
			if !has || topic == "" {
				continue
			}
			p.publish(topic, s, true)
		}
	}
}
