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

package command

import (
	"encoding/json"

	log "github.com/Sirupsen/logrus"
)

// payload is the wire shape accepted on the command topic:
// {"cmd": "<OPEN|CLOSE|STOP|TOGGLE|LAMP_ON|LAMP_OFF>"}.
type payload struct {
	Cmd string `json:"cmd"`
}

// Decoder parses broker payloads into Commands and enqueues them. It
// runs on the broker client's callback goroutine (spec §5); its only
// duty is to decode and enqueue, never to call into the FSM directly.
type Decoder struct {
	queue *Queue
	log   *log.Entry
}

func NewDecoder(queue *Queue) *Decoder {
	return &Decoder{queue: queue, log: log.WithField("component", "decoder")}
}

// Decode drops malformed payloads and unrecognized commands silently,
// logging at debug level, per spec §7's Protocol error policy.
func (d *Decoder) Decode(raw []byte) {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		d.log.WithError(err).Debug("dropped malformed command payload")
		return
	}
	cmd, ok := Parse(p.Cmd)
	if !ok {
		d.log.WithField("cmd", p.Cmd).Debug("dropped unrecognized command")
		return
	}
	if !d.queue.Enqueue(cmd) {
		d.log.WithField("cmd", cmd).Debug("dropped command, queue full")
	}
}
