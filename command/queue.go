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

// Capacity bounds the command queue per spec §3: 16 entries, drop the
// newest arrival once full.
const Capacity = 16

// Queue is a bounded FIFO with non-blocking enqueue and dequeue. The
// Command Decoder is the sole producer; the Gate FSM is the sole
// consumer, draining at most one entry per cycle.
type Queue struct {
	ch chan Command
}

func NewQueue() *Queue {
	return &Queue{ch: make(chan Command, Capacity)}
}

// Enqueue returns false without blocking if the queue is full; the
// caller is expected to drop and log, never to retry.
func (q *Queue) Enqueue(c Command) bool {
	select {
	case q.ch <- c:
		return true
	default:
		return false
	}
}

// Dequeue returns false without blocking if the queue is empty.
func (q *Queue) Dequeue() (Command, bool) {
	select {
	case c := <-q.ch:
		return c, true
	default:
		return 0, false
	}
}

func (q *Queue) Len() int {
	return len(q.ch)
}
