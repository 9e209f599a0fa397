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

import "testing"

func TestQueueDropsOnFullPreservingFIFO(t *testing.T) {
	q := NewQueue()
	for i := 0; i < Capacity; i++ {
		if !q.Enqueue(Open) {
			t.Fatalf("enqueue %d unexpectedly failed before queue full", i)
		}
	}
	if q.Enqueue(Close) {
		t.Fatalf("enqueue on full queue should return false")
	}
	if q.Len() != Capacity {
		t.Fatalf("Len() = %d, want %d", q.Len(), Capacity)
	}
	for i := 0; i < Capacity; i++ {
		got, ok := q.Dequeue()
		if !ok {
			t.Fatalf("dequeue %d: queue unexpectedly empty", i)
		}
		if got != Open {
			t.Fatalf("dequeue %d = %v, want Open (dropped entry must be the newest arrival)", i, got)
		}
	}
	if _, ok := q.Dequeue(); ok {
		t.Fatalf("dequeue on empty queue should return false")
	}
}

func TestQueueFIFOOrder(t *testing.T) {
	q := NewQueue()
	seq := []Command{Open, Stop, Close, Toggle}
	for _, c := range seq {
		q.Enqueue(c)
	}
	for _, want := range seq {
		got, ok := q.Dequeue()
		if !ok || got != want {
			t.Fatalf("Dequeue() = (%v, %v), want (%v, true)", got, ok, want)
		}
	}
}
