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

import "time"

// debounce samples read in DebounceSampleStep increments until the
// value has held steady for DebounceWindow, restarting the window on
// every change. It blocks for at least one window's worth of sampling;
// besides this, the FSM task blocks only in its cycle sleep and in the
// BrakeGap pause of a direction change.
func debounce(read func() (bool, error)) (bool, error) {
	val, err := read()
	if err != nil {
		return false, err
	}
	stableSince := time.Now()
	for time.Since(stableSince) < DebounceWindow {
		time.Sleep(DebounceSampleStep)
		v, err := read()
		if err != nil {
			return false, err
		}
		if v != val {
			val = v
			stableSince = time.Now()
		}
	}
	return val, nil
}
