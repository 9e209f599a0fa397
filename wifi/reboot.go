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

package wifi

import (
	"os"
	"time"

	log "github.com/Sirupsen/logrus"
)

// ProcessExitRebooter asks the process supervisor to restart the
// binary by exiting after a short grace period, mirroring the
// fatal-bootstrap-error convention the teacher uses for storage and
// GPIO init failures.
type ProcessExitRebooter struct {
	Delay time.Duration
}

func (r ProcessExitRebooter) Reboot() {
	delay := r.Delay
	if delay <= 0 {
		delay = 250 * time.Millisecond
	}
	log.WithField("component", "wifi").Warn("restarting device")
	time.Sleep(delay)
	os.Exit(1)
}
