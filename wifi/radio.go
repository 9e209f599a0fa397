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

// RadioDriver is the external-collaborator seam for the physical Wi-Fi
// radio: access-point and station mode switching, SSID/PSK programming.
// No package in the retrieved pack wraps a concrete radio driver, and
// spec scopes the underlying network stack out of the core, so this
// stays an interface implemented by platform-specific code outside
// this repo.
type RadioDriver interface {
	StartAP(ssid, pass string, channel int) error
	StopAP() error
	APRunning() bool

	StartStation(ssid, pass string) error
	StopStation() error
}

// Rebooter triggers a device restart. The production implementation
// exits the process and relies on a supervisor to restart it, the same
// convention the teacher's bootstrap fatal-error paths use.
type Rebooter interface {
	Reboot()
}
