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

// HAL is the external-collaborator seam of spec §6: two active-low
// limit-switch inputs and three outputs (both motor directions, the
// warning lamp). Asserted means logical true; the concrete GPIO
// implementation in package gpio does the active-low translation.
type HAL interface {
	LimitOpen() (bool, error)
	LimitClosed() (bool, error)
	SetMotorOpen(on bool) error
	SetMotorClose(on bool) error
	SetLamp(on bool) error
}
