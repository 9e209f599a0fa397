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

// Package portal is the Provisioning Portal (spec §4.5): a single HTTP
// resource serving a status page and dispatching wifi/mqtt/wipe form
// submissions. It uses bare net/http and http.ServeMux rather than a
// router library, the same texture as the retrieved example's own
// captive-portal handler.
package portal

import (
	"fmt"
	"io"
	"net/http"

	log "github.com/Sirupsen/logrus"

	"github.com/onyxgate/gated/config"
	"github.com/onyxgate/gated/gate"
)

// MaxBodyBytes is the POST body cap of spec §4.5.
const MaxBodyBytes = 2048

// WifiReconfigurer is the seam onto the Connectivity Supervisor.
type WifiReconfigurer interface {
	ReconfigureStation(ssid, pass string) error
}

// BrokerRestarter is the seam onto the Broker Channel.
type BrokerRestarter interface {
	Restart(uri, topicCmd, topicStatus string) error
}

// TopicConfigurer is the seam onto the Telemetry Publisher; it must be
// told about topic renames independent of the broker restart.
type TopicConfigurer interface {
	Configure(topicStatus, topicTele string)
}

// Store is the subset of config.Store the portal needs directly.
type Store interface {
	Load() (config.Record, error)
	SetBrokerURI(string) error
	SetTopicCmd(string) error
	SetTopicStatus(string) error
	SetTopicTele(string) error
	Wipe() error
}

// Rebooter restarts the device after a wipe.
type Rebooter interface {
	Reboot()
}

// AdminParker is the seam onto the Gate FSM's admin-state machinery,
// letting the portal park the gate task during a wipe without tearing
// it down.
type AdminParker interface {
	SetAdminState(gate.AdminState)
}

// Portal wires the HTTP surface to the rest of the system.
type Portal struct {
	store  Store
	wifi   WifiReconfigurer
	broker BrokerRestarter
	telem  TopicConfigurer
	fsm    AdminParker
	reboot Rebooter
	log    *log.Entry
}

func New(store Store, wifi WifiReconfigurer, broker BrokerRestarter, telem TopicConfigurer, fsm AdminParker, reboot Rebooter) *Portal {
	return &Portal{
		store:  store,
		wifi:   wifi,
		broker: broker,
		telem:  telem,
		fsm:    fsm,
		reboot: reboot,
		log:    log.WithField("component", "portal"),
	}
}

// Handler returns the single-resource mux named in spec §4.5/§6.
func (p *Portal) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", p.handleRoot)
	return mux
}

func (p *Portal) handleRoot(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		p.handleGet(w, r)
	case http.MethodPost:
		p.handlePost(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (p *Portal) handleGet(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("wipe") == "1" {
		p.doWipe(w)
		return
	}

	rec, err := p.store.Load()
	if err != nil {
		p.log.WithError(err).Error("failed to load configuration")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, renderStatusPage(rec))
}

func (p *Portal) handlePost(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength <= 0 {
		http.Error(w, "empty body", http.StatusBadRequest)
		return
	}
	if r.ContentLength > MaxBodyBytes {
		http.Error(w, "body too large", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes+1))
	if err != nil {
		p.log.WithError(err).Error("failed to read request body")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if len(body) == 0 || len(body) > MaxBodyBytes {
		http.Error(w, "bad body size", http.StatusBadRequest)
		return
	}

	form := parseForm(string(body))

	switch form["act"] {
	case "wifi":
		p.actWifi(form)
	case "mqtt":
		p.actMqtt(form)
	default:
		if form["wipe"] == "1" {
			p.doWipe(w)
			return
		}
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (p *Portal) actWifi(form map[string]string) {
	ssid := form["ssid"]
	if ssid == "" {
		p.log.Warn("wifi form submitted without ssid, ignoring")
		return
	}
	if err := p.wifi.ReconfigureStation(ssid, form["pass"]); err != nil {
		p.log.WithError(err).Error("failed to reconfigure station")
	}
}

func (p *Portal) actMqtt(form map[string]string) {
	rec, err := p.store.Load()
	if err != nil {
		p.log.WithError(err).Error("failed to load configuration")
		return
	}

	if v := form["broker"]; v != "" {
		if err := p.store.SetBrokerURI(v); err != nil {
			p.log.WithError(err).Error("failed to set broker uri")
		}
		rec.BrokerURI = v
	}
	if v := form["t1"]; v != "" {
		if err := p.store.SetTopicCmd(v); err != nil {
			p.log.WithError(err).Error("failed to set topic_cmd")
		}
		rec.TopicCmd = v
	}
	if v := form["t2"]; v != "" {
		if err := p.store.SetTopicStatus(v); err != nil {
			p.log.WithError(err).Error("failed to set topic_status")
		}
		rec.TopicStatus = v
	}
	if v := form["t3"]; v != "" {
		if err := p.store.SetTopicTele(v); err != nil {
			p.log.WithError(err).Error("failed to set topic_tele")
		}
		rec.TopicTele = v
	}

	p.telem.Configure(rec.TopicStatus, rec.TopicTele)
	// Restart unconditionally even if nothing changed: an explicit
	// force-reconnect affordance, kept per spec §9b.
	if err := p.broker.Restart(rec.BrokerURI, rec.TopicCmd, rec.TopicStatus); err != nil {
		p.log.WithError(err).Error("failed to restart broker channel")
	}
}

// doWipe clears the configuration store and parks the gate task in
// gate.AdminDown, which de-energizes the motor, before the reboot timer
// runs. It does not reset in-memory values held by other components
// (broker and telemetry topics, the supervisor's current IP); those
// last until the reboot.
func (p *Portal) doWipe(w http.ResponseWriter) {
	if err := p.store.Wipe(); err != nil {
		p.log.WithError(err).Error("failed to wipe configuration")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if p.fsm != nil {
		p.fsm.SetAdminState(gate.AdminDown)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, wipeConfirmationPage)
	go p.reboot.Reboot()
}

const wipeConfirmationPage = `<!DOCTYPE html><html><body>
<p>Configuration erased. Restarting into provisioning mode.</p>
</body></html>`

func renderStatusPage(rec config.Record) string {
	return fmt.Sprintf(`<!DOCTYPE html><html><body>
<h1>Gate configuration</h1>
<p>Boot mode: %s</p>
<form method="POST" action="/">
<input type="hidden" name="act" value="wifi">
SSID: <input name="ssid" value="%s"><br>
Password: <input name="pass" type="password"><br>
<input type="submit" value="Save Wi-Fi">
</form>
<form method="POST" action="/">
<input type="hidden" name="act" value="mqtt">
Broker: <input name="broker" value="%s"><br>
Command topic: <input name="t1" value="%s"><br>
Status topic: <input name="t2" value="%s"><br>
Telemetry topic: <input name="t3" value="%s"><br>
<input type="submit" value="Save broker">
</form>
<form method="GET" action="/">
<input type="hidden" name="wipe" value="1">
<input type="submit" value="Wipe configuration">
</form>
</body></html>`, rec.EffectiveBootMode(), rec.WifiSSID, rec.BrokerURI, rec.TopicCmd, rec.TopicStatus, rec.TopicTele)
}
