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

// Package wifi is the Connectivity Supervisor (spec §4.4): it resolves
// the boot-time AP/STA mode, drives the RadioDriver collaborator, and
// runs the 30s connect watchdog as its own supervised task.
package wifi

import (
	"sync"
	"time"

	log "github.com/Sirupsen/logrus"
	"github.com/vishvananda/netlink"
	tomb "gopkg.in/tomb.v2"

	"github.com/onyxgate/gated/config"
)

const (
	ProvisioningSSID    = "ESP_CONFIG_AP"
	ProvisioningPass    = "12345678"
	ProvisioningChannel = 1
	MaxAPClients        = 4

	WatchdogHorizon = 30 * time.Second
	WatchdogPoll    = 500 * time.Millisecond
)

// Supervisor owns Wi-Fi runtime state; it is the sole writer of the
// runtime fields it tracks (current IP, watchdog deadline, AP state).
type Supervisor struct {
	t tomb.Tomb

	radio   RadioDriver
	store   *config.Store
	reboot  Rebooter
	staIfc  string
	apIfc   string
	log     *log.Entry

	mu            sync.Mutex
	apRunning     bool
	watchdogArmed bool
	deadline      time.Time
	currentIP     string
}

func New(radio RadioDriver, store *config.Store, reboot Rebooter, staIfc, apIfc string) *Supervisor {
	return &Supervisor{
		radio:  radio,
		store:  store,
		reboot: reboot,
		staIfc: staIfc,
		apIfc:  apIfc,
		log:    log.WithField("component", "wifi"),
	}
}

// Start resolves the boot mode per spec §4.4 and launches the
// watchdog-poll task.
func (s *Supervisor) Start() error {
	rec, err := s.store.Load()
	if err != nil {
		return err
	}

	if rec.EffectiveBootMode() == config.BootProvisioning || rec.WifiSSID == "" {
		s.log.Info("booting with access point active")
		if err := s.radio.StartAP(ProvisioningSSID, ProvisioningPass, ProvisioningChannel); err != nil {
			return err
		}
		netlinkUp(s.apIfc, s.log)
		s.mu.Lock()
		s.apRunning = true
		s.mu.Unlock()
	}

	if rec.WifiSSID != "" {
		s.connectStation(rec.WifiSSID, rec.WifiPass)
	}

	s.t.Go(s.run)
	return nil
}

func (s *Supervisor) Stop() error {
	s.t.Kill(nil)
	return s.t.Wait()
}

func (s *Supervisor) connectStation(ssid, pass string) {
	s.log.WithField("ssid", ssid).Info("connecting station")
	if err := s.radio.StartStation(ssid, pass); err != nil {
		s.log.WithError(err).Warn("station connect failed")
	}
	netlinkUp(s.staIfc, s.log)
	s.armWatchdog()
}

func (s *Supervisor) armWatchdog() {
	s.mu.Lock()
	s.watchdogArmed = true
	s.deadline = time.Now().Add(WatchdogHorizon)
	s.mu.Unlock()
}

// GotIP is the STA_GOT_IP handler of spec §4.4: records the IP, clears
// the watchdog, persists OPERATIONAL and tears the AP down if it is
// still running.
func (s *Supervisor) GotIP(ip string) {
	s.mu.Lock()
	s.currentIP = ip
	s.watchdogArmed = false
	apRunning := s.apRunning
	s.mu.Unlock()

	s.log.WithField("ip", ip).Info("station acquired address")
	if err := s.store.SetBootMode(config.BootOperational); err != nil {
		s.log.WithError(err).Warn("failed to persist OPERATIONAL boot mode")
	}

	if apRunning {
		if err := s.radio.StopAP(); err != nil {
			s.log.WithError(err).Warn("failed to stop access point")
		}
		s.mu.Lock()
		s.apRunning = false
		s.mu.Unlock()
	}
}

// Disconnected is the STA_DISCONNECTED handler: retries the connection
// while credentials exist; the watchdog is not re-armed.
func (s *Supervisor) Disconnected() {
	s.log.Warn("station disconnected")
	rec, err := s.store.Load()
	if err != nil {
		s.log.WithError(err).Warn("failed to load configuration for reconnect")
		return
	}
	if rec.WifiSSID == "" {
		return
	}
	if err := s.radio.StartStation(rec.WifiSSID, rec.WifiPass); err != nil {
		s.log.WithError(err).Warn("station reconnect failed")
	}
}

// ReconfigureStation is the portal's `act=wifi` path: persist new
// credentials, reconnect and arm the watchdog, leaving boot_mode at
// PROVISIONING so a failed attempt falls back to the portal.
func (s *Supervisor) ReconfigureStation(ssid, pass string) error {
	if err := s.store.SetWifiCredentials(ssid, pass); err != nil {
		return err
	}
	if err := s.store.SetBootMode(config.BootProvisioning); err != nil {
		return err
	}
	if err := s.radio.StopStation(); err != nil {
		s.log.WithError(err).Warn("failed to stop station before reconfigure")
	}
	s.connectStation(ssid, pass)
	return nil
}

func (s *Supervisor) run() error {
	ticker := time.NewTicker(WatchdogPoll)
	defer ticker.Stop()
	for {
		select {
		case <-s.t.Dying():
			return nil
		case <-ticker.C:
			s.mu.Lock()
			armed := s.watchdogArmed
			expired := armed && time.Now().After(s.deadline)
			s.mu.Unlock()
			if expired {
				s.log.Warn("connect watchdog expired, falling back to provisioning")
				if err := s.store.SetBootMode(config.BootProvisioning); err != nil {
					s.log.WithError(err).Warn("failed to persist PROVISIONING boot mode")
				}
				s.reboot.Reboot()
				return nil
			}
		}
	}
}

// netlinkUp brings an interface administratively up; failures are
// logged and otherwise ignored, since the radio driver itself already
// owns connectivity and this is best-effort plumbing on top of it.
func netlinkUp(name string, logger *log.Entry) {
	if name == "" {
		return
	}
	link, err := netlink.LinkByName(name)
	if err != nil {
		logger.WithError(err).WithField("iface", name).Debug("netlink: interface not found")
		return
	}
	if err := netlink.LinkSetUp(link); err != nil {
		logger.WithError(err).WithField("iface", name).Warn("netlink: failed to bring interface up")
	}
}
