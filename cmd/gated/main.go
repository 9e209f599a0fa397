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

// Command gated boots the gate controller firmware (spec §4.8):
// storage, GPIO, connectivity, the broker channel, the command queue
// and the Gate FSM task.
package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	log "github.com/Sirupsen/logrus"

	"github.com/onyxgate/gated/broker"
	"github.com/onyxgate/gated/command"
	"github.com/onyxgate/gated/config"
	"github.com/onyxgate/gated/gate"
	"github.com/onyxgate/gated/gpio"
	"github.com/onyxgate/gated/portal"
	"github.com/onyxgate/gated/telemetry"
	"github.com/onyxgate/gated/wifi"
)

func main() {
	dbPath := flag.String("store", "/var/lib/gated/config.db", "path to the configuration store")
	defaultsPath := flag.String("defaults", "", "optional factory-defaults document")
	gpioChip := flag.String("gpio-chip", "gpiochip0", "GPIO character device")
	httpAddr := flag.String("http", ":80", "provisioning portal listen address")
	staIfc := flag.String("sta-iface", "wlan0", "station network interface")
	apIfc := flag.String("ap-iface", "ap0", "access point network interface")
	flag.Parse()

	logger := log.WithField("component", "bootstrap")

	store, err := config.Open(*dbPath)
	if err != nil {
		log.WithError(err).Fatal("failed to open configuration store")
	}
	defer store.Close()

	defaults, err := config.LoadDefaults(*defaultsPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load factory defaults")
	}
	if err := store.SeedIfEmpty(defaults); err != nil {
		log.WithError(err).Fatal("failed to seed configuration store")
	}

	rec, err := store.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	hal, err := gpio.NewChardevHAL(gpio.Pins{
		Chip:        *gpioChip,
		LimitOpen:   0,
		LimitClosed: 1,
		MotorOpen:   2,
		MotorClose:  3,
		Lamp:        4,
	})
	if err != nil {
		log.WithError(err).Fatal("failed to initialize GPIO")
	}
	defer hal.Close()

	queue := command.NewQueue()
	decoder := command.NewDecoder(queue)

	brokerChannel := broker.New(decoder)
	pub := telemetry.NewPublisher(brokerChannel, rec.TopicStatus, rec.TopicTele)
	brokerChannel.SetOnConnect(pub.PublishConnected)
	brokerChannel.Configure(rec.BrokerURI, rec.TopicCmd, rec.TopicStatus)
	if err := brokerChannel.Start(); err != nil {
		logger.WithError(err).Warn("broker channel failed to start, continuing dormant")
	}
	pub.Start()
	defer pub.Stop()

	fsm := gate.New(hal, queue, pub)
	fsm.Start()
	defer fsm.Stop()

	var radio wifi.RadioDriver // supplied by platform-specific code; see DESIGN.md
	reboot := wifi.ProcessExitRebooter{}
	supervisor := wifi.New(radio, store, reboot, *staIfc, *apIfc)
	if radio != nil {
		if err := supervisor.Start(); err != nil {
			logger.WithError(err).Warn("connectivity supervisor failed to start")
		}
		defer supervisor.Stop()
	}

	p := portal.New(store, supervisor, brokerChannel, pub, fsm, reboot)
	srv := &http.Server{Addr: *httpAddr, Handler: p.Handler()}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("provisioning portal stopped")
		}
	}()
	defer srv.Close()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	logger.WithField("signal", s).Info("shutting down")
}
