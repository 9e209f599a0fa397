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

// Package broker wraps the pub/sub client (spec §4.6): it subscribes
// to the command topic, forwards inbound payloads to the Command
// Decoder, and publishes status/telemetry payloads handed to it by
// package telemetry.
package broker

import (
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/Sirupsen/logrus"

	"github.com/onyxgate/gated/command"
)

// Keepalive matches spec §4.6: 30s, sessions not clean-disabled.
const Keepalive = 30 * time.Second

// Channel owns the broker client instance. It can be started, stopped
// and restarted at runtime when configuration changes, without
// requiring the owning process to restart.
type Channel struct {
	mu          sync.Mutex
	client      mqtt.Client
	uri         string
	topicCmd    string
	topicStatus string
	decoder     *command.Decoder
	onConn      func()
	log         *log.Entry
}

func New(decoder *command.Decoder) *Channel {
	return &Channel{decoder: decoder, log: log.WithField("component", "broker")}
}

// SetOnConnect installs the hook run after every successful connect,
// after the command-topic subscription is established. Bootstrap
// wires this to telemetry.Publisher.PublishConnected.
func (c *Channel) SetOnConnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConn = fn
}

// Configure updates the connection parameters for the next Start or
// Restart; it does not itself reconnect.
func (c *Channel) Configure(uri, topicCmd, topicStatus string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.uri = uri
	c.topicCmd = topicCmd
	c.topicStatus = topicStatus
}

// Start is a no-op when broker_uri is empty (spec §3): the Broker
// Channel stays dormant and the rest of the system runs.
func (c *Channel) Start() error {
	c.mu.Lock()
	uri := c.uri
	c.mu.Unlock()
	if uri == "" {
		c.log.Debug("broker uri empty, channel dormant")
		return nil
	}

	opts := mqtt.NewClientOptions().
		AddBroker(uri).
		SetKeepAlive(Keepalive).
		SetCleanSession(false).
		SetAutoReconnect(true).
		SetOnConnectHandler(c.handleConnect).
		SetConnectionLostHandler(c.handleLost)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("broker: connect %s: %w", uri, err)
	}

	c.mu.Lock()
	c.client = client
	c.mu.Unlock()
	return nil
}

func (c *Channel) handleConnect(client mqtt.Client) {
	c.mu.Lock()
	topicCmd := c.topicCmd
	onConn := c.onConn
	c.mu.Unlock()

	if topicCmd != "" {
		token := client.Subscribe(topicCmd, 1, func(_ mqtt.Client, m mqtt.Message) {
			c.decoder.Decode(m.Payload())
		})
		token.Wait()
		if err := token.Error(); err != nil {
			c.log.WithError(err).Warn("failed to subscribe to command topic")
		}
	}

	if onConn != nil {
		onConn()
	}
}

func (c *Channel) handleLost(_ mqtt.Client, err error) {
	c.log.WithError(err).Warn("broker connection lost, client will auto-reconnect")
}

// Publish is a no-op when the channel is dormant or the topic is
// empty, matching spec §4.3's "both are no-ops" rule.
func (c *Channel) Publish(topic string, qos byte, retain bool, payload []byte) error {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	if client == nil || topic == "" {
		return nil
	}
	token := client.Publish(topic, qos, retain, payload)
	token.Wait()
	return token.Error()
}

// Stop disconnects and drops the current client instance.
func (c *Channel) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		c.client.Disconnect(250)
		c.client = nil
	}
}

// Restart stops and destroys the current client, then re-creates it
// from the given configuration (spec §4.6).
func (c *Channel) Restart(uri, topicCmd, topicStatus string) error {
	c.Stop()
	c.Configure(uri, topicCmd, topicStatus)
	return c.Start()
}
