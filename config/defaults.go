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

package config

import (
	"fmt"
	"os"

	log "github.com/Sirupsen/logrus"
	"github.com/spf13/viper"
)

// LoadDefaults reads an optional factory-defaults document (YAML,
// JSON or TOML; viper sniffs the extension) and returns the Record it
// describes. A missing file is not an error: the zero Record forces
// PROVISIONING boot, which is the correct factory-fresh behavior.
func LoadDefaults(path string) (Record, error) {
	var r Record
	if path == "" {
		return r, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return r, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return r, fmt.Errorf("config: read defaults %s: %w", path, err)
	}

	r.WifiSSID = v.GetString("wifi_ssid")
	r.WifiPass = v.GetString("wifi_pass")
	r.BrokerURI = v.GetString("broker_uri")
	r.TopicCmd = v.GetString("topic_cmd")
	r.TopicStatus = v.GetString("topic_status")
	r.TopicTele = v.GetString("topic_tele")
	if v.GetString("boot_mode") == "OPERATIONAL" {
		r.BootMode = BootOperational
	} else {
		r.BootMode = BootProvisioning
	}
	return r, nil
}

// SeedIfEmpty writes defaults into the store only on first boot of a
// factory-fresh device; it never overwrites values a user has already
// configured through the provisioning portal.
func (s *Store) SeedIfEmpty(defaults Record) error {
	empty, err := s.isEmpty()
	if err != nil {
		return fmt.Errorf("config: seed check: %w", err)
	}
	if !empty {
		return nil
	}

	s.log.Info("seeding factory defaults into empty configuration store")

	if defaults.WifiSSID != "" {
		if err := s.SetWifiCredentials(defaults.WifiSSID, defaults.WifiPass); err != nil {
			return err
		}
	}
	if defaults.BrokerURI != "" {
		if err := s.SetBrokerURI(defaults.BrokerURI); err != nil {
			return err
		}
	}
	if defaults.TopicCmd != "" {
		if err := s.SetTopicCmd(defaults.TopicCmd); err != nil {
			return err
		}
	}
	if defaults.TopicStatus != "" {
		if err := s.SetTopicStatus(defaults.TopicStatus); err != nil {
			return err
		}
	}
	if defaults.TopicTele != "" {
		if err := s.SetTopicTele(defaults.TopicTele); err != nil {
			return err
		}
	}
	return s.SetBootMode(defaults.BootMode)
}
