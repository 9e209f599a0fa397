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

	log "github.com/Sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

// bucketName is the single namespace named in spec §6: "config".
var bucketName = []byte("config")

const (
	keyWifiSSID    = "wifi_ssid"
	keyWifiPass    = "wifi_pass"
	keyBootMode    = "boot_mode"
	keyBrokerURI   = "mqtt_uri"
	keyTopicCmd    = "topic1"
	keyTopicStatus = "topic2"
	keyTopicTele   = "topic3"
)

// Store is a single-file, embedded key/value store. Every setter runs
// its own bbolt transaction, giving atomic per-key writes without a
// process-wide lock held across calls.
type Store struct {
	db  *bolt.DB
	log *log.Entry
}

// Open creates the bucket if it does not exist yet (a factory-fresh
// device) and returns a ready Store.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("config: create bucket: %w", err)
	}
	return &Store{db: db, log: log.WithField("component", "config")}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Load reads the whole record in a single read transaction.
func (s *Store) Load() (Record, error) {
	var r Record
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		r.WifiSSID = string(b.Get([]byte(keyWifiSSID)))
		r.WifiPass = string(b.Get([]byte(keyWifiPass)))
		r.BrokerURI = string(b.Get([]byte(keyBrokerURI)))
		r.TopicCmd = string(b.Get([]byte(keyTopicCmd)))
		r.TopicStatus = string(b.Get([]byte(keyTopicStatus)))
		r.TopicTele = string(b.Get([]byte(keyTopicTele)))
		if v := b.Get([]byte(keyBootMode)); len(v) == 1 {
			r.BootMode = BootMode(v[0])
		} else {
			r.BootMode = BootProvisioning
		}
		return nil
	})
	return r, err
}

func (s *Store) put(key string, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), value)
	})
}

func (s *Store) SetWifiCredentials(ssid, pass string) error {
	if err := s.put(keyWifiSSID, []byte(ssid)); err != nil {
		return fmt.Errorf("config: set %s: %w", keyWifiSSID, err)
	}
	if err := s.put(keyWifiPass, []byte(pass)); err != nil {
		return fmt.Errorf("config: set %s: %w", keyWifiPass, err)
	}
	return nil
}

func (s *Store) SetBrokerURI(uri string) error {
	if err := s.put(keyBrokerURI, []byte(uri)); err != nil {
		return fmt.Errorf("config: set %s: %w", keyBrokerURI, err)
	}
	return nil
}

func (s *Store) SetTopicCmd(v string) error {
	if err := s.put(keyTopicCmd, []byte(v)); err != nil {
		return fmt.Errorf("config: set %s: %w", keyTopicCmd, err)
	}
	return nil
}

func (s *Store) SetTopicStatus(v string) error {
	if err := s.put(keyTopicStatus, []byte(v)); err != nil {
		return fmt.Errorf("config: set %s: %w", keyTopicStatus, err)
	}
	return nil
}

func (s *Store) SetTopicTele(v string) error {
	if err := s.put(keyTopicTele, []byte(v)); err != nil {
		return fmt.Errorf("config: set %s: %w", keyTopicTele, err)
	}
	return nil
}

func (s *Store) SetBootMode(m BootMode) error {
	if err := s.put(keyBootMode, []byte{byte(m)}); err != nil {
		return fmt.Errorf("config: set %s: %w", keyBootMode, err)
	}
	return nil
}

// Wipe erases every key (spec §4.5's wipe action).
func (s *Store) Wipe() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketName); err != nil && err != bolt.ErrBucketNotFound {
			return fmt.Errorf("config: wipe: %w", err)
		}
		_, err := tx.CreateBucket(bucketName)
		return err
	})
}

func (s *Store) isEmpty() (bool, error) {
	empty := true
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketName).Cursor()
		if k, _ := c.First(); k != nil {
			empty = false
		}
		return nil
	})
	return empty, err
}
