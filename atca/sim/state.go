//
// Copyright (c) 2014-2019 Cesanta Software Limited
// All rights reserved
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
package sim

import (
	"encoding/hex"
	"io/ioutil"
	"os"

	"github.com/golang/glog"
	"github.com/juju/errors"
	yaml "gopkg.in/yaml.v2"

	"github.com/mongoose-os/atca/atca"
	"github.com/mongoose-os/atca/common/ourio"
)

// chipState is the persistent part of a Chip as stored in a state file.
type chipState struct {
	DeviceType string         `yaml:"device_type"`
	Config     string         `yaml:"config"`
	OTP        string         `yaml:"otp,omitempty"`
	Slots      map[int]string `yaml:"slots"`
}

// save writes the chip state to path. c.mu must be held.
func (c *Chip) save(path string) error {
	st := chipState{
		DeviceType: c.devType.String(),
		Config:     hex.EncodeToString(c.config),
		OTP:        hex.EncodeToString(c.otp),
		Slots:      map[int]string{},
	}
	for i, d := range c.data {
		st.Slots[i] = hex.EncodeToString(d)
	}
	written, err := ourio.WriteYAMLFileIfDifferent(path, &st, 0600)
	if err != nil {
		return errors.Annotatef(err, "failed to save simulator state")
	}
	if written {
		glog.V(1).Infof("sim: state saved to %s", path)
	}
	return nil
}

// Load restores a chip from a state file written by a previous session.
func Load(path string) (*Chip, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var st chipState
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, errors.Annotatef(err, "%s: invalid state file", path)
	}
	devType, err := atca.ParseDeviceType(st.DeviceType)
	if err != nil {
		return nil, errors.Annotatef(err, "%s", path)
	}
	config, err := hex.DecodeString(st.Config)
	if err != nil || len(config) != atca.ConfigSize {
		return nil, errors.Errorf("%s: config must be %d hex bytes", path, atca.ConfigSize)
	}
	c := NewWithConfig(devType, config)
	if st.OTP != "" {
		otp, err := hex.DecodeString(st.OTP)
		if err != nil || len(otp) != otpSize {
			return nil, errors.Errorf("%s: otp must be %d hex bytes", path, otpSize)
		}
		copy(c.otp, otp)
	}
	for slot, v := range st.Slots {
		if slot < 0 || slot >= atca.SlotCount {
			return nil, errors.Errorf("%s: invalid slot %d", path, slot)
		}
		d, err := hex.DecodeString(v)
		if err != nil || len(d) != len(c.data[slot]) {
			return nil, errors.Errorf("%s: slot %d must be %d hex bytes", path, slot, len(c.data[slot]))
		}
		copy(c.data[slot], d)
	}
	return c, nil
}

// Open implements atca.OpenFunc. cfg.Port optionally names a state file:
// the chip is loaded from it if it exists and saved to it on release. A new
// chip is provisioned with DefaultAccessKey in slot 6.
func Open(cfg *atca.IfaceConfig) (atca.Hardware, error) {
	if cfg.Port == "" {
		return NewProvisioned(cfg.DeviceType, DefaultAccessKey), nil
	}
	c, err := Load(cfg.Port)
	switch {
	case err == nil:
		glog.V(1).Infof("sim: state loaded from %s", cfg.Port)
	case os.IsNotExist(errors.Cause(err)):
		c = NewProvisioned(cfg.DeviceType, DefaultAccessKey)
	default:
		return nil, errors.Trace(err)
	}
	c.statePath = cfg.Port
	return c, nil
}

func init() {
	atca.RegisterInterface(atca.IfaceTest, Open)
}
