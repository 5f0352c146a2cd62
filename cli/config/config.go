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
// Package config loads the description of how to reach the secure element.
package config

import (
	"io/ioutil"
	"time"

	"github.com/golang/glog"
	"github.com/juju/errors"
	yaml "gopkg.in/yaml.v2"

	"github.com/mongoose-os/atca/atca"
)

const (
	defaultSlaveAddress = 0xC0
	defaultBaud         = 400000
	defaultWakeDelay    = 1500
	defaultRxRetries    = 20
)

type DeviceSection struct {
	DeviceType string `yaml:"device_type"`
	IfaceType  string `yaml:"iface_type"`
	WakeDelay  uint16 `yaml:"wake_delay,omitempty"`
	RxRetries  int    `yaml:"rx_retries,omitempty"`
}

type InterfaceSection struct {
	SlaveAddress uint8         `yaml:"slave_address,omitempty"`
	Bus          uint8         `yaml:"bus,omitempty"`
	Baud         uint32        `yaml:"baud,omitempty"`
	Port         string        `yaml:"port,omitempty"`
	Address      string        `yaml:"address,omitempty"`
	Timeout      time.Duration `yaml:"timeout,omitempty"`
}

// File is the on-disk layout:
//
//	device:
//	  device_type: ATECC608A
//	  iface_type: tcp
//	interface:
//	  address: 192.168.1.4:8910
type File struct {
	Device    DeviceSection    `yaml:"device"`
	Interface InterfaceSection `yaml:"interface"`
}

func Load(path string) (*atca.IfaceConfig, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.Annotatef(err, "%s", path)
	}
	glog.V(1).Infof("Loaded %s: %s over %s", path, cfg.DeviceType, cfg.IfaceType)
	return cfg, nil
}

func Parse(data []byte) (*atca.IfaceConfig, error) {
	var f File
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, errors.Annotatef(err, "invalid config")
	}
	return f.IfaceConfig()
}

// IfaceConfig validates f and fills in defaults.
func (f *File) IfaceConfig() (*atca.IfaceConfig, error) {
	if f.Device.DeviceType == "" {
		return nil, errors.Errorf("device.device_type is required")
	}
	devType, err := atca.ParseDeviceType(f.Device.DeviceType)
	if err != nil {
		return nil, errors.Trace(err)
	}
	ifaceType, err := atca.ParseIfaceType(f.Device.IfaceType)
	if err != nil {
		return nil, errors.Trace(err)
	}
	cfg := &atca.IfaceConfig{
		IfaceType:  ifaceType,
		DeviceType: devType,
		WakeDelay:  f.Device.WakeDelay,
		RxRetries:  f.Device.RxRetries,
		I2C: atca.I2CConfig{
			SlaveAddress: f.Interface.SlaveAddress,
			Bus:          f.Interface.Bus,
			Baud:         f.Interface.Baud,
		},
		Port:    f.Interface.Port,
		Address: f.Interface.Address,
		Timeout: f.Interface.Timeout,
	}
	if cfg.WakeDelay == 0 {
		cfg.WakeDelay = defaultWakeDelay
	}
	if cfg.RxRetries == 0 {
		cfg.RxRetries = defaultRxRetries
	}
	switch ifaceType {
	case atca.IfaceI2C:
		if cfg.I2C.SlaveAddress == 0 {
			cfg.I2C.SlaveAddress = defaultSlaveAddress
		}
		if cfg.I2C.Baud == 0 {
			cfg.I2C.Baud = defaultBaud
		}
	case atca.IfaceUART:
		if cfg.Port == "" {
			return nil, errors.Errorf("interface.port is required for %s", ifaceType)
		}
	case atca.IfaceTCP:
		if cfg.Address == "" {
			return nil, errors.Errorf("interface.address is required for %s", ifaceType)
		}
	}
	return cfg, nil
}
