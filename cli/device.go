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
package main

import (
	"context"
	"io/ioutil"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/atca/atca"
	"github.com/mongoose-os/atca/atca/mgrpchw"
	"github.com/mongoose-os/atca/cli/config"
	"github.com/mongoose-os/atca/cli/flags"
	"github.com/mongoose-os/atca/common/multierror"
)

type deviceHandler func(d *atca.Device, args []string) error

// ifaceConfig builds the interface config from --config, or from the
// individual flags if no config file is given.
func ifaceConfig() (*atca.IfaceConfig, error) {
	if *flags.Config != "" {
		cfg, err := config.Load(*flags.Config)
		if err != nil {
			return nil, errors.Trace(err)
		}
		if cfg.Timeout == 0 {
			cfg.Timeout = flags.Dev.Timeout
		}
		return cfg, nil
	}
	f := &config.File{
		Device: config.DeviceSection{
			DeviceType: *flags.DeviceType,
			IfaceType:  *flags.Iface,
		},
		Interface: config.InterfaceSection{
			Port:    flags.Dev.Port,
			Address: *flags.Address,
			Timeout: flags.Dev.Timeout,
		},
	}
	cfg, err := f.IfaceConfig()
	return cfg, errors.Trace(err)
}

func openDevice() (*atca.Device, error) {
	cfg, err := ifaceConfig()
	if err != nil {
		return nil, errors.Trace(err)
	}
	var opts []atca.Option
	if cfg.IfaceType == atca.IfaceUART || cfg.IfaceType == atca.IfaceTCP {
		opts = append(opts, atca.WithOpener(func(cfg *atca.IfaceConfig) (atca.Hardware, error) {
			return mgrpchw.OpenWith(&flags.Dev, cfg)
		}))
	}
	d, err := atca.New(cfg, opts...)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to open device")
	}
	return d, nil
}

// withDevice opens the device for the duration of h.
func withDevice(h deviceHandler) handler {
	return func(ctx context.Context, args []string) (err error) {
		d, err := openDevice()
		if err != nil {
			return errors.Trace(err)
		}
		defer func() {
			if rerr := d.Release(); rerr != nil {
				glog.Errorf("release: %s", rerr)
				err = multierror.Append(err, rerr)
			}
		}()
		return h(d, args)
	}
}

// addAccessKey loads --write-key into the access key store. The key goes to
// --write-key-slot if set, defSlot otherwise.
func addAccessKey(d *atca.Device, defSlot uint8) error {
	if *flags.WriteKey == "" {
		return nil
	}
	data, err := ioutil.ReadFile(*flags.WriteKey)
	if err != nil {
		return errors.Trace(err)
	}
	key := atca.ReadHex(data)
	if len(key) != atca.KeySize {
		return errors.Errorf("%s: expected %d bytes, got %d", *flags.WriteKey, atca.KeySize, len(key))
	}
	slot := defSlot
	if *flags.WriteKeySlot >= 0 {
		if *flags.WriteKeySlot >= atca.SlotCount {
			return errors.Errorf("invalid --write-key-slot %d", *flags.WriteKeySlot)
		}
		slot = uint8(*flags.WriteKeySlot)
	}
	glog.V(1).Infof("Access key for slot %d from %s", slot, *flags.WriteKey)
	return errors.Annotatef(d.AddAccessKey(slot, key), "slot %d access key", slot)
}

func slotConfig(d *atca.Device, slot uint8) atca.SlotConfig {
	if slots := d.Slots(); int(slot) < len(slots) {
		return slots[slot].Config
	}
	return atca.SlotConfig{}
}
