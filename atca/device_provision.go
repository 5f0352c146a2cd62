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
package atca

import "github.com/golang/glog"

// ConfigWriter is implemented by hardware that can rewrite the configuration
// zone. Only bytes the chip allows to be written are changed.
type ConfigWriter interface {
	WriteConfigZone(config []byte) error
}

// ZoneLocker is implemented by hardware that can lock a zone.
type ZoneLocker interface {
	LockZone(zone LockZone) error
}

// WriteConfigZone writes config into the configuration zone. The zone must
// still be unlocked. The slot configuration and chip options seen by d are
// refreshed afterwards.
func (d *Device) WriteConfigZone(config []byte) error {
	st, err := d.snapshot()
	if err != nil {
		return err
	}
	if st.configLocked {
		return StatusConfigZoneLocked
	}
	if len(config) != st.deviceType.ConfigSize() {
		return StatusBadParam
	}
	if _, err := DecodeSlots(config); err != nil {
		return err
	}
	return d.provision(st, func(hw Hardware) error {
		cw, ok := hw.(ConfigWriter)
		if !ok {
			return StatusUnimplemented
		}
		glog.Infof("Writing config zone")
		return cw.WriteConfigZone(config)
	})
}

// LockZone locks the configuration or the data zone. The data zone can only
// be locked after the configuration zone.
func (d *Device) LockZone(zone LockZone) error {
	st, err := d.snapshot()
	if err != nil {
		return err
	}
	switch zone {
	case LockZoneConfig:
		if st.configLocked {
			return StatusConfigZoneLocked
		}
	case LockZoneData:
		if !st.configLocked {
			return StatusNotLocked
		}
		if st.dataLocked {
			return StatusDataZoneLocked
		}
	default:
		return StatusBadParam
	}
	return d.provision(st, func(hw Hardware) error {
		zl, ok := hw.(ZoneLocker)
		if !ok {
			return StatusUnimplemented
		}
		glog.Infof("Locking %s zone", zoneName(zone))
		return zl.LockZone(zone)
	})
}

func zoneName(zone LockZone) string {
	if zone == LockZoneConfig {
		return "config"
	}
	return "data"
}

// provision runs f and replaces the state snapshot with one re-read from
// the chip in the same session.
func (d *Device) provision(st *deviceState, f func(hw Hardware) error) error {
	var nst *deviceState
	err := d.sess.do(func(hw Hardware) error {
		if err := f(hw); err != nil {
			return err
		}
		nst = &deviceState{deviceType: st.deviceType, serial: st.serial}
		return nst.readZones(hw)
	})
	if err != nil {
		return err
	}
	d.stateLock.Lock()
	defer d.stateLock.Unlock()
	if d.state == nil {
		return StatusFuncFail
	}
	d.state = nst
	glog.V(1).Infof("Config %s, data %s", lockModeOf(nst.configLocked), lockModeOf(nst.dataLocked))
	return nil
}
