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

import (
	"sync"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/atca/common/multierror"
)

// Device is an open secure element. It enforces the slot policy decoded from
// the configuration zone before any command reaches the hardware.
// Device is safe for concurrent use.
type Device struct {
	stateLock sync.RWMutex
	state     *deviceState

	sess  session
	keys  *AccessKeyStore
	lease *Lease
}

// deviceState is captured once during New and never modified.
type deviceState struct {
	deviceType   DeviceType
	serial       []byte
	slots        []Slot
	configLocked bool
	dataLocked   bool
	options      ChipOptions
}

type options struct {
	rm   *ResourceManager
	open OpenFunc
}

type Option func(*options)

// WithResourceManager makes New acquire the device handle from rm instead of
// the process-wide manager.
func WithResourceManager(rm *ResourceManager) Option {
	return func(o *options) { o.rm = rm }
}

// WithOpener bypasses the interface registry.
func WithOpener(open OpenFunc) Option {
	return func(o *options) { o.open = open }
}

// New opens the chip described by cfg and captures its serial number, slot
// configuration, lock state and chip options. On failure everything acquired
// so far is released.
func New(cfg *IfaceConfig, opts ...Option) (*Device, error) {
	o := options{rm: defaultResourceManager}
	for _, opt := range opts {
		opt(&o)
	}
	if cfg == nil {
		return nil, errors.Annotatef(StatusBadParam, "no interface config")
	}
	open := o.open
	if open == nil {
		var ok bool
		if open, ok = openerFor(cfg.IfaceType); !ok {
			return nil, errors.Annotatef(StatusBadParam, "no opener for interface %q", cfg.IfaceType)
		}
	}

	lease, ok := o.rm.Acquire()
	if !ok {
		return nil, errors.Annotatef(StatusAllocFailure, "device is already in use")
	}

	glog.V(1).Infof("Opening %s over %s", cfg.DeviceType, cfg.IfaceType)
	hw, err := open(cfg)
	if err != nil {
		lease.Release()
		return nil, errors.Annotatef(err, "failed to open %s interface", cfg.IfaceType)
	}

	d := &Device{
		sess:  session{hw: hw},
		keys:  NewAccessKeyStore(cfg.DeviceType == ATECC608A),
		lease: lease,
	}
	st, err := initState(hw, cfg.DeviceType)
	if err != nil {
		return nil, multierror.Append(err, d.teardown())
	}
	d.state = st
	glog.V(1).Infof("%s S/N %x ready, config %s, data %s, AES %t", st.deviceType, st.serial,
		lockModeOf(st.configLocked), lockModeOf(st.dataLocked), st.options.AESEnabled)
	return d, nil
}

func initState(hw Hardware, declared DeviceType) (*deviceState, error) {
	st := &deviceState{deviceType: hw.DeviceType()}

	sn, err := hw.ReadSerialNumber()
	if err != nil {
		return nil, errors.Annotatef(err, "failed to read serial number")
	}
	if len(sn) != SerialNumSize {
		return nil, errors.Annotatef(StatusInvalidSize, "serial number is %d bytes", len(sn))
	}
	st.serial = append([]byte(nil), sn...)

	if err := st.readZones(hw); err != nil {
		return nil, err
	}

	if st.options.AESEnabled != (declared == ATECC608A) {
		detected := "ATECC608x"
		if !st.options.AESEnabled {
			detected = "not ATECC608x"
		}
		return nil, errors.Annotatef(ErrFamilyMismatch, "configured %s, chip on the bus is %s", declared, detected)
	}
	return st, nil
}

// readZones fills in everything derived from the configuration zone and
// the lock bits.
func (st *deviceState) readZones(hw Hardware) error {
	config, err := hw.ReadConfigZone()
	if err != nil {
		return errors.Annotatef(err, "failed to read config zone")
	}
	if len(config) != st.deviceType.ConfigSize() {
		return errors.Annotatef(StatusBadParam, "%s config zone is %d bytes, got %d",
			st.deviceType, st.deviceType.ConfigSize(), len(config))
	}
	if st.slots, err = DecodeSlots(config); err != nil {
		return errors.Annotatef(err, "failed to decode config zone")
	}

	if st.configLocked, err = hw.IsLocked(LockZoneConfig); err != nil {
		return errors.Annotatef(err, "failed to read config zone lock")
	}
	if st.dataLocked, err = hw.IsLocked(LockZoneData); err != nil {
		return errors.Annotatef(err, "failed to read data zone lock")
	}

	if st.options, err = readChipOptions(hw); err != nil {
		return errors.Annotatef(err, "failed to read chip options")
	}
	return nil
}

// teardown returns the hardware and the lease. Lease failure is reported
// as StatusBadParam.
func (d *Device) teardown() error {
	var err error
	if herr := d.sess.close(); herr != nil {
		err = multierror.Append(err, errors.Annotatef(herr, "failed to release hardware"))
	}
	if !d.lease.Release() {
		err = multierror.Append(err, errors.Annotatef(StatusBadParam, "device handle was not held"))
	}
	return err
}

// Release closes the hardware session and forgets the access keys. Any use
// of d afterwards fails with StatusFuncFail; a second Release fails with
// StatusBadParam.
func (d *Device) Release() error {
	d.stateLock.Lock()
	defer d.stateLock.Unlock()
	if d.state == nil {
		return StatusBadParam
	}
	d.keys.Close()
	d.state = nil
	if err := d.teardown(); err != nil {
		return errors.Trace(err)
	}
	glog.V(1).Infof("Device released")
	return nil
}

func (d *Device) snapshot() (*deviceState, error) {
	d.stateLock.RLock()
	defer d.stateLock.RUnlock()
	if d.state == nil {
		return nil, StatusFuncFail
	}
	return d.state, nil
}

// notLocked reports whether the zones an operation depends on are still
// unlocked: the config zone always, the data zone too when both is set.
func (st *deviceState) notLocked(both bool) bool {
	return !st.configLocked || (both && !st.dataLocked)
}

func (st *deviceState) slot(id uint8) SlotConfig {
	return st.slots[id].Config
}

func (d *Device) SerialNumber() []byte {
	st, err := d.snapshot()
	if err != nil {
		return nil
	}
	return append([]byte(nil), st.serial...)
}

func (d *Device) DeviceType() DeviceType {
	st, err := d.snapshot()
	if err != nil {
		return DeviceTypeUnknown
	}
	return st.deviceType
}

// Slots returns a copy of the slot configuration captured at open time.
func (d *Device) Slots() []Slot {
	st, err := d.snapshot()
	if err != nil {
		return nil
	}
	return append([]Slot(nil), st.slots...)
}

func (d *Device) IsConfigurationLocked() bool {
	st, err := d.snapshot()
	return err == nil && st.configLocked
}

func (d *Device) IsDataZoneLocked() bool {
	st, err := d.snapshot()
	return err == nil && st.dataLocked
}

func (d *Device) ChipOptions() ChipOptions {
	st, err := d.snapshot()
	if err != nil {
		return ChipOptions{}
	}
	return st.options
}

func (d *Device) IsAESEnabled() bool { return d.ChipOptions().AESEnabled }
func (d *Device) IsKDFAESEnabled() bool { return d.ChipOptions().KDFAESEnabled }
func (d *Device) IsIOProtectionKeyEnabled() bool { return d.ChipOptions().IOKeyEnabled }

func (d *Device) ECDHOutputProtection() OutputProtectionState {
	return d.ChipOptions().ECDHOutputProtection
}

func (d *Device) KDFOutputProtection() OutputProtectionState {
	return d.ChipOptions().KDFOutputProtection
}

func (d *Device) AddAccessKey(slot uint8, key []byte) error {
	if _, err := d.snapshot(); err != nil {
		return err
	}
	return d.keys.Add(slot, key)
}

func (d *Device) GetAccessKey(slot uint8) ([]byte, error) {
	if _, err := d.snapshot(); err != nil {
		return nil, err
	}
	return d.keys.Get(slot)
}

func (d *Device) FlushAccessKeys() error {
	if _, err := d.snapshot(); err != nil {
		return err
	}
	return d.keys.Flush()
}

// ReadConfigZone returns the raw configuration zone as currently stored on
// the chip.
func (d *Device) ReadConfigZone() ([]byte, error) {
	if _, err := d.snapshot(); err != nil {
		return nil, err
	}
	var res []byte
	err := d.sess.do(func(hw Hardware) error {
		var err error
		res, err = hw.ReadConfigZone()
		return err
	})
	return res, err
}

// CmpConfigZone compares config with the configuration zone on the chip,
// ignoring the bytes the chip does not let the host write.
func (d *Device) CmpConfigZone(config []byte) (bool, error) {
	st, err := d.snapshot()
	if err != nil {
		return false, err
	}
	if len(config) != st.deviceType.ConfigSize() {
		return false, StatusBadParam
	}
	var same bool
	err = d.sess.do(func(hw Hardware) error {
		var err error
		same, err = hw.CmpConfigZone(config)
		return err
	})
	return same, err
}
