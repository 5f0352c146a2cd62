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
	"bytes"
	"sync"
)

// fakeHW records the commands it receives. Results are canned; err maps a
// command name to the error it should fail with.
type fakeHW struct {
	mu           sync.Mutex
	devType      DeviceType
	serial       []byte
	config       []byte
	configLocked bool
	dataLocked   bool
	err          map[string]error
	panicOn      string
	calls        []string
	released     int

	written   map[uint16][]byte
	tempKey   []byte
	lastKey   []byte
	lastKeyID uint16
}

func newFakeHW(devType DeviceType) *fakeHW {
	return &fakeHW{
		devType:      devType,
		serial:       []byte{0x01, 0x23, 0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff, 0xee},
		config:       testConfig(devType == ATECC608A),
		configLocked: true,
		dataLocked:   true,
		err:          map[string]error{},
		written:      map[uint16][]byte{},
	}
}

// testConfig builds a configuration zone with the slot layout used by the
// device tests.
func testConfig(aes bool) []byte {
	c := make([]byte, ConfigSize)
	if aes {
		c[13] = 0x01
		c[90] = 0x06
		c[91] = 0x61
	}
	slots := [SlotCount][4]byte{
		0:  {0x83, 0x20, 0x33, 0x00},
		1:  {0x83, 0x46, 0x33, 0x00},
		6:  {0x8F, 0x0F, 0x1C, 0x00},
		7:  {0x00, 0x00, 0x1C, 0x00},
		8:  {0x00, 0x00, 0x3C, 0x00},
		9:  {0x00, 0x00, 0x18, 0x00},
		10: {0xC6, 0x46, 0x18, 0x00},
		11: {0x00, 0x00, 0x10, 0x00},
		13: {0x00, 0x20, 0x10, 0x00},
		14: {0xC6, 0x20, 0x31, 0x00},
		15: {0x00, 0x46, 0x18, 0x00},
	}
	for i := 2; i <= 5; i++ {
		slots[i] = slots[0]
	}
	slots[12] = slots[11]
	for i, s := range slots {
		copy(c[slotConfigOffset+2*i:], s[0:2])
		copy(c[keyConfigOffset+2*i:], s[2:4])
	}
	c[lockSlotsOffset] = 0xFF
	c[lockSlotsOffset+1] = 0xFF
	return c
}

func (f *fakeHW) call(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	if f.panicOn == name {
		panic("fake hardware failure")
	}
	return f.err[name]
}

func (f *fakeHW) numCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeHW) lastCall() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return ""
	}
	return f.calls[len(f.calls)-1]
}

func (f *fakeHW) DeviceType() DeviceType { return f.devType }

func (f *fakeHW) ReadSerialNumber() ([]byte, error) {
	if err := f.call("ReadSerialNumber"); err != nil {
		return nil, err
	}
	return f.serial, nil
}

func (f *fakeHW) IsLocked(zone LockZone) (bool, error) {
	if err := f.call("IsLocked"); err != nil {
		return false, err
	}
	if zone == LockZoneConfig {
		return f.configLocked, nil
	}
	return f.dataLocked, nil
}

func (f *fakeHW) ReadConfigZone() ([]byte, error) {
	if err := f.call("ReadConfigZone"); err != nil {
		return nil, err
	}
	return append([]byte(nil), f.config...), nil
}

func (f *fakeHW) CmpConfigZone(config []byte) (bool, error) {
	if err := f.call("CmpConfigZone"); err != nil {
		return false, err
	}
	return bytes.Equal(config[16:], f.config[16:]), nil
}

func (f *fakeHW) ReadZone(zone Zone, slot uint16, block, offset uint8, length int) ([]byte, error) {
	if err := f.call("ReadZone"); err != nil {
		return nil, err
	}
	if zone == ZoneConfig {
		start := int(block)*BlockSize + int(offset)*4
		return append([]byte(nil), f.config[start:start+length]...), nil
	}
	return make([]byte, length), nil
}

func (f *fakeHW) WriteZone(zone Zone, slot uint16, block, offset uint8, data []byte) error {
	if err := f.call("WriteZone"); err != nil {
		return err
	}
	f.written[slot] = append([]byte(nil), data...)
	return nil
}

func (f *fakeHW) ReadEnc(slot uint16, block uint8, key []byte, keyID uint16, numIn []byte) ([]byte, error) {
	if err := f.call("ReadEnc"); err != nil {
		return nil, err
	}
	f.lastKey, f.lastKeyID = key, keyID
	return make([]byte, BlockSize), nil
}

func (f *fakeHW) WriteEnc(slot uint16, block uint8, data, key []byte, keyID uint16, numIn []byte) error {
	if err := f.call("WriteEnc"); err != nil {
		return err
	}
	f.lastKey, f.lastKeyID = key, keyID
	f.written[slot] = append([]byte(nil), data...)
	return nil
}

func (f *fakeHW) Random() ([]byte, error) {
	if err := f.call("Random"); err != nil {
		return nil, err
	}
	r := make([]byte, RandomSize)
	for i := range r {
		r[i] = byte(i + 1)
	}
	return r, nil
}

func (f *fakeHW) SHA(msg []byte) ([]byte, error) {
	if err := f.call("SHA"); err != nil {
		return nil, err
	}
	return make([]byte, DigestSize), nil
}

func (f *fakeHW) NonceLoad(target NonceTarget, data []byte) error {
	if err := f.call("NonceLoad"); err != nil {
		return err
	}
	if target == NonceTargetTempKey {
		f.tempKey = append([]byte(nil), data...)
	}
	return nil
}

func (f *fakeHW) NonceRand(numIn []byte) ([]byte, error) {
	if err := f.call("NonceRand"); err != nil {
		return nil, err
	}
	return make([]byte, RandomSize), nil
}

func (f *fakeHW) GenKey(slot uint16) ([]byte, error) {
	if err := f.call("GenKey"); err != nil {
		return nil, err
	}
	return make([]byte, PublicKeySize), nil
}

func (f *fakeHW) GetPubKey(slot uint16) ([]byte, error) {
	if err := f.call("GetPubKey"); err != nil {
		return nil, err
	}
	return make([]byte, PublicKeySize), nil
}

func (f *fakeHW) ReadPubKey(slot uint16) ([]byte, error) {
	if err := f.call("ReadPubKey"); err != nil {
		return nil, err
	}
	return make([]byte, PublicKeySize), nil
}

func (f *fakeHW) WritePubKey(slot uint16, pub []byte) error {
	return f.call("WritePubKey")
}

func (f *fakeHW) PrivWrite(slot uint16, priv []byte, writeKeyID uint16, writeKey, numIn []byte) error {
	if err := f.call("PrivWrite"); err != nil {
		return err
	}
	f.lastKey, f.lastKeyID = writeKey, writeKeyID
	f.written[slot] = append([]byte(nil), priv...)
	return nil
}

func (f *fakeHW) Sign(slot uint16, digest []byte) ([]byte, error) {
	if err := f.call("Sign"); err != nil {
		return nil, err
	}
	return make([]byte, SignatureSize), nil
}

func (f *fakeHW) VerifyStored(digest, sig []byte, slot uint16) (bool, error) {
	if err := f.call("VerifyStored"); err != nil {
		return false, err
	}
	return true, nil
}

func (f *fakeHW) VerifyExtern(digest, sig, pub []byte) (bool, error) {
	if err := f.call("VerifyExtern"); err != nil {
		return false, err
	}
	return false, nil
}

func (f *fakeHW) AESEncryptBlock(keyID uint16, keyBlock uint8, in []byte) ([]byte, error) {
	if err := f.call("AESEncryptBlock"); err != nil {
		return nil, err
	}
	return append([]byte(nil), in...), nil
}

func (f *fakeHW) AESDecryptBlock(keyID uint16, keyBlock uint8, in []byte) ([]byte, error) {
	if err := f.call("AESDecryptBlock"); err != nil {
		return nil, err
	}
	return append([]byte(nil), in...), nil
}

func (f *fakeHW) Info(cmd InfoCmd, param uint16) ([]byte, error) {
	if err := f.call("Info"); err != nil {
		return nil, err
	}
	return []byte{0x00, 0x00, 0x60, 0x02}, nil
}

func (f *fakeHW) Release() error {
	if err := f.call("Release"); err != nil {
		return err
	}
	f.mu.Lock()
	f.released++
	f.mu.Unlock()
	return nil
}
