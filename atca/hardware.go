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
	"sort"
	"sync"
	"time"

	"github.com/juju/errors"
)

// Hardware is the command set of an open chip session. Implementations
// execute commands verbatim; all policy checks happen in Device before a
// command is issued. Errors should carry a Status where one applies.
type Hardware interface {
	DeviceType() DeviceType
	ReadSerialNumber() ([]byte, error)
	IsLocked(zone LockZone) (bool, error)
	ReadConfigZone() ([]byte, error)
	CmpConfigZone(config []byte) (bool, error)

	// ReadZone reads length bytes of a slot (data zone) or of the zone itself.
	// offset counts 4-byte words from the start of block, so the first byte
	// read is at block*32 + offset*4.
	ReadZone(zone Zone, slot uint16, block, offset uint8, length int) ([]byte, error)
	WriteZone(zone Zone, slot uint16, block, offset uint8, data []byte) error
	ReadEnc(slot uint16, block uint8, key []byte, keyID uint16, numIn []byte) ([]byte, error)
	WriteEnc(slot uint16, block uint8, data, key []byte, keyID uint16, numIn []byte) error

	Random() ([]byte, error)
	SHA(msg []byte) ([]byte, error)
	NonceLoad(target NonceTarget, data []byte) error
	NonceRand(numIn []byte) ([]byte, error)

	GenKey(slot uint16) ([]byte, error)
	GetPubKey(slot uint16) ([]byte, error)
	ReadPubKey(slot uint16) ([]byte, error)
	WritePubKey(slot uint16, pub []byte) error
	PrivWrite(slot uint16, priv []byte, writeKeyID uint16, writeKey, numIn []byte) error

	Sign(slot uint16, digest []byte) ([]byte, error)
	VerifyStored(digest, sig []byte, slot uint16) (bool, error)
	VerifyExtern(digest, sig, pub []byte) (bool, error)

	AESEncryptBlock(keyID uint16, keyBlock uint8, in []byte) ([]byte, error)
	AESDecryptBlock(keyID uint16, keyBlock uint8, in []byte) ([]byte, error)

	Info(cmd InfoCmd, param uint16) ([]byte, error)
	Release() error
}

type IfaceType string

const (
	IfaceI2C  IfaceType = "i2c"
	IfaceUART IfaceType = "uart"
	IfaceTCP  IfaceType = "tcp"
	IfaceTest IfaceType = "test-interface"
)

func ParseIfaceType(s string) (IfaceType, error) {
	switch t := IfaceType(s); t {
	case IfaceI2C, IfaceUART, IfaceTCP, IfaceTest:
		return t, nil
	}
	return "", errors.Errorf("unknown interface type %q", s)
}

type I2CConfig struct {
	SlaveAddress uint8  `yaml:"slave_address" json:"slave_address"`
	Bus          uint8  `yaml:"bus" json:"bus"`
	Baud         uint32 `yaml:"baud" json:"baud"`
}

// IfaceConfig describes how to reach the chip. It is only consulted when
// the session is opened.
type IfaceConfig struct {
	IfaceType  IfaceType
	DeviceType DeviceType
	WakeDelay  uint16
	RxRetries  int
	I2C        I2CConfig

	// Port is the serial port for IfaceUART, Address is host:port for IfaceTCP.
	Port    string
	Address string
	Timeout time.Duration
}

// OpenFunc opens a hardware session described by cfg.
type OpenFunc func(cfg *IfaceConfig) (Hardware, error)

var (
	openersLock sync.Mutex
	openers     = map[IfaceType]OpenFunc{}
)

// RegisterInterface makes an interface type available to New. It is meant to
// be called from init functions of hardware packages.
func RegisterInterface(t IfaceType, open OpenFunc) {
	openersLock.Lock()
	defer openersLock.Unlock()
	openers[t] = open
}

func openerFor(t IfaceType) (OpenFunc, bool) {
	openersLock.Lock()
	defer openersLock.Unlock()
	open, ok := openers[t]
	return open, ok
}

// RegisteredInterfaces returns the interface types that have an opener.
func RegisteredInterfaces() []IfaceType {
	openersLock.Lock()
	defer openersLock.Unlock()
	var res []IfaceType
	for t := range openers {
		res = append(res, t)
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}
