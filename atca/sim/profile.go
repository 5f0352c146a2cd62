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

import "github.com/mongoose-os/atca/atca"

// slotProfile holds SlotConfig and KeyConfig (two bytes each, as stored)
// for the default configuration.
var slotProfile = [atca.SlotCount][4]byte{
	0:  {0x83, 0x20, 0x33, 0x00}, // P256 private, internal key generation
	1:  {0x83, 0x46, 0x33, 0x00}, // P256 private, encrypted write with key 6
	2:  {0x83, 0x20, 0x33, 0x00},
	3:  {0x83, 0x20, 0x33, 0x00},
	4:  {0x83, 0x20, 0x33, 0x00},
	5:  {0x83, 0x20, 0x33, 0x00},
	6:  {0x8F, 0x0F, 0x1C, 0x00}, // access key
	7:  {0x00, 0x00, 0x1C, 0x00},
	8:  {0x00, 0x00, 0x3C, 0x00}, // 416 bytes of data
	9:  {0x00, 0x00, 0x18, 0x00}, // AES, clear read and write
	10: {0xC6, 0x46, 0x18, 0x00}, // AES, encrypted read and write with key 6
	11: {0x00, 0x00, 0x10, 0x00}, // P256 public
	12: {0x00, 0x00, 0x10, 0x00}, // P256 public
	13: {0x00, 0x20, 0x10, 0x00}, // P256 public, not writable
	14: {0xC6, 0x20, 0x31, 0x00}, // P256 private, no public info
	15: {0x00, 0x46, 0x18, 0x00}, // AES, encrypted write with key 6
}

// DefaultAccessKey is the key NewProvisioned stores in slot 6 when the
// command line tool opens a simulated chip.
var DefaultAccessKey = []byte{
	0x4d, 0x2a, 0x91, 0x0c, 0x77, 0xe3, 0x5b, 0x18, 0xa6, 0x3f, 0xc2, 0x09, 0xd4, 0x6e, 0x81, 0xb5,
	0x1a, 0xf0, 0x3c, 0x92, 0x5e, 0x07, 0xbb, 0x64, 0xc8, 0x21, 0x9d, 0x4f, 0x70, 0xe6, 0x13, 0xaa,
}

// DefaultConfig returns the factory configuration zone of the simulator:
// both zones unlocked, no slot locked.
func DefaultConfig(devType atca.DeviceType) []byte {
	c := make([]byte, atca.ConfigSize)
	copy(c[0:4], []byte{0x01, 0x23, 0x6f, 0x2a})
	copy(c[8:13], []byte{0x9c, 0x4b, 0x1d, 0x35, 0xee})
	c[14] = 0x01 // I2C enable
	c[16] = 0xC0 // I2C address
	switch devType {
	case atca.ATECC608A:
		copy(c[4:8], []byte{0x00, 0x00, 0x60, 0x02})
		c[13] = 0x01 // AES enable
		c[90] = 0x06 // IO protection key, KDF AES
		c[91] = 0x61 // IO key in slot 6, ECDH output encrypted
	case atca.ATECC508A:
		copy(c[4:8], []byte{0x00, 0x00, 0x50, 0x00})
	case atca.ATECC108A:
		copy(c[4:8], []byte{0x00, 0x00, 0x10, 0x00})
	}
	for i, p := range slotProfile {
		copy(c[20+2*i:], p[0:2])
		copy(c[96+2*i:], p[2:4])
	}
	c[lockValueOffset] = unlocked
	c[lockConfigOffset] = unlocked
	c[slotLockedOffset] = 0xFF
	c[slotLockedOffset+1] = 0xFF
	return c
}
