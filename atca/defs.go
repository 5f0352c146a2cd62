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
	"fmt"
	"strings"

	"github.com/juju/errors"
)

const (
	SerialNumSize      = 9
	RandomSize         = 32
	DigestSize         = 32
	NonceSize          = 32
	NumInSize          = 20
	SignatureSize      = 64
	PublicKeySize      = 64
	PrivateKeySize     = 32
	KeySize            = 32
	BlockSize          = 32
	AESKeySize         = 16
	AESDataSize        = 16
	GCMIVStdLength     = 12
	InfoSize           = 4
	ConfigSize         = 128
	ATSHAConfigSize    = 88
	SlotCount          = 16
	MinPubKeySlot      = 8
	TempKeyID   uint16 = 0xFFFF
)

type Zone uint8

const (
	ZoneConfig Zone = 0
	ZoneOTP    Zone = 1
	ZoneData   Zone = 2
)

type LockZone int

const (
	LockZoneConfig LockZone = 0
	LockZoneData   LockZone = 1
)

type LockMode string

const (
	LockModeLocked   LockMode = "Locked"
	LockModeUnlocked LockMode = "Unlocked"
)

func lockModeOf(locked bool) LockMode {
	if locked {
		return LockModeLocked
	}
	return LockModeUnlocked
}

type DeviceType uint8

const (
	ATSHA204A         DeviceType = 0
	ATECC108A         DeviceType = 1
	ATECC508A         DeviceType = 2
	ATECC608A         DeviceType = 3
	ATSHA206A         DeviceType = 4
	DeviceTypeUnknown DeviceType = 0x20
)

var deviceTypeNames = map[DeviceType]string{
	ATSHA204A: "ATSHA204A",
	ATECC108A: "ATECC108A",
	ATECC508A: "ATECC508A",
	ATECC608A: "ATECC608A",
	ATSHA206A: "ATSHA206A",
}

func (t DeviceType) String() string {
	if n, ok := deviceTypeNames[t]; ok {
		return n
	}
	return "AtcaDevUnknown"
}

// ConfigSize returns the size of the configuration zone for the family.
func (t DeviceType) ConfigSize() int {
	switch t {
	case ATECC108A, ATECC508A, ATECC608A:
		return ConfigSize
	}
	return ATSHAConfigSize
}

// ParseDeviceType accepts names such as "ATECC608A" or "atecc608a".
// "ATECC608B" and "ATECC608" are treated as ATECC608A.
func ParseDeviceType(s string) (DeviceType, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	switch s {
	case "ATECC608", "ATECC608B":
		return ATECC608A, nil
	}
	for t, n := range deviceTypeNames {
		if n == s {
			return t, nil
		}
	}
	return DeviceTypeUnknown, errors.Errorf("unknown device type %q", s)
}

type KeyType uint8

const (
	KeyTypeP256      KeyType = 4
	KeyTypeAES       KeyType = 6
	KeyTypeShaOrText KeyType = 7
	KeyTypeRfu       KeyType = 0xFF
)

func (t KeyType) String() string {
	switch t {
	case KeyTypeP256:
		return "P256EccKey"
	case KeyTypeAES:
		return "Aes"
	case KeyTypeShaOrText:
		return "ShaOrText"
	}
	return "Rfu"
}

func (t KeyType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// ParseKeyType accepts "ecc", "p256", "aes" or "sha".
func ParseKeyType(s string) (KeyType, error) {
	switch strings.ToLower(s) {
	case "ecc", "p256", "p256ecckey":
		return KeyTypeP256, nil
	case "aes":
		return KeyTypeAES, nil
	case "sha", "text", "shaortext":
		return KeyTypeShaOrText, nil
	}
	return KeyTypeRfu, errors.Errorf("unknown key type %q", s)
}

type WriteConfig uint8

const (
	WriteConfigAlways WriteConfig = iota
	WriteConfigPubInvalid
	WriteConfigNever
	WriteConfigEncrypt
)

func (w WriteConfig) String() string {
	switch w {
	case WriteConfigAlways:
		return "Always"
	case WriteConfigPubInvalid:
		return "PubInvalid"
	case WriteConfigNever:
		return "Never"
	case WriteConfigEncrypt:
		return "Encrypt"
	}
	return fmt.Sprintf("WriteConfig(%d)", uint8(w))
}

func (w WriteConfig) MarshalText() ([]byte, error) {
	return []byte(w.String()), nil
}

type NonceTarget uint8

const (
	NonceTargetTempKey   NonceTarget = 0x00
	NonceTargetMsgDigBuf NonceTarget = 0x40
	NonceTargetAltKeyBuf NonceTarget = 0x80
)

type InfoCmd uint8

const (
	InfoRevision     InfoCmd = 0
	InfoKeyValid     InfoCmd = 1
	InfoState        InfoCmd = 2
	InfoGPIO         InfoCmd = 3
	InfoVolKeyPermit InfoCmd = 4
)

type OutputProtectionState uint8

const (
	OutputClearTextAllowed OutputProtectionState = 0
	OutputEncrypted        OutputProtectionState = 1
	OutputForbidden        OutputProtectionState = 2
	OutputInvalid          OutputProtectionState = 3
)

func (s OutputProtectionState) String() string {
	switch s {
	case OutputClearTextAllowed:
		return "ClearTextAllowed"
	case OutputEncrypted:
		return "EncryptedOutput"
	case OutputForbidden:
		return "Forbidden"
	}
	return "Invalid"
}

func (s OutputProtectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type SignMode int

const (
	SignExternal SignMode = iota
	SignInternal
)

type VerifyKind int

const (
	VerifyExternal VerifyKind = iota
	VerifyInternal
	VerifyValidate
	VerifyInvalidate
	VerifyExternalMac
	VerifyInternalMac
)

// VerifyMode selects the public key used by VerifyHash: the one stored in
// Slot (VerifyInternal) or PublicKey (VerifyExternal).
type VerifyMode struct {
	Kind      VerifyKind
	Slot      uint8
	PublicKey []byte
}

// slotCapacity describes the data-zone geometry of a slot.
type slotCapacity struct {
	blocks         uint8
	lastBlockBytes uint8
	bytes          int
}

func slotCapacityOf(slotID uint8) slotCapacity {
	switch {
	case slotID <= 7:
		return slotCapacity{blocks: 2, lastBlockBytes: 4, bytes: 36}
	case slotID == 8:
		return slotCapacity{blocks: 13, lastBlockBytes: 32, bytes: 416}
	case slotID <= 15:
		return slotCapacity{blocks: 3, lastBlockBytes: 8, bytes: 72}
	}
	return slotCapacity{}
}
