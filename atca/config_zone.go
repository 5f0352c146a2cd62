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

const (
	slotConfigOffset = 20
	lockSlotsOffset  = 88
	keyConfigOffset  = 96
)

type ReadKey struct {
	EncryptRead bool  `json:"encrypt_read" yaml:"encrypt_read"`
	SlotNumber  uint8 `json:"slot_number" yaml:"slot_number"`
}

type EccKeyAttr struct {
	IsPrivate     bool `json:"is_private" yaml:"is_private"`
	ExtSign       bool `json:"ext_sign" yaml:"ext_sign"`
	IntSign       bool `json:"int_sign" yaml:"int_sign"`
	ECDHOperation bool `json:"ecdh_operation" yaml:"ecdh_operation"`
	ECDHSecretOut bool `json:"ecdh_secret_out" yaml:"ecdh_secret_out"`
}

// SlotConfig is the decoded policy of a single data-zone slot, combining the
// SlotConfig and KeyConfig words of the configuration zone.
type SlotConfig struct {
	KeyType           KeyType     `json:"key_type" yaml:"key_type"`
	WriteConfig       WriteConfig `json:"write_config" yaml:"write_config"`
	ReadKey           ReadKey     `json:"read_key" yaml:"read_key"`
	EccKeyAttr        EccKeyAttr  `json:"ecc_key_attr" yaml:"ecc_key_attr"`
	IsSecret          bool        `json:"is_secret" yaml:"is_secret"`
	WriteKey          uint8       `json:"write_key" yaml:"write_key"`
	AuthKey           uint8       `json:"auth_key" yaml:"auth_key"`
	X509ID            uint8       `json:"x509_id" yaml:"x509_id"`
	LimitedUse        bool        `json:"limited_use" yaml:"limited_use"`
	NoMAC             bool        `json:"no_mac" yaml:"no_mac"`
	PersistentDisable bool        `json:"persistent_disable" yaml:"persistent_disable"`
	ReqAuth           bool        `json:"req_auth" yaml:"req_auth"`
	ReqRandom         bool        `json:"req_random" yaml:"req_random"`
	Lockable          bool        `json:"lockable" yaml:"lockable"`
	PubInfo           bool        `json:"pub_info" yaml:"pub_info"`
}

type Slot struct {
	ID       uint8      `json:"id" yaml:"id"`
	IsLocked bool       `json:"is_locked" yaml:"is_locked"`
	Config   SlotConfig `json:"config" yaml:"config"`
}

// DecodeSlots decodes the per-slot policy from a raw configuration zone.
// It does not modify config and always returns SlotCount entries.
func DecodeSlots(config []byte) ([]Slot, error) {
	if len(config) < ConfigSize {
		return nil, StatusInvalidSize
	}
	slots := make([]Slot, SlotCount)
	for i := range slots {
		id := uint8(i)
		sc := config[slotConfigOffset+2*i : slotConfigOffset+2*i+2]
		kc := config[keyConfigOffset+2*i : keyConfigOffset+2*i+2]
		locks := config[lockSlotsOffset+i/8]
		slots[i] = Slot{
			ID:       id,
			IsLocked: locks&(1<<uint(i%8)) == 0,
			Config:   decodeSlotConfig(sc[0], sc[1], kc[0], kc[1]),
		}
	}
	return slots, nil
}

func bit(b byte, n uint) bool {
	return b&(1<<n) != 0
}

func decodeSlotConfig(sc0, sc1, kc0, kc1 byte) SlotConfig {
	return SlotConfig{
		KeyType:     keyTypeOf((kc0 >> 2) & 0x07),
		WriteConfig: writeConfigOf(sc1 >> 4),
		ReadKey: ReadKey{
			EncryptRead: bit(sc0, 6),
			SlotNumber:  sc0 & 0x0F,
		},
		EccKeyAttr: EccKeyAttr{
			IsPrivate:     bit(kc0, 0),
			ExtSign:       bit(sc0, 0),
			IntSign:       bit(sc0, 1),
			ECDHOperation: bit(sc0, 2),
			ECDHSecretOut: bit(sc0, 3),
		},
		IsSecret:          bit(sc0, 7),
		WriteKey:          sc1 & 0x0F,
		AuthKey:           kc1 & 0x0F,
		X509ID:            (kc1 >> 6) & 0x03,
		LimitedUse:        bit(sc0, 5),
		NoMAC:             bit(sc0, 4),
		PersistentDisable: bit(kc1, 4),
		ReqAuth:           bit(kc0, 7),
		ReqRandom:         bit(kc0, 6),
		Lockable:          bit(kc0, 5),
		PubInfo:           bit(kc0, 1),
	}
}

func keyTypeOf(v byte) KeyType {
	switch v {
	case 4:
		return KeyTypeP256
	case 6:
		return KeyTypeAES
	case 7:
		return KeyTypeShaOrText
	}
	return KeyTypeRfu
}

// writeConfigOf collapses the 4-bit WriteConfig field into the modes that
// matter for key writes. Bit 2 selects encrypted writes, bit 3 or bit 1 alone
// forbids writes.
func writeConfigOf(v byte) WriteConfig {
	switch {
	case v == 0:
		return WriteConfigAlways
	case v == 1:
		return WriteConfigPubInvalid
	case v&0x04 != 0:
		return WriteConfigEncrypt
	}
	return WriteConfigNever
}
