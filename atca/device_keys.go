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

// checkKeySetup validates a key type against a target slot for GenKey and
// ImportKey. Slot 16 stands for TempKey and only takes AES keys.
func (st *deviceState) checkKeySetup(kt KeyType, slot uint8) error {
	if slot > SlotCount {
		return StatusInvalidId
	}
	switch {
	case slot == SlotCount && kt != KeyTypeAES,
		kt == KeyTypeAES && !st.options.AESEnabled,
		slot < SlotCount && kt != st.slot(slot).KeyType:
		return StatusBadParam
	}
	return nil
}

// writeKeyFor returns the access key needed for an encrypted write to slot.
func (d *Device) writeKeyFor(st *deviceState, slot uint8) (uint16, []byte, error) {
	if slot >= SlotCount || st.slot(slot).WriteConfig != WriteConfigEncrypt {
		return 0, nil, StatusBadParam
	}
	id := st.slot(slot).WriteKey
	key, err := d.keys.Get(id)
	if err != nil {
		return 0, nil, err
	}
	return uint16(id), key, nil
}

// readKeyFor returns the access key needed for an encrypted read of slot.
func (d *Device) readKeyFor(st *deviceState, slot uint8) (uint16, []byte, error) {
	if slot >= SlotCount {
		return 0, nil, StatusBadParam
	}
	cfg := st.slot(slot)
	if !cfg.ReadKey.EncryptRead || !cfg.IsSecret || cfg.EccKeyAttr.IsPrivate {
		return 0, nil, StatusBadParam
	}
	key, err := d.keys.Get(cfg.ReadKey.SlotNumber)
	if err != nil {
		return 0, nil, err
	}
	return uint16(cfg.ReadKey.SlotNumber), key, nil
}

func checkEncBlock(slot, block uint8, data, numIn []byte) error {
	if len(data) != BlockSize || len(numIn) != NumInSize {
		return StatusInvalidSize
	}
	if slot >= SlotCount || block >= slotCapacityOf(slot).blocks {
		return StatusInvalidId
	}
	return nil
}

// writeKeyBlock stores a 32-byte key block into block 0 of slot, plain or
// encrypted as the slot's WriteConfig demands. gen is called inside the
// session to produce the block.
func (d *Device) writeKeyBlock(st *deviceState, slot uint8, gen func(hw Hardware) ([]byte, error)) error {
	numIn := make([]byte, NumInSize)
	switch st.slot(slot).WriteConfig {
	case WriteConfigAlways:
		glog.V(2).Infof("Slot %d: plain key write", slot)
		return d.sess.do(func(hw Hardware) error {
			block, err := gen(hw)
			if err != nil {
				return err
			}
			return hw.WriteZone(ZoneData, uint16(slot), 0, 0, block)
		})
	case WriteConfigEncrypt:
		keyID, key, err := d.writeKeyFor(st, slot)
		if err != nil {
			return err
		}
		glog.V(2).Infof("Slot %d: encrypted key write with key %d", slot, keyID)
		return d.sess.do(func(hw Hardware) error {
			block, err := gen(hw)
			if err != nil {
				return err
			}
			if err := checkEncBlock(slot, 0, block, numIn); err != nil {
				return err
			}
			return hw.WriteEnc(uint16(slot), 0, block, key, keyID, numIn)
		})
	}
	return StatusBadParam
}

// GenKey generates a key of type kt in slot. P256 keys are generated by the
// chip and never leave it; AES keys come from the chip's RNG and are written
// into the slot.
func (d *Device) GenKey(kt KeyType, slot uint8) error {
	st, err := d.snapshot()
	if err != nil {
		return err
	}
	if st.notLocked(false) {
		return StatusNotLocked
	}
	if err := st.checkKeySetup(kt, slot); err != nil {
		return err
	}
	switch kt {
	case KeyTypeP256:
		if !st.slot(slot).IsSecret {
			return StatusBadParam
		}
		return d.sess.do(func(hw Hardware) error {
			_, err := hw.GenKey(uint16(slot))
			return err
		})
	case KeyTypeAES:
		if slot == SlotCount {
			return StatusUnimplemented
		}
		return d.writeKeyBlock(st, slot, func(hw Hardware) ([]byte, error) {
			rnd, err := hw.Random()
			if err != nil {
				return nil, err
			}
			if len(rnd) < AESKeySize {
				return nil, StatusInvalidSize
			}
			return padBlock(rnd[:AESKeySize]), nil
		})
	}
	return StatusBadParam
}

// ImportKey writes a key into slot. P256 takes a 64-byte public key (slots
// 8..15) or a 32-byte private key (encrypted write), AES takes a 16-byte key.
// Slot 16 loads an AES key into TempKey.
func (d *Device) ImportKey(kt KeyType, data []byte, slot uint8) error {
	st, err := d.snapshot()
	if err != nil {
		return err
	}
	if st.notLocked(true) {
		return StatusNotLocked
	}
	if err := st.checkKeySetup(kt, slot); err != nil {
		return err
	}
	if (kt == KeyTypeAES && len(data) != AESKeySize) ||
		(kt == KeyTypeP256 && len(data) != PrivateKeySize && len(data) != PublicKeySize) {
		return StatusInvalidSize
	}
	switch kt {
	case KeyTypeP256:
		if len(data) == PublicKeySize {
			if slot < MinPubKeySlot {
				return StatusInvalidId
			}
			pub := append([]byte(nil), data...)
			return d.sess.do(func(hw Hardware) error {
				return hw.WritePubKey(uint16(slot), pub)
			})
		}
		priv := append(make([]byte, 4), data...)
		keyID, key, err := d.writeKeyFor(st, slot)
		if err != nil {
			return err
		}
		glog.V(2).Infof("Slot %d: private key write with key %d", slot, keyID)
		numIn := make([]byte, NumInSize)
		return d.sess.do(func(hw Hardware) error {
			return hw.PrivWrite(uint16(slot), priv, keyID, key, numIn)
		})
	case KeyTypeAES:
		block := padBlock(data)
		if slot == SlotCount {
			return d.Nonce(NonceTargetTempKey, block)
		}
		return d.writeKeyBlock(st, slot, func(hw Hardware) ([]byte, error) {
			return block, nil
		})
	case KeyTypeShaOrText:
		return StatusUnimplemented
	}
	return StatusBadParam
}

// ExportKey reads a key out of slot. P256 returns the 64-byte public key,
// AES the 16-byte key. length only matters for ShaOrText slots.
func (d *Device) ExportKey(kt KeyType, slot uint8, length int) ([]byte, error) {
	st, err := d.snapshot()
	if err != nil {
		return nil, err
	}
	if st.notLocked(true) {
		return nil, StatusNotLocked
	}
	if slot >= SlotCount {
		return nil, StatusInvalidId
	}
	switch kt {
	case KeyTypeP256:
		return d.publicKey(st, slot)
	case KeyTypeAES:
		return d.readAESKey(st, slot)
	case KeyTypeShaOrText:
		if st.slot(slot).KeyType != KeyTypeShaOrText {
			return nil, StatusBadParam
		}
		if length > slotCapacityOf(slot).bytes {
			return nil, StatusInvalidSize
		}
		return nil, StatusUnimplemented
	}
	return nil, StatusBadParam
}

func (d *Device) readAESKey(st *deviceState, slot uint8) ([]byte, error) {
	cfg := st.slot(slot)
	if cfg.KeyType != KeyTypeAES {
		return nil, StatusBadParam
	}
	var block []byte
	if cfg.IsSecret && cfg.ReadKey.EncryptRead {
		keyID, key, err := d.readKeyFor(st, slot)
		if err != nil {
			return nil, err
		}
		glog.V(2).Infof("Slot %d: encrypted read with key %d", slot, keyID)
		numIn := make([]byte, NumInSize)
		err = d.sess.do(func(hw Hardware) error {
			var err error
			block, err = hw.ReadEnc(uint16(slot), 0, key, keyID, numIn)
			return err
		})
		if err != nil {
			return nil, err
		}
	} else {
		glog.V(2).Infof("Slot %d: plain read", slot)
		err := d.sess.do(func(hw Hardware) error {
			var err error
			block, err = hw.ReadZone(ZoneData, uint16(slot), 0, 0, BlockSize)
			return err
		})
		if err != nil {
			return nil, err
		}
	}
	if len(block) < AESKeySize {
		return nil, StatusInvalidSize
	}
	return append([]byte(nil), block[:AESKeySize]...), nil
}

// GetPublicKey returns the 64-byte public key of slot: computed from the
// private key for secret slots that allow it, read directly otherwise.
func (d *Device) GetPublicKey(slot uint8) ([]byte, error) {
	st, err := d.snapshot()
	if err != nil {
		return nil, err
	}
	if st.notLocked(true) {
		return nil, StatusNotLocked
	}
	if slot >= SlotCount {
		return nil, StatusInvalidId
	}
	return d.publicKey(st, slot)
}

func (d *Device) publicKey(st *deviceState, slot uint8) ([]byte, error) {
	cfg := st.slot(slot)
	if cfg.KeyType != KeyTypeP256 {
		return nil, StatusBadParam
	}
	var read func(hw Hardware) ([]byte, error)
	switch {
	case cfg.IsSecret && cfg.PubInfo && cfg.EccKeyAttr.IsPrivate:
		read = func(hw Hardware) ([]byte, error) { return hw.GetPubKey(uint16(slot)) }
	case cfg.IsSecret && cfg.ReadKey.EncryptRead:
		if slot < MinPubKeySlot {
			return nil, StatusInvalidId
		}
		return nil, StatusUnimplemented
	case cfg.IsSecret:
		return nil, StatusBadParam
	case cfg.WriteConfig == WriteConfigAlways:
		if slot < MinPubKeySlot {
			return nil, StatusInvalidId
		}
		read = func(hw Hardware) ([]byte, error) { return hw.ReadPubKey(uint16(slot)) }
	default:
		return nil, StatusBadParam
	}
	var pub []byte
	err := d.sess.do(func(hw Hardware) error {
		var err error
		pub, err = read(hw)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(pub) != PublicKeySize {
		return nil, StatusInvalidSize
	}
	return pub, nil
}

func padBlock(data []byte) []byte {
	block := make([]byte, BlockSize)
	copy(block, data)
	return block
}
