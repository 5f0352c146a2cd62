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

// nonceLengths lists the pass-through nonce lengths each target accepts,
// keyed by whether the chip is an ATECC608A.
var nonceLengths = map[bool]map[NonceTarget][]int{
	true: {
		NonceTargetTempKey:   {NonceSize, 2 * NonceSize},
		NonceTargetMsgDigBuf: {NonceSize, 2 * NonceSize},
		NonceTargetAltKeyBuf: {NonceSize},
	},
	false: {
		NonceTargetTempKey: {NonceSize},
	},
}

func checkNonce(dt DeviceType, target NonceTarget, n int) error {
	lengths, ok := nonceLengths[dt == ATECC608A][target]
	if !ok {
		return StatusBadParam
	}
	for _, l := range lengths {
		if l == n {
			return nil
		}
	}
	return StatusInvalidSize
}

// Random returns 32 random bytes from the chip's RNG.
func (d *Device) Random() ([]byte, error) {
	st, err := d.snapshot()
	if err != nil {
		return nil, err
	}
	if st.notLocked(false) {
		return nil, StatusNotLocked
	}
	var res []byte
	err = d.sess.do(func(hw Hardware) error {
		var err error
		res, err = hw.Random()
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(res) != RandomSize {
		return nil, StatusInvalidSize
	}
	return res, nil
}

// SHA computes SHA-256 of msg on the chip.
func (d *Device) SHA(msg []byte) ([]byte, error) {
	st, err := d.snapshot()
	if err != nil {
		return nil, err
	}
	if st.notLocked(false) {
		return nil, StatusNotLocked
	}
	if len(msg) > 0xFFFF {
		return nil, StatusBadParam
	}
	var digest []byte
	err = d.sess.do(func(hw Hardware) error {
		var err error
		digest, err = hw.SHA(msg)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(digest) != DigestSize {
		return nil, StatusInvalidSize
	}
	return digest, nil
}

// Nonce loads data into one of the chip's internal buffers as-is.
// ATECC608A accepts TempKey and MsgDigBuf (32 or 64 bytes) and AltKeyBuf
// (32 bytes); other chips only TempKey with 32 bytes.
func (d *Device) Nonce(target NonceTarget, data []byte) error {
	st, err := d.snapshot()
	if err != nil {
		return err
	}
	if err := checkNonce(st.deviceType, target, len(data)); err != nil {
		return err
	}
	return d.sess.do(func(hw Hardware) error {
		return hw.NonceLoad(target, data)
	})
}

// NonceRand combines a 20-byte host nonce with chip randomness and returns
// the 32-byte random output.
func (d *Device) NonceRand(numIn []byte) ([]byte, error) {
	if _, err := d.snapshot(); err != nil {
		return nil, err
	}
	if len(numIn) != NumInSize {
		return nil, StatusInvalidSize
	}
	var res []byte
	err := d.sess.do(func(hw Hardware) error {
		var err error
		res, err = hw.NonceRand(numIn)
		return err
	})
	return res, err
}

// SignHash signs a 32-byte digest with the private key in slot.
// Only SignExternal is supported.
func (d *Device) SignHash(mode SignMode, slot uint8, hash []byte) ([]byte, error) {
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
	if mode != SignExternal {
		return nil, StatusUnimplemented
	}
	if len(hash) != DigestSize {
		return nil, StatusInvalidSize
	}
	var sig []byte
	err = d.sess.do(func(hw Hardware) error {
		var err error
		sig, err = hw.Sign(uint16(slot), hash)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(sig) != SignatureSize {
		return nil, StatusInvalidSize
	}
	return sig, nil
}

// VerifyHash checks an ECDSA signature (R||S) over a 32-byte digest. A
// signature that does not verify is reported as false with a nil error.
func (d *Device) VerifyHash(mode VerifyMode, hash, signature []byte) (bool, error) {
	st, err := d.snapshot()
	if err != nil {
		return false, err
	}
	if st.notLocked(true) {
		return false, StatusNotLocked
	}
	if len(signature) != SignatureSize || len(hash) != DigestSize {
		return false, StatusInvalidSize
	}
	var verify func(hw Hardware) (bool, error)
	switch mode.Kind {
	case VerifyInternal:
		if mode.Slot >= SlotCount {
			return false, StatusInvalidId
		}
		verify = func(hw Hardware) (bool, error) {
			return hw.VerifyStored(hash, signature, uint16(mode.Slot))
		}
	case VerifyExternal:
		if len(mode.PublicKey) != PublicKeySize {
			return false, StatusInvalidId
		}
		verify = func(hw Hardware) (bool, error) {
			return hw.VerifyExtern(hash, signature, mode.PublicKey)
		}
	default:
		return false, StatusUnimplemented
	}
	var ok bool
	err = d.sess.do(func(hw Hardware) error {
		var err error
		ok, err = verify(hw)
		return err
	})
	return ok, err
}

// InfoCmd runs the Info command. Only InfoRevision and InfoState are
// supported.
func (d *Device) InfoCmd(cmd InfoCmd) ([]byte, error) {
	if _, err := d.snapshot(); err != nil {
		return nil, err
	}
	switch cmd {
	case InfoRevision, InfoState:
	default:
		return nil, StatusUnimplemented
	}
	var res []byte
	err := d.sess.do(func(hw Hardware) error {
		var err error
		res, err = hw.Info(cmd, 0)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(res) != InfoSize {
		return nil, StatusInvalidSize
	}
	return res, nil
}
