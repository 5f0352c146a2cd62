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
	"crypto/cipher"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/atca/atca/aesmode"
)

type CipherMode int

const (
	CipherCTR CipherMode = iota
	CipherCFB
	CipherOFB
	CipherXTS
	CipherECB
	CipherCBC
	CipherCBCPKCS7
)

// CipherParam carries the mode parameters. Key is only used with slot 16,
// where it is loaded into TempKey for the duration of the call.
type CipherParam struct {
	IV          []byte
	CounterSize int
	Key         []byte
}

type CipherAlgorithm struct {
	Mode  CipherMode
	Param CipherParam
}

type AeadMode int

const (
	AeadCCM AeadMode = iota
	AeadGCM
)

// AeadParam carries AEAD parameters. Tag is the expected tag on decryption;
// TagLength selects the tag size on encryption (16 if zero).
type AeadParam struct {
	Nonce          []byte
	Key            []byte
	Tag            []byte
	TagLength      int
	AdditionalData []byte
}

type AeadAlgorithm struct {
	Mode  AeadMode
	Param AeadParam
}

// chipBlock is a cipher.Block running on the chip's AES engine. The first
// hardware error is kept in err and stops further commands.
type chipBlock struct {
	hw    Hardware
	keyID uint16
	err   error
}

func (b *chipBlock) BlockSize() int { return AESDataSize }

func (b *chipBlock) Encrypt(dst, src []byte) {
	b.run(dst, src, b.hw.AESEncryptBlock)
}

func (b *chipBlock) Decrypt(dst, src []byte) {
	b.run(dst, src, b.hw.AESDecryptBlock)
}

func (b *chipBlock) run(dst, src []byte, op func(uint16, uint8, []byte) ([]byte, error)) {
	if b.err != nil {
		return
	}
	out, err := op(b.keyID, 0, src[:AESDataSize])
	if err == nil && len(out) != AESDataSize {
		err = StatusInvalidSize
	}
	if err != nil {
		b.err = err
		return
	}
	copy(dst, out)
}

// checkAESKeySource validates where the AES key comes from.
func (st *deviceState) checkAESKeySource(slot uint8, key []byte) error {
	switch {
	case slot > SlotCount:
		return StatusInvalidId
	case slot == SlotCount:
		if key == nil {
			return StatusBadParam
		}
		if len(key) != AESKeySize {
			return StatusInvalidSize
		}
	default:
		if key != nil || st.slot(slot).KeyType != KeyTypeAES {
			return StatusBadParam
		}
	}
	return nil
}

// withAESBlock runs f with a chip-backed block for the key in slot, all
// within one session so a TempKey load cannot be overwritten by another
// caller.
func (d *Device) withAESBlock(slot uint8, key []byte, f func(b cipher.Block) error) error {
	return d.sess.do(func(hw Hardware) error {
		b := &chipBlock{hw: hw, keyID: uint16(slot)}
		if slot == SlotCount {
			glog.V(2).Infof("Loading AES key into TempKey")
			if err := hw.NonceLoad(NonceTargetTempKey, padBlock(key)); err != nil {
				return err
			}
			b.keyID = TempKeyID
		}
		err := f(b)
		if b.err != nil {
			return b.err
		}
		return err
	})
}

func aesStatus(err error) error {
	switch errors.Cause(err) {
	case nil:
		return nil
	case aesmode.ErrPadding:
		return StatusBadParam
	case aesmode.ErrIVSize, aesmode.ErrDataSize, aesmode.ErrCounterSize, aesmode.ErrCounterOverflow,
		aesmode.ErrNonceSize, aesmode.ErrTagSize, aesmode.ErrDataTooLong:
		return StatusInvalidSize
	}
	return err
}

func (d *Device) aesPrecheck() (*deviceState, error) {
	st, err := d.snapshot()
	if err != nil {
		return nil, err
	}
	if st.notLocked(true) {
		return nil, StatusNotLocked
	}
	if !st.options.AESEnabled {
		return nil, StatusBadParam
	}
	return st, nil
}

// CipherEncrypt encrypts data with the AES key in slot (or the key given in
// alg.Param.Key when slot is 16).
func (d *Device) CipherEncrypt(alg CipherAlgorithm, slot uint8, data []byte) ([]byte, error) {
	return d.cipher(alg, slot, data, false)
}

func (d *Device) CipherDecrypt(alg CipherAlgorithm, slot uint8, data []byte) ([]byte, error) {
	return d.cipher(alg, slot, data, true)
}

func (d *Device) cipher(alg CipherAlgorithm, slot uint8, data []byte, decrypt bool) ([]byte, error) {
	st, err := d.aesPrecheck()
	if err != nil {
		return nil, err
	}
	p := alg.Param
	var op func(b cipher.Block) ([]byte, error)
	switch alg.Mode {
	case CipherCTR:
		op = func(b cipher.Block) ([]byte, error) { return aesmode.CTR(b, p.IV, p.CounterSize, data) }
	case CipherOFB:
		op = func(b cipher.Block) ([]byte, error) { return aesmode.OFB(b, p.IV, data) }
	case CipherCFB:
		op = func(b cipher.Block) ([]byte, error) {
			if decrypt {
				return aesmode.CFBDecrypt(b, p.IV, data)
			}
			return aesmode.CFBEncrypt(b, p.IV, data)
		}
	case CipherECB:
		op = func(b cipher.Block) ([]byte, error) {
			if decrypt {
				return aesmode.ECBDecrypt(b, data)
			}
			return aesmode.ECBEncrypt(b, data)
		}
	case CipherCBC:
		op = func(b cipher.Block) ([]byte, error) {
			if decrypt {
				return aesmode.CBCDecrypt(b, p.IV, data)
			}
			return aesmode.CBCEncrypt(b, p.IV, data)
		}
	case CipherCBCPKCS7:
		op = func(b cipher.Block) ([]byte, error) {
			if decrypt {
				return aesmode.CBCPKCS7Decrypt(b, p.IV, data)
			}
			return aesmode.CBCPKCS7Encrypt(b, p.IV, data)
		}
	default:
		return nil, StatusUnimplemented
	}
	if err := st.checkAESKeySource(slot, p.Key); err != nil {
		return nil, err
	}
	var out []byte
	err = d.withAESBlock(slot, p.Key, func(b cipher.Block) error {
		var err error
		out, err = op(b)
		return err
	})
	if err != nil {
		return nil, aesStatus(err)
	}
	return out, nil
}

// AEADEncrypt encrypts data in CCM or GCM mode and returns the ciphertext
// and the authentication tag.
func (d *Device) AEADEncrypt(alg AeadAlgorithm, slot uint8, data []byte) ([]byte, []byte, error) {
	st, err := d.aesPrecheck()
	if err != nil {
		return nil, nil, err
	}
	p := alg.Param
	tagLen := p.TagLength
	if tagLen == 0 {
		tagLen = AESDataSize
	}
	var seal func(cipher.Block, []byte, []byte, []byte, int) ([]byte, []byte, error)
	switch alg.Mode {
	case AeadCCM:
		seal = aesmode.CCMSeal
	case AeadGCM:
		seal = aesmode.GCMSeal
	default:
		return nil, nil, StatusUnimplemented
	}
	if err := st.checkAESKeySource(slot, p.Key); err != nil {
		return nil, nil, err
	}
	var ct, tag []byte
	err = d.withAESBlock(slot, p.Key, func(b cipher.Block) error {
		var err error
		ct, tag, err = seal(b, p.Nonce, data, p.AdditionalData, tagLen)
		return err
	})
	if err != nil {
		return nil, nil, aesStatus(err)
	}
	return ct, tag, nil
}

// AEADDecrypt decrypts data and checks alg.Param.Tag. A tag mismatch is
// reported as ok == false with a nil error.
func (d *Device) AEADDecrypt(alg AeadAlgorithm, slot uint8, data []byte) ([]byte, bool, error) {
	st, err := d.aesPrecheck()
	if err != nil {
		return nil, false, err
	}
	p := alg.Param
	var open func(cipher.Block, []byte, []byte, []byte, []byte) ([]byte, bool, error)
	switch alg.Mode {
	case AeadCCM:
		open = aesmode.CCMOpen
	case AeadGCM:
		open = aesmode.GCMOpen
	default:
		return nil, false, StatusUnimplemented
	}
	if err := st.checkAESKeySource(slot, p.Key); err != nil {
		return nil, false, err
	}
	var pt []byte
	var ok bool
	err = d.withAESBlock(slot, p.Key, func(b cipher.Block) error {
		var err error
		pt, ok, err = open(b, p.Nonce, data, p.AdditionalData, p.Tag)
		return err
	})
	if err != nil {
		return nil, false, aesStatus(err)
	}
	return pt, ok, nil
}
