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
// Package aesmode implements AES block cipher modes on top of a
// cipher.Block. It is used with blocks whose Encrypt and Decrypt run on a
// secure element, so the key never has to be known to the host.
package aesmode

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"

	"github.com/juju/errors"
)

var (
	ErrIVSize          = errors.New("IV must be one block long")
	ErrDataSize        = errors.New("data length is not a multiple of the block size")
	ErrCounterSize     = errors.New("invalid counter size")
	ErrCounterOverflow = errors.New("counter space exhausted")
	ErrPadding         = errors.New("invalid PKCS#7 padding")
	ErrNonceSize       = errors.New("invalid nonce size")
	ErrTagSize         = errors.New("invalid tag size")
	ErrDataTooLong     = errors.New("data too long for nonce size")
)

const BlockSize = aes.BlockSize

func checkIV(iv []byte) error {
	if len(iv) != BlockSize {
		return ErrIVSize
	}
	return nil
}

func checkBlocks(data []byte) error {
	if len(data)%BlockSize != 0 {
		return ErrDataSize
	}
	return nil
}

func ECBEncrypt(b cipher.Block, data []byte) ([]byte, error) {
	if err := checkBlocks(data); err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	for i := 0; i < len(data); i += BlockSize {
		b.Encrypt(out[i:i+BlockSize], data[i:i+BlockSize])
	}
	return out, nil
}

func ECBDecrypt(b cipher.Block, data []byte) ([]byte, error) {
	if err := checkBlocks(data); err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	for i := 0; i < len(data); i += BlockSize {
		b.Decrypt(out[i:i+BlockSize], data[i:i+BlockSize])
	}
	return out, nil
}

func CBCEncrypt(b cipher.Block, iv, data []byte) ([]byte, error) {
	if err := checkIV(iv); err != nil {
		return nil, err
	}
	if err := checkBlocks(data); err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(b, iv).CryptBlocks(out, data)
	return out, nil
}

func CBCDecrypt(b cipher.Block, iv, data []byte) ([]byte, error) {
	if err := checkIV(iv); err != nil {
		return nil, err
	}
	if err := checkBlocks(data); err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(b, iv).CryptBlocks(out, data)
	return out, nil
}

// CBCPKCS7Encrypt pads data to a whole number of blocks (always adding at
// least one byte) and encrypts it in CBC mode.
func CBCPKCS7Encrypt(b cipher.Block, iv, data []byte) ([]byte, error) {
	n := BlockSize - len(data)%BlockSize
	padded := append(append([]byte(nil), data...), bytes.Repeat([]byte{byte(n)}, n)...)
	return CBCEncrypt(b, iv, padded)
}

func CBCPKCS7Decrypt(b cipher.Block, iv, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrDataSize
	}
	out, err := CBCDecrypt(b, iv, data)
	if err != nil {
		return nil, err
	}
	n := int(out[len(out)-1])
	if n == 0 || n > BlockSize {
		return nil, ErrPadding
	}
	for _, c := range out[len(out)-n:] {
		if int(c) != n {
			return nil, ErrPadding
		}
	}
	return out[:len(out)-n], nil
}

// CFBEncrypt and CFBDecrypt implement full-block (128-bit) cipher feedback.
func CFBEncrypt(b cipher.Block, iv, data []byte) ([]byte, error) {
	return cfb(b, iv, data, false)
}

func CFBDecrypt(b cipher.Block, iv, data []byte) ([]byte, error) {
	return cfb(b, iv, data, true)
}

func cfb(b cipher.Block, iv, data []byte, decrypt bool) ([]byte, error) {
	if err := checkIV(iv); err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	reg := append([]byte(nil), iv...)
	ks := make([]byte, BlockSize)
	for i := 0; i < len(data); i += BlockSize {
		b.Encrypt(ks, reg)
		end := i + BlockSize
		if end > len(data) {
			end = len(data)
		}
		xorBytes(out[i:end], data[i:end], ks)
		if decrypt {
			copy(reg, data[i:end])
		} else {
			copy(reg, out[i:end])
		}
	}
	return out, nil
}

// OFB is its own inverse.
func OFB(b cipher.Block, iv, data []byte) ([]byte, error) {
	if err := checkIV(iv); err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	reg := append([]byte(nil), iv...)
	for i := 0; i < len(data); i += BlockSize {
		b.Encrypt(reg, reg)
		end := i + BlockSize
		if end > len(data) {
			end = len(data)
		}
		xorBytes(out[i:end], data[i:end], reg)
	}
	return out, nil
}

// CTR encrypts or decrypts data in counter mode. The counter occupies the
// last counterSize bytes of iv and is incremented big-endian without
// carrying into the rest of the block. Running out of counter values is an
// error.
func CTR(b cipher.Block, iv []byte, counterSize int, data []byte) ([]byte, error) {
	if err := checkIV(iv); err != nil {
		return nil, err
	}
	if counterSize < 1 || counterSize > BlockSize {
		return nil, ErrCounterSize
	}
	nblocks := (len(data) + BlockSize - 1) / BlockSize
	if counterSize < 8 && uint64(nblocks) > uint64(1)<<(8*uint(counterSize)) {
		return nil, ErrCounterOverflow
	}
	out := make([]byte, len(data))
	ctr := append([]byte(nil), iv...)
	ks := make([]byte, BlockSize)
	for i := 0; i < len(data); i += BlockSize {
		b.Encrypt(ks, ctr)
		end := i + BlockSize
		if end > len(data) {
			end = len(data)
		}
		xorBytes(out[i:end], data[i:end], ks)
		incCounter(ctr[BlockSize-counterSize:])
	}
	return out, nil
}

func incCounter(c []byte) {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]++
		if c[i] != 0 {
			return
		}
	}
}

func xorBytes(dst, a, b []byte) {
	for i := range dst {
		dst[i] = a[i] ^ b[i]
	}
}
