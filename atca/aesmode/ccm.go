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
package aesmode

import (
	"crypto/cipher"
	"crypto/subtle"
	"encoding/binary"
)

const (
	ccmMinNonceSize = 7
	ccmMaxNonceSize = 13
)

func checkCCM(nonce []byte, tagLen, dataLen int) error {
	if len(nonce) < ccmMinNonceSize || len(nonce) > ccmMaxNonceSize {
		return ErrNonceSize
	}
	if tagLen < 4 || tagLen > BlockSize || tagLen%2 != 0 {
		return ErrTagSize
	}
	l := 15 - len(nonce)
	if l < 8 && uint64(dataLen) >= uint64(1)<<(8*uint(l)) {
		return ErrDataTooLong
	}
	return nil
}

// ccmCounter builds counter block i: flags, nonce, i in the remaining bytes.
func ccmCounter(nonce []byte, i int) [BlockSize]byte {
	var a [BlockSize]byte
	a[0] = byte(14 - len(nonce))
	copy(a[1:], nonce)
	for j := BlockSize - 1; j > len(nonce) && i > 0; j-- {
		a[j] = byte(i)
		i >>= 8
	}
	return a
}

func ccmMAC(b cipher.Block, nonce, data, ad []byte, tagLen int) [BlockSize]byte {
	var x [BlockSize]byte
	x[0] = byte((tagLen-2)/2)<<3 | byte(14-len(nonce))
	if len(ad) > 0 {
		x[0] |= 0x40
	}
	copy(x[1:], nonce)
	n := len(data)
	for j := BlockSize - 1; j > len(nonce); j-- {
		x[j] = byte(n)
		n >>= 8
	}
	b.Encrypt(x[:], x[:])

	mac := func(buf []byte) {
		for len(buf) > 0 {
			k := BlockSize
			if len(buf) < k {
				k = len(buf)
			}
			for i := 0; i < k; i++ {
				x[i] ^= buf[i]
			}
			b.Encrypt(x[:], x[:])
			buf = buf[k:]
		}
	}

	if len(ad) > 0 {
		var hdr []byte
		switch {
		case len(ad) < 0xFF00:
			hdr = make([]byte, 2)
			binary.BigEndian.PutUint16(hdr, uint16(len(ad)))
		case uint64(len(ad)) <= 0xFFFFFFFF:
			hdr = make([]byte, 6)
			hdr[0], hdr[1] = 0xFF, 0xFE
			binary.BigEndian.PutUint32(hdr[2:], uint32(len(ad)))
		default:
			hdr = make([]byte, 10)
			hdr[0], hdr[1] = 0xFF, 0xFF
			binary.BigEndian.PutUint64(hdr[2:], uint64(len(ad)))
		}
		aad := append(hdr, ad...)
		if r := len(aad) % BlockSize; r != 0 {
			aad = append(aad, make([]byte, BlockSize-r)...)
		}
		mac(aad)
	}
	mac(data)
	return x
}

func ccmCrypt(b cipher.Block, nonce, data []byte) []byte {
	out := make([]byte, len(data))
	var ks [BlockSize]byte
	for i, ctr := 0, 1; i < len(data); i, ctr = i+BlockSize, ctr+1 {
		a := ccmCounter(nonce, ctr)
		b.Encrypt(ks[:], a[:])
		end := i + BlockSize
		if end > len(data) {
			end = len(data)
		}
		xorBytes(out[i:end], data[i:end], ks[:])
	}
	return out
}

func ccmTag(b cipher.Block, nonce, pt, ad []byte, tagLen int) []byte {
	t := ccmMAC(b, nonce, pt, ad, tagLen)
	a0 := ccmCounter(nonce, 0)
	var s0 [BlockSize]byte
	b.Encrypt(s0[:], a0[:])
	tag := make([]byte, tagLen)
	xorBytes(tag, t[:tagLen], s0[:tagLen])
	return tag
}

// CCMSeal encrypts data in CCM mode (RFC 3610) with a 7 to 13 byte nonce
// and an even tag length between 4 and 16.
func CCMSeal(b cipher.Block, nonce, data, ad []byte, tagLen int) ([]byte, []byte, error) {
	if err := checkCCM(nonce, tagLen, len(data)); err != nil {
		return nil, nil, err
	}
	return ccmCrypt(b, nonce, data), ccmTag(b, nonce, data, ad, tagLen), nil
}

// CCMOpen decrypts ct and verifies tag. ok is false if authentication
// fails, in which case no plaintext is returned.
func CCMOpen(b cipher.Block, nonce, ct, ad, tag []byte) (pt []byte, ok bool, err error) {
	if err := checkCCM(nonce, len(tag), len(ct)); err != nil {
		return nil, false, err
	}
	pt = ccmCrypt(b, nonce, ct)
	if subtle.ConstantTimeCompare(ccmTag(b, nonce, pt, ad, len(tag)), tag) != 1 {
		return nil, false, nil
	}
	return pt, true, nil
}
