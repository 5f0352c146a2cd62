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

const gcmStdNonceSize = 12

type gcm struct {
	b cipher.Block
	h [BlockSize]byte
}

func newGCM(b cipher.Block) *gcm {
	g := &gcm{b: b}
	b.Encrypt(g.h[:], g.h[:])
	return g
}

// mul multiplies x by H in GF(2^128) using the GCM bit order.
func (g *gcm) mul(x *[BlockSize]byte) {
	var z [BlockSize]byte
	v := g.h
	for i := 0; i < 128; i++ {
		if x[i/8]&(0x80>>uint(i%8)) != 0 {
			for j := range z {
				z[j] ^= v[j]
			}
		}
		lsb := v[BlockSize-1] & 1
		for j := BlockSize - 1; j > 0; j-- {
			v[j] = v[j]>>1 | v[j-1]<<7
		}
		v[0] >>= 1
		if lsb != 0 {
			v[0] ^= 0xe1
		}
	}
	*x = z
}

func (g *gcm) update(y *[BlockSize]byte, data []byte) {
	for len(data) > 0 {
		n := BlockSize
		if len(data) < n {
			n = len(data)
		}
		for i := 0; i < n; i++ {
			y[i] ^= data[i]
		}
		g.mul(y)
		data = data[n:]
	}
}

func (g *gcm) ghash(ad, ct []byte) [BlockSize]byte {
	var y [BlockSize]byte
	g.update(&y, ad)
	g.update(&y, ct)
	var lens [BlockSize]byte
	binary.BigEndian.PutUint64(lens[:8], uint64(len(ad))*8)
	binary.BigEndian.PutUint64(lens[8:], uint64(len(ct))*8)
	g.update(&y, lens[:])
	return y
}

func (g *gcm) j0(nonce []byte) [BlockSize]byte {
	var j [BlockSize]byte
	if len(nonce) == gcmStdNonceSize {
		copy(j[:], nonce)
		j[BlockSize-1] = 1
		return j
	}
	g.update(&j, nonce)
	var lens [BlockSize]byte
	binary.BigEndian.PutUint64(lens[8:], uint64(len(nonce))*8)
	g.update(&j, lens[:])
	return j
}

func (g *gcm) gctr(icb [BlockSize]byte, data []byte) []byte {
	out := make([]byte, len(data))
	var ks [BlockSize]byte
	ctr := icb
	for i := 0; i < len(data); i += BlockSize {
		g.b.Encrypt(ks[:], ctr[:])
		end := i + BlockSize
		if end > len(data) {
			end = len(data)
		}
		xorBytes(out[i:end], data[i:end], ks[:])
		binary.BigEndian.PutUint32(ctr[12:], binary.BigEndian.Uint32(ctr[12:])+1)
	}
	return out
}

func (g *gcm) tag(j0 [BlockSize]byte, ad, ct []byte, tagLen int) []byte {
	s := g.ghash(ad, ct)
	return g.gctr(j0, s[:])[:tagLen]
}

func checkGCM(nonce []byte, tagLen int) error {
	if len(nonce) == 0 {
		return ErrNonceSize
	}
	if tagLen < 4 || tagLen > BlockSize {
		return ErrTagSize
	}
	return nil
}

func inc32(j [BlockSize]byte) [BlockSize]byte {
	binary.BigEndian.PutUint32(j[12:], binary.BigEndian.Uint32(j[12:])+1)
	return j
}

// GCMSeal encrypts data and returns the ciphertext and a tagLen byte tag.
// Nonces of any non-zero length are accepted; 12 bytes is the standard.
func GCMSeal(b cipher.Block, nonce, data, ad []byte, tagLen int) ([]byte, []byte, error) {
	if err := checkGCM(nonce, tagLen); err != nil {
		return nil, nil, err
	}
	g := newGCM(b)
	j0 := g.j0(nonce)
	ct := g.gctr(inc32(j0), data)
	return ct, g.tag(j0, ad, ct, tagLen), nil
}

// GCMOpen decrypts ct and checks tag. ok is false if authentication fails,
// in which case no plaintext is returned.
func GCMOpen(b cipher.Block, nonce, ct, ad, tag []byte) (pt []byte, ok bool, err error) {
	if err := checkGCM(nonce, len(tag)); err != nil {
		return nil, false, err
	}
	g := newGCM(b)
	j0 := g.j0(nonce)
	if subtle.ConstantTimeCompare(g.tag(j0, ad, ct, len(tag)), tag) != 1 {
		return nil, false, nil
	}
	return g.gctr(inc32(j0), ct), true, nil
}
