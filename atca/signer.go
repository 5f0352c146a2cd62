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
	"crypto"
	"crypto/ecdsa"
	"io"

	"github.com/golang/glog"
	"github.com/juju/errors"
)

// Signer implements crypto.Signer with the private key held in a slot.
type Signer struct {
	dev  *Device
	slot uint8
}

func NewSigner(dev *Device, slot uint8) *Signer {
	return &Signer{dev: dev, slot: slot}
}

// Public returns the slot's *ecdsa.PublicKey, or nil if it cannot be read.
func (s *Signer) Public() crypto.PublicKey {
	raw, err := s.dev.GetPublicKey(s.slot)
	if err != nil {
		glog.Errorf("slot %d: failed to get public key: %s", s.slot, err)
		return nil
	}
	pub, err := PublicKeyFromBytes(raw)
	if err != nil {
		return nil
	}
	return pub
}

// Sign signs a SHA-256 digest and returns an ASN.1 DER ECDSA signature.
// rand is not used, the chip provides its own randomness.
func (s *Signer) Sign(rand io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	if len(digest) != DigestSize {
		return nil, errors.NotImplementedf("can only sign %d byte digests, signing %d bytes", DigestSize, len(digest))
	}
	glog.V(1).Infof("Signing with slot %d", s.slot)
	raw, err := s.dev.SignHash(SignExternal, s.slot, digest)
	if err != nil {
		return nil, errors.Annotatef(err, "slot %d", s.slot)
	}
	return SignatureToASN1(raw)
}

var _ crypto.Signer = (*Signer)(nil)

// PublicKey is a convenience wrapper returning the public key of a P256
// slot as *ecdsa.PublicKey.
func (d *Device) PublicKey(slot uint8) (*ecdsa.PublicKey, error) {
	raw, err := d.GetPublicKey(slot)
	if err != nil {
		return nil, err
	}
	return PublicKeyFromBytes(raw)
}
