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
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/asn1"
	"math/big"

	"github.com/juju/errors"
)

// PublicKeyFromBytes converts the chip's X||Y public key encoding.
func PublicKeyFromBytes(raw []byte) (*ecdsa.PublicKey, error) {
	if len(raw) != PublicKeySize {
		return nil, errors.Errorf("expected %d bytes, got %d", PublicKeySize, len(raw))
	}
	pub := &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(raw[:PublicKeySize/2]),
		Y:     new(big.Int).SetBytes(raw[PublicKeySize/2:]),
	}
	if !pub.Curve.IsOnCurve(pub.X, pub.Y) {
		return nil, errors.Errorf("public key is not on P-256")
	}
	return pub, nil
}

// PublicKeyBytes returns the X||Y encoding of a P-256 public key.
func PublicKeyBytes(pub *ecdsa.PublicKey) []byte {
	raw := make([]byte, PublicKeySize)
	pub.X.FillBytes(raw[:PublicKeySize/2])
	pub.Y.FillBytes(raw[PublicKeySize/2:])
	return raw
}

// PrivateKeyBytes returns the 32-byte scalar of a P-256 private key.
func PrivateKeyBytes(priv *ecdsa.PrivateKey) []byte {
	raw := make([]byte, PrivateKeySize)
	priv.D.FillBytes(raw)
	return raw
}

type ecdsaSignature struct {
	R, S *big.Int
}

// SignatureToASN1 converts a raw R||S signature to ASN.1 DER.
func SignatureToASN1(raw []byte) ([]byte, error) {
	if len(raw) != SignatureSize {
		return nil, errors.Errorf("invalid signature size: expected %d bytes, got %d", SignatureSize, len(raw))
	}
	return asn1.Marshal(ecdsaSignature{
		R: new(big.Int).SetBytes(raw[:SignatureSize/2]),
		S: new(big.Int).SetBytes(raw[SignatureSize/2:]),
	})
}

// SignatureFromASN1 converts an ASN.1 DER signature to raw R||S.
func SignatureFromASN1(der []byte) ([]byte, error) {
	var sig ecdsaSignature
	rest, err := asn1.Unmarshal(der, &sig)
	if err != nil {
		return nil, errors.Annotatef(err, "invalid signature")
	}
	if len(rest) != 0 {
		return nil, errors.Errorf("%d trailing bytes after signature", len(rest))
	}
	if sig.R.Sign() < 0 || sig.S.Sign() < 0 || sig.R.BitLen() > 256 || sig.S.BitLen() > 256 {
		return nil, errors.Errorf("signature values out of range")
	}
	raw := make([]byte, SignatureSize)
	sig.R.FillBytes(raw[:SignatureSize/2])
	sig.S.FillBytes(raw[SignatureSize/2:])
	return raw, nil
}
