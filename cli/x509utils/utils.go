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
package x509utils

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/x509"
	"encoding/pem"
	"io"
	"os"

	"github.com/juju/errors"

	"github.com/mongoose-os/atca/cli/ourutil"
)

// WritePEM writes a PEM block to outputFileName. "" and "-" mean stdout,
// "--" means stderr.
func WritePEM(derBytes []byte, blockType string, outputFileName string) error {
	var out io.Writer
	switch outputFileName {
	case "", "-":
		out = os.Stdout
	case "--":
		out = os.Stderr
	default:
		f, err := os.OpenFile(outputFileName, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return errors.Annotatef(err, "failed to open %s for writing", outputFileName)
		}
		defer func() {
			f.Close()
			ourutil.Reportf("Wrote %s", outputFileName)
		}()
		out = f
	}
	return errors.Trace(pem.Encode(out, &pem.Block{Type: blockType, Bytes: derBytes}))
}

func WritePubKey(pubKey *ecdsa.PublicKey, outputFileName string) error {
	pubKeyDERBytes, err := x509.MarshalPKIXPublicKey(pubKey)
	if err != nil {
		return errors.Annotatef(err, "failed to marshal public key")
	}
	return WritePEM(pubKeyDERBytes, "PUBLIC KEY", outputFileName)
}

// ParseECPrivateKey accepts a PEM-encoded SEC1 or PKCS#8 P-256 key.
func ParseECPrivateKey(data []byte) (*ecdsa.PrivateKey, error) {
	for rest := data; ; {
		var pb *pem.Block
		if pb, rest = pem.Decode(rest); pb == nil {
			return nil, errors.Errorf("no private key found")
		}
		switch pb.Type {
		case "EC PRIVATE KEY":
			k, err := x509.ParseECPrivateKey(pb.Bytes)
			return k, errors.Annotatef(err, "ParseECPrivateKey")
		case "PRIVATE KEY":
			k, err := x509.ParsePKCS8PrivateKey(pb.Bytes)
			if err != nil {
				return nil, errors.Annotatef(err, "ParsePKCS8PrivateKey")
			}
			eck, ok := k.(*ecdsa.PrivateKey)
			if !ok || eck.Curve != elliptic.P256() {
				return nil, errors.Errorf("not a P-256 key")
			}
			return eck, nil
		}
	}
}

// ParseECPublicKey accepts a PEM "PUBLIC KEY" block holding a P-256 key.
func ParseECPublicKey(data []byte) (*ecdsa.PublicKey, error) {
	pb, _ := pem.Decode(data)
	if pb == nil || pb.Type != "PUBLIC KEY" {
		return nil, errors.Errorf("no public key found")
	}
	k, err := x509.ParsePKIXPublicKey(pb.Bytes)
	if err != nil {
		return nil, errors.Annotatef(err, "ParsePKIXPublicKey")
	}
	eck, ok := k.(*ecdsa.PublicKey)
	if !ok || eck.Curve != elliptic.P256() {
		return nil, errors.Errorf("not a P-256 key")
	}
	return eck, nil
}

// ParseCSRTemplate reads a PEM "CERTIFICATE REQUEST".
func ParseCSRTemplate(data []byte) (*x509.CertificateRequest, error) {
	pb, _ := pem.Decode(data)
	if pb == nil {
		return nil, errors.Errorf("not a PEM file")
	}
	if pb.Type != "CERTIFICATE REQUEST" {
		return nil, errors.Errorf("expected to find certificate request, found %s", pb.Type)
	}
	csr, err := x509.ParseCertificateRequest(pb.Bytes)
	return csr, errors.Annotatef(err, "failed to parse certificate request template")
}
