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
package main

import (
	"crypto/sha256"
	"encoding/hex"
	"io/ioutil"
	"strings"

	"github.com/juju/errors"

	"github.com/mongoose-os/atca/atca"
	"github.com/mongoose-os/atca/cli/flags"
	"github.com/mongoose-os/atca/cli/x509utils"
)

var cipherModes = map[string]atca.CipherMode{
	"ctr":       atca.CipherCTR,
	"cfb":       atca.CipherCFB,
	"ofb":       atca.CipherOFB,
	"xts":       atca.CipherXTS,
	"ecb":       atca.CipherECB,
	"cbc":       atca.CipherCBC,
	"cbc-pkcs7": atca.CipherCBCPKCS7,
}

var aeadModes = map[string]atca.AeadMode{
	"ccm": atca.AeadCCM,
	"gcm": atca.AeadGCM,
}

func atcaRandom(d *atca.Device, args []string) error {
	r, err := d.Random()
	if err != nil {
		return errors.Annotatef(err, "Random")
	}
	return writeOutput(optArg(args, 0), []byte(hex.EncodeToString(r)+"\n"))
}

func atcaSHA(d *atca.Device, args []string) error {
	if len(args) < 1 {
		return errors.Errorf("input file name is required (- for stdin)")
	}
	data, err := readInput(args[0])
	if err != nil {
		return errors.Trace(err)
	}
	digest, err := d.SHA(data)
	if err != nil {
		return errors.Annotatef(err, "SHA")
	}
	return writeOutput("", []byte(hex.EncodeToString(digest)+"\n"))
}

// atcaSign signs the SHA-256 digest of a file and writes the DER signature
// in hex.
func atcaSign(d *atca.Device, args []string) error {
	if len(args) < 2 {
		return errors.Errorf("slot number and input file name are required")
	}
	slot, err := parseSlot(args[0], atca.SlotCount-1)
	if err != nil {
		return errors.Trace(err)
	}
	data, err := readInput(args[1])
	if err != nil {
		return errors.Trace(err)
	}
	digest := sha256.Sum256(data)
	sig, err := d.SignHash(atca.SignExternal, slot, digest[:])
	if err != nil {
		return errors.Annotatef(err, "Sign")
	}
	der, err := atca.SignatureToASN1(sig)
	if err != nil {
		return errors.Trace(err)
	}
	return writeOutput(optArg(args, 2), []byte(hex.EncodeToString(der)+"\n"))
}

func atcaVerify(d *atca.Device, args []string) error {
	if len(args) < 2 {
		return errors.Errorf("input and signature file names are required")
	}
	data, err := readInput(args[0])
	if err != nil {
		return errors.Trace(err)
	}
	sigData, err := ioutil.ReadFile(args[1])
	if err != nil {
		return errors.Trace(err)
	}
	sig, err := atca.SignatureFromASN1(atca.ReadHex(sigData))
	if err != nil {
		return errors.Annotatef(err, "%s", args[1])
	}

	var mode atca.VerifyMode
	switch {
	case *flags.PubKey != "":
		pemData, err := ioutil.ReadFile(*flags.PubKey)
		if err != nil {
			return errors.Trace(err)
		}
		pub, err := x509utils.ParseECPublicKey(pemData)
		if err != nil {
			return errors.Annotatef(err, "%s", *flags.PubKey)
		}
		mode = atca.VerifyMode{Kind: atca.VerifyExternal, PublicKey: atca.PublicKeyBytes(pub)}
	case len(args) > 2:
		slot, err := parseSlot(args[2], atca.SlotCount-1)
		if err != nil {
			return errors.Trace(err)
		}
		if slot >= atca.MinPubKeySlot {
			mode = atca.VerifyMode{Kind: atca.VerifyInternal, Slot: slot}
			break
		}
		// Private key slot: verify against its public key.
		pub, err := d.GetPublicKey(slot)
		if err != nil {
			return errors.Annotatef(err, "slot %d", slot)
		}
		mode = atca.VerifyMode{Kind: atca.VerifyExternal, PublicKey: pub}
	default:
		return errors.Errorf("slot number or --pub-key is required")
	}

	digest := sha256.Sum256(data)
	ok, err := d.VerifyHash(mode, digest[:], sig)
	if err != nil {
		return errors.Annotatef(err, "Verify")
	}
	if !ok {
		return errors.Errorf("signature verification failed")
	}
	reportf("Signature OK.")
	return nil
}

func hexFlag(name, v string) ([]byte, error) {
	b, err := hex.DecodeString(v)
	if err != nil {
		return nil, errors.Errorf("--%s: invalid hex", name)
	}
	return b, nil
}

func atcaEncrypt(d *atca.Device, args []string) error {
	return atcaCipher(d, args, false)
}

func atcaDecrypt(d *atca.Device, args []string) error {
	return atcaCipher(d, args, true)
}

// atcaCipher runs a cipher over a file. For ccm and gcm the tag is appended
// to the ciphertext on encryption and taken from its end on decryption.
func atcaCipher(d *atca.Device, args []string, decrypt bool) error {
	if len(args) < 2 {
		return errors.Errorf("slot number and input file name are required")
	}
	slot, err := parseSlot(args[0], atca.SlotCount)
	if err != nil {
		return errors.Trace(err)
	}
	data, err := readInput(args[1])
	if err != nil {
		return errors.Trace(err)
	}
	iv, err := hexFlag("iv", *flags.IV)
	if err != nil {
		return errors.Trace(err)
	}
	key, err := hexFlag("aes-key", *flags.AESKey)
	if err != nil {
		return errors.Trace(err)
	}
	if len(key) == 0 {
		key = nil
	}
	mode := strings.ToLower(*flags.CipherMode)

	var out []byte
	if am, ok := aeadModes[mode]; ok {
		aad, err := hexFlag("aad", *flags.AAD)
		if err != nil {
			return errors.Trace(err)
		}
		alg := atca.AeadAlgorithm{Mode: am, Param: atca.AeadParam{
			Nonce:          iv,
			Key:            key,
			TagLength:      *flags.TagLength,
			AdditionalData: aad,
		}}
		if decrypt {
			if len(data) < *flags.TagLength {
				return errors.Errorf("%s: input is shorter than the tag", args[1])
			}
			split := len(data) - *flags.TagLength
			alg.Param.Tag = data[split:]
			pt, ok, err := d.AEADDecrypt(alg, slot, data[:split])
			if err != nil {
				return errors.Annotatef(err, "AEADDecrypt")
			}
			if !ok {
				return errors.Errorf("%s: authentication failed", args[1])
			}
			out = pt
		} else {
			ct, tag, err := d.AEADEncrypt(alg, slot, data)
			if err != nil {
				return errors.Annotatef(err, "AEADEncrypt")
			}
			out = append(ct, tag...)
		}
	} else if cm, ok := cipherModes[mode]; ok {
		alg := atca.CipherAlgorithm{Mode: cm, Param: atca.CipherParam{
			IV:          iv,
			CounterSize: *flags.CtrSize,
			Key:         key,
		}}
		if decrypt {
			out, err = d.CipherDecrypt(alg, slot, data)
		} else {
			out, err = d.CipherEncrypt(alg, slot, data)
		}
		if err != nil {
			return errors.Annotatef(err, "%s", mode)
		}
	} else {
		return errors.Errorf("unknown cipher mode %q", mode)
	}
	return writeOutput(optArg(args, 2), out)
}
