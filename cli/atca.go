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
	"bytes"
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"io/ioutil"
	"strings"

	"github.com/fatih/color"
	"github.com/juju/errors"
	"github.com/sergi/go-diff/diffmatchpatch"
	yaml "gopkg.in/yaml.v2"

	"github.com/mongoose-os/atca/atca"
	"github.com/mongoose-os/atca/cli/flags"
	"github.com/mongoose-os/atca/cli/ourutil"
	"github.com/mongoose-os/atca/cli/x509utils"
)

type deviceInfo struct {
	DeviceType   string           `json:"device_type" yaml:"device_type"`
	SerialNumber string           `json:"serial_number" yaml:"serial_number"`
	Revision     string           `json:"revision,omitempty" yaml:"revision,omitempty"`
	LockConfig   atca.LockMode    `json:"lock_config" yaml:"lock_config"`
	LockValue    atca.LockMode    `json:"lock_value" yaml:"lock_value"`
	ChipOptions  atca.ChipOptions `json:"chip_options" yaml:"chip_options"`
	Slots        []atca.Slot      `json:"slots,omitempty" yaml:"slots,omitempty"`
}

func lockMode(locked bool) atca.LockMode {
	if locked {
		return atca.LockModeLocked
	}
	return atca.LockModeUnlocked
}

func describe(d *atca.Device) *deviceInfo {
	return &deviceInfo{
		DeviceType:   d.DeviceType().String(),
		SerialNumber: hex.EncodeToString(d.SerialNumber()),
		LockConfig:   lockMode(d.IsConfigurationLocked()),
		LockValue:    lockMode(d.IsDataZoneLocked()),
		ChipOptions:  d.ChipOptions(),
	}
}

func marshal(v interface{}, f string) ([]byte, error) {
	switch f {
	case "json":
		s, err := json.MarshalIndent(v, "", "  ")
		return append(s, '\n'), errors.Trace(err)
	case "yaml":
		s, err := yaml.Marshal(v)
		return s, errors.Trace(err)
	}
	return nil, errors.Errorf("unsupported format %q", f)
}

func atcaInfo(d *atca.Device, args []string) error {
	info := describe(d)
	if rev, err := d.InfoCmd(atca.InfoRevision); err == nil {
		info.Revision = hex.EncodeToString(rev)
	}
	f := strings.ToLower(*flags.Format)
	if f == "" {
		f = "yaml"
	}
	s, err := marshal(info, f)
	if err != nil {
		return errors.Trace(err)
	}
	return writeOutput("", s)
}

func atcaGetConfig(d *atca.Device, args []string) error {
	fn := optArg(args, 0)

	confData, err := d.ReadConfigZone()
	if err != nil {
		return errors.Annotatef(err, "ReadConfigZone")
	}

	var s []byte
	switch f := getFormat(*flags.Format, fn); f {
	case "hex":
		s = atca.WriteHex(confData, 4)
	case "json", "yaml":
		info := describe(d)
		info.Slots = d.Slots()
		if s, err = marshal(info, f); err != nil {
			return errors.Trace(err)
		}
	default:
		return errors.Errorf("%s: unknown format %q", fn, f)
	}
	return writeOutput(fn, s)
}

// readConfigFile reads a config zone image written by get-config in hex.
func readConfigFile(fn string) ([]byte, error) {
	if f := getFormat(*flags.Format, fn); f != "hex" {
		return nil, errors.Errorf("%s: only hex config can be written, got %s", fn, f)
	}
	data, err := readInput(fn)
	if err != nil {
		return nil, errors.Trace(err)
	}
	confData := atca.ReadHex(data)
	if len(confData) != atca.ConfigSize {
		return nil, errors.Errorf("%s: expected %d bytes, got %d", fn, atca.ConfigSize, len(confData))
	}
	return confData, nil
}

func atcaSetConfig(d *atca.Device, args []string) error {
	if len(args) < 1 {
		return errors.Errorf("config filename is required")
	}
	fn := args[0]
	confData, err := readConfigFile(fn)
	if err != nil {
		return errors.Trace(err)
	}

	if d.IsConfigurationLocked() {
		return errors.Errorf("config zone is already locked")
	}

	if *flags.DryRun {
		reportf("This is a dry run, would have set the following config:\n\n"+
			"%s\n"+
			"Set --dry-run=false to confirm.",
			atca.WriteHex(confData, 4))
		return nil
	}

	if err := d.WriteConfigZone(confData); err != nil {
		return errors.Annotatef(err, "WriteConfigZone")
	}

	reportf("\nSetConfig successful.")

	return nil
}

func atcaCmpConfig(d *atca.Device, args []string) error {
	if len(args) < 1 {
		return errors.Errorf("config filename is required")
	}
	fn := args[0]
	confData, err := readConfigFile(fn)
	if err != nil {
		return errors.Trace(err)
	}
	same, err := d.CmpConfigZone(confData)
	if err != nil {
		return errors.Annotatef(err, "CmpConfigZone")
	}
	if same {
		reportf("%s", color.GreenString("Config zone matches %s.", fn))
		return nil
	}
	current, err := d.ReadConfigZone()
	if err != nil {
		return errors.Annotatef(err, "ReadConfigZone")
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(string(atca.WriteHex(current, 4)), string(atca.WriteHex(confData, 4)), false)
	writeOutput("", []byte(dmp.DiffPrettyText(diffs)))
	return errors.Errorf("config zone differs from %s", fn)
}

func atcaLockZone(d *atca.Device, args []string) error {
	if len(args) != 1 {
		return errors.Errorf("lock zone name is required (config or data)")
	}

	var zone atca.LockZone
	switch strings.ToLower(args[0]) {
	case "config":
		zone = atca.LockZoneConfig
	case "data":
		zone = atca.LockZoneData
	default:
		return errors.Errorf("invalid zone '%s'", args[0])
	}

	if *flags.DryRun {
		reportf("This is a dry run, would have locked the %s zone.\n\n"+
			"Set --dry-run=false to confirm.", args[0])
		return nil
	}

	if !*flags.Force {
		ans := ourutil.Prompt(color.YellowString("Locking the %s zone cannot be undone. Type \"yes\" to continue:", args[0]))
		if ans != "yes" {
			return errors.Errorf("aborted")
		}
	}

	if err := d.LockZone(zone); err != nil {
		return errors.Annotatef(err, "LockZone")
	}

	reportf("LockZone successful.")

	return nil
}

func keyType() (atca.KeyType, error) {
	kt, err := atca.ParseKeyType(*flags.KeyType)
	return kt, errors.Trace(err)
}

func atcaGenKey(d *atca.Device, args []string) error {
	if len(args) < 1 {
		return errors.Errorf("slot number is required")
	}
	slot, err := parseSlot(args[0], atca.SlotCount)
	if err != nil {
		return errors.Trace(err)
	}
	kt, err := keyType()
	if err != nil {
		return errors.Trace(err)
	}

	if *flags.DryRun {
		reportf("This is a dry run, would have generated a new %s key in slot %d.\n\n"+
			"Set --dry-run=false to confirm.", kt, slot)
		return nil
	}

	if kt == atca.KeyTypeAES {
		if err := addAccessKey(d, slotConfig(d, slot).WriteKey); err != nil {
			return errors.Trace(err)
		}
	}
	if err := d.GenKey(kt, slot); err != nil {
		return errors.Annotatef(err, "GenKey")
	}
	reportf("Generated %s key in slot %d.", kt, slot)

	if kt != atca.KeyTypeP256 {
		return nil
	}
	pub, err := d.PublicKey(slot)
	if err != nil {
		return errors.Trace(err)
	}
	return x509utils.WritePubKey(pub, optArg(args, 1))
}

func atcaGetPubKey(d *atca.Device, args []string) error {
	if len(args) < 1 {
		return errors.Errorf("slot number is required")
	}
	slot, err := parseSlot(args[0], atca.SlotCount-1)
	if err != nil {
		return errors.Trace(err)
	}
	pub, err := d.PublicKey(slot)
	if err != nil {
		return errors.Annotatef(err, "slot %d", slot)
	}
	return x509utils.WritePubKey(pub, optArg(args, 1))
}

// parseKeyData accepts PEM private and public keys for ECC slots and hex for
// everything.
func parseKeyData(kt atca.KeyType, data []byte) ([]byte, error) {
	if kt == atca.KeyTypeP256 {
		switch {
		case bytes.Contains(data, []byte("PRIVATE KEY-----")):
			priv, err := x509utils.ParseECPrivateKey(data)
			if err != nil {
				return nil, errors.Trace(err)
			}
			return atca.PrivateKeyBytes(priv), nil
		case bytes.Contains(data, []byte("PUBLIC KEY-----")):
			pub, err := x509utils.ParseECPublicKey(data)
			if err != nil {
				return nil, errors.Trace(err)
			}
			return atca.PublicKeyBytes(pub), nil
		}
	}
	return atca.ReadHex(data), nil
}

func atcaImportKey(d *atca.Device, args []string) error {
	if len(args) != 2 {
		return errors.Errorf("slot number and key filename are required")
	}
	slot, err := parseSlot(args[0], atca.SlotCount)
	if err != nil {
		return errors.Trace(err)
	}
	kt, err := keyType()
	if err != nil {
		return errors.Trace(err)
	}
	fn := args[1]
	data, err := readInput(fn)
	if err != nil {
		return errors.Trace(err)
	}
	keyData, err := parseKeyData(kt, data)
	if err != nil {
		return errors.Annotatef(err, "%s", fn)
	}

	if *flags.DryRun {
		reportf("This is a dry run, would have set the following %s key on slot %d:\n\n%s\n"+
			"Set --dry-run=false to confirm.",
			kt, slot, atca.WriteHex(keyData, 16))
		return nil
	}

	if err := addAccessKey(d, slotConfig(d, slot).WriteKey); err != nil {
		return errors.Trace(err)
	}
	if err := d.ImportKey(kt, keyData, slot); err != nil {
		return errors.Annotatef(err, "ImportKey")
	}

	reportf("ImportKey successful.")

	return nil
}

func atcaExportKey(d *atca.Device, args []string) error {
	if len(args) < 1 {
		return errors.Errorf("slot number is required")
	}
	slot, err := parseSlot(args[0], atca.SlotCount-1)
	if err != nil {
		return errors.Trace(err)
	}
	kt, err := keyType()
	if err != nil {
		return errors.Trace(err)
	}
	if kt == atca.KeyTypeP256 {
		return atcaGetPubKey(d, args)
	}
	if err := addAccessKey(d, slotConfig(d, slot).ReadKey.SlotNumber); err != nil {
		return errors.Trace(err)
	}
	key, err := d.ExportKey(kt, slot, 0)
	if err != nil {
		return errors.Annotatef(err, "ExportKey")
	}
	return writeOutput(optArg(args, 1), []byte(hex.EncodeToString(key)+"\n"))
}

func atcaGenCSR(d *atca.Device, args []string) error {
	if len(args) < 1 {
		return errors.Errorf("slot number is required")
	}
	slot, err := parseSlot(args[0], atca.SlotCount-1)
	if err != nil {
		return errors.Trace(err)
	}
	csrData, err := genCSR(*flags.CSRTemplate, *flags.Subject, atca.NewSigner(d, slot))
	if err != nil {
		return errors.Annotatef(err, "genCSR")
	}
	return x509utils.WritePEM(csrData, "CERTIFICATE REQUEST", optArg(args, 1))
}

func genCSR(csrTemplateFile string, subject string, signer *atca.Signer) ([]byte, error) {
	if csrTemplateFile == "" && subject == "" {
		return nil, errors.Errorf("--csr-template or --subject is required")
	}
	var csrTemplate *x509.CertificateRequest
	if csrTemplateFile != "" {
		reportf("Generating CSR using template from %s", csrTemplateFile)
		data, err := ioutil.ReadFile(csrTemplateFile)
		if err != nil {
			return nil, errors.Trace(err)
		}
		if csrTemplate, err = x509utils.ParseCSRTemplate(data); err != nil {
			return nil, errors.Annotatef(err, "%s", csrTemplateFile)
		}
	} else {
		// Create a simple CSR.
		csrTemplate = &x509.CertificateRequest{
			PublicKeyAlgorithm: x509.ECDSA,
			SignatureAlgorithm: x509.ECDSAWithSHA256,
		}
	}
	if subject != "" {
		dn, err := x509utils.ParseDN(subject)
		if err != nil {
			return nil, errors.Annotatef(err, "invalid subject %q", subject)
		}
		subj, err := dn.ToPKIXName()
		if err != nil {
			return nil, errors.Annotatef(err, "invalid subject %q", subject)
		}
		csrTemplate.Subject = *subj
	}
	reportf("Subject: %s", csrTemplate.Subject.ToRDNSequence())
	if csrTemplate.PublicKeyAlgorithm != x509.ECDSA ||
		csrTemplate.SignatureAlgorithm != x509.ECDSAWithSHA256 {
		return nil, errors.Errorf("%s: wrong public key and/or signature type; "+
			"expected ECDSA(%d) and SHA256(%d), got %d %d",
			csrTemplateFile,
			x509.ECDSA, x509.ECDSAWithSHA256, csrTemplate.PublicKeyAlgorithm,
			csrTemplate.SignatureAlgorithm)
	}
	csrData, err := x509.CreateCertificateRequest(rand.Reader, csrTemplate, signer)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to create new CSR")
	}
	return csrData, nil
}
