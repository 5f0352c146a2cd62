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
package flags

import (
	flag "github.com/spf13/pflag"

	"github.com/mongoose-os/atca/cli/dev"
)

var (
	// Dev holds --port, --timeout, --baud-rate and the other connection flags.
	Dev dev.Client

	Config     = flag.String("config", "", "YAML file describing the device and its interface. Overrides --device-type and --iface")
	DeviceType = flag.String("device-type", "ATECC608A", "Chip type: ATSHA204A, ATECC108A, ATECC508A or ATECC608A")
	Iface      = flag.String("iface", "uart", "Interface type: uart, tcp or test-interface")
	Address    = flag.String("address", "", "Device address for --iface=tcp: host:port or ws://host:port/rpc")

	Format       = flag.String("format", "", "Config format, hex, json or yaml")
	WriteKey     = flag.String("write-key", "", "Access key file (hex) for encrypted reads and writes")
	WriteKeySlot = flag.Int("write-key-slot", -1, "Slot of the access key; by default taken from the slot configuration")
	KeyType      = flag.String("key-type", "ecc", "Key type: ecc, aes or sha")
	PubKey       = flag.String("pub-key", "", "Public key file (PEM) for external verification")
	CSRTemplate  = flag.String("csr-template", "", "CSR template to use")
	Subject      = flag.String("subject", "", "Subject for CSR")
	DryRun       = flag.Bool("dry-run", true, "Do not make changes to the device, only print what would be done")
	Force        = flag.Bool("force", false, "Do not ask for confirmation before irreversible operations")

	CipherMode = flag.String("mode", "cbc", "Cipher mode: ctr, cfb, ofb, xts, ecb, cbc, cbc-pkcs7, ccm or gcm")
	IV         = flag.String("iv", "", "IV or nonce, hex")
	AAD        = flag.String("aad", "", "Additional authenticated data for ccm and gcm, hex")
	TagLength  = flag.Int("tag-length", 16, "Authentication tag length for ccm and gcm")
	CtrSize    = flag.Int("counter-size", 4, "Size of the counter part of the IV in ctr mode, bytes")
	AESKey     = flag.String("aes-key", "", "AES key (hex) to load into TempKey when slot 16 is used")

	Listen   = flag.String("listen", "tcp://127.0.0.1:8910", "Address for serve-sim to listen on, tcp:// or ws://")
	SimState = flag.String("sim-state", "", "Simulator state file; loaded on start and saved on exit")

	Verbose = flag.Bool("verbose", false, "Verbose output")
)

func init() {
	Dev.RegisterFlags(flag.CommandLine)
}
