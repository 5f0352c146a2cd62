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
// atcatool provisions and exercises ATECC/ATSHA secure elements, either
// attached to a Mongoose OS device (over its RPC service) or simulated.
package main

import (
	"context"
	goflag "flag"
	"fmt"
	"os"
	"time"

	"github.com/golang/glog"
	"github.com/juju/errors"
	flag "github.com/spf13/pflag"

	"github.com/mongoose-os/atca/cli/flags"
	"github.com/mongoose-os/atca/common/pflagenv"
	"github.com/mongoose-os/atca/version"
)

const (
	envPrefix = "ATCA_"
)

var (
	versionFlag = flag.Bool("version", false, "Print version and exit")
	helpFull    = flag.Bool("helpfull", false, "Show full help, including advanced flags")
)

var (
	// put all commands here
	commands = []command{
		{"info", withDevice(atcaInfo), `Show chip type, serial number, lock state and options`, nil, []string{"format"}},
		{"get-config", withDevice(atcaGetConfig), `Get chip config zone`, nil, []string{"format"}},
		{"set-config", withDevice(atcaSetConfig), `Write chip config zone from a hex file`, nil, []string{"format", "dry-run"}},
		{"cmp-config", withDevice(atcaCmpConfig), `Compare chip config zone with a hex file`, nil, []string{"format"}},
		{"lock-zone", withDevice(atcaLockZone), `Lock config or data zone`, nil, []string{"dry-run", "force"}},
		{"gen-key", withDevice(atcaGenKey), `Generate a random key in a given slot`, nil, []string{"key-type", "dry-run", "write-key", "write-key-slot"}},
		{"get-pub-key", withDevice(atcaGetPubKey), `Retrieve public ECC key from a given slot`, nil, nil},
		{"import-key", withDevice(atcaImportKey), `Write a key into a given slot`, nil, []string{"key-type", "dry-run", "write-key", "write-key-slot"}},
		{"export-key", withDevice(atcaExportKey), `Read a key out of a given slot`, nil, []string{"key-type", "write-key", "write-key-slot"}},
		{"gen-csr", withDevice(atcaGenCSR), `Create a CSR signed by the key in a given slot`, nil, []string{"csr-template", "subject"}},
		{"random", withDevice(atcaRandom), `Get 32 random bytes from the chip`, nil, nil},
		{"sha", withDevice(atcaSHA), `Compute SHA-256 of a file on the chip`, nil, nil},
		{"sign", withDevice(atcaSign), `Sign SHA-256 of a file with the key in a given slot`, nil, nil},
		{"verify", withDevice(atcaVerify), `Verify a signature made by sign`, nil, []string{"pub-key"}},
		{"encrypt", withDevice(atcaEncrypt), `Encrypt a file with the AES key in a given slot`, nil, []string{"mode", "iv", "aad", "tag-length", "counter-size", "aes-key"}},
		{"decrypt", withDevice(atcaDecrypt), `Decrypt a file with the AES key in a given slot`, nil, []string{"mode", "iv", "aad", "tag-length", "counter-size", "aes-key"}},
		{"serve-sim", serveSim, `Serve a simulated chip over the device RPC protocol`, nil, []string{"listen", "sim-state", "device-type"}},
	}
)

type command struct {
	name     string
	handler  handler
	short    string
	required []string
	optional []string
}

type handler func(ctx context.Context, args []string) error

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		usage()
		return nil
	}
	for _, c := range commands {
		if c.name == args[0] {
			// check required flags
			if err := checkFlags(c.required); err != nil {
				return errors.Trace(err)
			}
			// run the handler
			if err := c.handler(ctx, args[1:]); err != nil {
				return errors.Trace(err)
			}
			return nil
		}
	}
	usage()
	return errors.Errorf("unknown command %q", args[0])
}

func main() {
	initFlags()
	flag.Parse()
	if err := pflagenv.Parse(envPrefix); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	if *flags.Verbose {
		goflag.Set("logtostderr", "true")
		goflag.Set("v", "1")
	}

	if *helpFull {
		unhideFlags()
		usage()
		return
	} else if *versionFlag {
		v := version.Get()
		fmt.Printf(
			"%s\nVersion: %s\nBuild ID: %s\n",
			"ATCA secure element tool", v.BuildVersion, v.BuildId,
		)
		if !v.BuildTimestamp.IsZero() {
			fmt.Printf("Built: %s\n", v.BuildTimestamp.Format(time.RFC3339))
		}
		if version.LooksLikeDistrBuildId(v.BuildId) {
			fmt.Printf("Distribution package build\n")
		}
		return
	}

	if err := run(context.Background(), flag.Args()); err != nil {
		glog.Infof("Error: %+v", err)
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
