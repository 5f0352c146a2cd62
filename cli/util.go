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
	"io"
	"io/ioutil"
	"os"
	"strconv"
	"strings"

	"github.com/juju/errors"

	"github.com/mongoose-os/atca/cli/ourutil"
)

var stdout io.Writer = os.Stdout

func reportf(f string, args ...interface{}) {
	ourutil.Reportf(f, args...)
}

// getFormat returns f or, if empty, a format guessed from the file name.
func getFormat(f, fn string) string {
	f = strings.ToLower(f)
	if f == "" {
		fn := strings.ToLower(fn)
		if strings.HasSuffix(fn, ".yaml") || strings.HasSuffix(fn, ".yml") {
			f = "yaml"
		} else if strings.HasSuffix(fn, ".json") {
			f = "json"
		} else {
			f = "hex"
		}
	}
	return f
}

// parseSlot parses a slot number, 0..max.
func parseSlot(s string, max int) (uint8, error) {
	slot, err := strconv.ParseInt(s, 0, 64)
	if err != nil || slot < 0 || slot > int64(max) {
		return 0, errors.Errorf("invalid slot number %q", s)
	}
	return uint8(slot), nil
}

// readInput reads fn, "-" is stdin.
func readInput(fn string) ([]byte, error) {
	if fn == "-" {
		data, err := ioutil.ReadAll(os.Stdin)
		return data, errors.Trace(err)
	}
	data, err := ioutil.ReadFile(fn)
	return data, errors.Trace(err)
}

// writeOutput writes data to fn, "" and "-" are stdout.
func writeOutput(fn string, data []byte) error {
	if fn == "" || fn == "-" {
		_, err := stdout.Write(data)
		return errors.Trace(err)
	}
	if err := ioutil.WriteFile(fn, data, 0644); err != nil {
		return errors.Trace(err)
	}
	reportf("Wrote %s", fn)
	return nil
}

func optArg(args []string, i int) string {
	if len(args) > i {
		return args[i]
	}
	return ""
}
