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
package dev

import (
	"context"
	"time"

	"github.com/juju/errors"
	flag "github.com/spf13/pflag"
)

type Client struct {
	Port            string
	Timeout         time.Duration
	BaudRate        uint
	SetControlLines bool
	CompatArgs      bool
}

func (c *Client) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Port, "port", "", "Device port: serial port name or tcp://host:port")
	fs.DurationVar(&c.Timeout, "timeout", 10*time.Second, "Timeout for the device connection")
	fs.UintVar(&c.BaudRate, "baud-rate", 115200, "Serial port speed")
	fs.BoolVar(&c.SetControlLines, "set-control-lines", true, "Set RTS and DTR explicitly when in console/RPC mode")
	fs.BoolVar(&c.CompatArgs, "mgrpc-compat-args", false, "Use args field in the RPC frame, for compatibility with older firmware")
}

// RunWithTimeout calls f with a context that expires after c.Timeout.
func (c *Client) RunWithTimeout(ctx context.Context, f func(context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()
	return errors.Trace(f(cctx))
}
