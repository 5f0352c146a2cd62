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
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/juju/errors"
	flag "github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mongoose-os/atca/common/mgrpc"
	"github.com/mongoose-os/atca/common/mgrpc/codec"
	"github.com/mongoose-os/atca/common/mgrpc/frame"
)

func newTestConn(t *testing.T) *MosDevConn {
	a, b := net.Pipe()
	dev := codec.TCP(b)
	t.Cleanup(dev.Close)
	go func() {
		for {
			f, err := dev.Recv(context.Background())
			if err != nil {
				return
			}
			resp := &frame.Response{ID: f.ID}
			switch f.Method {
			case "Sys.GetInfo":
				resp.Response = json.RawMessage(`{"app":"test","fw_version":"1.0"}`)
			default:
				resp.Status, resp.StatusMsg = 404, "No handler for "+f.Method
			}
			dev.Send(context.Background(), frame.NewResponseFrame("dev", f.Src, resp))
		}
	}()
	rpc, err := mgrpc.New(context.Background(), "", mgrpc.UseCodec(codec.TCP(a)))
	require.NoError(t, err)
	c := &Client{Timeout: 5 * time.Second}
	return c.NewDevConn(rpc)
}

func TestDevConnCall(t *testing.T) {
	dc := newTestConn(t)
	ctx := context.Background()

	var info struct {
		App       string `json:"app"`
		FwVersion string `json:"fw_version"`
	}
	require.NoError(t, dc.Call(ctx, "Sys.GetInfo", nil, &info))
	assert.Equal(t, "test", info.App)
	assert.Equal(t, "1.0", info.FwVersion)

	err := dc.Call(ctx, "ATCA.Nope", map[string]int{"slot": 1}, nil)
	re, ok := errors.Cause(err).(*RemoteError)
	require.True(t, ok, "%v", err)
	assert.Equal(t, 404, re.Code)

	assert.True(t, dc.IsConnected())
	require.NoError(t, dc.Disconnect(ctx))
	assert.False(t, dc.IsConnected())
	assert.Error(t, dc.Call(ctx, "Sys.GetInfo", nil, nil))
}

func TestClientFlags(t *testing.T) {
	var c Client
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--timeout=3s"}))
	assert.Equal(t, 3*time.Second, c.Timeout)
	assert.Equal(t, uint(115200), c.BaudRate)
	assert.True(t, c.SetControlLines)

	require.NoError(t, fs.Parse([]string{"--port=tcp://127.0.0.1:1234", "--baud-rate=9600"}))
	assert.Equal(t, "tcp://127.0.0.1:1234", c.Port)
	assert.Equal(t, uint(9600), c.BaudRate)

	err := c.RunWithTimeout(context.Background(), func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		assert.True(t, ok)
		return nil
	})
	assert.NoError(t, err)
}
