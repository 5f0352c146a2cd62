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
	"context"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"

	"github.com/golang/glog"
	"github.com/juju/errors"
	"golang.org/x/net/websocket"
	goji "goji.io"
	"goji.io/pat"

	"github.com/mongoose-os/atca/atca"
	"github.com/mongoose-os/atca/atca/mgrpchw"
	"github.com/mongoose-os/atca/atca/sim"
	"github.com/mongoose-os/atca/cli/flags"
	"github.com/mongoose-os/atca/common/mgrpc/codec"
)

// serveSim exposes a simulated chip through the ATCA RPC service so that
// the uart and tcp interfaces can be exercised without hardware.
func serveSim(ctx context.Context, args []string) error {
	dt, err := atca.ParseDeviceType(*flags.DeviceType)
	if err != nil {
		return errors.Trace(err)
	}
	hw, err := sim.Open(&atca.IfaceConfig{IfaceType: atca.IfaceTest, DeviceType: dt, Port: *flags.SimState})
	if err != nil {
		return errors.Annotatef(err, "failed to start simulator")
	}
	defer func() {
		if err := hw.Release(); err != nil {
			glog.Errorf("sim: %s", err)
		}
	}()

	u, err := url.Parse(*flags.Listen)
	if err != nil {
		return errors.Annotatef(err, "invalid --listen address")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	h := mgrpchw.NewHandler(hw)
	switch u.Scheme {
	case "tcp":
		ln, err := net.Listen("tcp", u.Host)
		if err != nil {
			return errors.Trace(err)
		}
		reportf("Serving %s on %s", dt, ln.Addr())
		return serveTCP(ctx, ln, h)
	case "ws":
		ln, err := net.Listen("tcp", u.Host)
		if err != nil {
			return errors.Trace(err)
		}
		reportf("Serving %s on ws://%s%s", dt, ln.Addr(), u.Path)
		return serveWS(ctx, ln, u.Path, h)
	}
	return errors.Errorf("unsupported --listen scheme %q", u.Scheme)
}

func serveTCP(ctx context.Context, ln net.Listener, h *mgrpchw.Handler) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Trace(err)
		}
		glog.Infof("%s connected", conn.RemoteAddr())
		go func() {
			if err := h.Serve(ctx, codec.TCP(conn)); err != nil {
				glog.Errorf("%s: %s", conn.RemoteAddr(), err)
			}
			glog.Infof("%s disconnected", conn.RemoteAddr())
		}()
	}
}

func serveWS(ctx context.Context, ln net.Listener, path string, h *mgrpchw.Handler) error {
	if path == "" {
		path = "/"
	}
	mux := goji.NewMux()
	mux.Handle(pat.Get(path), websocket.Handler(func(conn *websocket.Conn) {
		glog.Infof("%s connected", conn.Request().RemoteAddr)
		if err := h.Serve(ctx, codec.WebSocket(conn)); err != nil {
			glog.Errorf("%s: %s", conn.Request().RemoteAddr, err)
		}
	}))
	srv := &http.Server{Handler: mux}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return errors.Trace(err)
	}
	return nil
}
