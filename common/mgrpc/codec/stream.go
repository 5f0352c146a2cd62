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
package codec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"strconv"
	"sync"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/atca/common/mgrpc/frame"
)

const (
	streamFrameDelimiter1 = `"""`
	streamFrameDelimiter2 = "\n"

	// ",xxxxxxxx" crc32 suffix.
	checksumLen = 9

	readBufSize = 1024
	// A peer that never sends a delimiter should not make us grow forever.
	maxFrameSize = 64 * 1024
)

// streamConnImpl is a byte stream that streamConn frames.
type streamConnImpl interface {
	Read(b []byte) (int, error)
	WriteWithContext(ctx context.Context, b []byte) (int, error)
	Close() error
	RemoteAddr() string
	// PreprocessFrame sees every delimited chunk before it is parsed.
	// Returning true means the chunk was consumed.
	PreprocessFrame(frameData []byte) (bool, error)
	SetOptions(opts *Options) error
}

type streamConn struct {
	conn        streamConnImpl
	addChecksum bool
	junkHandler func(junk []byte)

	frames      chan *frame.Frame
	closeNotify chan struct{}
	closeOnce   sync.Once
	writeLock   sync.Mutex
}

func newStreamConn(c streamConnImpl, addChecksum bool, junkHandler func(junk []byte)) *streamConn {
	sc := &streamConn{
		conn:        c,
		addChecksum: addChecksum,
		junkHandler: junkHandler,
		frames:      make(chan *frame.Frame, 10),
		closeNotify: make(chan struct{}),
	}
	go sc.readLoop()
	return sc
}

func (sc *streamConn) readLoop() {
	defer sc.Close()
	var pending []byte
	buf := make([]byte, readBufSize)
	for {
		n, err := sc.conn.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			pending = sc.processChunks(pending)
			if len(pending) > maxFrameSize {
				sc.junk(pending)
				pending = nil
			}
		}
		if err != nil {
			if !IsEOF(err) {
				glog.Errorf("%s: read error: %s", sc.conn.RemoteAddr(), err)
			}
			return
		}
	}
}

// processChunks dispatches every complete chunk in data and returns the rest.
func (sc *streamConn) processChunks(data []byte) []byte {
	for {
		i1 := bytes.Index(data, []byte(streamFrameDelimiter1))
		i2 := bytes.Index(data, []byte(streamFrameDelimiter2))
		var end, dl int
		switch {
		case i1 < 0 && i2 < 0:
			return data
		case i2 < 0 || (i1 >= 0 && i1 < i2):
			end, dl = i1, len(streamFrameDelimiter1)
		default:
			end, dl = i2, len(streamFrameDelimiter2)
		}
		chunk := data[:end]
		data = data[end+dl:]
		if !sc.processChunk(chunk) {
			return nil
		}
	}
}

func (sc *streamConn) processChunk(chunk []byte) bool {
	handled, err := sc.conn.PreprocessFrame(chunk)
	if err != nil {
		glog.Errorf("%s: %s", sc.conn.RemoteAddr(), err)
		return false
	}
	if handled {
		return true
	}
	chunk = bytes.TrimRight(chunk, "\r")
	if len(chunk) == 0 {
		return true
	}
	payload, ok := stripChecksum(chunk)
	if !ok {
		glog.Warningf("%s: checksum mismatch, dropping frame %q", sc.conn.RemoteAddr(), chunk)
		return true
	}
	if payload[0] != '{' {
		sc.junk(chunk)
		return true
	}
	f := &frame.Frame{SizeHint: len(payload)}
	if err := json.Unmarshal(payload, f); err != nil {
		sc.junk(chunk)
		return true
	}
	glog.V(2).Infof("%s: recv %s", sc.conn.RemoteAddr(), f)
	select {
	case sc.frames <- f:
		return true
	case <-sc.closeNotify:
		return false
	}
}

func (sc *streamConn) junk(data []byte) {
	glog.V(3).Infof("%s: junk %q", sc.conn.RemoteAddr(), data)
	if sc.junkHandler != nil {
		sc.junkHandler(data)
	}
}

// stripChecksum verifies and removes the crc32 suffix, if the chunk has one.
func stripChecksum(chunk []byte) ([]byte, bool) {
	if len(chunk) <= checksumLen || chunk[len(chunk)-checksumLen] != ',' {
		return chunk, true
	}
	want, err := strconv.ParseUint(string(chunk[len(chunk)-checksumLen+1:]), 16, 32)
	if err != nil {
		return chunk, true
	}
	payload := chunk[:len(chunk)-checksumLen]
	return payload, crc32.ChecksumIEEE(payload) == uint32(want)
}

func (sc *streamConn) Recv(ctx context.Context) (*frame.Frame, error) {
	select {
	case f := <-sc.frames:
		return f, nil
	case <-sc.closeNotify:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (sc *streamConn) Send(ctx context.Context, f *frame.Frame) error {
	data, err := frame.MarshalJSON(f)
	if err != nil {
		return errors.Trace(err)
	}
	glog.V(2).Infof("%s: send %s", sc.conn.RemoteAddr(), f)
	var b bytes.Buffer
	b.WriteString(streamFrameDelimiter1)
	b.Write(data)
	if sc.addChecksum {
		fmt.Fprintf(&b, ",%08x", crc32.ChecksumIEEE(data))
	}
	b.WriteString(streamFrameDelimiter1)
	b.WriteString(streamFrameDelimiter2)
	sc.writeLock.Lock()
	defer sc.writeLock.Unlock()
	if _, err := sc.conn.WriteWithContext(ctx, b.Bytes()); err != nil {
		return errors.Annotatef(err, "failed to send frame")
	}
	return nil
}

func (sc *streamConn) Close() {
	sc.closeOnce.Do(func() {
		close(sc.closeNotify)
		sc.conn.Close()
	})
}

func (sc *streamConn) CloseNotify() <-chan struct{} {
	return sc.closeNotify
}

func (sc *streamConn) Info() ConnectionInfo {
	connected := true
	select {
	case <-sc.closeNotify:
		connected = false
	default:
	}
	return ConnectionInfo{IsConnected: connected, RemoteAddr: sc.conn.RemoteAddr()}
}

func (sc *streamConn) SetOptions(opts *Options) error {
	return sc.conn.SetOptions(opts)
}
