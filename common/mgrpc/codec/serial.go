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
	"context"
	"io"
	"sync"
	"time"

	"github.com/cesanta/go-serial/serial"
	"github.com/golang/glog"
	"github.com/juju/errors"
)

const (
	eofChar byte = 0x04

	// Software flow control. Neither char can occur in valid JSON.
	xonChar  = 0x11
	xoffChar = 0x13

	// The handshake is repeated with this period until the device responds.
	handshakeInterval time.Duration = 200 * time.Millisecond

	interCharacterTimeout time.Duration = 200 * time.Millisecond

	warnInterval = 25
)

type SerialCodecOptions struct {
	BaudRate             uint
	HardwareFlowControl  bool
	JunkHandler          func(junk []byte)
	SetControlLines      bool
	InvertedControlLines bool
}

type serialCodec struct {
	portName    string
	conn        io.ReadWriteCloser
	opts        *SerialCodecOptions
	lastEOFTime time.Time

	hsLock      sync.Mutex
	handsShaken bool
	hsCounter   int
	warnCounter int

	writeLock sync.Mutex

	// Read and Write hold closeLock for reading, Close for writing.
	closeLock sync.RWMutex
	isClosed  bool

	// Closed while sending is allowed. xonLock guards swapping the channel only.
	xonChan chan struct{}
	xonLock sync.Mutex
}

func Serial(ctx context.Context, portName string, opts *SerialCodecOptions) (Codec, error) {
	glog.Infof("Opening %s...", portName)
	oo := serial.OpenOptions{
		PortName:              portName,
		BaudRate:              115200,
		DataBits:              8,
		ParityMode:            serial.PARITY_NONE,
		StopBits:              1,
		HardwareFlowControl:   opts.HardwareFlowControl,
		InterCharacterTimeout: uint(interCharacterTimeout / time.Millisecond),
		MinimumReadSize:       0,
	}
	if opts.BaudRate != 0 {
		oo.BaudRate = opts.BaudRate
	}
	s, err := serial.Open(oo)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to open %s", portName)
	}
	glog.V(1).Infof("%s opened at %d", portName, oo.BaudRate)

	if opts.SetControlLines || opts.InvertedControlLines {
		v := opts.InvertedControlLines
		s.SetDTR(v)
		s.SetRTS(v)
	}
	s.Flush()

	return newStreamConn(newSerialCodec(portName, s, opts), true /* addChecksum */, opts.JunkHandler), nil
}

func newSerialCodec(portName string, conn io.ReadWriteCloser, opts *SerialCodecOptions) *serialCodec {
	sc := &serialCodec{
		portName: portName,
		opts:     opts,
		conn:     conn,
		xonChan:  make(chan struct{}),
	}
	close(sc.xonChan)
	return sc
}

func (c *serialCodec) connRead(buf []byte) (int, error) {
	c.closeLock.RLock()
	defer c.closeLock.RUnlock()
	if c.isClosed {
		return 0, io.EOF
	}
	read, err := c.conn.Read(buf)
	if err != nil {
		return read, err
	}
	i := 0
	for _, b := range buf[:read] {
		switch b {
		case xoffChar:
			glog.V(3).Infof("XOFF")
			c.blockWrite()
		case xonChar:
			glog.V(3).Infof("XON")
			c.unblockWrite()
		default:
			buf[i] = b
			i++
		}
	}
	return i, nil
}

func (c *serialCodec) blockWrite() {
	c.xonLock.Lock()
	defer c.xonLock.Unlock()
	select {
	case <-c.xonChan:
		c.xonChan = make(chan struct{})
	default:
	}
}

func (c *serialCodec) unblockWrite() {
	c.xonLock.Lock()
	defer c.xonLock.Unlock()
	select {
	case <-c.xonChan:
	default:
		close(c.xonChan)
	}
}

func (c *serialCodec) connWrite(ctx context.Context, buf []byte) (int, error) {
	c.closeLock.RLock()
	defer c.closeLock.RUnlock()
	if c.isClosed {
		return 0, io.EOF
	}
	written := 0
	for written < len(buf) {
		c.xonLock.Lock()
		xonChan := c.xonChan
		c.xonLock.Unlock()
		select {
		case <-xonChan:
		case <-ctx.Done():
			return written, ctx.Err()
		}
		n, err := c.conn.Write(buf[written:])
		written += n
		if err != nil {
			return written, errors.Trace(err)
		}
	}
	glog.V(4).Infof("sent %d %q", len(buf), buf)
	return written, nil
}

func (c *serialCodec) Read(buf []byte) (int, error) {
	n, err := c.connRead(buf)
	// The port reports io.EOF after every inter-character timeout. Two of
	// them in quick succession mean the port is gone.
	if errors.Cause(err) == io.EOF {
		now := time.Now()
		if !c.lastEOFTime.Add(interCharacterTimeout / 2).After(now) {
			err = nil
		}
		c.lastEOFTime = now
	}
	return n, err
}

func (c *serialCodec) handshake(ctx context.Context) error {
	hs := []byte(streamFrameDelimiter1 + string(eofChar) + streamFrameDelimiter1 + streamFrameDelimiter2 + streamFrameDelimiter2)
	for !c.areHandsShaken() {
		// The other side's flow control only counts once it is listening.
		c.unblockWrite()
		glog.V(1).Infof("sending handshake...")
		if _, err := c.connWrite(ctx, hs); err != nil {
			return errors.Trace(err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(handshakeInterval):
		}
		c.hsLock.Lock()
		c.warnCounter++
		if c.warnCounter >= warnInterval {
			glog.Errorf("No response to handshake. Is %s the right port? Is rpc-uart enabled?", c.portName)
			c.warnCounter = 0
		}
		c.hsLock.Unlock()
	}
	return nil
}

func (c *serialCodec) WriteWithContext(ctx context.Context, b []byte) (int, error) {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	if err := c.handshake(ctx); err != nil {
		return 0, err
	}
	c.unblockWrite()
	return c.connWrite(ctx, b)
}

func (c *serialCodec) Close() error {
	glog.Infof("closing serial %s", c.portName)
	c.closeLock.Lock()
	defer c.closeLock.Unlock()
	if c.isClosed {
		return nil
	}
	c.isClosed = true
	return c.conn.Close()
}

func (c *serialCodec) RemoteAddr() string {
	return c.portName
}

func (c *serialCodec) PreprocessFrame(frameData []byte) (bool, error) {
	switch {
	case len(frameData) == 0, len(frameData) == 1 && frameData[0] == '\r':
		if c.areHandsShaken() {
			return true, nil
		}
		// Empty frames are answered with a delimiter until two have been seen.
		c.hsLock.Lock()
		c.hsCounter++
		done := c.hsCounter >= 2
		c.hsLock.Unlock()
		if done {
			c.setHandsShaken(true)
		} else if _, err := c.connWrite(context.Background(), []byte(streamFrameDelimiter2)); err != nil {
			return true, errors.Trace(err)
		}
		return true, nil
	case len(frameData) == 1 && frameData[0] == eofChar:
		if !c.areHandsShaken() {
			c.setHandsShaken(true)
			if _, err := c.connWrite(context.Background(), []byte(streamFrameDelimiter1)); err != nil {
				return true, errors.Trace(err)
			}
		}
		return true, nil
	}
	return false, nil
}

func (c *serialCodec) areHandsShaken() bool {
	c.hsLock.Lock()
	defer c.hsLock.Unlock()
	return c.handsShaken
}

func (c *serialCodec) setHandsShaken(shaken bool) {
	c.hsLock.Lock()
	defer c.hsLock.Unlock()
	if !c.handsShaken && shaken {
		glog.Infof("handshake complete")
	} else if !shaken {
		c.hsCounter = 0
	}
	c.handsShaken = shaken
	c.warnCounter = 0
}

func (c *serialCodec) SetOptions(opts *Options) error {
	c.opts = &opts.Serial
	return nil
}
