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
package mgrpchw_test

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mongoose-os/atca/atca"
	"github.com/mongoose-os/atca/atca/mgrpchw"
	"github.com/mongoose-os/atca/atca/sim"
	"github.com/mongoose-os/atca/cli/dev"
	"github.com/mongoose-os/atca/common/mgrpc"
	"github.com/mongoose-os/atca/common/mgrpc/codec"
	"github.com/mongoose-os/atca/common/mgrpc/frame"
)

// connect serves chip over an in-memory pipe and returns the client end.
func connect(t *testing.T, chip atca.Hardware) *dev.MosDevConn {
	t.Helper()
	a, b := net.Pipe()
	go mgrpchw.NewHandler(chip).Serve(context.Background(), codec.TCP(b))
	rpc, err := mgrpc.New(context.Background(), "", mgrpc.UseCodec(codec.TCP(a)))
	require.NoError(t, err)
	c := &dev.Client{Timeout: 5 * time.Second}
	return c.NewDevConn(rpc)
}

func openRemote(t *testing.T, chip *sim.Chip) *atca.Device {
	t.Helper()
	hw, err := mgrpchw.New(connect(t, chip), chip.DeviceType())
	require.NoError(t, err)
	d, err := atca.New(&atca.IfaceConfig{IfaceType: atca.IfaceTCP, DeviceType: chip.DeviceType()},
		atca.WithResourceManager(&atca.ResourceManager{}),
		atca.WithOpener(func(*atca.IfaceConfig) (atca.Hardware, error) { return hw, nil }))
	require.NoError(t, err)
	t.Cleanup(func() { d.Release() })
	return d
}

func TestRemoteDevice(t *testing.T) {
	chip := sim.NewProvisioned(atca.ATECC608A, sim.DefaultAccessKey)
	d := openRemote(t, chip)

	assert.Equal(t, []byte{0x01, 0x23, 0x6f, 0x2a, 0x9c, 0x4b, 0x1d, 0x35, 0xee}, d.SerialNumber())
	assert.True(t, d.IsConfigurationLocked())
	assert.True(t, d.IsDataZoneLocked())
	assert.True(t, d.IsAESEnabled())

	rev, err := d.InfoCmd(atca.InfoRevision)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x00, 0x60, 0x02}, rev)

	r, err := d.Random()
	require.NoError(t, err)
	assert.Len(t, r, atca.RandomSize)

	require.NoError(t, d.GenKey(atca.KeyTypeP256, 2))
	pub, err := d.GetPublicKey(2)
	require.NoError(t, err)
	digest := sha256.Sum256([]byte("over the wire"))
	sig, err := d.SignHash(atca.SignExternal, 2, digest[:])
	require.NoError(t, err)
	ok, err := d.VerifyHash(atca.VerifyMode{Kind: atca.VerifyExternal, PublicKey: pub}, digest[:], sig)
	require.NoError(t, err)
	assert.True(t, ok)

	// Not exposed by the RPC service.
	_, err = d.SHA([]byte("x"))
	assert.Equal(t, atca.StatusUnimplemented, atca.StatusOf(err))

	assert.Contains(t, chip.Commands(), "Sign")
}

func TestRemoteImportPrivateKey(t *testing.T) {
	d := openRemote(t, sim.NewProvisioned(atca.ATECC608A, sim.DefaultAccessKey))
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	require.NoError(t, d.AddAccessKey(6, sim.DefaultAccessKey))
	require.NoError(t, d.ImportKey(atca.KeyTypeP256, atca.PrivateKeyBytes(priv), 1))
	pub, err := d.GetPublicKey(1)
	require.NoError(t, err)
	assert.Equal(t, atca.PublicKeyBytes(&priv.PublicKey), pub)

	require.NoError(t, d.AddAccessKey(6, bytes.Repeat([]byte{1}, atca.KeySize)))
	err = d.ImportKey(atca.KeyTypeP256, atca.PrivateKeyBytes(priv), 1)
	assert.Equal(t, atca.StatusCheckMacVerifyFailed, atca.StatusOf(err))
}

func TestRemoteProvisioning(t *testing.T) {
	chip := sim.New(atca.ATECC608A)
	d := openRemote(t, chip)
	assert.False(t, d.IsConfigurationLocked())

	config := sim.DefaultConfig(atca.ATECC608A)
	config[96+2*9] = 0x10
	require.NoError(t, d.WriteConfigZone(config))
	assert.Equal(t, atca.KeyTypeP256, d.Slots()[9].Config.KeyType)

	require.NoError(t, d.LockZone(atca.LockZoneConfig))
	require.NoError(t, d.LockZone(atca.LockZoneData))
	assert.True(t, d.IsDataZoneLocked())

	locked, err := chip.IsLocked(atca.LockZoneData)
	require.NoError(t, err)
	assert.True(t, locked)
}

func TestHandlerErrors(t *testing.T) {
	h := mgrpchw.NewHandler(sim.NewProvisioned(atca.ATECC608A, sim.DefaultAccessKey))

	resp := h.Handle(&frame.Command{Cmd: "ATCA.Nope"})
	assert.Equal(t, 404, resp.Status)

	resp = h.Handle(&frame.Command{Cmd: "ATCA.Sign", Args: []byte(`{"slot":2}`)})
	assert.Equal(t, int(atca.StatusBadParam), resp.Status)

	resp = h.Handle(&frame.Command{Cmd: "ATCA.LockZone", Args: []byte(`{"zone":0}`)})
	assert.Equal(t, int(atca.StatusConfigZoneLocked), resp.Status)

	resp = h.Handle(&frame.Command{Cmd: "ATCA.GenKey", Args: []byte(`{"slot":`)})
	assert.Equal(t, int(atca.StatusParseError), resp.Status)
}

func TestOpenUnreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	_, err = mgrpchw.Open(&atca.IfaceConfig{IfaceType: atca.IfaceTCP, Address: addr, DeviceType: atca.ATECC608A, Timeout: time.Second})
	assert.Equal(t, atca.StatusCommFail, atca.StatusOf(err))

	_, err = mgrpchw.Open(&atca.IfaceConfig{IfaceType: atca.IfaceI2C})
	assert.Error(t, err)
}
