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
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"io"
	"io/ioutil"
	"net"
	"path/filepath"
	"strings"
	"testing"

	flag "github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mongoose-os/atca/atca"
	"github.com/mongoose-os/atca/atca/mgrpchw"
	"github.com/mongoose-os/atca/atca/sim"
	"github.com/mongoose-os/atca/cli/x509utils"
)

func setFlag(t *testing.T, name, value string) {
	t.Helper()
	f := flag.Lookup(name)
	require.NotNil(t, f, name)
	old, oldChanged := f.Value.String(), f.Changed
	require.NoError(t, flag.Set(name, value))
	t.Cleanup(func() {
		f.Value.Set(old)
		f.Changed = oldChanged
	})
}

// runCmd runs a command and returns what it wrote to stdout.
func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	defer func(w io.Writer) { stdout = w }(stdout)
	stdout = &out
	err := run(context.Background(), args)
	return out.String(), err
}

// useSim points the device flags at a simulated chip persisted in a
// temporary state file, so that consecutive commands see the same chip.
func useSim(t *testing.T) string {
	dir := t.TempDir()
	setFlag(t, "iface", string(atca.IfaceTest))
	setFlag(t, "port", filepath.Join(dir, "chip.yaml"))
	setFlag(t, "dry-run", "false")
	return dir
}

func writeFile(t *testing.T, fn string, data []byte) string {
	t.Helper()
	require.NoError(t, ioutil.WriteFile(fn, data, 0644))
	return fn
}

func TestGetFormat(t *testing.T) {
	for _, c := range []struct {
		f, fn, want string
	}{
		{"", "conf.yaml", "yaml"},
		{"", "conf.YML", "yaml"},
		{"", "conf.json", "json"},
		{"", "conf.hex", "hex"},
		{"", "", "hex"},
		{"JSON", "conf.yaml", "json"},
	} {
		if got := getFormat(c.f, c.fn); got != c.want {
			t.Errorf("getFormat(%q, %q): got %q, want %q", c.f, c.fn, got, c.want)
		}
	}
}

func TestParseSlot(t *testing.T) {
	slot, err := parseSlot("0x0a", 15)
	require.NoError(t, err)
	assert.Equal(t, uint8(10), slot)

	_, err = parseSlot("16", 15)
	assert.Error(t, err)
	_, err = parseSlot("-1", 15)
	assert.Error(t, err)
	_, err = parseSlot("one", 15)
	assert.Error(t, err)
}

func TestCheckFlags(t *testing.T) {
	assert.Error(t, checkFlags([]string{"csr-template", "subject"}))
	setFlag(t, "subject", "CN=test")
	assert.Error(t, checkFlags([]string{"csr-template", "subject"}))
	setFlag(t, "csr-template", "csr.pem")
	assert.NoError(t, checkFlags([]string{"csr-template", "subject"}))
}

func TestUnknownCommand(t *testing.T) {
	_, err := runCmd(t, "frobnicate")
	assert.Error(t, err)
}

func TestInfoAndConfig(t *testing.T) {
	dir := useSim(t)
	setFlag(t, "format", "json")

	out, err := runCmd(t, "info")
	require.NoError(t, err)
	var info map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "ATECC608A", info["device_type"])
	assert.Equal(t, "Locked", info["lock_config"])
	assert.Equal(t, "Locked", info["lock_value"])
	assert.Len(t, info["serial_number"], 2*atca.SerialNumSize)
	assert.Equal(t, true, info["chip_options"].(map[string]interface{})["aes_enabled"])

	setFlag(t, "format", "")
	confFile := filepath.Join(dir, "config.hex")
	_, err = runCmd(t, "get-config", confFile)
	require.NoError(t, err)
	data, err := ioutil.ReadFile(confFile)
	require.NoError(t, err)
	conf := atca.ReadHex(data)
	require.Len(t, conf, atca.ConfigSize)

	_, err = runCmd(t, "cmp-config", confFile)
	assert.NoError(t, err)

	conf[20] ^= 0xff
	writeFile(t, confFile, atca.WriteHex(conf, 4))
	out, err = runCmd(t, "cmp-config", confFile)
	assert.Error(t, err)
	assert.NotEmpty(t, out)

	// Both zones are locked on a provisioned chip.
	_, err = runCmd(t, "set-config", confFile)
	assert.Error(t, err)
	setFlag(t, "force", "true")
	_, err = runCmd(t, "lock-zone", "data")
	assert.Error(t, err)
}

func TestRandomAndSHA(t *testing.T) {
	dir := useSim(t)

	out, err := runCmd(t, "random")
	require.NoError(t, err)
	r, err := hex.DecodeString(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Len(t, r, atca.RandomSize)

	msg := writeFile(t, filepath.Join(dir, "msg"), []byte("abc"))
	out, err = runCmd(t, "sha", msg)
	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", strings.TrimSpace(out))
}

func TestGenKeySignVerify(t *testing.T) {
	dir := useSim(t)
	pubFile := filepath.Join(dir, "pub.pem")
	msg := writeFile(t, filepath.Join(dir, "msg"), []byte("hello"))
	sigFile := filepath.Join(dir, "msg.sig")

	_, err := runCmd(t, "gen-key", "2", pubFile)
	require.NoError(t, err)
	pemData, err := ioutil.ReadFile(pubFile)
	require.NoError(t, err)
	pub, err := x509utils.ParseECPublicKey(pemData)
	require.NoError(t, err)

	_, err = runCmd(t, "sign", "2", msg, sigFile)
	require.NoError(t, err)

	_, err = runCmd(t, "verify", msg, sigFile, "2")
	assert.NoError(t, err)

	setFlag(t, "pub-key", pubFile)
	_, err = runCmd(t, "verify", msg, sigFile)
	assert.NoError(t, err)

	other := writeFile(t, filepath.Join(dir, "other"), []byte("hello!"))
	_, err = runCmd(t, "verify", other, sigFile)
	assert.Error(t, err)

	// get-pub-key returns the same key.
	pub2File := filepath.Join(dir, "pub2.pem")
	_, err = runCmd(t, "get-pub-key", "2", pub2File)
	require.NoError(t, err)
	pemData, err = ioutil.ReadFile(pub2File)
	require.NoError(t, err)
	pub2, err := x509utils.ParseECPublicKey(pemData)
	require.NoError(t, err)
	assert.True(t, pub.Equal(pub2))
}

func TestGenKeyDryRun(t *testing.T) {
	dir := useSim(t)
	setFlag(t, "dry-run", "true")
	pubFile := filepath.Join(dir, "pub.pem")
	_, err := runCmd(t, "gen-key", "2", pubFile)
	require.NoError(t, err)
	_, err = ioutil.ReadFile(pubFile)
	assert.Error(t, err)
}

func TestImportPrivateKey(t *testing.T) {
	dir := useSim(t)
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalECPrivateKey(priv)
	require.NoError(t, err)
	keyFile := writeFile(t, filepath.Join(dir, "key.pem"), pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}))

	// Slot 1 takes encrypted writes only.
	_, err = runCmd(t, "import-key", "1", keyFile)
	assert.Error(t, err)

	writeFile(t, filepath.Join(dir, "wkey.hex"), atca.WriteHex(sim.DefaultAccessKey, 16))
	setFlag(t, "write-key", filepath.Join(dir, "wkey.hex"))
	_, err = runCmd(t, "import-key", "1", keyFile)
	require.NoError(t, err)

	pubFile := filepath.Join(dir, "pub.pem")
	_, err = runCmd(t, "get-pub-key", "1", pubFile)
	require.NoError(t, err)
	pemData, err := ioutil.ReadFile(pubFile)
	require.NoError(t, err)
	pub, err := x509utils.ParseECPublicKey(pemData)
	require.NoError(t, err)
	assert.True(t, priv.PublicKey.Equal(pub))
}

func TestGenCSR(t *testing.T) {
	dir := useSim(t)
	csrFile := filepath.Join(dir, "csr.pem")

	_, err := runCmd(t, "gen-csr", "3", csrFile)
	assert.Error(t, err)

	setFlag(t, "subject", "CN=device-1,O=Cesanta")
	_, err = runCmd(t, "gen-csr", "3", csrFile)
	require.NoError(t, err)

	data, err := ioutil.ReadFile(csrFile)
	require.NoError(t, err)
	pb, _ := pem.Decode(data)
	require.NotNil(t, pb)
	csr, err := x509.ParseCertificateRequest(pb.Bytes)
	require.NoError(t, err)
	assert.NoError(t, csr.CheckSignature())
	assert.Equal(t, "device-1", csr.Subject.CommonName)
	assert.Equal(t, []string{"Cesanta"}, csr.Subject.Organization)
}

func TestEncryptDecrypt(t *testing.T) {
	for _, c := range []struct {
		mode string
		iv   string
	}{
		{"cbc", "000102030405060708090a0b0c0d0e0f"},
		{"cbc-pkcs7", "000102030405060708090a0b0c0d0e0f"},
		{"ctr", "f0f1f2f3f4f5f6f7f8f9fafbfcfdfeff"},
		{"gcm", "cafebabefacedbaddecaf888"},
		{"ccm", "00112233445566778899aabb"},
	} {
		t.Run(c.mode, func(t *testing.T) {
			dir := useSim(t)
			setFlag(t, "mode", c.mode)
			setFlag(t, "iv", c.iv)
			setFlag(t, "aad", "feedface")

			plain := bytes.Repeat([]byte("0123456789abcdef"), 4)
			in := writeFile(t, filepath.Join(dir, "plain"), plain)
			enc := filepath.Join(dir, "enc")
			dec := filepath.Join(dir, "dec")

			_, err := runCmd(t, "encrypt", "9", in, enc)
			require.NoError(t, err)
			ct, err := ioutil.ReadFile(enc)
			require.NoError(t, err)
			assert.NotEqual(t, plain, ct)

			_, err = runCmd(t, "decrypt", "9", enc, dec)
			require.NoError(t, err)
			got, err := ioutil.ReadFile(dec)
			require.NoError(t, err)
			assert.Equal(t, plain, got)
		})
	}
}

func TestDecryptBadTag(t *testing.T) {
	dir := useSim(t)
	setFlag(t, "mode", "gcm")
	setFlag(t, "iv", "cafebabefacedbaddecaf888")
	in := writeFile(t, filepath.Join(dir, "plain"), []byte("attack at dawn"))
	enc := filepath.Join(dir, "enc")

	_, err := runCmd(t, "encrypt", "9", in, enc)
	require.NoError(t, err)
	ct, err := ioutil.ReadFile(enc)
	require.NoError(t, err)
	ct[len(ct)-1] ^= 1
	writeFile(t, enc, ct)

	_, err = runCmd(t, "decrypt", "9", enc, filepath.Join(dir, "dec"))
	assert.Error(t, err)
}

func serveForTest(t *testing.T, serve func(ctx context.Context, ln net.Listener, h *mgrpchw.Handler) error) net.Listener {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, ln, mgrpchw.NewHandler(sim.NewProvisioned(atca.ATECC608A, sim.DefaultAccessKey)))
	}()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
	return ln
}

func TestServeSimTCP(t *testing.T) {
	ln := serveForTest(t, serveTCP)
	setFlag(t, "iface", string(atca.IfaceTCP))
	setFlag(t, "address", ln.Addr().String())

	out, err := runCmd(t, "random")
	require.NoError(t, err)
	assert.Len(t, strings.TrimSpace(out), 2*atca.RandomSize)
}

func TestServeSimWebSocket(t *testing.T) {
	ln := serveForTest(t, func(ctx context.Context, ln net.Listener, h *mgrpchw.Handler) error {
		return serveWS(ctx, ln, "/rpc", h)
	})
	setFlag(t, "iface", string(atca.IfaceTCP))
	setFlag(t, "address", "ws://"+ln.Addr().String()+"/rpc")
	setFlag(t, "format", "yaml")

	out, err := runCmd(t, "info")
	require.NoError(t, err)
	assert.Contains(t, out, "device_type: ATECC608A")
	assert.Contains(t, out, "lock_config: Locked")
}
