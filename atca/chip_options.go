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
package atca

const (
	aesEnableWordOffset   = 3
	aesEnableByte         = 1
	chipOptionsWordOffset = 22
	chipOptionsByte0      = 2
	chipOptionsByte1      = 3
)

type ChipOptions struct {
	AESEnabled           bool                  `json:"aes_enabled" yaml:"aes_enabled"`
	KDFAESEnabled        bool                  `json:"kdf_aes_enabled" yaml:"kdf_aes_enabled"`
	IOKeyEnabled         bool                  `json:"io_key_enabled" yaml:"io_key_enabled"`
	IOKeyInSlot          uint8                 `json:"io_key_in_slot" yaml:"io_key_in_slot"`
	ECDHOutputProtection OutputProtectionState `json:"ecdh_output_protection" yaml:"ecdh_output_protection"`
	KDFOutputProtection  OutputProtectionState `json:"kdf_output_protection" yaml:"kdf_output_protection"`
}

// decodeChipOptions derives capability flags from the two 4-byte config
// windows at word offsets 3 and 22.
func decodeChipOptions(aesWindow, optsWindow []byte) ChipOptions {
	b0, b1 := optsWindow[chipOptionsByte0], optsWindow[chipOptionsByte1]
	return ChipOptions{
		AESEnabled:           bit(aesWindow[aesEnableByte], 0),
		IOKeyEnabled:         bit(b0, 1),
		KDFAESEnabled:        bit(b0, 2),
		ECDHOutputProtection: OutputProtectionState(b1 & 0x03),
		KDFOutputProtection:  OutputProtectionState((b1 >> 2) & 0x03),
		IOKeyInSlot:          (b1 >> 4) & 0x0F,
	}
}

func readChipOptions(hw Hardware) (ChipOptions, error) {
	opts, err := hw.ReadZone(ZoneConfig, 0, 0, chipOptionsWordOffset, 4)
	if err != nil {
		return ChipOptions{}, err
	}
	aes, err := hw.ReadZone(ZoneConfig, 0, 0, aesEnableWordOffset, 4)
	if err != nil {
		return ChipOptions{}, err
	}
	if len(opts) != 4 || len(aes) != 4 {
		return ChipOptions{}, StatusInvalidSize
	}
	return decodeChipOptions(aes, opts), nil
}
