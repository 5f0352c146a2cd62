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

import (
	"fmt"

	"github.com/juju/errors"
)

// Status is a CryptoAuthLib status code. Every non-success value is an error;
// policy checks return bare Status values so callers can compare with ==.
type Status uint8

const (
	StatusSuccess              Status = 0x00
	StatusConfigZoneLocked     Status = 0x01
	StatusDataZoneLocked       Status = 0x02
	StatusWakeFailed           Status = 0xD0
	StatusCheckMacVerifyFailed Status = 0xD1
	StatusParseError           Status = 0xD2
	StatusStatusCRC            Status = 0xD4
	StatusStatusUnknown        Status = 0xD5
	StatusStatusECC            Status = 0xD6
	StatusSelfTestError        Status = 0xD7
	StatusFuncFail             Status = 0xE0
	StatusGenFail              Status = 0xE1
	StatusBadParam             Status = 0xE2
	StatusInvalidId            Status = 0xE3
	StatusInvalidSize          Status = 0xE4
	StatusRxCRCError           Status = 0xE5
	StatusRxFail               Status = 0xE6
	StatusRxNoResponse         Status = 0xE7
	StatusResyncWithWakeup     Status = 0xE8
	StatusParityError          Status = 0xE9
	StatusTxTimeout            Status = 0xEA
	StatusRxTimeout            Status = 0xEB
	StatusTooManyCommRetries   Status = 0xEC
	StatusSmallBuffer          Status = 0xED
	StatusCommFail             Status = 0xF0
	StatusTimeout              Status = 0xF1
	StatusBadOpcode            Status = 0xF2
	StatusWakeSuccess          Status = 0xF3
	StatusExecutionError       Status = 0xF4
	StatusUnimplemented        Status = 0xF5
	StatusAssertFailure        Status = 0xF6
	StatusTxFail               Status = 0xF7
	StatusNotLocked            Status = 0xF8
	StatusNoDevices            Status = 0xF9
	StatusHealthTestError      Status = 0xFA
	StatusAllocFailure         Status = 0xFB
	StatusUseFlagsConsumed     Status = 0xFC
	StatusNotInitialized       Status = 0xFD

	// StatusUnknown is not a chip code; it stands for any code or error the
	// library does not recognise.
	StatusUnknown Status = 0xFF
)

var statusNames = map[Status]string{
	StatusSuccess:              "AtcaSuccess",
	StatusConfigZoneLocked:     "AtcaConfigZoneLocked",
	StatusDataZoneLocked:       "AtcaDataZoneLocked",
	StatusWakeFailed:           "AtcaWakeFailed",
	StatusCheckMacVerifyFailed: "AtcaCheckMacVerifyFailed",
	StatusParseError:           "AtcaParseError",
	StatusStatusCRC:            "AtcaStatusCrc",
	StatusStatusUnknown:        "AtcaStatusUnknown",
	StatusStatusECC:            "AtcaStatusEcc",
	StatusSelfTestError:        "AtcaStatusSelftestError",
	StatusFuncFail:             "AtcaFuncFail",
	StatusGenFail:              "AtcaGenFail",
	StatusBadParam:             "AtcaBadParam",
	StatusInvalidId:            "AtcaInvalidId",
	StatusInvalidSize:          "AtcaInvalidSize",
	StatusRxCRCError:           "AtcaRxCrcError",
	StatusRxFail:               "AtcaRxFail",
	StatusRxNoResponse:         "AtcaRxNoResponse",
	StatusResyncWithWakeup:     "AtcaResyncWithWakeup",
	StatusParityError:          "AtcaParityError",
	StatusTxTimeout:            "AtcaTxTimeout",
	StatusRxTimeout:            "AtcaRxTimeout",
	StatusTooManyCommRetries:   "AtcaTooManyCommRetries",
	StatusSmallBuffer:          "AtcaSmallBuffer",
	StatusCommFail:             "AtcaCommFail",
	StatusTimeout:              "AtcaTimeout",
	StatusBadOpcode:            "AtcaBadOpcode",
	StatusWakeSuccess:          "AtcaWakeSuccess",
	StatusExecutionError:       "AtcaExecutionError",
	StatusUnimplemented:        "AtcaUnimplemented",
	StatusAssertFailure:        "AtcaAssertFailure",
	StatusTxFail:               "AtcaTxFail",
	StatusNotLocked:            "AtcaNotLocked",
	StatusNoDevices:            "AtcaNoDevices",
	StatusHealthTestError:      "AtcaHealthTestError",
	StatusAllocFailure:         "AtcaAllocFailure",
	StatusUseFlagsConsumed:     "AtcaUseFlagsConsumed",
	StatusNotInitialized:       "AtcaNotInitialized",
	StatusUnknown:              "AtcaUnknown",
}

// StatusFromCode maps a raw status byte to a Status. Codes outside the known
// set become StatusUnknown.
func StatusFromCode(code int) Status {
	if code < 0 || code > 0xff {
		return StatusUnknown
	}
	s := Status(code)
	if _, ok := statusNames[s]; !ok {
		return StatusUnknown
	}
	return s
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("AtcaStatus(0x%02x)", uint8(s))
}

func (s Status) Error() string {
	return s.String()
}

// Err returns nil for StatusSuccess and s otherwise.
func (s Status) Err() error {
	if s == StatusSuccess {
		return nil
	}
	return s
}

// StatusOf extracts the Status carried by err. nil maps to StatusSuccess,
// errors that do not carry a Status map to StatusUnknown.
func StatusOf(err error) Status {
	if err == nil {
		return StatusSuccess
	}
	if s, ok := errors.Cause(err).(Status); ok {
		return s
	}
	return StatusUnknown
}

// ErrFamilyMismatch is returned by New when the declared device type does not
// agree with the AES capability reported by the chip.
var ErrFamilyMismatch = errors.New("declared device type does not match the chip on the bus")
