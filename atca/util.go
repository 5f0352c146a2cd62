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
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// WriteHex formats data as comma-separated 0x.. bytes, numPerLine per line.
func WriteHex(data []byte, numPerLine int) []byte {
	var sb strings.Builder
	for i, b := range data {
		fmt.Fprintf(&sb, "0x%02x", b)
		switch {
		case i == len(data)-1:
			sb.WriteString("\n")
		case (i+1)%numPerLine == 0:
			sb.WriteString(",\n")
		default:
			sb.WriteString(", ")
		}
	}
	return []byte(sb.String())
}

var hexByteRegex = regexp.MustCompile(`(?:0[xX])?([0-9a-fA-F]{2})`)

// ReadHex extracts every two-digit hex byte from data, with or without a 0x
// prefix. It accepts the output of WriteHex as well as plain hex dumps.
func ReadHex(data []byte) []byte {
	var result []byte
	for _, m := range hexByteRegex.FindAllSubmatch(data, -1) {
		b, _ := hex.DecodeString(string(m[1]))
		result = append(result, b[0])
	}
	return result
}

func JSONStr(v interface{}) string {
	bb, _ := json.MarshalIndent(v, "", "  ")
	return string(bb)
}
