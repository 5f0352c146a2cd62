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
package x509utils

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

var attributeTypeNames = map[string]asn1.ObjectIdentifier{
	"CN":           {2, 5, 4, 3},
	"SERIALNUMBER": {2, 5, 4, 5},
	"C":            {2, 5, 4, 6},
	"L":            {2, 5, 4, 7},
	"ST":           {2, 5, 4, 8},
	"STREET":       {2, 5, 4, 9},
	"O":            {2, 5, 4, 10},
	"OU":           {2, 5, 4, 11},
	"POSTALCODE":   {2, 5, 4, 17},
}

// AttributeTypeAndValue is one "TYPE=value" pair of an RFC 4514 name.
type AttributeTypeAndValue struct {
	Type  string
	Value string
}

// RelativeDN holds the pairs joined by "+".
type RelativeDN struct {
	Attributes []*AttributeTypeAndValue
}

// DN is a distinguished name such as "CN=dev1,O=Acme+OU=IoT".
type DN struct {
	RDNs []*RelativeDN
}

type dnParser struct {
	dn   DN
	rdn  RelativeDN
	attr AttributeTypeAndValue
	buf  []byte
	// Length of buf up to the last escaped or non-space byte.
	keep int
}

func (p *dnParser) take() string {
	s := string(p.buf[:p.keep])
	p.buf, p.keep = p.buf[:0], 0
	return s
}

func (p *dnParser) push(endRDN bool) error {
	if p.attr.Type == "" {
		return errors.New("incomplete type, value pair")
	}
	p.attr.Value = p.take()
	a := p.attr
	p.rdn.Attributes = append(p.rdn.Attributes, &a)
	p.attr = AttributeTypeAndValue{}
	if endRDN {
		r := p.rdn
		p.dn.RDNs = append(p.dn.RDNs, &r)
		p.rdn = RelativeDN{}
	}
	return nil
}

// ParseDN parses an RFC 4514 string. BER-encoded (#...) values are not
// supported.
func ParseDN(str string) (*DN, error) {
	p := &dnParser{}
	for i := 0; i < len(str); i++ {
		c := str[i]
		switch {
		case c == '\\':
			if i+1 >= len(str) {
				return nil, errors.New("got corrupted escaped character")
			}
			i++
			if strings.IndexByte(` "#+,;<=>\\`, str[i]) < 0 {
				if i+1 >= len(str) {
					return nil, errors.New("got corrupted escaped character")
				}
				b, err := hex.DecodeString(str[i : i+2])
				if err != nil {
					return nil, errors.Annotatef(err, "failed to decode escaped character")
				}
				p.buf = append(p.buf, b[0])
				i++
			} else {
				p.buf = append(p.buf, str[i])
			}
			p.keep = len(p.buf)
		case c == '=' && p.attr.Type == "":
			p.attr.Type = p.take()
			if i+1 < len(str) && str[i+1] == '#' {
				return nil, errors.New("BER values not supported")
			}
		case c == ',' || c == '+':
			if err := p.push(c == ','); err != nil {
				return nil, err
			}
		case c == ' ' && len(p.buf) == 0:
		default:
			p.buf = append(p.buf, c)
			if c != ' ' {
				p.keep = len(p.buf)
			}
		}
	}
	if len(p.buf) > 0 || p.attr.Type != "" {
		if p.attr.Type == "" {
			return nil, errors.New("DN ended with incomplete type, value pair")
		}
		if err := p.push(true); err != nil {
			return nil, err
		}
	}
	return &p.dn, nil
}

// ToPKIXName resolves attribute types by name or dotted OID.
func (dn *DN) ToPKIXName() (*pkix.Name, error) {
	var ns pkix.RDNSequence
	for _, rdn := range dn.RDNs {
		var s pkix.RelativeDistinguishedNameSET
		for _, a := range rdn.Attributes {
			oid, ok := attributeTypeNames[strings.ToUpper(a.Type)]
			if !ok {
				for _, part := range strings.Split(a.Type, ".") {
					n, err := strconv.Atoi(part)
					if err != nil {
						return nil, errors.Errorf("invalid attribute type %q", a.Type)
					}
					oid = append(oid, n)
				}
			}
			s = append(s, pkix.AttributeTypeAndValue{Type: oid, Value: a.Value})
		}
		ns = append(ns, s)
	}
	var n pkix.Name
	n.FillFromRDNSequence(&ns)
	return &n, nil
}
