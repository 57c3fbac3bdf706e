// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package snmpengine

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
)

// Asn1BER is the type of an SNMP PDU value
type Asn1BER byte

// Asn1BER's - http://www.ietf.org/rfc/rfc1442.txt
const (
	EndOfContents     Asn1BER = 0x00
	UnknownType       Asn1BER = 0x00
	Boolean           Asn1BER = 0x01
	Integer           Asn1BER = 0x02
	BitString         Asn1BER = 0x03
	OctetString       Asn1BER = 0x04
	Null              Asn1BER = 0x05
	ObjectIdentifier  Asn1BER = 0x06
	ObjectDescription Asn1BER = 0x07
	Sequence          Asn1BER = 0x30
	IPAddress         Asn1BER = 0x40
	Counter32         Asn1BER = 0x41
	Gauge32           Asn1BER = 0x42
	TimeTicks         Asn1BER = 0x43
	Opaque            Asn1BER = 0x44
	NsapAddress       Asn1BER = 0x45
	Counter64         Asn1BER = 0x46
	Uinteger32        Asn1BER = 0x47
	NoSuchObject      Asn1BER = 0x80
	NoSuchInstance    Asn1BER = 0x81
	EndOfMibView      Asn1BER = 0x82
)

// MaxObjectSubIdentifierValue is the largest sub-identifier accepted when
// encoding an OID (RFC 2578 §3.5).
const MaxObjectSubIdentifierValue = math.MaxUint32

// maxLengthOctets bounds long-form length fields. SNMP messages never
// exceed 2^31-1 octets.
const maxLengthOctets = 4

// -- length -------------------------------------------------------------------

// parseLength parses the BER header at the start of data and returns the
// total TLV length (header plus content) and the offset of the content.
//
// Only the definite form is accepted (RFC 3417 §8).
func parseLength(data []byte) (length int, cursor int, err error) {
	if len(data) < 2 {
		return 0, 0, fmt.Errorf("%w: truncated header (%d octets)", ErrParse, len(data))
	}
	if data[1] <= 0x7f {
		return int(data[1]) + 2, 2, nil
	}
	numOctets := int(data[1]) & 0x7f
	if numOctets == 0 {
		return 0, 0, fmt.Errorf("%w: indefinite length not supported", ErrParse)
	}
	if numOctets > maxLengthOctets {
		return 0, 0, fmt.Errorf("%w: length field of %d octets too large", ErrParse, numOctets)
	}
	if len(data) < 2+numOctets {
		return 0, 0, fmt.Errorf("%w: truncated length octets", ErrParse)
	}
	var l uint64
	for i := 0; i < numOctets; i++ {
		l = l<<8 | uint64(data[2+i])
	}
	if l > math.MaxInt32 {
		return 0, 0, fmt.Errorf("%w: length %d overflows", ErrParse, l)
	}
	return int(l) + 2 + numOctets, 2 + numOctets, nil
}

// marshalLength builds a byte representation of length
//
// http://luca.ntop.org/Teaching/Appunti/asn1.html
//
// Length octets. There are two forms: short (for lengths between 0 and 127),
// and long definite (for lengths between 0 and 2^1008 -1).
func marshalLength(length int) ([]byte, error) {
	if length < 0 {
		return nil, fmt.Errorf("length must be greater than zero")
	} else if length < 128 {
		return []byte{byte(length)}, nil
	}

	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(length))
	buf = bytes.TrimLeft(buf, "\x00")

	header := []byte{byte(0x80 | len(buf))}
	return append(header, buf...), nil
}

func marshalTLV(buf *bytes.Buffer, tag byte, value []byte) error {
	l, err := marshalLength(len(value))
	if err != nil {
		return err
	}
	buf.WriteByte(tag)
	buf.Write(l)
	buf.Write(value)
	return nil
}

// -- integers -----------------------------------------------------------------

/*
	snmp Integer32 and INTEGER:
	-2^31 and 2^31-1 inclusive (-2147483648 to 2147483647 decimal)

	versus:

	snmp Counter32, Gauge32, TimeTicks, Unsigned32: (below)
	non-negative integer, maximum value of 2^32-1 (4294967295 decimal)
*/

// marshalInt32 builds a byte representation of a signed 32 bit int in BigEndian form
func marshalInt32(value int) ([]byte, error) {
	if value < math.MinInt32 || value > math.MaxInt32 {
		return nil, fmt.Errorf("unable to marshal %d as Integer32", value)
	}
	rs := make([]byte, 4)
	binary.BigEndian.PutUint32(rs, uint32(int32(value)))
	// strip redundant sign octets
	for len(rs) > 1 {
		if (rs[0] == 0x00 && rs[1]&0x80 == 0) || (rs[0] == 0xff && rs[1]&0x80 != 0) {
			rs = rs[1:]
			continue
		}
		break
	}
	return rs, nil
}

// marshalUint32 encodes Counter32, Gauge32, TimeTicks and Unsigned32 values.
func marshalUint32(v uint32) []byte {
	return marshalUnsigned(uint64(v))
}

func marshalUint64(v uint64) []byte {
	return marshalUnsigned(v)
}

func marshalUnsigned(v uint64) []byte {
	bs := make([]byte, 9)
	binary.BigEndian.PutUint64(bs[1:], v)
	bs = bytes.TrimLeft(bs, "\x00")
	if len(bs) == 0 {
		return []byte{0}
	}
	// keep the value positive
	if bs[0]&0x80 != 0 {
		bs = append([]byte{0}, bs...)
	}
	return bs
}

// parseInt64 treats the given bytes as a big-endian, signed integer and
// returns the result.
func parseInt64(bytes []byte) (ret int64, err error) {
	if len(bytes) == 0 {
		return 0, errors.New("empty integer")
	}
	if len(bytes) > 8 {
		// We'll overflow an int64 in this case.
		return 0, errors.New("integer too large")
	}
	for bytesRead := 0; bytesRead < len(bytes); bytesRead++ {
		ret <<= 8
		ret |= int64(bytes[bytesRead])
	}

	// Shift up and down in order to sign extend the result.
	ret <<= 64 - uint8(len(bytes))*8
	ret >>= 64 - uint8(len(bytes))*8
	return ret, nil
}

// parseInt treats the given bytes as a big-endian, signed 32 bit integer.
func parseInt(bytes []byte) (int, error) {
	ret64, err := parseInt64(bytes)
	if err != nil {
		return 0, err
	}
	if ret64 < math.MinInt32 || ret64 > math.MaxInt32 {
		return 0, errors.New("integer too large")
	}
	return int(ret64), nil
}

// parseUint64 treats the given bytes as a big-endian, unsigned integer and returns
// the result.
func parseUint64(bytes []byte) (ret uint64, err error) {
	if len(bytes) == 0 {
		return 0, errors.New("empty integer")
	}
	if len(bytes) > 9 || (len(bytes) > 8 && bytes[0] != 0x0) {
		// We'll overflow a uint64 in this case.
		return 0, errors.New("integer too large")
	}
	for bytesRead := 0; bytesRead < len(bytes); bytesRead++ {
		ret <<= 8
		ret |= uint64(bytes[bytesRead])
	}
	return ret, nil
}

func parseUint32(bytes []byte) (uint32, error) {
	ret, err := parseUint64(bytes)
	if err != nil {
		return 0, err
	}
	if ret > math.MaxUint32 {
		return 0, errors.New("integer too large")
	}
	return uint32(ret), nil
}

// -- object identifiers -------------------------------------------------------

func marshalBase128Int(out io.ByteWriter, n int64) (err error) {
	if n == 0 {
		return out.WriteByte(0)
	}

	l := 0
	for i := n; i > 0; i >>= 7 {
		l++
	}

	for i := l - 1; i >= 0; i-- {
		o := byte(n >> uint(i*7))
		o &= 0x7f
		if i != 0 {
			o |= 0x80
		}
		if err = out.WriteByte(o); err != nil {
			return err
		}
	}

	return nil
}

func marshalObjectIdentifier(oid string) ([]byte, error) {
	out := new(bytes.Buffer)
	oidLength := len(oid)
	oidBase := 0
	i := 0
	for j := 0; j < oidLength; {
		if oid[j] == '.' {
			j++
			continue
		}
		var val int64
		for j < oidLength && oid[j] != '.' {
			ch := int64(oid[j]) - '0'
			if ch < 0 || ch > 9 {
				return nil, fmt.Errorf("unable to marshal OID %q: invalid object identifier", oid)
			}
			val = val*10 + ch
			if val > MaxObjectSubIdentifierValue {
				return nil, fmt.Errorf("unable to marshal OID %q: value out of range", oid)
			}
			j++
		}
		switch i {
		case 0:
			if val > 2 {
				return nil, fmt.Errorf("unable to marshal OID %q: invalid object identifier", oid)
			}
			oidBase = int(val * 40)
		case 1:
			if val >= 40 {
				return nil, fmt.Errorf("unable to marshal OID %q: invalid object identifier", oid)
			}
			oidBase += int(val)
			out.WriteByte(byte(oidBase))
		default:
			if err := marshalBase128Int(out, val); err != nil {
				return nil, fmt.Errorf("unable to marshal OID %q: %w", oid, err)
			}
		}
		i++
	}
	if i < 2 || i > 128 {
		return nil, fmt.Errorf("unable to marshal OID %q: invalid object identifier", oid)
	}

	return out.Bytes(), nil
}

// parseBase128Int parses a base-128 encoded int from the given offset in the
// given byte slice. It returns the value and the new offset.
func parseBase128Int(bytes []byte, initOffset int) (ret int64, offset int, err error) {
	offset = initOffset
	for shifted := 0; offset < len(bytes); shifted++ {
		if shifted > 4 {
			return 0, offset, errors.New("structural error: base 128 integer too large")
		}
		ret <<= 7
		b := bytes[offset]
		ret |= int64(b & 0x7f)
		offset++
		if b&0x80 == 0 {
			return ret, offset, nil
		}
	}
	return 0, offset, errors.New("syntax error: truncated base 128 integer")
}

// parseObjectIdentifier parses an OBJECT IDENTIFIER from the given bytes and
// returns it in dotted form with a leading dot.
func parseObjectIdentifier(src []byte) (string, error) {
	if len(src) == 0 {
		return "", fmt.Errorf("invalid OID length")
	}
	out := new(bytes.Buffer)

	out.WriteByte('.')
	out.WriteString(strconv.Itoa(int(src[0]) / 40))
	out.WriteByte('.')
	out.WriteString(strconv.Itoa(int(src[0]) % 40))

	for offset := 1; offset < len(src); {
		out.WriteByte('.')
		var v int64
		var err error
		v, offset, err = parseBase128Int(src, offset)
		if err != nil {
			return "", err
		}
		out.WriteString(strconv.FormatInt(v, 10))
	}
	return out.String(), nil
}

// -- decoding cursor ----------------------------------------------------------

// berReader walks a BER encoded buffer. Every read returns the decoded value
// and advances the cursor past the element; on error the cursor is left where
// it was.
type berReader struct {
	data []byte
	pos  int
}

func newBerReader(data []byte) *berReader {
	return &berReader{data: data}
}

func (r *berReader) empty() bool {
	return r.pos >= len(r.data)
}

// offset returns the cursor relative to the start of the reader's buffer.
func (r *berReader) offset() int {
	return r.pos
}

func (r *berReader) peekTag() (byte, error) {
	if r.empty() {
		return 0, fmt.Errorf("%w: unexpected end of data", ErrParse)
	}
	return r.data[r.pos], nil
}

// next reads one TLV and returns its tag and content.
func (r *berReader) next() (tag byte, content []byte, err error) {
	if r.empty() {
		return 0, nil, fmt.Errorf("%w: unexpected end of data", ErrParse)
	}
	length, cursor, err := parseLength(r.data[r.pos:])
	if err != nil {
		return 0, nil, err
	}
	if r.pos+length > len(r.data) {
		return 0, nil, fmt.Errorf("%w: element of %d octets truncated at %d", ErrParse, length, len(r.data)-r.pos)
	}
	tag = r.data[r.pos]
	content = r.data[r.pos+cursor : r.pos+length]
	r.pos += length
	return tag, content, nil
}

func (r *berReader) expect(want byte) ([]byte, error) {
	start := r.pos
	tag, content, err := r.next()
	if err != nil {
		return nil, err
	}
	if tag != want {
		r.pos = start
		return nil, fmt.Errorf("%w: expected tag 0x%02x, got 0x%02x", ErrParse, want, tag)
	}
	return content, nil
}

// sequence enters a constructed element with the given tag.
func (r *berReader) sequence(tag byte) (*berReader, error) {
	content, err := r.expect(tag)
	if err != nil {
		return nil, err
	}
	return newBerReader(content), nil
}

func (r *berReader) readInt() (int, error) {
	content, err := r.expect(byte(Integer))
	if err != nil {
		return 0, err
	}
	v, err := parseInt(content)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return v, nil
}

// readUint32 reads an INTEGER that must lie in 0..2^31-1 or an unsigned
// application type with the given tag.
func (r *berReader) readUint32(tag byte) (uint32, error) {
	content, err := r.expect(tag)
	if err != nil {
		return 0, err
	}
	if tag == byte(Integer) {
		v, err := parseInt64(content)
		if err != nil || v < 0 || v > math.MaxInt32 {
			return 0, fmt.Errorf("%w: integer out of range", ErrParse)
		}
		return uint32(v), nil
	}
	v, err := parseUint32(content)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return v, nil
}

func (r *berReader) readOctetString() ([]byte, error) {
	return r.expect(byte(OctetString))
}

func (r *berReader) readOID() (string, error) {
	content, err := r.expect(byte(ObjectIdentifier))
	if err != nil {
		return "", err
	}
	oid, err := parseObjectIdentifier(content)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrParse, err)
	}
	return oid, nil
}

// -- encoding with named offsets ----------------------------------------------

// berBuilder accumulates BER output. Named marks record offsets of
// placeholder fields; they are carried along when a builder is wrapped in a
// constructed element or appended to a parent, so the final offset of a
// field can be patched after the whole message is assembled.
type berBuilder struct {
	buf   []byte
	marks map[string]int
}

func newBerBuilder() *berBuilder {
	return &berBuilder{}
}

func (b *berBuilder) bytes() []byte {
	return b.buf
}

func (b *berBuilder) len() int {
	return len(b.buf)
}

func (b *berBuilder) setMark(name string, off int) {
	if b.marks == nil {
		b.marks = make(map[string]int)
	}
	b.marks[name] = off
}

// mark returns the recorded offset of a named field.
func (b *berBuilder) mark(name string) (int, bool) {
	off, ok := b.marks[name]
	return off, ok
}

func (b *berBuilder) writeRaw(p []byte) {
	b.buf = append(b.buf, p...)
}

func (b *berBuilder) writeTLV(tag byte, value []byte) error {
	l, err := marshalLength(len(value))
	if err != nil {
		return err
	}
	b.buf = append(b.buf, tag)
	b.buf = append(b.buf, l...)
	b.buf = append(b.buf, value...)
	return nil
}

// writePlaceholder writes a zero-filled element of n octets and records the
// offset of its content under name.
func (b *berBuilder) writePlaceholder(name string, tag byte, n int) error {
	l, err := marshalLength(n)
	if err != nil {
		return err
	}
	b.buf = append(b.buf, tag)
	b.buf = append(b.buf, l...)
	b.setMark(name, len(b.buf))
	b.buf = append(b.buf, make([]byte, n)...)
	return nil
}

func (b *berBuilder) writeInt(v int) error {
	bs, err := marshalInt32(v)
	if err != nil {
		return err
	}
	return b.writeTLV(byte(Integer), bs)
}

func (b *berBuilder) writeUnsigned(tag Asn1BER, v uint32) error {
	return b.writeTLV(byte(tag), marshalUint32(v))
}

func (b *berBuilder) writeOctetString(v []byte) error {
	return b.writeTLV(byte(OctetString), v)
}

func (b *berBuilder) writeOID(oid string) error {
	bs, err := marshalObjectIdentifier(oid)
	if err != nil {
		return err
	}
	return b.writeTLV(byte(ObjectIdentifier), bs)
}

// append copies child onto the end of b, shifting the child's marks.
func (b *berBuilder) append(child *berBuilder) {
	base := len(b.buf)
	b.buf = append(b.buf, child.buf...)
	for name, off := range child.marks {
		b.setMark(name, base+off)
	}
}

// wrap returns a new builder holding tag, length and the content of b.
func (b *berBuilder) wrap(tag byte) (*berBuilder, error) {
	l, err := marshalLength(len(b.buf))
	if err != nil {
		return nil, err
	}
	out := &berBuilder{buf: make([]byte, 0, 1+len(l)+len(b.buf))}
	out.buf = append(out.buf, tag)
	out.buf = append(out.buf, l...)
	out.append(b)
	return out, nil
}

// patch overwrites the content at a named offset.
func (b *berBuilder) patch(name string, p []byte) error {
	off, ok := b.mark(name)
	if !ok {
		return fmt.Errorf("%w: no placeholder named %q", ErrParse, name)
	}
	if off+len(p) > len(b.buf) {
		return fmt.Errorf("%w: placeholder %q overruns message", ErrParse, name)
	}
	copy(b.buf[off:], p)
	return nil
}
