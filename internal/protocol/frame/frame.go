package frame

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"unicode/utf8"
)

const (
	// MinScalarLen is the smallest delivery that carries a full u32.
	MinScalarLen = 4
	// MaxScalarLen is the largest delivery still decoded as a scalar; anything
	// longer is treated as a JSON anchor report.
	MaxScalarLen = 16

	anchorsKey = "anchors"
	anchorKey  = "A1"
)

var (
	ErrMalformedPayload = errors.New("frame: malformed payload")
	ErrMissingAnchor    = errors.New("frame: missing anchors.A1")
)

// Kind tags the variant carried by an Inbound.
type Kind uint8

const (
	KindIncomplete Kind = iota
	KindScalar
	KindAnchorReport
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindIncomplete:
		return "incomplete"
	case KindScalar:
		return "scalar"
	case KindAnchorReport:
		return "anchor_report"
	case KindMalformed:
		return "malformed"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Scalar is the decoded head of a 4..16 byte delivery.
type Scalar struct {
	Value  uint32
	Hex    string
	Binary string
}

// Inbound is one classified delivery. Only the fields matching Kind are set.
type Inbound struct {
	Kind Kind
	Size int
	// Raw is a private copy of the delivery for Incomplete and Malformed frames.
	Raw []byte

	Scalar Scalar

	// A1 is the raw JSON value of anchors.A1.
	A1 json.RawMessage
	// Anchors holds every key under "anchors"; Document holds the top level.
	Anchors  map[string]json.RawMessage
	Document map[string]json.RawMessage

	Err error
}

// Classify decodes one transport delivery. It keeps no state between calls:
// a frame split across two deliveries is classified as two frames.
func Classify(chunk []byte) Inbound {
	n := len(chunk)
	switch {
	case n < MinScalarLen:
		return Inbound{Kind: KindIncomplete, Size: n, Raw: bytes.Clone(chunk)}
	case n > MaxScalarLen:
		return classifyReport(chunk)
	default:
		return Inbound{Kind: KindScalar, Size: n, Scalar: DecodeScalar(chunk)}
	}
}

// DecodeScalar reads the first four bytes as a little-endian u32. Bytes past
// the fourth are ignored. The caller guarantees len(chunk) >= MinScalarLen.
func DecodeScalar(chunk []byte) Scalar {
	v := binary.LittleEndian.Uint32(chunk[:MinScalarLen])
	return NewScalar(v)
}

// NewScalar renders v in the hex and binary forms devices log.
func NewScalar(v uint32) Scalar {
	return Scalar{
		Value:  v,
		Hex:    fmt.Sprintf("%08X", v),
		Binary: fmt.Sprintf("%032b", v),
	}
}

func classifyReport(chunk []byte) Inbound {
	text := chunk
	if !utf8.Valid(text) {
		text = bytes.ToValidUTF8(text, []byte(string(utf8.RuneError)))
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(text, &doc); err != nil {
		return malformed(chunk, fmt.Errorf("%w: %v", ErrMalformedPayload, err))
	}
	rawAnchors, ok := doc[anchorsKey]
	if !ok {
		return malformed(chunk, fmt.Errorf("%w: no %q object", ErrMissingAnchor, anchorsKey))
	}
	var anchors map[string]json.RawMessage
	if err := json.Unmarshal(rawAnchors, &anchors); err != nil || anchors == nil {
		return malformed(chunk, fmt.Errorf("%w: %q is not an object", ErrMissingAnchor, anchorsKey))
	}
	a1, ok := anchors[anchorKey]
	if !ok {
		return malformed(chunk, ErrMissingAnchor)
	}
	return Inbound{
		Kind:     KindAnchorReport,
		Size:     len(chunk),
		A1:       a1,
		Anchors:  anchors,
		Document: doc,
	}
}

func malformed(chunk []byte, err error) Inbound {
	return Inbound{
		Kind: KindMalformed,
		Size: len(chunk),
		Raw:  bytes.Clone(chunk),
		Err:  err,
	}
}

// A1Float returns anchors.A1 as a number when it is one.
func (in Inbound) A1Float() (float64, bool) {
	if in.Kind != KindAnchorReport {
		return 0, false
	}
	var v float64
	if err := json.Unmarshal(in.A1, &v); err != nil {
		return 0, false
	}
	return v, true
}
