package models

import "fmt"

// RawKind tags the shape of a raw terminal response at the language
// boundary. The terminal's query API has no single contract: the same
// call can come back as a (code, payload) tuple, a byte-encoded JSON
// document, a plain string, a decoded mapping, or a bare scalar.
type RawKind int

const (
	RawNil RawKind = iota
	RawTuple
	RawBytes
	RawText
	RawMapping
	RawList
	RawScalar
)

// RawResponse is the tagged-variant wrapper for one physical call result.
// Exactly one of the payload fields is meaningful, selected by Kind.
type RawResponse struct {
	Kind    RawKind
	Items   []interface{}          // RawTuple, RawList
	Bytes   []byte                 // RawBytes
	Text    string                 // RawText
	Mapping map[string]interface{} // RawMapping
	Scalar  interface{}            // RawScalar
}

func NewRawNil() RawResponse  { return RawResponse{Kind: RawNil} }
func NewRawTuple(items ...interface{}) RawResponse {
	return RawResponse{Kind: RawTuple, Items: items}
}
func NewRawBytes(b []byte) RawResponse { return RawResponse{Kind: RawBytes, Bytes: b} }
func NewRawText(s string) RawResponse  { return RawResponse{Kind: RawText, Text: s} }
func NewRawMapping(m map[string]interface{}) RawResponse {
	return RawResponse{Kind: RawMapping, Mapping: m}
}
func NewRawList(items []interface{}) RawResponse {
	return RawResponse{Kind: RawList, Items: items}
}
func NewRawScalar(v interface{}) RawResponse { return RawResponse{Kind: RawScalar, Scalar: v} }

// TypeName reports the variant name for attempt traces and diagnostics.
func (r RawResponse) TypeName() string {
	switch r.Kind {
	case RawNil:
		return "nil"
	case RawTuple:
		return fmt.Sprintf("tuple[%d]", len(r.Items))
	case RawBytes:
		return "bytes"
	case RawText:
		return "text"
	case RawMapping:
		return "mapping"
	case RawList:
		return fmt.Sprintf("list[%d]", len(r.Items))
	case RawScalar:
		return "scalar"
	}
	return "unknown"
}
