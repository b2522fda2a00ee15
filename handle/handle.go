package handle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/c360/flowdiff/errors"
)

// Sentinel stands in for every double quote in an encoded handle
const Sentinel = "œ"

// Source is the payload of a sourceHandle
type Source struct {
	DataType    string   `json:"dataType"`
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	OutputTypes []string `json:"output_types"`
}

// Target is the payload of a targetHandle
type Target struct {
	FieldName  string   `json:"fieldName"`
	ID         string   `json:"id"`
	InputTypes []string `json:"inputTypes"`
	Type       string   `json:"type"`
}

// Encode returns the canonical handle form of v: JSON with object keys in
// lexical order at every depth, HTML characters unescaped, and every double
// quote replaced by Sentinel.
func Encode(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", errors.WrapInvalid(err, "handle", "Encode", "marshal payload")
	}

	// Round-trip through a generic value so struct field order is replaced
	// by sorted map key order.
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", errors.WrapInvalid(err, "handle", "Encode", "canonicalize payload")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return "", errors.WrapInvalid(err, "handle", "Encode", "marshal canonical payload")
	}

	return strings.ReplaceAll(strings.TrimSuffix(buf.String(), "\n"), `"`, Sentinel), nil
}

// Decode reverses Encode into v. Input that still carries raw quotes is accepted.
func Decode(s string, v any) error {
	if s == "" {
		return errors.WrapInvalid(fmt.Errorf("empty handle"), "handle", "Decode", "handle validation")
	}
	if err := json.Unmarshal([]byte(strings.ReplaceAll(s, Sentinel, `"`)), v); err != nil {
		return errors.WrapInvalid(err, "handle", "Decode", "unmarshal payload")
	}
	return nil
}

// Canonical re-encodes s in the form Encode produces, so a handle sent with
// raw quotes or different key order compares equal to the stored one.
func Canonical(s string) (string, error) {
	var generic any
	if err := Decode(s, &generic); err != nil {
		return "", err
	}
	return Encode(generic)
}

// Equal reports whether two handles carry the same payload. Handles that do
// not decode are compared as written.
func Equal(a, b string) bool {
	if a == b {
		return true
	}
	ca, errA := Canonical(a)
	cb, errB := Canonical(b)
	if errA != nil || errB != nil {
		return false
	}
	return ca == cb
}

// Encode returns the canonical sourceHandle string
func (s Source) Encode() string {
	if s.OutputTypes == nil {
		s.OutputTypes = []string{}
	}
	// A struct of strings and string slices always marshals.
	out, _ := Encode(s)
	return out
}

// Encode returns the canonical targetHandle string
func (t Target) Encode() string {
	if t.InputTypes == nil {
		t.InputTypes = []string{}
	}
	out, _ := Encode(t)
	return out
}

// DecodeSource decodes a sourceHandle
func DecodeSource(s string) (Source, error) {
	var src Source
	err := Decode(s, &src)
	return src, err
}

// DecodeTarget decodes a targetHandle
func DecodeTarget(s string) (Target, error) {
	var tgt Target
	err := Decode(s, &tgt)
	return tgt, err
}

// EdgeID returns the deterministic id given to edges created without one
func EdgeID(source, sourceHandle, target, targetHandle string) string {
	return "edge__" + source + sourceHandle + "-" + target + targetHandle
}
