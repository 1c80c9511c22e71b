package radio

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// Codec turns published values into payload bytes and back into numbers.
type Codec interface {
	Name() string
	Encode(v any) ([]byte, error)
	// DecodeNumber decodes a scalar numeric payload.
	DecodeNumber(b []byte) (float64, error)
}

var (
	JSON Codec = jsonCodec{}
	CBOR Codec = newCBORCodec()
)

// CodecByName resolves the codec configured for a radio link.
func CodecByName(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return JSON, nil
	case "cbor":
		return CBOR, nil
	}
	return nil, fmt.Errorf("unknown codec %q", name)
}

type jsonCodec struct{}

func (jsonCodec) Name() string                 { return "json" }
func (jsonCodec) Encode(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) DecodeNumber(b []byte) (float64, error) {
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return 0, fmt.Errorf("json payload %q is not a number: %w", b, err)
	}
	return f, nil
}

type cborCodec struct {
	em cbor.EncMode
}

func newCBORCodec() cborCodec {
	// Core deterministic encoding shrinks floats to the shortest exact width,
	// which keeps radio frames small.
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("radio: cbor enc mode: %v", err))
	}
	return cborCodec{em: em}
}

func (cborCodec) Name() string { return "cbor" }

func (c cborCodec) Encode(v any) ([]byte, error) { return c.em.Marshal(v) }

func (cborCodec) DecodeNumber(b []byte) (float64, error) {
	var v any
	if err := cbor.Unmarshal(b, &v); err != nil {
		return 0, fmt.Errorf("cbor payload: %w", err)
	}
	switch x := v.(type) {
	case uint64:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	}
	return 0, fmt.Errorf("cbor payload is %T, not a number", v)
}
