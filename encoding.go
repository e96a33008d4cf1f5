package kvdoc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/vmihailenco/msgpack/v5"
)

// Encoding selects the serialization format of stored values.
type Encoding int

const (
	// JSON is the default encoding, readable by other clients of the store.
	JSON Encoding = iota
	// MsgPack is a compact binary encoding for binary-safe stores.
	MsgPack
)

func (enc Encoding) String() string {
	switch enc {
	case JSON:
		return "json"
	case MsgPack:
		return "msgpack"
	default:
		return "Encoding(" + strconv.Itoa(int(enc)) + ")"
	}
}

// ParseEncoding parses "json" or "msgpack".
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(s) {
	case "", "json":
		return JSON, nil
	case "msgpack":
		return MsgPack, nil
	default:
		return 0, fmt.Errorf("unknown encoding %q", s)
	}
}

// Bare primitives are wrapped into this envelope so that the original type
// survives a string-only store.
type singularValue struct {
	IsSingular bool   `json:"isSingular" msgpack:"isSingular"`
	Value      any    `json:"value" msgpack:"value"`
	CastInto   string `json:"castInto" msgpack:"castInto"`
}

const (
	singularMarker   = "isSingular"
	pointerMarkerKey = "isPointer"
)

const (
	castBool  = "bool"
	castInt   = "int"
	castFloat = "float"
	castStr   = "str"
)

// Encode serializes a value into a store-safe string.
func (enc Encoding) Encode(v any) (string, error) {
	v, err := Normalize(v)
	if err != nil {
		return "", err
	}
	if m, ok := v.(map[string]any); ok && (m[singularMarker] == true || m[pointerMarkerKey] == true) {
		return "", fmt.Errorf("records with %s or %s set to true cannot be stored", singularMarker, pointerMarkerKey)
	}
	if t, ok := ResolveType(v); ok {
		v = singularValue{IsSingular: true, Value: v, CastInto: t.String()}
	}
	raw, err := enc.marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (enc Encoding) marshal(v any) ([]byte, error) {
	switch enc {
	case JSON:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %T to JSON: %w", v, err)
		}
		return raw, nil
	case MsgPack:
		var buf bytes.Buffer
		e := msgpack.GetEncoder()
		e.Reset(&buf)
		e.SetSortMapKeys(true)
		err := e.Encode(v)
		msgpack.PutEncoder(e)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %T using MsgPack: %w", v, err)
		}
		return buf.Bytes(), nil
	default:
		panic("unsupported encoding")
	}
}

// Decode parses a string produced by Encode. Malformed input is reported as
// *DeserializeError.
func (enc Encoding) Decode(s string) (any, error) {
	if s == "" {
		return nil, &DeserializeError{Data: s, Err: errEmptyPayload}
	}
	var v any
	var err error
	switch enc {
	case JSON:
		v, err = decodeJSON([]byte(s))
	case MsgPack:
		v, err = decodeMsgPack([]byte(s))
	default:
		panic("unsupported encoding")
	}
	if err != nil {
		return nil, &DeserializeError{Data: s, Err: err}
	}
	return v, nil
}

func decodeJSON(data []byte) (any, error) {
	if singular, err := jsonparser.GetBoolean(data, singularMarker); err == nil && singular {
		cast, err := jsonparser.GetString(data, "castInto")
		if err != nil {
			return nil, fmt.Errorf("castInto: %w", err)
		}
		raw, typ, _, err := jsonparser.Get(data, "value")
		if err != nil {
			return nil, fmt.Errorf("value: %w", err)
		}
		return castJSON(raw, typ, cast)
	}
	return decodeJSONValue(data)
}

func castJSON(raw []byte, typ jsonparser.ValueType, cast string) (any, error) {
	text := string(raw)
	if typ == jsonparser.String {
		s, err := jsonparser.ParseString(raw)
		if err != nil {
			return nil, err
		}
		text = s
	}
	switch cast {
	case castStr:
		return text, nil
	case castInt:
		return parseInt(text)
	case castFloat:
		return strconv.ParseFloat(strings.TrimSpace(text), 64)
	case castBool:
		switch typ {
		case jsonparser.Boolean:
			return jsonparser.ParseBoolean(raw)
		case jsonparser.String:
			return text != "", nil
		case jsonparser.Number:
			f, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, err
			}
			return f != 0 && !math.IsNaN(f), nil
		case jsonparser.Null:
			return false, nil
		default:
			return true, nil
		}
	default:
		return nil, fmt.Errorf("unknown castInto %q", cast)
	}
}

func parseInt(text string) (int64, error) {
	text = strings.TrimSpace(text)
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) >= 1<<63 {
		return 0, fmt.Errorf("%s is out of integer range", text)
	}
	return int64(math.Trunc(f)), nil
}

func decodeMsgPack(data []byte) (any, error) {
	var raw any
	if err := msgpack.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	v, err := Normalize(raw)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok || m[singularMarker] != true {
		return v, nil
	}
	cast, _ := m["castInto"].(string)
	return castValue(m["value"], cast)
}

func castValue(v any, cast string) (any, error) {
	switch cast {
	case castStr:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return keyComponent(v), nil
	case castInt:
		switch v := v.(type) {
		case int64:
			return v, nil
		case float64:
			return parseInt(strconv.FormatFloat(v, 'f', -1, 64))
		case string:
			return parseInt(v)
		}
		return nil, fmt.Errorf("cannot cast %T into int", v)
	case castFloat:
		switch v := v.(type) {
		case int64:
			return float64(v), nil
		case float64:
			return v, nil
		case string:
			return strconv.ParseFloat(strings.TrimSpace(v), 64)
		}
		return nil, fmt.Errorf("cannot cast %T into float", v)
	case castBool:
		return truthy(v), nil
	default:
		return nil, fmt.Errorf("unknown castInto %q", cast)
	}
}

func truthy(v any) bool {
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case int64:
		return v != 0
	case float64:
		return v != 0 && !math.IsNaN(v)
	default:
		return true
	}
}

var errEmptyPayload = errors.New("empty payload")
