package changefeed

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Tag names one member of the AttributeValue union.
type Tag string

const (
	TagS    Tag = "S"
	TagSS   Tag = "SS"
	TagBOOL Tag = "BOOL"
	TagBS   Tag = "BS"
	TagL    Tag = "L"
	TagM    Tag = "M"
	TagN    Tag = "N"
	TagNS   Tag = "NS"
	TagNULL Tag = "NULL"
	TagB    Tag = "B"
)

// UnwrapOrder is the tie-break order used by Unwrap when more than one tag is
// populated. B is deliberately absent: a lone binary cell unwraps to "".
var UnwrapOrder = [...]Tag{TagS, TagSS, TagBOOL, TagBS, TagL, TagM, TagN, TagNS, TagNULL}

// AttributeValue is one tagged cell of a change-feed image. A nil field means
// the tag is absent; an empty but non-nil slice or map is present.
type AttributeValue struct {
	S    *string                   `json:"S,omitempty"`
	SS   []string                  `json:"SS,omitempty"`
	BOOL *bool                     `json:"BOOL,omitempty"`
	BS   [][]byte                  `json:"BS,omitempty"`
	L    []AttributeValue          `json:"L,omitempty"`
	M    map[string]AttributeValue `json:"M,omitempty"`
	N    *string                   `json:"N,omitempty"`
	NS   []string                  `json:"NS,omitempty"`
	NULL *bool                     `json:"NULL,omitempty"`
	B    []byte                    `json:"B,omitempty"`
}

// Lookup returns the value held under tag t and whether the tag is populated.
func (a AttributeValue) Lookup(t Tag) (any, bool) {
	switch t {
	case TagS:
		if a.S != nil {
			return *a.S, true
		}
	case TagSS:
		if a.SS != nil {
			return a.SS, true
		}
	case TagBOOL:
		if a.BOOL != nil {
			return *a.BOOL, true
		}
	case TagBS:
		if a.BS != nil {
			return a.BS, true
		}
	case TagL:
		if a.L != nil {
			return a.L, true
		}
	case TagM:
		if a.M != nil {
			return a.M, true
		}
	case TagN:
		if a.N != nil {
			return *a.N, true
		}
	case TagNS:
		if a.NS != nil {
			return a.NS, true
		}
	case TagNULL:
		if a.NULL != nil {
			return *a.NULL, true
		}
	case TagB:
		if a.B != nil {
			return a.B, true
		}
	}
	return nil, false
}

// Tags lists the populated tags in UnwrapOrder, followed by B if set.
func (a AttributeValue) Tags() []Tag {
	var tags []Tag
	for _, t := range UnwrapOrder {
		if _, ok := a.Lookup(t); ok {
			tags = append(tags, t)
		}
	}
	if a.B != nil {
		tags = append(tags, TagB)
	}
	return tags
}

// MarshalJSON writes only the populated tags, so an empty list or set keeps
// its presence across a round trip.
func (a AttributeValue) MarshalJSON() ([]byte, error) {
	out := make(map[Tag]any, 1)
	for _, t := range a.Tags() {
		v, _ := a.Lookup(t)
		out[t] = v
	}
	return json.Marshal(out)
}

// Unwrap returns the value of the first populated tag in UnwrapOrder, or ""
// when none is. Nested L and M members keep their tagged form.
func (a AttributeValue) Unwrap() any {
	for _, t := range UnwrapOrder {
		if v, ok := a.Lookup(t); ok {
			return v
		}
	}
	return ""
}

func String(s string) AttributeValue { return AttributeValue{S: &s} }

func Number(n string) AttributeValue { return AttributeValue{N: &n} }

func Bool(b bool) AttributeValue { return AttributeValue{BOOL: &b} }

func Null() AttributeValue {
	t := true
	return AttributeValue{NULL: &t}
}

func List(items ...AttributeValue) AttributeValue {
	if items == nil {
		items = []AttributeValue{}
	}
	return AttributeValue{L: items}
}

func Map(m map[string]AttributeValue) AttributeValue {
	if m == nil {
		m = map[string]AttributeValue{}
	}
	return AttributeValue{M: m}
}

func StringSet(ss ...string) AttributeValue { return AttributeValue{SS: append([]string{}, ss...)} }

func NumberSet(ns ...string) AttributeValue { return AttributeValue{NS: append([]string{}, ns...)} }

func BinarySet(bs ...[]byte) AttributeValue { return AttributeValue{BS: append([][]byte{}, bs...)} }

// Encode converts a decoded JSON-ish Go value into its tagged form.
func Encode(v any) (AttributeValue, error) {
	switch val := v.(type) {
	case nil:
		return Null(), nil
	case AttributeValue:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case json.Number:
		return Number(val.String()), nil
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return AttributeValue{}, fmt.Errorf("changefeed: cannot encode %v", val)
		}
		return Number(strconv.FormatFloat(val, 'f', -1, 64)), nil
	case float32:
		return Encode(float64(val))
	case int:
		return Number(strconv.Itoa(val)), nil
	case int64:
		return Number(strconv.FormatInt(val, 10)), nil
	case int32:
		return Number(strconv.FormatInt(int64(val), 10)), nil
	case uint64:
		return Number(strconv.FormatUint(val, 10)), nil
	case []byte:
		return AttributeValue{B: val}, nil
	case []string:
		return StringSet(val...), nil
	case []any:
		items := make([]AttributeValue, 0, len(val))
		for i, item := range val {
			enc, err := Encode(item)
			if err != nil {
				return AttributeValue{}, fmt.Errorf("index %d: %w", i, err)
			}
			items = append(items, enc)
		}
		return List(items...), nil
	case map[string]any:
		m, err := EncodeItem(val)
		if err != nil {
			return AttributeValue{}, err
		}
		return Map(m), nil
	default:
		return AttributeValue{}, fmt.Errorf("changefeed: unsupported value type %T", v)
	}
}

// EncodeItem encodes every attribute of a flat item into an Image.
func EncodeItem(item map[string]any) (Image, error) {
	img := make(Image, len(item))
	keys := make([]string, 0, len(item))
	for k := range item {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		enc, err := Encode(item[k])
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		img[k] = enc
	}
	return img, nil
}
