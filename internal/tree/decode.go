package tree

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Parse decodes a complete JSON document.
func Parse(data []byte) (Value, error) {
	dec := newDecoder(bytes.NewReader(data))
	v, err := readValue(dec)
	if err != nil {
		return Value{}, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Value{}, fmt.Errorf("unexpected data after JSON value")
	}
	return v, nil
}

// DecodeEntries streams the members of a top-level JSON object, decoding one
// member value at a time. Only the current entry is held in memory, which
// matters for the multi-hundred-megabyte applicants document.
func DecodeEntries(r io.Reader, fn func(key string, v Value) error) error {
	dec := newDecoder(r)

	if err := expectDelim(dec, '{'); err != nil {
		return err
	}
	for dec.More() {
		key, err := readKey(dec)
		if err != nil {
			return err
		}
		v, err := readValue(dec)
		if err != nil {
			return fmt.Errorf("entry %q: %w", key, err)
		}
		if err := fn(key, v); err != nil {
			return err
		}
	}
	return expectDelim(dec, '}')
}

func newDecoder(r io.Reader) *json.Decoder {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return dec
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("reading %q: %w", want, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

func readKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("expected object key, got %v", tok)
	}
	return key, nil
}

func readValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}

	switch t := tok.(type) {
	case nil:
		return Value{}, nil
	case string:
		return Str(t), nil
	case json.Number:
		return Num(t), nil
	case bool:
		return BoolValue(t), nil
	case json.Delim:
		switch t {
		case '{':
			var members []Member
			for dec.More() {
				key, err := readKey(dec)
				if err != nil {
					return Value{}, err
				}
				v, err := readValue(dec)
				if err != nil {
					return Value{}, err
				}
				members = append(members, Member{Key: key, Value: v})
			}
			if err := expectDelim(dec, '}'); err != nil {
				return Value{}, err
			}
			return Value{kind: Object, members: members}, nil
		case '[':
			elems := []Value{}
			for dec.More() {
				v, err := readValue(dec)
				if err != nil {
					return Value{}, err
				}
				elems = append(elems, v)
			}
			if err := expectDelim(dec, ']'); err != nil {
				return Value{}, err
			}
			return Value{kind: Array, elems: elems}, nil
		}
	}
	return Value{}, fmt.Errorf("unexpected token %v", tok)
}
