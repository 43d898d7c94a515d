// Package fingerprint derives stable cache identities from filter values.
package fingerprint

import (
	"crypto/sha256"
	"encoding"
	"encoding/hex"
	"fmt"
	"math/big"
	"reflect"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Fingerprinter lets a filter supply its own identity.
// Equal filters must return equal strings.
type Fingerprinter interface {
	Fingerprint() string
}

var encMode cbor.EncMode

func init() {
	// Core deterministic encoding sorts map keys, so two maps with the same
	// contents encode identically regardless of insertion order.
	eo := cbor.CoreDetEncOptions()
	eo.Time = cbor.TimeRFC3339Nano
	em, err := eo.EncMode()
	if err != nil {
		panic(fmt.Sprintf("fingerprint: cbor enc mode: %v", err))
	}
	encMode = em
}

// Of returns the fingerprint of v: the first 16 bytes of SHA-256 over its
// canonical CBOR encoding, hex encoded.
//
// Struct filters must keep their fields exported. The encoder never sees
// unexported fields, so two filters differing only there would share a
// cache entry; Of rejects such types instead. Tag a field `cbor:"-"` to
// leave it out on purpose, or implement Fingerprinter.
func Of(v any) (string, error) {
	if fp, ok := v.(Fingerprinter); ok {
		return fp.Fingerprint(), nil
	}
	if err := checkType(reflect.TypeOf(v)); err != nil {
		return "", err
	}
	b, err := encMode.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("fingerprint: canonicalize filter: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:16]), nil
}

// checked caches the verdict per type: an error, or okType when clean.
var checked sync.Map

type okType struct{}

var (
	cborMarshaler   = reflect.TypeOf((*cbor.Marshaler)(nil)).Elem()
	binaryMarshaler = reflect.TypeOf((*encoding.BinaryMarshaler)(nil)).Elem()
	timeType        = reflect.TypeOf(time.Time{})
	bigIntType      = reflect.TypeOf(big.Int{})
)

func checkType(t reflect.Type) error {
	if t == nil {
		return nil
	}
	if v, ok := checked.Load(t); ok {
		if err, isErr := v.(error); isErr {
			return err
		}
		return nil
	}
	err := walk(t, t.String(), map[reflect.Type]bool{})
	if err != nil {
		checked.Store(t, err)
	} else {
		checked.Store(t, okType{})
	}
	return err
}

func walk(t reflect.Type, path string, seen map[reflect.Type]bool) error {
	if seen[t] || opaque(t) {
		return nil
	}
	seen[t] = true
	switch t.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Array:
		return walk(t.Elem(), path, seen)
	case reflect.Map:
		if err := walk(t.Key(), path, seen); err != nil {
			return err
		}
		return walk(t.Elem(), path, seen)
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if f.Tag.Get("cbor") == "-" {
				continue
			}
			name := path + "." + f.Name
			if f.Anonymous {
				ft := f.Type
				if ft.Kind() == reflect.Pointer {
					ft = ft.Elem()
				}
				// Embedded structs have their exported fields promoted.
				if ft.Kind() == reflect.Struct {
					if err := walk(ft, name, seen); err != nil {
						return err
					}
					continue
				}
			}
			if !f.IsExported() {
				return fmt.Errorf("fingerprint: unexported field %s would be ignored; export it, tag it `cbor:\"-\"` or implement Fingerprinter", name)
			}
			if err := walk(f.Type, name, seen); err != nil {
				return err
			}
		}
	}
	return nil
}

// opaque reports types that encode themselves rather than field by field.
func opaque(t reflect.Type) bool {
	if t == timeType || t == bigIntType {
		return true
	}
	for _, m := range []reflect.Type{cborMarshaler, binaryMarshaler} {
		if t.Implements(m) || reflect.PointerTo(t).Implements(m) {
			return true
		}
	}
	return false
}
