package codec

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type quote struct {
	Symbol string            `json:"symbol"`
	Bid    float64           `json:"bid"`
	Sizes  []int64           `json:"sizes"`
	Tags   map[string]string `json:"tags"`
	At     time.Time         `json:"at"`
}

func sample() quote {
	return quote{
		Symbol: "BTC-USD",
		Bid:    64250.5,
		Sizes:  []int64{1, 5, 10},
		Tags:   map[string]string{"venue": "x", "tier": "1"},
		At:     time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestByName(t *testing.T) {
	for _, name := range []string{"", "json", " CBOR ", "msgpack"} {
		c, err := ByName[quote](name)
		if err != nil {
			t.Fatalf("ByName(%q): %v", name, err)
		}
		b, err := c.Encode(sample())
		if err != nil {
			t.Fatalf("%q encode: %v", name, err)
		}
		got, err := c.Decode(b)
		if err != nil {
			t.Fatalf("%q decode: %v", name, err)
		}
		if diff := cmp.Diff(sample(), got); diff != "" {
			t.Fatalf("%q round trip (-want +got):\n%s", name, diff)
		}
	}
	if _, err := ByName[quote]("gob"); err == nil {
		t.Fatalf("unknown codec accepted")
	}
}

func TestCBORDeterministic(t *testing.T) {
	c := MustCBOR[map[string]int](true)
	m := map[string]int{"d": 4, "a": 1, "c": 3, "b": 2}
	first, err := c.Encode(m)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		b, _ := c.Encode(m)
		if !bytes.Equal(b, first) {
			t.Fatalf("encoding varied between runs")
		}
	}
}

func TestDecodeGarbage(t *testing.T) {
	garbage := []byte{0xff, 0x00, 0x13}
	if _, err := (JSON[quote]{}).Decode(garbage); err == nil {
		t.Fatalf("json accepted garbage")
	}
	if _, err := MustCBOR[quote](false).Decode(garbage); err == nil {
		t.Fatalf("cbor accepted garbage")
	}
	if _, err := (Msgpack[quote]{}).Decode(garbage); err == nil {
		t.Fatalf("msgpack accepted garbage")
	}
}

func TestJSONRejectsTrailingData(t *testing.T) {
	if _, err := (JSON[map[string]int]{}).Decode([]byte(`{"a":1} {"b":2}`)); err == nil {
		t.Fatalf("accepted two values")
	}
	if v, err := (JSON[map[string]int]{}).Decode([]byte("{\"a\":1}\n ")); err != nil || v["a"] != 1 {
		t.Fatalf("trailing whitespace = %v,%v", v, err)
	}
}

func TestMsgpackUsesJSONTags(t *testing.T) {
	b, err := (Msgpack[quote]{}).Encode(sample())
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]any
	if err := msgpack.Unmarshal(b, &raw); err != nil {
		t.Fatal(err)
	}
	if raw["symbol"] != "BTC-USD" {
		t.Fatalf("fields = %v", raw)
	}
}

func TestLimit(t *testing.T) {
	c := Limit[string]{Inner: String{}, MaxDecode: 4}
	if v, err := c.Decode([]byte("abcd")); err != nil || v != "abcd" {
		t.Fatalf("at limit = %q,%v", v, err)
	}
	_, err := c.Decode([]byte("abcde"))
	var tl ErrTooLarge
	if !errors.As(err, &tl) || tl.Size != 5 || tl.Max != 4 {
		t.Fatalf("over limit err = %v", err)
	}

	off := Limit[string]{Inner: String{}}
	if _, err := off.Decode(bytes.Repeat([]byte("x"), 1<<16)); err != nil {
		t.Fatalf("disabled limit: %v", err)
	}
}

func TestBytesDecodeCopies(t *testing.T) {
	src := []byte("frame")
	out, _ := Bytes{}.Decode(src)
	src[0] = 'X'
	if string(out) != "frame" {
		t.Fatalf("decode aliased input: %q", out)
	}
}

func TestProtobuf(t *testing.T) {
	c := NewProtobuf(func() *wrapperspb.StringValue { return &wrapperspb.StringValue{} })
	b, err := c.Encode(wrapperspb.String("ETH-USD"))
	if err != nil {
		t.Fatal(err)
	}
	got, err := c.Decode(b)
	if err != nil {
		t.Fatal(err)
	}
	if !proto.Equal(got, wrapperspb.String("ETH-USD")) {
		t.Fatalf("got %v", got)
	}
	if _, err := c.Decode([]byte{0xff, 0xff}); err == nil {
		t.Fatalf("accepted invalid wire data")
	}
}
