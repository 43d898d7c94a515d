package tradesync

import "testing"

type captureLogger struct {
	NopLogger
	last Fields
}

func (c *captureLogger) Warn(_ string, f Fields) { c.last = f }

func TestWithFields(t *testing.T) {
	c := &captureLogger{}
	l := WithFields(WithFields(c, Fields{"ns": "orders"}), Fields{"component": "repository"})
	l.Warn("x", Fields{"key": "entry:orders:1", "ns": "override"})

	want := Fields{"ns": "override", "component": "repository", "key": "entry:orders:1"}
	if len(c.last) != len(want) {
		t.Fatalf("fields = %v", c.last)
	}
	for k, v := range want {
		if c.last[k] != v {
			t.Fatalf("%s = %v, want %v", k, c.last[k], v)
		}
	}

	if _, ok := WithFields(NopLogger{}, Fields{"a": 1}).(NopLogger); !ok {
		t.Fatalf("nop logger was wrapped")
	}
	if WithFields(c, nil) != Logger(c) {
		t.Fatalf("empty base should return the logger unchanged")
	}
}
