package types

import (
	"reflect"
	"testing"
)

func TestRowRoundTrip(t *testing.T) {
	cases := [][]Value{
		{},
		{NewInt(0)},
		{NewInt(-1), NewInt(1)},
		{NewInt(9223372036854775807), NewInt(-9223372036854775808)},
		{NewString("")},
		{NewString("alice"), NewInt(42), NewString("müller")},
	}

	for _, values := range cases {
		got, err := DeserializeRow(SerializeRow(values))
		if err != nil {
			t.Fatalf("DeserializeRow() error = %v", err)
		}
		if len(got) != len(values) {
			t.Fatalf("got %d values, want %d", len(got), len(values))
		}
		for i := range values {
			if got[i] != values[i] {
				t.Errorf("value %d = %+v, want %+v", i, got[i], values[i])
			}
		}
	}
}

func TestDeserializeRowTruncated(t *testing.T) {
	buf := SerializeRow([]Value{NewInt(1), NewString("alice")})

	for cut := 1; cut < len(buf); cut++ {
		if _, err := DeserializeRow(buf[:cut]); err == nil {
			t.Errorf("DeserializeRow() with %d bytes should fail", cut)
		}
	}
}

func TestDeserializeRowBadTag(t *testing.T) {
	buf := SerializeRow([]Value{NewInt(7)})
	buf[4] = 99

	if _, err := DeserializeRow(buf); err == nil {
		t.Fatal("expected error for unknown tag")
	}
}

func TestDeserializeRowBadUTF8(t *testing.T) {
	buf := SerializeRow([]Value{NewString("ab")})
	buf[len(buf)-1] = 0xff

	if _, err := DeserializeRow(buf); err == nil {
		t.Fatal("expected error for invalid UTF-8")
	}
}

func TestValueString(t *testing.T) {
	cases := []struct {
		v    Value
		want string
	}{
		{NewInt(42), "42"},
		{NewInt(-7), "-7"},
		{NewString("bob"), "bob"},
		{NewString(""), ""},
	}
	for _, c := range cases {
		if got := c.v.String(); got != c.want {
			t.Errorf("String() = %q, want %q", got, c.want)
		}
	}
}

func TestRIDEquality(t *testing.T) {
	a := RID{PageNo: 3, Slot: 2}
	b := RID{PageNo: 3, Slot: 2}
	if !reflect.DeepEqual(a, b) {
		t.Error("identical RIDs should compare equal")
	}
	if a.String() != "(3,2)" {
		t.Errorf("String() = %q", a.String())
	}
}
