package codec

import (
	"encoding/json"
	"math"
	"testing"
)

func TestValueKinds(t *testing.T) {
	cases := []struct {
		name string
		v    Value
		kind Kind
	}{
		{"undefined", Undefined(), KindUndefined},
		{"null", Null(), KindNull},
		{"bool", Bool(true), KindBool},
		{"number", Num(3.5), KindNumber},
		{"string", Str("hi"), KindString},
		{"sequence", Seq(Num(1), Num(2)), KindSequence},
		{"mapping", Map(map[string]Value{"k": Str("v")}), KindMapping},
	}
	for _, tc := range cases {
		if got := tc.v.Kind(); got != tc.kind {
			t.Errorf("%s: kind = %v, want %v", tc.name, got, tc.kind)
		}
	}
}

func TestValueAccessors(t *testing.T) {
	if b, ok := Bool(true).Bool(); !ok || !b {
		t.Error("Bool accessor failed on bool value")
	}
	if _, ok := Str("x").Bool(); ok {
		t.Error("Bool accessor should fail on string value")
	}
	if n, ok := Num(2.5).Num(); !ok || n != 2.5 {
		t.Error("Num accessor failed")
	}
	if s, ok := Str("hello").Str(); !ok || s != "hello" {
		t.Error("Str accessor failed")
	}
	seq, ok := Seq(Num(1), Str("two")).Seq()
	if !ok || len(seq) != 2 {
		t.Fatal("Seq accessor failed")
	}
	m, ok := Map(map[string]Value{"a": Num(1)}).Map()
	if !ok || len(m) != 1 {
		t.Fatal("Map accessor failed")
	}
}

func TestValueEqual(t *testing.T) {
	a := Map(map[string]Value{
		"list": Seq(Num(1), Str("x"), Null()),
		"flag": Bool(false),
	})
	b := Map(map[string]Value{
		"flag": Bool(false),
		"list": Seq(Num(1), Str("x"), Null()),
	})
	if !a.Equal(b) {
		t.Error("structurally identical values should be equal")
	}

	c := Map(map[string]Value{
		"list": Seq(Num(1), Str("x"), Null()),
		"flag": Bool(true),
	})
	if a.Equal(c) {
		t.Error("values differing in a nested leaf should not be equal")
	}
}

func TestValueEqualNaN(t *testing.T) {
	// Structural equality treats NaN as equal to itself, unlike IEEE 754.
	if !Num(math.NaN()).Equal(Num(math.NaN())) {
		t.Error("NaN should equal NaN structurally")
	}
}

func TestValueEqualDistinctKinds(t *testing.T) {
	if Undefined().Equal(Null()) {
		t.Error("undefined and null are distinct")
	}
	if Num(0).Equal(Bool(false)) {
		t.Error("number and bool are distinct even when JS would coerce")
	}
	if Str("1").Equal(Num(1)) {
		t.Error("string and number are distinct")
	}
}

func TestValueMarshalJSON(t *testing.T) {
	v := Map(map[string]Value{
		"b":    Num(2),
		"a":    Str("one"),
		"gone": Undefined(),
	})
	out, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	// Keys come out sorted; undefined serializes as null.
	want := `{"a":"one","b":2,"gone":null}`
	if string(out) != want {
		t.Errorf("marshal = %s, want %s", out, want)
	}
}

func TestValueInterface(t *testing.T) {
	v := Seq(Num(1), Bool(true), Null())
	tree, ok := v.Interface().([]any)
	if !ok {
		t.Fatalf("Interface() = %T, want []any", v.Interface())
	}
	if len(tree) != 3 || tree[0] != float64(1) || tree[1] != true || tree[2] != nil {
		t.Errorf("unexpected tree: %#v", tree)
	}
}
