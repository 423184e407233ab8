package catalog

import (
	"reflect"
	"testing"
	"time"
)

func attr(name, typ string) *Attribute {
	return &Attribute{ID: "a-" + name, Name: name, Type: typ}
}

func TestCoerce_Number(t *testing.T) {
	a := attr("age", TypeNumber)

	v, w := Coerce(a, "34")
	if w != nil {
		t.Fatalf("unexpected warning: %+v", w)
	}
	if v != float64(34) {
		t.Fatalf("expected 34.0, got %v (%T)", v, v)
	}

	v, w = Coerce(a, "3.14")
	if w != nil || v != 3.14 {
		t.Fatalf("expected 3.14, got %v (warning %+v)", v, w)
	}

	v, w = Coerce(a, "not-a-number")
	if v != nil {
		t.Fatalf("expected nil value for malformed number, got %v", v)
	}
	if w == nil || w.Attribute != "age" || w.Raw != "not-a-number" {
		t.Fatalf("expected warning on age/not-a-number, got %+v", w)
	}
}

func TestCoerce_Boolean(t *testing.T) {
	a := attr("active", TypeBoolean)

	for raw, want := range map[string]bool{"true": true, "TRUE": true, "false": false, " False ": false} {
		v, w := Coerce(a, raw)
		if w != nil {
			t.Fatalf("unexpected warning for %q: %+v", raw, w)
		}
		if v != want {
			t.Fatalf("coerce %q: expected %v, got %v", raw, want, v)
		}
	}

	v, w := Coerce(a, "yes")
	if v != nil || w == nil {
		t.Fatalf("expected warning for %q, got value %v warning %+v", "yes", v, w)
	}
}

func TestCoerce_Date(t *testing.T) {
	a := attr("signup_date", TypeDate)

	v, w := Coerce(a, "2024-03-05T10:30:00Z")
	if w != nil {
		t.Fatalf("unexpected warning: %+v", w)
	}
	ts, ok := v.(time.Time)
	if !ok || ts.Year() != 2024 || ts.Month() != time.March {
		t.Fatalf("expected parsed time, got %v (%T)", v, v)
	}

	if v, w = Coerce(a, "2024-03-05"); w != nil || v.(time.Time).Day() != 5 {
		t.Fatalf("date-only form: got %v warning %+v", v, w)
	}

	if v, w = Coerce(a, "tomorrow"); v != nil || w == nil {
		t.Fatalf("expected warning for unparseable date, got %v", v)
	}
}

func TestCoerce_MultiSelect(t *testing.T) {
	a := attr("tags", TypeMultiSelect)

	v, w := Coerce(a, `["red","blue"]`)
	if w != nil {
		t.Fatalf("unexpected warning: %+v", w)
	}
	if !reflect.DeepEqual(v, []string{"red", "blue"}) {
		t.Fatalf("expected [red blue], got %v", v)
	}

	// Scalar rows from before the attribute became MULTI_SELECT wrap.
	v, w = Coerce(a, "red")
	if w != nil || !reflect.DeepEqual(v, []string{"red"}) {
		t.Fatalf("expected [red], got %v (warning %+v)", v, w)
	}

	if v, w = Coerce(a, "[broken"); v != nil || w == nil {
		t.Fatalf("expected warning for malformed array, got %v", v)
	}
}

func TestCoerce_JSON(t *testing.T) {
	a := attr("meta", TypeJSON)

	v, w := Coerce(a, `{"plan":"pro"}`)
	if w != nil {
		t.Fatalf("unexpected warning: %+v", w)
	}
	m, ok := v.(map[string]any)
	if !ok || m["plan"] != "pro" {
		t.Fatalf("expected parsed object, got %v (%T)", v, v)
	}

	if v, w = Coerce(a, "{oops"); v != nil || w == nil {
		t.Fatalf("expected warning for invalid JSON, got %v", v)
	}
}

func TestCoerce_TextPassThrough(t *testing.T) {
	a := attr("name", TypeText)
	v, w := Coerce(a, "Ada")
	if w != nil || v != "Ada" {
		t.Fatalf("expected pass-through, got %v (warning %+v)", v, w)
	}
}

func TestCoerce_NilIsNil(t *testing.T) {
	v, w := Coerce(attr("age", TypeNumber), nil)
	if v != nil || w != nil {
		t.Fatalf("nil must coerce to nil without warning, got %v / %+v", v, w)
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	cases := []struct {
		attr *Attribute
		in   any
		want string
	}{
		{attr("age", TypeNumber), float64(34), "34"},
		{attr("age", TypeNumber), 42, "42"},
		{attr("active", TypeBoolean), true, "true"},
		{attr("name", TypeText), "Ada", "Ada"},
		{attr("tags", TypeMultiSelect), []string{"a", "b"}, `["a","b"]`},
	}
	for _, tc := range cases {
		got, err := Encode(tc.attr, tc.in)
		if err != nil {
			t.Fatalf("encode %v for %s: %v", tc.in, tc.attr.Name, err)
		}
		if got != tc.want {
			t.Fatalf("encode %v for %s: expected %q, got %q", tc.in, tc.attr.Name, tc.want, got)
		}

		// Stored text must coerce back to an equivalent typed value.
		back, w := Coerce(tc.attr, got)
		if w != nil {
			t.Fatalf("re-coerce %q for %s warned: %+v", got, tc.attr.Name, w)
		}
		switch want := tc.in.(type) {
		case int:
			if back != float64(want) {
				t.Fatalf("round trip %v: got %v", tc.in, back)
			}
		case []string:
			if !reflect.DeepEqual(back, want) {
				t.Fatalf("round trip %v: got %v", tc.in, back)
			}
		default:
			if back != tc.in {
				t.Fatalf("round trip %v: got %v", tc.in, back)
			}
		}
	}
}

func TestEncode_Date(t *testing.T) {
	a := attr("signup_date", TypeDate)
	ts := time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC)
	got, err := Encode(a, ts)
	if err != nil {
		t.Fatalf("encode time: %v", err)
	}
	if got != "2024-03-05T10:30:00Z" {
		t.Fatalf("expected RFC3339 form, got %q", got)
	}

	back, w := Coerce(a, got)
	if w != nil || !back.(time.Time).Equal(ts) {
		t.Fatalf("round trip date: got %v (warning %+v)", back, w)
	}
}

func TestEncode_RejectsUnstorable(t *testing.T) {
	if _, err := Encode(attr("age", TypeNumber), struct{}{}); err == nil {
		t.Fatal("expected error for unstorable value")
	}
}
