package fields

import (
	"math"
	"testing"
)

func TestHelperDefaultLengths(t *testing.T) {
	cases := []struct {
		field Field
		kind  Kind
		max   int
	}{
		{ID("id"), KindString, 26},
		{ReferenceID("owner_id"), KindString, 36},
		{Key("key"), KindString, 200},
		{Title("title"), KindString, 400},
		{Description("summary"), KindString, 800},
		{Content("body"), KindText, 4000},
		{LargeContent("body"), KindText, 10000},
		{MaxContent("body"), KindText, 100000},
		{Version("version"), KindString, 50},
		{PromptTemplate("prompt"), KindText, 100000},
		{Password("password"), KindString, 0},
	}
	for _, tc := range cases {
		if tc.field.Kind != tc.kind {
			t.Fatalf("%s: expected kind %s, got %s", tc.field.Name, tc.kind, tc.field.Kind)
		}
		if tc.field.MaxLength != tc.max {
			t.Fatalf("%s: expected max length %d, got %d", tc.field.Name, tc.max, tc.field.MaxLength)
		}
		if errValidate := tc.field.Validate(); errValidate != nil {
			t.Fatalf("%s: unexpected validation error: %v", tc.field.Name, errValidate)
		}
	}
}

func TestUnlimitedContentDropsMaxLength(t *testing.T) {
	f := UnlimitedContent("notes", WithMaxLength(25))
	if f.MaxLength != 0 {
		t.Fatalf("expected unbounded length, got %d", f.MaxLength)
	}
}

func TestIDGeneratesULID(t *testing.T) {
	f := ID("id")
	first, ok := f.Generator().(string)
	if !ok || len(first) != IDLength {
		t.Fatalf("expected %d char ulid, got %v", IDLength, first)
	}
	if second := f.Generator().(string); second == first {
		t.Fatalf("expected distinct ids, got %s twice", first)
	}
}

func TestUIComponentHelpers(t *testing.T) {
	if Password("pw").UI.Component != ComponentPassword {
		t.Fatalf("password field missing ui component")
	}
	f := PromptTemplate("prompt", WithUIWidth(6), WithUIIndex(3))
	if f.UI.Component != ComponentPromptTemplate || f.UI.Width != 6 || f.UI.Index != 3 {
		t.Fatalf("unexpected ui metadata: %+v", f.UI)
	}
}

func TestValidateRejectsBadMetadata(t *testing.T) {
	if err := Title("title", WithUIWidth(7)).Validate(); err == nil {
		t.Fatalf("expected ui_width 7 to be rejected")
	}
	if err := Standard("count", KindInteger, WithMaxLength(10)).Validate(); err == nil {
		t.Fatalf("expected max length on integer to be rejected")
	}
	if err := Standard("blob", Kind("blob")).Validate(); err == nil {
		t.Fatalf("expected unknown kind to be rejected")
	}
}

func TestKindPromotable(t *testing.T) {
	for _, k := range []Kind{KindString, KindText, KindInteger, KindBoolean, KindDateTime} {
		if !k.Promotable() {
			t.Fatalf("expected %s to be promotable", k)
		}
	}
	for _, k := range []Kind{KindNumber, KindArray, KindObject} {
		if k.Promotable() {
			t.Fatalf("expected %s to stay in the blob", k)
		}
	}
}

func TestDisplayTitle(t *testing.T) {
	if got := Key("owner_id").DisplayTitle(); got != "Owner ID" {
		t.Fatalf("expected Owner ID, got %q", got)
	}
	if got := Key("slug", WithTitle("URL slug")).DisplayTitle(); got != "URL slug" {
		t.Fatalf("expected explicit title, got %q", got)
	}
}

func TestCoerceIntegerRange(t *testing.T) {
	if _, err := Coerce(KindInteger, math.Exp2(63)); err == nil {
		t.Fatalf("expected 2^63 to be out of range")
	}
	got, err := Coerce(KindInteger, -math.Exp2(63))
	if err != nil || got != int64(math.MinInt64) {
		t.Fatalf("expected -2^63 to fit, got %v (%v)", got, err)
	}
	if _, err := Coerce(KindInteger, 1.5); err == nil {
		t.Fatalf("expected fractional value to be rejected")
	}
}
