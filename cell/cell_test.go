package cell

import "testing"

func TestQuoteUnquoteRoundTrip(t *testing.T) {
	cases := []Ref{0, 1, 42, 1000000}
	for _, r := range cases {
		q := Quote(r)
		if r != 0 && !IsQuoted(q) {
			t.Errorf("Quote(%d) = %d, want quoted", r, q)
		}
		if got := Unquote(q); got != r {
			t.Errorf("Unquote(Quote(%d)) = %d, want %d", r, got, r)
		}
	}
}

func TestQuoteNilIsIdentity(t *testing.T) {
	if Quote(NIL) != NIL {
		t.Errorf("Quote(NIL) = %d, want NIL", Quote(NIL))
	}
	if IsQuoted(NIL) {
		t.Error("NIL must never read as quoted")
	}
}

func TestTagName(t *testing.T) {
	want := map[Tag]string{
		Cons: "CONS", Lambda: "LAMBDA", Symbol: "SYMBOL",
		NativeFn: "NATIVEFN", Int: "INT", Float: "FLOAT", Text: "TEXT",
	}
	for tag, name := range want {
		if got := TagName(tag); got != name {
			t.Errorf("TagName(%v) = %q, want %q", tag, got, name)
		}
	}
	if got := TagName(Tag(99)); got != "UNKNOWN(99)" {
		t.Errorf("TagName(99) = %q, want UNKNOWN(99)", got)
	}
}

func TestRefString(t *testing.T) {
	if got := Ref(42).String(); got != "#42" {
		t.Errorf("Ref(42).String() = %q, want #42", got)
	}
	if got := Quote(Ref(42)).String(); got != "#42" {
		t.Errorf("quoted Ref(42).String() = %q, want #42 (quote bit hidden)", got)
	}
}
