package bot

import (
	"errors"
	"testing"
)

func TestParseCallback_Valid(t *testing.T) {
	cases := map[string]Action{
		"/page 1234 2": {Kind: CallbackPage, QueryID: "1234", Page: 2},
		"/page 0 0":    {Kind: CallbackPage, QueryID: "0", Page: 0},
		"/delete":      {Kind: CallbackDelete},
		"no_action":    {Kind: CallbackNoop},
	}
	for in, want := range cases {
		got, err := ParseCallback(in)
		if err != nil {
			t.Fatalf("ParseCallback(%q) error: %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseCallback(%q) = %+v; want %+v", in, got, want)
		}
	}
}

func TestParseCallback_Malformed(t *testing.T) {
	for _, in := range []string{
		"",
		"/page",
		"/page 1234",
		"/page 1234 x",
		"/page 1234 -1",
		"/page 1234 2 extra",
		"/page  2",
		"/delete now",
		"something else",
	} {
		if _, err := ParseCallback(in); !errors.Is(err, ErrMalformedCallback) {
			t.Errorf("ParseCallback(%q) err = %v; want ErrMalformedCallback", in, err)
		}
	}
}

func TestPageData_RoundTrip(t *testing.T) {
	a, err := ParseCallback(PageData("55", 3))
	if err != nil || a.QueryID != "55" || a.Page != 3 {
		t.Fatalf("round trip = %+v, %v", a, err)
	}
}

func TestCallbackKind_String(t *testing.T) {
	if CallbackPage.String() != "page" || CallbackDelete.String() != "delete" ||
		CallbackNoop.String() != "noop" || CallbackKind(0).String() != "unknown" {
		t.Fatalf("unexpected kind names")
	}
}
