package subscription

import (
	"errors"
	"testing"
)

func TestNormalizeAccount(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"foo", "foo"},
		{"  foo  ", "foo"},
		{"@foo", "foo"},
		{"foo/", "foo"},
		{"foo///", "foo"},
		{"https://x.com/foo", "foo"},
		{"https://x.com/foo/", "foo"},
		{"http://twitter.com/some/path/foo", "foo"},
		{"https://x.com/@foo", "foo"},
	}
	for _, tc := range cases {
		got, err := NormalizeAccount(tc.in)
		if err != nil {
			t.Fatalf("NormalizeAccount(%q): unexpected error %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("NormalizeAccount(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeAccount_Empty(t *testing.T) {
	for _, in := range []string{"", "   ", "@", "///"} {
		if _, err := NormalizeAccount(in); !errors.Is(err, ErrEmptyAccount) {
			t.Fatalf("NormalizeAccount(%q): expected ErrEmptyAccount, got %v", in, err)
		}
	}
}
