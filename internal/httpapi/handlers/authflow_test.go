package handlers

import "testing"

func TestSafeNext(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", "/dashboard"},
		{"/dashboard", "/dashboard"},
		{"/proposals/01ABC", "/proposals/01ABC"},
		{"/dashboard?upgraded=true", "/dashboard?upgraded=true"},
		{"//evil.example.com", "/dashboard"},
		{"//evil.example.com/phish", "/dashboard"},
		{"https://evil.example.com", "/dashboard"},
		{"javascript:alert(1)", "/dashboard"},
		{"dashboard", "/dashboard"},
	}
	for _, tc := range cases {
		if got := safeNext(tc.in); got != tc.want {
			t.Fatalf("safeNext(%q): got %q want %q", tc.in, got, tc.want)
		}
	}
}
