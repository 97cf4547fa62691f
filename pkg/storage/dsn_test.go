package storage

import "testing"

func TestBuildDSN(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"notes.db", "file:notes.db?_pragma=busy_timeout=5000&_pragma=foreign_keys=ON"},
		{"sqlite://notes.db", "file:notes.db?_pragma=busy_timeout=5000&_pragma=foreign_keys=ON"},
		{"file:notes.db?cache=shared", "file:notes.db?cache=shared&_pragma=busy_timeout=5000&_pragma=foreign_keys=ON"},
		{":memory:", ":memory:?_pragma=busy_timeout=5000&_pragma=foreign_keys=ON"},
	}
	for _, tc := range cases {
		if got := buildDSN(tc.in); got != tc.want {
			t.Errorf("buildDSN(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
