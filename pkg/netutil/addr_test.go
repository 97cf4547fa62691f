package netutil_test

import (
	"net/http/httptest"
	"testing"

	"github.com/LuG3Zz/Blog/pkg/netutil"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1.2.3.4:8080", "1.2.3.4"},
		{"1.2.3.4", "1.2.3.4"},
		{"[::1]:443", "::1"},
		{"::1", "::1"},
		{" 1.2.3.4 ", "1.2.3.4"},
		{"localhost:9000", "localhost"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := netutil.Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsLocal(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"127.0.0.1", true},
		{"127.0.0.1:8080", true},
		{"localhost", true},
		{"::1", true},
		{"192.168.1.10", true},
		{"10.0.0.1", true},
		{"172.16.0.1", true},
		{"8.8.8.8", false},
		{"2001:4860:4860::8888", false},
		{"not-an-ip", false},
	}
	for _, tt := range tests {
		if got := netutil.IsLocal(tt.in); got != tt.want {
			t.Errorf("IsLocal(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestClientAddr(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{
			name:   "no headers, socket peer",
			remote: "9.9.9.9:1234",
			want:   "9.9.9.9",
		},
		{
			name:    "x-client-ip wins",
			headers: map[string]string{"X-Client-IP": "1.1.1.1", "X-Real-IP": "2.2.2.2"},
			remote:  "9.9.9.9:1234",
			want:    "1.1.1.1",
		},
		{
			name:    "x-real-ip before forwarded-for",
			headers: map[string]string{"X-Real-IP": "2.2.2.2", "X-Forwarded-For": "3.3.3.3, 4.4.4.4"},
			remote:  "9.9.9.9:1234",
			want:    "2.2.2.2",
		},
		{
			name:    "forwarded-for takes first hop",
			headers: map[string]string{"X-Forwarded-For": "3.3.3.3, 4.4.4.4"},
			remote:  "9.9.9.9:1234",
			want:    "3.3.3.3",
		},
		{
			name:    "forwarded header for= pair",
			headers: map[string]string{"Forwarded": `for="5.5.5.5"; proto=https`},
			remote:  "9.9.9.9:1234",
			want:    "5.5.5.5",
		},
		{
			name:   "unparseable remote addr used as-is",
			remote: "unix-socket",
			want:   "unix-socket",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/ws", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := netutil.ClientAddr(r); got != tt.want {
				t.Errorf("ClientAddr() = %q, want %q", got, tt.want)
			}
		})
	}
}
