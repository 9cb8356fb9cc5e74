package util

import (
	"net/http"
	"testing"
)

func clearProxyEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"HTTP_PROXY", "http_proxy", "HTTPS_PROXY", "https_proxy", "NO_PROXY", "no_proxy", "REQUEST_METHOD"} {
		t.Setenv(k, "")
	}
}

func TestNewProxyFunc(t *testing.T) {
	clearProxyEnv(t)

	proxy := NewProxyFunc("http://plain-proxy:3128", "http://tls-proxy:3129", "internal.example,.corp.example")

	tests := []struct {
		url  string
		want string
	}{
		{"http://news.example/article", "http://plain-proxy:3128"},
		{"https://news.example/article", "http://tls-proxy:3129"},
		{"https://internal.example/page", ""},
		{"https://wiki.corp.example/page", ""},
	}
	for _, tt := range tests {
		req, _ := http.NewRequest(http.MethodGet, tt.url, nil)
		got, err := proxy(req)
		if err != nil {
			t.Fatalf("%s: %v", tt.url, err)
		}
		gotStr := ""
		if got != nil {
			gotStr = got.String()
		}
		if gotStr != tt.want {
			t.Errorf("proxy(%s) = %q, want %q", tt.url, gotStr, tt.want)
		}
	}
}

func TestNewProxyFunc_EnvironmentFallback(t *testing.T) {
	clearProxyEnv(t)
	t.Setenv("HTTPS_PROXY", "http://env-proxy:8080")

	// Only NO_PROXY configured: the proxy URL still comes from the environment
	proxy := NewProxyFunc("", "", "skip.example")

	req, _ := http.NewRequest(http.MethodGet, "https://news.example/", nil)
	got, err := proxy(req)
	if err != nil || got == nil || got.Host != "env-proxy:8080" {
		t.Errorf("proxy = %v, %v; want env-proxy:8080", got, err)
	}

	req, _ = http.NewRequest(http.MethodGet, "https://skip.example/", nil)
	if got, _ := proxy(req); got != nil {
		t.Errorf("skip.example should bypass the proxy, got %v", got)
	}
}
