package cmd

import (
	"reflect"
	"testing"

	"github.com/lhecker/tumblr-backup/coordinator"
)

func TestWorstExitCode(t *testing.T) {
	tests := []struct {
		a, b coordinator.ExitCode
		want coordinator.ExitCode
	}{
		{coordinator.ExitSuccess, coordinator.ExitBlogFailed, coordinator.ExitBlogFailed},
		{coordinator.ExitNoPosts, coordinator.ExitBlogFailed, coordinator.ExitNoPosts},
		{coordinator.ExitInterrupted, coordinator.ExitSuccess, coordinator.ExitInterrupted},
		{coordinator.ExitSuccess, coordinator.ExitInterrupted, coordinator.ExitInterrupted},
		{coordinator.ExitSuccess, coordinator.ExitSuccess, coordinator.ExitSuccess},
	}
	for _, tc := range tests {
		if got := worstExitCode(tc.a, tc.b); got != tc.want {
			t.Errorf("worstExitCode(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestBlogOutDir(t *testing.T) {
	if got := blogOutDir("/explicit/out", "blog"); got != "/explicit/out" {
		t.Errorf("blogOutDir() = %q, want explicit path preserved", got)
	}
	if got := blogOutDir("", "myblog"); got != "myblog" {
		t.Errorf("blogOutDir() = %q, want %q", got, "myblog")
	}
}

func TestNormalizeBlogName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"example", "example.tumblr.com"},
		{"example.tumblr.com", "example.tumblr.com"},
		{"custom.domain.com", "custom.domain.com"},
	}
	for _, tc := range tests {
		if got := normalizeBlogName(tc.in); got != tc.want {
			t.Errorf("normalizeBlogName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseRequestFlags(t *testing.T) {
	got := parseRequestFlags([]string{"photo:art,sketch", "text"})
	want := map[string][]string{
		"photo": {"art", "sketch"},
		"text":  nil,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("parseRequestFlags() = %#v, want %#v", got, want)
	}
}

func TestParseRequestFlagsEmpty(t *testing.T) {
	if got := parseRequestFlags(nil); got != nil {
		t.Errorf("parseRequestFlags(nil) = %#v, want nil", got)
	}
}

func TestParseRequestFlagsAccumulatesRepeatedType(t *testing.T) {
	got := parseRequestFlags([]string{"photo:art", "photo:sketch"})
	want := map[string][]string{"photo": {"art", "sketch"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("parseRequestFlags() = %#v, want %#v", got, want)
	}
}
