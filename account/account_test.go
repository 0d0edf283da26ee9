package account

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func okResponse(body string) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func TestLoginOnceMissingCredentials(t *testing.T) {
	s := NewSession(&http.Client{}, "", "")
	if err := s.LoginOnce(context.Background()); err == nil {
		t.Error("expected an error with no username/password configured")
	}
}

func TestLoginOnceFullFlowAndIdempotence(t *testing.T) {
	formKeyPage := `<meta name="tumblr-form-key" content="the-form-key">`
	var calls int
	httpClient := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		calls++
		switch r.URL.String() {
		case consentURL, loginURL:
			return okResponse(formKeyPage), nil
		case consentSvcURL:
			if r.Header.Get("X-tumblr-form-key") != "the-form-key" {
				t.Errorf("consent request missing form key header")
			}
			return okResponse(""), nil
		default:
			return okResponse(""), nil
		}
	})}

	s := NewSession(httpClient, "user@example.com", "hunter2")
	if err := s.LoginOnce(context.Background()); err != nil {
		t.Fatalf("LoginOnce: %v", err)
	}
	firstCalls := calls

	// A second call should be a no-op: no further requests.
	if err := s.LoginOnce(context.Background()); err != nil {
		t.Fatalf("second LoginOnce: %v", err)
	}
	if calls != firstCalls {
		t.Errorf("LoginOnce made %d more requests on an already-logged-in session, want 0", calls-firstCalls)
	}
}

func TestLoginOnceFormKeyMissing(t *testing.T) {
	httpClient := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return okResponse("<html>no form key here</html>"), nil
	})}

	s := NewSession(httpClient, "user@example.com", "hunter2")
	if err := s.LoginOnce(context.Background()); err == nil {
		t.Error("expected an error when the form key cannot be found")
	}
}

func TestLogoutIdempotent(t *testing.T) {
	httpClient := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return okResponse(""), nil
	})}

	s := NewSession(httpClient, "user@example.com", "hunter2")
	// Logging out a session that was never logged in should be a no-op.
	if err := s.Logout(context.Background()); err != nil {
		t.Fatalf("Logout on a never-logged-in session: %v", err)
	}
}
