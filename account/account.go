// Package account implements the Tumblr login/consent flow a dashboard-only
// blog needs before the svc/indash_blog endpoint will answer, grounded on
// the teacher's account package and generalized into an explicit Session
// value (spec.md §9 "Global mutable state" — no package-level client or
// credentials).
package account

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
)

const (
	consentURL    = "https://www.tumblr.com/privacy/consent"
	consentSvcURL = "https://www.tumblr.com/svc/privacy/consent"
	loginURL      = "https://www.tumblr.com/login"
	logoutURL     = "https://www.tumblr.com/logout"
)

var formKeyRegexp = regexp.MustCompile(`name="tumblr-form-key".+?content="([^"]+)`)

type loginState int

const (
	stateLoggedOut loginState = iota
	stateLoggedIn
)

// Session holds one user's credentials and the shared HTTP client they
// authenticate through. It is the loginFunc capability apiclient.Client
// invokes the first time a blog turns out to be dashboard-only.
type Session struct {
	client   *http.Client
	username string
	password string

	mu    sync.Mutex
	state loginState
}

func NewSession(client *http.Client, username, password string) *Session {
	return &Session{client: client, username: username, password: password}
}

// LoginFunc adapts LoginOnce to the func(context.Context) error shape
// apiclient.New expects, so a Coordinator can wire
// account.NewSession(...).LoginFunc directly into apiclient.New.
func (s *Session) LoginFunc(ctx context.Context) error {
	return s.LoginOnce(ctx)
}

func (s *Session) LoginOnce(ctx context.Context) error {
	if s.username == "" || s.password == "" {
		return errors.New("account: missing username/password")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateLoggedIn {
		return nil
	}

	if err := s.consent(ctx); err != nil {
		return err
	}
	if err := s.login(ctx); err != nil {
		return err
	}

	s.state = stateLoggedIn
	return nil
}

func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateLoggedOut {
		return nil
	}
	if err := s.logout(ctx); err != nil {
		return err
	}
	s.state = stateLoggedOut
	return nil
}

func (s *Session) getFormKey(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}

	res, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("account: bad status code: %d %s", res.StatusCode, res.Status)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", err
	}

	m := formKeyRegexp.FindSubmatch(body)
	if len(m) == 0 {
		return "", errors.New("account: failed to find form key")
	}
	return string(m[1]), nil
}

func (s *Session) consent(ctx context.Context) error {
	formKey, err := s.getFormKey(ctx, consentURL)
	if err != nil {
		return err
	}

	consentData := struct {
		EuResident               bool `json:"eu_resident"`
		GdprIsAcceptableAge      bool `json:"gdpr_is_acceptable_age"`
		GdprConsentCore          bool `json:"gdpr_consent_core"`
		GdprConsentFirstPartyAds bool `json:"gdpr_consent_first_party_ads"`
		GdprConsentThirdPartyAds bool `json:"gdpr_consent_third_party_ads"`
		GdprConsentSearchHistory bool `json:"gdpr_consent_search_history"`
	}{true, true, true, true, false, true}

	postData, err := json.Marshal(consentData)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, consentSvcURL, bytes.NewReader(postData))
	if err != nil {
		return err
	}
	req.Header.Set("Referer", consentURL)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("X-tumblr-form-key", formKey)

	res, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("account: consent failed: %d %s", res.StatusCode, res.Status)
	}
	return nil
}

func (s *Session) login(ctx context.Context) error {
	formKey, err := s.getFormKey(ctx, loginURL)
	if err != nil {
		return err
	}

	postData := url.Values{
		"version":        {"STANDARD"},
		"form_key":       {formKey},
		"user[email]":    {s.username},
		"user[password]": {s.password},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL, strings.NewReader(postData))
	if err != nil {
		return err
	}
	req.Header.Set("Referer", loginURL)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("account: login failed: %d %s", res.StatusCode, res.Status)
	}
	return nil
}

func (s *Session) logout(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, logoutURL, nil)
	if err != nil {
		return err
	}

	res, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("account: logout failed: %d %s", res.StatusCode, res.Status)
	}
	return nil
}
