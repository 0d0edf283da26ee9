package retriever

import "crypto/tls"

// insecureTLSConfig backs --no-ssl-verify (spec.md §6). Isolated in its own
// file so the security-relevant knob is easy to audit.
func insecureTLSConfig() *tls.Config {
	return &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via --no-ssl-verify
}
