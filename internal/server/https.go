package server

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strings"

	"golang.org/x/crypto/acme/autocert"
)

// HTTPSConfig configures Let's Encrypt serving.
type HTTPSConfig struct {
	Domain   string // certificate host name
	Email    string // optional ACME account contact
	CertDir  string // certificate cache directory
	HTTPAddr string // plain listener for ACME challenges and redirects
}

var (
	errNoDomain     = errors.New("domain required for HTTPS")
	errLocalDomain  = errors.New("Let's Encrypt requires a public domain, not localhost; put a reverse proxy in front for local HTTPS")
	errIPDomain     = errors.New("Let's Encrypt requires a domain name, not an IP address")
	domainLabelExpr = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)
)

// ValidateDomain rejects names Let's Encrypt will not issue for.
func ValidateDomain(domain string) error {
	if domain == "" {
		return errNoDomain
	}
	lower := strings.ToLower(domain)
	if lower == "localhost" || strings.HasSuffix(lower, ".localhost") {
		return errLocalDomain
	}
	if net.ParseIP(strings.Trim(domain, "[]")) != nil {
		return errIPDomain
	}
	if len(lower) > 253 {
		return fmt.Errorf("invalid domain format: %s", domain)
	}
	for _, label := range strings.Split(lower, ".") {
		if !domainLabelExpr.MatchString(label) {
			return fmt.Errorf("invalid domain format: %s", domain)
		}
	}
	return nil
}

// NewAutocertManager returns a manager that only issues for cfg.Domain and
// caches certificates in cfg.CertDir.
func NewAutocertManager(cfg HTTPSConfig) *autocert.Manager {
	return &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(cfg.Domain),
		Cache:      autocert.DirCache(cfg.CertDir),
		Email:      cfg.Email,
	}
}

func NewTLSConfig(manager *autocert.Manager) *tls.Config {
	return &tls.Config{
		GetCertificate: manager.GetCertificate,
		MinVersion:     tls.VersionTLS12,
		NextProtos:     []string{"h2", "http/1.1"},
	}
}

// HTTPRedirectHandler sends plain HTTP callers to the HTTPS origin.
// 308 keeps the method and body so a POSTed query is not replayed as GET.
// Wrap it with autocert.Manager.HTTPHandler to answer ACME challenges.
func HTTPRedirectHandler(domain string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		target := "https://" + domain + r.URL.RequestURI()
		http.Redirect(w, r, target, http.StatusPermanentRedirect)
	})
}
