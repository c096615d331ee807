package threat

import (
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"go-request-shield/internal/model"
	"go-request-shield/internal/sanitize"
)

// Finding is one heuristic match against a request.
type Finding struct {
	Reason   string
	Severity model.Severity
}

// scannerSignatures match user-agent strings of common attack and recon
// tooling.
var scannerSignatures = []string{
	"sqlmap", "nikto", "nmap", "masscan", "zgrab", "dirbuster",
	"gobuster", "wfuzz", "wpscan", "acunetix", "nessus", "openvas",
	"metasploit", "hydra", "havij", "w3af",
}

// probePaths are sensitive files and CMS endpoints this site does not serve;
// requests for them are reconnaissance.
var probePaths = []string{
	"/wp-admin", "/wp-login", "/wp-content", "/xmlrpc.php",
	"/phpmyadmin", "/pma", "/.env", "/.git", "/.svn", "/.htaccess",
	"/.aws", "/config.php", "/etc/passwd", "/cgi-bin",
	"/vendor/phpunit", "/actuator", "/.DS_Store", "/backup.sql",
}

var traversalPattern = regexp.MustCompile(`(\.\./|\.\.\\|%2e%2e)`)

type Detector struct {
	servingHost string
}

// NewDetector builds a detector; servingHost enables Host-header mismatch
// checks and may be empty to disable them.
func NewDetector(servingHost string) *Detector {
	return &Detector{servingHost: strings.ToLower(strings.TrimSpace(servingHost))}
}

// Inspect runs every heuristic against the request and returns all findings.
func (d *Detector) Inspect(r *http.Request) []Finding {
	var findings []Finding

	if reason := suspiciousUserAgent(r.UserAgent()); reason != "" {
		findings = append(findings, Finding{Reason: reason, Severity: model.SeverityMedium})
	}

	if reason := suspiciousPath(r.URL.Path); reason != "" {
		findings = append(findings, Finding{Reason: reason, Severity: model.SeverityHigh})
	}

	if reason := suspiciousQuery(r.URL.RawQuery); reason != "" {
		findings = append(findings, Finding{Reason: reason, Severity: model.SeverityHigh})
	}

	if headerName := crlfInHeaders(r.Header); headerName != "" {
		findings = append(findings, Finding{
			Reason:   "CRLF sequence in header " + headerName,
			Severity: model.SeverityHigh,
		})
	}

	if d.servingHost != "" {
		host := strings.ToLower(r.Host)
		if idx := strings.Index(host, ":"); idx >= 0 {
			host = host[:idx]
		}
		if host != "" && host != d.servingHost {
			findings = append(findings, Finding{
				Reason:   "host header mismatch: " + host,
				Severity: model.SeverityMedium,
			})
		}
	}

	return findings
}

func suspiciousUserAgent(userAgent string) string {
	lowered := strings.ToLower(userAgent)
	for _, sig := range scannerSignatures {
		if strings.Contains(lowered, sig) {
			return "scanner user-agent: " + sig
		}
	}
	return ""
}

func suspiciousPath(path string) string {
	lowered := strings.ToLower(path)
	for _, probe := range probePaths {
		// Probes count at any depth ("/api/.env", "/static/backup.sql"),
		// anchored to a segment or extension boundary so "/pmap" stays clean.
		if strings.HasSuffix(lowered, probe) ||
			strings.Contains(lowered, probe+"/") ||
			strings.Contains(lowered, probe+".") {
			return "probe path: " + probe
		}
	}
	if traversalPattern.MatchString(lowered) {
		return "path traversal attempt"
	}
	return ""
}

func suspiciousQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}

	decoded, err := url.QueryUnescape(rawQuery)
	if err != nil {
		decoded = rawQuery
	}

	if err := sanitize.Scan(decoded); err != nil {
		return "injection signature in query string"
	}
	return ""
}

func crlfInHeaders(headers http.Header) string {
	for name, values := range headers {
		for _, value := range values {
			if strings.ContainsAny(value, "\r\n") {
				return name
			}
		}
	}
	return ""
}
