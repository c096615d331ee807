package sanitize

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"go-request-shield/pkg/apierror"
)

// deniedExtensions are executable and server-interpreted formats that must
// never be stored, regardless of claimed MIME type.
var deniedExtensions = map[string]struct{}{
	".exe": {}, ".dll": {}, ".bat": {}, ".cmd": {}, ".com": {}, ".scr": {},
	".msi": {}, ".jar": {}, ".sh": {}, ".bash": {}, ".ps1": {},
	".php": {}, ".phtml": {}, ".php3": {}, ".php4": {}, ".php5": {},
	".asp": {}, ".aspx": {}, ".jsp": {}, ".cgi": {}, ".pl": {}, ".py": {},
}

// ValidateUpload checks an uploaded file: non-empty, bounded size, detected
// MIME type in the allow-list, and no denied extension anywhere in the name,
// which catches double-extension smuggling like "avatar.php.jpg".
func ValidateUpload(header *multipart.FileHeader, maxSize int64, allowedMIME []string) error {
	if header == nil || header.Size == 0 {
		return apierror.Validation("uploaded file is empty", "file")
	}
	if header.Size > maxSize {
		return apierror.Validation(fmt.Sprintf("file exceeds the %d byte limit", maxSize), "file")
	}

	name := strings.TrimSpace(header.Filename)
	if name == "" {
		return apierror.Validation("uploaded file has no name", "file")
	}

	for _, ext := range extensionChain(name) {
		if _, denied := deniedExtensions[ext]; denied {
			return apierror.Validation("file type is not allowed", "file")
		}
	}

	detected, err := detectMIME(header)
	if err != nil {
		return apierror.Validation("could not inspect file contents", "file")
	}

	if len(allowedMIME) > 0 && !mimeAllowed(detected, allowedMIME) {
		return apierror.Validation("file content type is not allowed", "file")
	}

	return nil
}

// extensionChain returns every suffix extension of the filename, so
// "report.jpg.exe" yields [".exe", ".jpg"].
func extensionChain(name string) []string {
	var chain []string
	for {
		ext := strings.ToLower(filepath.Ext(name))
		if ext == "" {
			return chain
		}
		chain = append(chain, ext)
		name = strings.TrimSuffix(name, ext)
	}
}

// detectMIME sniffs the first 512 bytes rather than trusting the client's
// Content-Type part header.
func detectMIME(header *multipart.FileHeader) (string, error) {
	file, err := header.Open()
	if err != nil {
		return "", err
	}
	defer file.Close()

	buffer := make([]byte, 512)
	n, err := file.Read(buffer)
	if err != nil && n == 0 {
		return "", err
	}

	return http.DetectContentType(buffer[:n]), nil
}

func mimeAllowed(detected string, allowed []string) bool {
	detected = strings.ToLower(strings.TrimSpace(detected))
	// DetectContentType may append parameters ("text/plain; charset=utf-8").
	if idx := strings.Index(detected, ";"); idx >= 0 {
		detected = strings.TrimSpace(detected[:idx])
	}

	for _, candidate := range allowed {
		candidate = strings.ToLower(strings.TrimSpace(candidate))
		if candidate == detected {
			return true
		}
		if strings.HasSuffix(candidate, "/*") && strings.HasPrefix(detected, strings.TrimSuffix(candidate, "*")) {
			return true
		}
	}
	return false
}
