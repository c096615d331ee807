package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"go-request-shield/internal/metrics"
	"go-request-shield/internal/model"
	"go-request-shield/internal/sanitize"
	"go-request-shield/internal/threat"
	"go-request-shield/pkg/apierror"
)

const complexityBudget = 10000

// BodyValidator parses and screens mutation request bodies before handlers
// ever see them. Handlers still decode the body themselves; the middleware
// restores the raw bytes after inspection.
type BodyValidator struct {
	schemas     *sanitize.Table
	maxBytes    int64
	maxUpload   int64
	allowedMIME []string
	recorder    *threat.Recorder
}

func NewBodyValidator(schemas *sanitize.Table, maxBytes int64, maxUpload int64, allowedMIME []string, recorder *threat.Recorder) *BodyValidator {
	return &BodyValidator{
		schemas:     schemas,
		maxBytes:    maxBytes,
		maxUpload:   maxUpload,
		allowedMIME: allowedMIME,
		recorder:    recorder,
	}
}

func (v *BodyValidator) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, v.maxBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeFailure(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			writeFailure(w, http.StatusBadRequest, "unable to read request body")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(raw))

		if len(raw) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		// Parse a throwaway copy so the handler's own decode still works.
		clone := r.Clone(r.Context())
		clone.Body = io.NopCloser(bytes.NewReader(raw))
		body, err := sanitize.ParseBody(clone, v.maxBytes)
		if err != nil {
			v.fail(w, r, err)
			return
		}

		// ParseBody only surfaces text fields; the file parts of a multipart
		// request are screened here.
		if clone.MultipartForm != nil {
			for _, headers := range clone.MultipartForm.File {
				for _, header := range headers {
					if err := sanitize.ValidateUpload(header, v.maxUpload, v.allowedMIME); err != nil {
						v.fail(w, r, err)
						return
					}
				}
			}
		}

		if err := sanitize.CheckComplexity(body, complexityBudget); err != nil {
			v.fail(w, r, err)
			return
		}

		if err := sanitize.ScanBody(body); err != nil {
			v.reject(w, r, err)
			return
		}

		if schema, ok := v.schemas.Resolve(r.URL.Path); ok {
			if err := schema.Validate(body); err != nil {
				v.fail(w, r, err)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// reject handles attack-signature hits: the response is deliberately vague
// and the event is recorded at high severity.
func (v *BodyValidator) reject(w http.ResponseWriter, r *http.Request, err error) {
	metrics.ValidationRejections.Inc()

	ip := ClientIP(r)
	event := model.NewSecurityEvent(model.EventValidationFailure, model.SeverityHigh,
		"request body matched attack signature", ip)
	event.UserAgent = r.UserAgent()
	event.RequestID = RequestIDFromContext(r.Context())
	event.Metadata = map[string]string{
		"method": r.Method,
		"path":   r.URL.Path,
	}
	v.recorder.Record(event)

	apiErr := apierror.Rejected()
	if !errors.Is(err, sanitize.ErrAttackDetected) {
		apiErr = apierror.Internal()
	}
	writeFailure(w, apiErr.HTTPStatus, apiErr.Message)
}

// fail handles ordinary validation problems: malformed bodies, schema
// violations, oversized structures. These get a descriptive message.
func (v *BodyValidator) fail(w http.ResponseWriter, r *http.Request, err error) {
	metrics.ValidationRejections.Inc()

	var apiErr *apierror.APIError
	if !errors.As(err, &apiErr) {
		apiErr = apierror.Validation(err.Error(), "")
	}

	event := model.NewSecurityEvent(model.EventValidationFailure, model.SeverityLow,
		apiErr.Message, ClientIP(r))
	event.RequestID = RequestIDFromContext(r.Context())
	event.Metadata = map[string]string{
		"method": r.Method,
		"path":   r.URL.Path,
	}
	v.recorder.Record(event)

	writeFailure(w, apiErr.HTTPStatus, apiErr.Message)
}
