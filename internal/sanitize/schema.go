package sanitize

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"regexp"
	"strings"

	"go-request-shield/pkg/apierror"
)

// Field describes one expected body field. Bounds apply to the kinds they
// make sense for: MinLen/MaxLen to strings, Min/Max to numbers.
type Field struct {
	Name     string
	Kind     string // "string", "number", "bool", "email"
	Required bool
	MinLen   int
	MaxLen   int
	Min      float64
	Max      float64
	HasRange bool
	Pattern  *regexp.Regexp
}

type Schema struct {
	Fields []Field
}

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Validate checks presence, types, and bounds, reporting only the first
// violation with its field path.
func (s Schema) Validate(body map[string]any) error {
	for _, field := range s.Fields {
		raw, present := body[field.Name]

		if !present || raw == nil {
			if field.Required {
				return apierror.Validation(fmt.Sprintf("%s is required", field.Name), field.Name)
			}
			continue
		}

		switch field.Kind {
		case "string", "email":
			str, ok := raw.(string)
			if !ok {
				return apierror.Validation(fmt.Sprintf("%s must be a string", field.Name), field.Name)
			}
			if field.MinLen > 0 && len(str) < field.MinLen {
				return apierror.Validation(fmt.Sprintf("%s must be at least %d characters", field.Name, field.MinLen), field.Name)
			}
			if field.MaxLen > 0 && len(str) > field.MaxLen {
				return apierror.Validation(fmt.Sprintf("%s must be at most %d characters", field.Name, field.MaxLen), field.Name)
			}
			if field.Kind == "email" && !emailPattern.MatchString(str) {
				return apierror.Validation(fmt.Sprintf("%s must be a valid email address", field.Name), field.Name)
			}
			if field.Pattern != nil && !field.Pattern.MatchString(str) {
				return apierror.Validation(fmt.Sprintf("%s has an invalid format", field.Name), field.Name)
			}
		case "number":
			num, ok := raw.(float64)
			if !ok {
				return apierror.Validation(fmt.Sprintf("%s must be a number", field.Name), field.Name)
			}
			if field.HasRange && (num < field.Min || num > field.Max) {
				return apierror.Validation(fmt.Sprintf("%s must be between %g and %g", field.Name, field.Min, field.Max), field.Name)
			}
		case "bool":
			if _, ok := raw.(bool); !ok {
				return apierror.Validation(fmt.Sprintf("%s must be a boolean", field.Name), field.Name)
			}
		}
	}

	return nil
}

// Table maps routes to schemas: exact path first, then patterns with
// ":param" segments for parameterized routes.
type Table struct {
	exact    map[string]Schema
	patterns []patternSchema
}

type patternSchema struct {
	segments []string
	schema   Schema
}

func NewTable() *Table {
	return &Table{exact: map[string]Schema{}}
}

func (t *Table) Register(path string, schema Schema) {
	if strings.Contains(path, ":") {
		t.patterns = append(t.patterns, patternSchema{
			segments: strings.Split(strings.Trim(path, "/"), "/"),
			schema:   schema,
		})
		return
	}
	t.exact[path] = schema
}

func (t *Table) Resolve(path string) (Schema, bool) {
	if schema, ok := t.exact[path]; ok {
		return schema, true
	}

	segments := strings.Split(strings.Trim(path, "/"), "/")
	for _, candidate := range t.patterns {
		if matchSegments(candidate.segments, segments) {
			return candidate.schema, true
		}
	}
	return Schema{}, false
}

func matchSegments(pattern []string, actual []string) bool {
	if len(pattern) != len(actual) {
		return false
	}
	for i, seg := range pattern {
		if strings.HasPrefix(seg, ":") {
			continue
		}
		if seg != actual[i] {
			return false
		}
	}
	return true
}

// ParseBody decodes the request body according to its Content-Type. The
// caller receives a uniform map regardless of encoding. Unparseable bodies
// fail with a 400 naming the parse failure.
func ParseBody(r *http.Request, maxBytes int64) (map[string]any, error) {
	if r.Body == nil {
		return map[string]any{}, nil
	}
	r.Body = http.MaxBytesReader(nil, r.Body, maxBytes)

	contentType := r.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil && contentType != "" {
		return nil, apierror.Validation("unrecognized content type", "")
	}

	switch mediaType {
	case "application/json", "":
		var body map[string]any
		decoder := json.NewDecoder(r.Body)
		if err := decoder.Decode(&body); err != nil {
			return nil, apierror.Validation("invalid JSON body", "")
		}
		return body, nil

	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, apierror.Validation("invalid form body", "")
		}
		body := map[string]any{}
		for key, values := range r.PostForm {
			if len(values) > 0 {
				body[key] = values[0]
			}
		}
		return body, nil

	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			return nil, apierror.Validation("invalid multipart body", "")
		}
		body := map[string]any{}
		for key, values := range r.MultipartForm.Value {
			if len(values) > 0 {
				body[key] = values[0]
			}
		}
		return body, nil

	default:
		return nil, apierror.Validation("unsupported content type", "")
	}
}

// ScanBody runs signature screening over every string in the parsed body,
// including nested values.
func ScanBody(body map[string]any) error {
	return scanValue(body, 0)
}

func scanValue(value any, depth int) error {
	if depth >= maxComplexityDepth {
		return nil
	}

	switch v := value.(type) {
	case string:
		return Scan(v)
	case map[string]any:
		for key, item := range v {
			if err := Scan(key); err != nil {
				return err
			}
			if err := scanValue(item, depth+1); err != nil {
				return err
			}
		}
	case []any:
		for _, item := range v {
			if err := scanValue(item, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}
