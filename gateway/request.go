package gateway

import (
	"bytes"
	"context"
	"encoding"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

func buildRequest(ctx context.Context, cfg Config, op Operation, params Params, header http.Header, query url.Values) (*http.Request, error) {
	invalid := func(err error) error {
		return &RequestError{OperationID: op.ID, Err: err}
	}

	var path strings.Builder
	for _, seg := range ParsePath(op.Path) {
		if !seg.IsParam() {
			path.WriteString(seg.Literal)
			continue
		}
		v, ok := lookup(params, seg.Param)
		if !ok {
			return nil, invalid(fmt.Errorf("%w: %q (path)", ErrMissingParameter, seg.Param))
		}
		path.WriteString(formatPathValue(v))
	}

	// header and query hold the resolved credentials; a parameter never
	// overrides them.
	credHeader := make(map[string]bool, len(header))
	for k := range header {
		credHeader[k] = true
	}
	credQuery := make(map[string]bool, len(query))
	for k := range query {
		credQuery[k] = true
	}

	for _, p := range op.Params {
		if p.In == InPath {
			continue
		}
		v, ok := lookup(params, p.Name)
		if !ok {
			if p.Required {
				return nil, invalid(fmt.Errorf("%w: %q (%s)", ErrMissingParameter, p.Name, p.In))
			}
			continue
		}
		values := formatMulti(v)
		switch p.In {
		case InQuery:
			if credQuery[p.Name] {
				continue
			}
			for _, s := range values {
				query.Add(p.Name, s)
			}
		case InHeader:
			if len(values) == 0 || credHeader[http.CanonicalHeaderKey(p.Name)] {
				continue
			}
			header.Set(p.Name, strings.Join(values, ","))
		default:
			return nil, invalid(fmt.Errorf("parameter %q: unsupported location %q", p.Name, p.In))
		}
	}

	var body io.Reader
	if op.Body != nil {
		v, ok := lookup(params, op.Body.Name)
		switch {
		case ok:
			r, contentType, err := encodeBody(op.Body.ContentType, v)
			if err != nil {
				return nil, invalid(fmt.Errorf("encode body: %w", err))
			}
			body = r
			header.Set("Content-Type", contentType)
		case op.Body.Required:
			return nil, invalid(fmt.Errorf("%w: %q (body)", ErrMissingParameter, op.Body.Name))
		}
	}

	target := strings.TrimRight(cfg.URL, "/") + path.String()
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(op.Method), target, body)
	if err != nil {
		return nil, invalid(err)
	}
	for k, vs := range header {
		req.Header[k] = vs
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if cfg.UserAgent != "" {
		req.Header.Set("User-Agent", cfg.UserAgent)
	}
	return req, nil
}

// lookup returns the dereferenced value for name; nil values and nil pointers
// count as absent.
func lookup(params Params, name string) (any, bool) {
	v, ok := params[name]
	if !ok {
		return nil, false
	}
	return indirect(v)
}

func indirect(v any) (any, bool) {
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	return rv.Interface(), true
}

func isNumeric(v any) bool {
	if _, ok := v.(json.Number); ok {
		return true
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// formatPathValue renders a path placeholder value. Numbers are written in
// plain textual form; everything else is percent-encoded.
func formatPathValue(v any) string {
	s := formatScalar(v)
	if isNumeric(v) {
		return s
	}
	return url.PathEscape(s)
}

func formatScalar(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int8:
		return strconv.FormatInt(int64(x), 10)
	case int16:
		return strconv.FormatInt(int64(x), 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case uint8:
		return strconv.FormatUint(uint64(x), 10)
	case uint16:
		return strconv.FormatUint(uint64(x), 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	case time.Time:
		return x.Format(time.RFC3339)
	case []byte:
		return string(x)
	case encoding.TextMarshaler:
		if b, err := x.MarshalText(); err == nil {
			return string(b)
		}
	case fmt.Stringer:
		return x.String()
	}
	// named types such as generated enums
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 32)
	case reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

// formatMulti renders a query or header value; slices yield one entry per
// element.
func formatMulti(v any) []string {
	if _, isBytes := v.([]byte); isBytes {
		return []string{formatScalar(v)}
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []string{formatScalar(v)}
	}
	out := make([]string, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		if e, ok := indirect(rv.Index(i).Interface()); ok {
			out = append(out, formatScalar(e))
		}
	}
	return out
}

func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}

// IsJSON reports whether contentType denotes a JSON payload.
func IsJSON(contentType string) bool {
	mt := mediaType(contentType)
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

func encodeBody(contentType string, v any) (io.Reader, string, error) {
	mt := mediaType(contentType)
	switch {
	case mt == "" || IsJSON(contentType):
		if contentType == "" {
			contentType = "application/json"
		}
		if raw, ok := v.([]byte); ok {
			return bytes.NewReader(raw), contentType, nil
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(b), contentType, nil
	case mt == "application/x-www-form-urlencoded":
		fields, err := fieldMap(v)
		if err != nil {
			return nil, "", err
		}
		form := url.Values{}
		for _, k := range sortedKeys(fields) {
			for _, s := range formatMulti(fields[k]) {
				form.Add(k, s)
			}
		}
		return strings.NewReader(form.Encode()), contentType, nil
	case mt == "multipart/form-data":
		return encodeMultipart(v)
	default:
		switch x := v.(type) {
		case io.Reader:
			return x, contentType, nil
		case []byte:
			return bytes.NewReader(x), contentType, nil
		case string:
			return strings.NewReader(x), contentType, nil
		}
		if strings.HasPrefix(mt, "text/") {
			return strings.NewReader(formatScalar(v)), contentType, nil
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(b), contentType, nil
	}
}

func encodeMultipart(v any) (io.Reader, string, error) {
	fields, err := fieldMap(v)
	if err != nil {
		return nil, "", err
	}
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, k := range sortedKeys(fields) {
		switch x := fields[k].(type) {
		case []byte:
			part, err := w.CreateFormFile(k, k)
			if err != nil {
				return nil, "", err
			}
			if _, err := part.Write(x); err != nil {
				return nil, "", err
			}
		case io.Reader:
			part, err := w.CreateFormFile(k, k)
			if err != nil {
				return nil, "", err
			}
			if _, err := io.Copy(part, x); err != nil {
				return nil, "", err
			}
		default:
			for _, s := range formatMulti(x) {
				if err := w.WriteField(k, s); err != nil {
					return nil, "", err
				}
			}
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// fieldMap flattens a form body into named fields. Structs go through their
// JSON representation so json tags name the fields.
func fieldMap(v any) (map[string]any, error) {
	switch x := v.(type) {
	case map[string]any:
		return x, nil
	case url.Values:
		out := make(map[string]any, len(x))
		for k, vs := range x {
			out[k] = vs
		}
		return out, nil
	case map[string]string:
		out := make(map[string]any, len(x))
		for k, s := range x {
			out[k] = s
		}
		return out, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("form body must be an object: %w", err)
	}
	for k, val := range out {
		if val == nil {
			delete(out, k)
		}
	}
	return out, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
