package gateway

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	json "github.com/goccy/go-json"
)

// maxErrorBody bounds how much of a failed response is kept.
const maxErrorBody = 1 << 20

// NoContent is the result type of operations without a response payload.
type NoContent struct{}

func decodeResponse(resp *http.Response, out any) error {
	switch out.(type) {
	case nil, *NoContent:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	switch dst := out.(type) {
	case *[]byte:
		*dst = data
		return nil
	case *string:
		*dst = string(data)
		return nil
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response (%s): %w", resp.Header.Get("Content-Type"), err)
	}
	return nil
}

// readErrorBody parses a failed response: JSON when it is JSON, text
// otherwise, nil when empty.
func readErrorBody(resp *http.Response) any {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return nil
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil
	}
	if IsJSON(resp.Header.Get("Content-Type")) || json.Valid(trimmed) {
		var v any
		if err := json.Unmarshal(trimmed, &v); err == nil {
			return v
		}
	}
	return string(data)
}
