package api

import (
	"encoding/json"
	"net/http"

	"katha/internal/utils"
)

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Decode unmarshals the body into v. Malformed JSON becomes DECODE_FAILED.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return utils.NewAppError(utils.ErrDecode, "Unexpected response from server", err)
	}
	return nil
}

// Err returns nil for a 2xx response and an AppError built from the body
// otherwise, using fallback when the body carries no message.
func (r *Response) Err(fallback string) error {
	if r.OK() {
		return nil
	}
	return utils.FromResponse(r.StatusCode, r.Body, fallback)
}
