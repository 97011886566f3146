package httpclient

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// Response is a fully buffered API response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Request    *http.Request
	Duration   time.Duration
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Decode unmarshals the JSON body into out.
func (r *Response) Decode(out any) error {
	if len(r.Body) == 0 {
		return errors.Join(ErrMalformedResponse, errors.New("empty body"))
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		return errors.Join(ErrMalformedResponse, err)
	}
	return nil
}
