package httputil

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
)

// ErrEmptyBody is returned by ParseJSON when the request carries no body
var ErrEmptyBody = errors.New("request body is empty")

// ParseJSON decodes the request body into dest
func ParseJSON(r *http.Request, dest interface{}) error {
	if r.Body == nil || r.Body == http.NoBody {
		return ErrEmptyBody
	}
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmptyBody
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// ParseJSONParam decodes a JSON encoded query parameter into dest. A missing
// parameter leaves dest untouched.
func ParseJSONParam(r *http.Request, key string, dest interface{}) error {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return fmt.Errorf("query parameter %s: invalid JSON: %w", key, err)
	}
	return nil
}

// PathParam returns a route variable, or "" when the route has none
func PathParam(r *http.Request, key string) string {
	return mux.Vars(r)[key]
}
