package wp

import (
	"encoding/base64"
	"net/http"
)

// BasicAuthHeaders builds the headers for WooCommerce REST calls authorised
// with the site's static consumer key/secret. These credentials are
// configuration, not part of the user session.
func BasicAuthHeaders(consumerKey, consumerSecret string) (http.Header, error) {
	if consumerKey == "" || consumerSecret == "" {
		return nil, ErrMissingCredentials
	}
	creds := base64.StdEncoding.EncodeToString([]byte(consumerKey + ":" + consumerSecret))
	return http.Header{
		"Authorization": {"Basic " + creds},
		"Content-Type":  {"application/json"},
	}, nil
}
