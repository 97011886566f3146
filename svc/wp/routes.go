package wp

import (
	"errors"
	"net/url"
	"strings"
)

// REST paths used by the client.
const (
	PathToken         = "/jwt-auth/v1/token"
	PathTokenValidate = "/jwt-auth/v1/token/validate"
	PathTokenRefresh  = "/jwt-auth/v1/token/refresh"
	PathUsersMe       = "/wp/v2/users/me"
	PathCart          = "/wc/store/v1/cart"
	PathCartAddItem   = "/wc/store/v1/cart/add-item"
	PathCartUpdate    = "/wc/store/v1/cart/update-item"
	PathCartRemove    = "/wc/store/v1/cart/remove-item"
)

// Routes resolves REST paths against a WordPress site.
//
// Sites without pretty permalinks only expose the API through
// index.php?rest_route=<path>; sites with them serve /wp-json/<path>.
type Routes struct {
	base   *url.URL
	pretty bool
}

// NewRoutes parses baseURL (scheme and host required, path optional).
func NewRoutes(baseURL string, pretty bool) (Routes, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return Routes{}, errors.Join(ErrInvalidBaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Routes{}, errors.Join(ErrInvalidBaseURL, errors.New("scheme must be http or https"))
	}
	if u.Host == "" {
		return Routes{}, errors.Join(ErrInvalidBaseURL, errors.New("host is required"))
	}
	u.RawQuery = ""
	u.Fragment = ""
	return Routes{base: u, pretty: pretty}, nil
}

// MustRoutes is NewRoutes that panics on an invalid URL.
func MustRoutes(baseURL string, pretty bool) Routes {
	r, err := NewRoutes(baseURL, pretty)
	if err != nil {
		panic(err)
	}
	return r
}

// URL returns the absolute URL of a REST path such as PathCart.
func (r Routes) URL(path string) string {
	u := *r.base
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if r.pretty {
		u.Path = u.Path + "/wp-json" + path
		return u.String()
	}
	u.Path = u.Path + "/index.php"
	u.RawQuery = "rest_route=" + url.PathEscape(path)
	return u.String()
}

func (r Routes) Token() string          { return r.URL(PathToken) }
func (r Routes) TokenValidate() string  { return r.URL(PathTokenValidate) }
func (r Routes) TokenRefresh() string   { return r.URL(PathTokenRefresh) }
func (r Routes) UsersMe() string        { return r.URL(PathUsersMe) }
func (r Routes) Cart() string           { return r.URL(PathCart) }
func (r Routes) CartAddItem() string    { return r.URL(PathCartAddItem) }
func (r Routes) CartUpdateItem() string { return r.URL(PathCartUpdate) }
func (r Routes) CartRemoveItem() string { return r.URL(PathCartRemove) }

// RouteOf recovers the REST path from an incoming request URL in either
// permalink mode. Test servers use it to route fake endpoints.
func RouteOf(u *url.URL) string {
	if rr := u.Query().Get("rest_route"); rr != "" {
		return rr
	}
	if i := strings.Index(u.Path, "/wp-json"); i >= 0 {
		return u.Path[i+len("/wp-json"):]
	}
	return u.Path
}
