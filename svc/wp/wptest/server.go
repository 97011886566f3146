// Package wptest runs an in-process WordPress/WooCommerce backend that
// speaks the JWT auth and Store API cart endpoints, for use in tests.
package wptest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/storefront/pkg/jwt"
	"github.com/dmitrymomot/storefront/svc/wp"
)

// UnitPrice is the price, in minor units, of every product.
const UnitPrice = 1000

// DefaultTokenTTL is the lifetime of signed tokens.
const DefaultTokenTTL = time.Hour

// Recorded is a request as seen by the server.
type Recorded struct {
	Method string
	Route  string
	Header http.Header
	Body   []byte
}

type account struct {
	password string
	token    string
	identity wp.Identity
	profile  wp.User
}

type failure struct {
	status int
	body   string
}

// Server is a fake WordPress site. Create it with New; it is closed
// automatically through t.Cleanup when created with NewT.
type Server struct {
	*httptest.Server
	Routes wp.Routes

	signer *jwt.Signer

	mu       sync.Mutex
	tokenTTL time.Duration
	accounts map[string]*account // by username
	tokens   map[string]string   // token -> username
	carts    map[string]*wp.Cart // by username, "" for guests
	nonceSeq int
	tokenSeq int
	nonces   map[string]bool
	fail     map[string][]failure
	holds    map[string]chan struct{}
	requests []Recorded
}

// New starts a server; Routes use rest_route mode.
func New() *Server {
	return start(false)
}

// NewPretty starts a server whose Routes use /wp-json permalinks.
func NewPretty() *Server {
	return start(true)
}

func start(pretty bool) *Server {
	signer, _ := jwt.NewSigner([]byte("wptest-signing-key"))
	s := &Server{
		signer:   signer,
		tokenTTL: DefaultTokenTTL,
		accounts: make(map[string]*account),
		tokens:   make(map[string]string),
		carts:    make(map[string]*wp.Cart),
		nonces:   make(map[string]bool),
		fail:     make(map[string][]failure),
		holds:    make(map[string]chan struct{}),
	}
	s.Server = httptest.NewServer(s.router())
	s.Routes = wp.MustRoutes(s.URL, pretty)
	return s
}

// Cleaner is the subset of testing.TB used by NewT.
type Cleaner interface {
	Cleanup(func())
}

// NewT starts a server that is closed when the test ends.
func NewT(t Cleaner) *Server {
	s := New()
	t.Cleanup(s.Close)
	return s
}

// SetTokenTTL changes the lifetime of tokens signed from now on.
func (s *Server) SetTokenTTL(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenTTL = d
}

// AddUser registers an account that receives token on login. An empty
// token makes the server issue signed JWTs like the real plugin does.
func (s *Server) AddUser(username, password, token string, id wp.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token == "" {
		token = s.signToken(len(s.accounts) + 1)
	}
	s.accounts[username] = &account{
		password: password,
		token:    token,
		identity: id,
		profile: wp.User{
			ID:         len(s.accounts) + 1,
			Name:       id.DisplayName,
			Slug:       id.Nicename,
			AvatarURLs: map[string]string{"96": "https://secure.gravatar.com/avatar/" + id.Nicename},
		},
	}
	s.tokens[token] = username
}

// Revoke invalidates a token.
func (s *Server) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
}

// SetNonce makes nonce the latest issued nonce. Subsequent nonces continue
// from its numeric suffix when it has the form "n-<seq>".
func (s *Server) SetNonce(nonce string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nonces[nonce] = true
	if i := strings.LastIndex(nonce, "-"); i >= 0 {
		if n, err := strconv.Atoi(nonce[i+1:]); err == nil {
			s.nonceSeq = n
		}
	}
}

// SeedCart puts qty units of product into username's cart.
func (s *Server) SeedCart(username string, product, qty int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addItem(username, product, qty)
}

// FailNext makes the next request to route answer with status and body.
// Calls queue up.
func (s *Server) FailNext(route string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[route] = append(s.fail[route], failure{status: status, body: body})
}

// Hold blocks requests to route until the returned release is called.
func (s *Server) Hold(route string) (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.holds[route] = ch
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.holds, route)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Requests returns the recorded requests for route, or all when route is "".
func (s *Server) Requests(route string) []Recorded {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Recorded
	for _, r := range s.requests {
		if route == "" || r.Route == route {
			out = append(out, r)
		}
	}
	return out
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(restRoute, s.intercept)
	r.NotFound(noRoute)
	r.MethodNotAllowed(noRoute)

	r.Route("/wp-json", func(r chi.Router) {
		r.Post(wp.PathToken, s.handleToken)
		r.Post(wp.PathTokenValidate, s.handleValidate)
		r.Post(wp.PathTokenRefresh, s.handleRefresh)
		r.Get(wp.PathUsersMe, s.handleMe)
		r.Get(wp.PathCart, s.handleCart)
		r.Post(wp.PathCartAddItem, s.handleMutation(wp.PathCartAddItem))
		r.Post(wp.PathCartUpdate, s.handleMutation(wp.PathCartUpdate))
		r.Post(wp.PathCartRemove, s.handleMutation(wp.PathCartRemove))
	})
	return r
}

// restRoute maps ?rest_route= requests onto the pretty permalink tree.
func restRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rr := r.URL.Query().Get("rest_route"); rr != "" {
			r.URL.Path = "/wp-json" + rr
			r.URL.RawPath = ""
		}
		next.ServeHTTP(w, r)
	})
}

// intercept records the request and applies holds and injected failures.
func (s *Server) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := wp.RouteOf(r.URL)
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))

		s.mu.Lock()
		s.requests = append(s.requests, Recorded{
			Method: r.Method,
			Route:  route,
			Header: r.Header.Clone(),
			Body:   body,
		})
		hold := s.holds[route]
		var f *failure
		if q := s.fail[route]; len(q) > 0 {
			f = &q[0]
			s.fail[route] = q[1:]
		}
		s.mu.Unlock()

		if hold != nil {
			select {
			case <-hold:
			case <-r.Context().Done():
				return
			}
		}

		if f != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(f.status)
			_, _ = io.WriteString(w, f.body)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func noRoute(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusNotFound, "rest_no_route", "No route was found matching the URL and request method.")
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var cred wp.Credentials
	if err := json.NewDecoder(r.Body).Decode(&cred); err != nil {
		writeError(w, http.StatusBadRequest, "rest_invalid_json", "Invalid JSON body passed.")
		return
	}

	s.mu.Lock()
	acc, ok := s.accounts[cred.Username]
	if !ok || acc.password != cred.Password {
		s.mu.Unlock()
		writeError(w, http.StatusForbidden, "[jwt_auth] incorrect_password",
			"<strong>Error:</strong> The password you entered for the username <strong>"+cred.Username+"</strong> is incorrect.")
		return
	}
	s.tokens[acc.token] = cred.Username
	resp := wp.TokenResponse{
		Token:           acc.token,
		UserEmail:       acc.identity.Email,
		UserNicename:    acc.identity.Nicename,
		UserDisplayName: acc.identity.DisplayName,
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, nil, resp)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.user(r); !ok {
		writeError(w, http.StatusForbidden, "jwt_auth_invalid_token", "Signature verification failed")
		return
	}
	writeJSON(w, http.StatusOK, nil, map[string]any{
		"code": wp.CodeValidToken,
		"data": map[string]int{"status": http.StatusOK},
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	username, ok := s.user(r)
	if !ok {
		writeError(w, http.StatusForbidden, "jwt_auth_invalid_token", "Signature verification failed")
		return
	}

	s.mu.Lock()
	acc := s.accounts[username]
	delete(s.tokens, acc.token)
	if _, err := jwt.Decode(acc.token); err == nil {
		acc.token = s.signToken(acc.profile.ID)
	} else {
		acc.token += ".r"
	}
	s.tokens[acc.token] = username
	resp := wp.TokenResponse{
		Token:           acc.token,
		UserEmail:       acc.identity.Email,
		UserNicename:    acc.identity.Nicename,
		UserDisplayName: acc.identity.DisplayName,
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, nil, resp)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	username, ok := s.user(r)
	if !ok || username == "" {
		writeError(w, http.StatusUnauthorized, "rest_not_logged_in", "You are not currently logged in.")
		return
	}
	s.mu.Lock()
	profile := s.accounts[username].profile
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, nil, profile)
}

func (s *Server) handleCart(w http.ResponseWriter, r *http.Request) {
	username, ok := s.user(r)
	if !ok {
		writeError(w, http.StatusForbidden, "jwt_auth_invalid_token", "Signature verification failed")
		return
	}

	s.mu.Lock()
	c := s.cartOf(username)
	nonce := s.issueNonce()
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, http.Header{wp.HeaderNonce: {nonce}}, c)
}

func (s *Server) handleMutation(route string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		s.mutate(w, r, route, body)
	}
}

func (s *Server) mutate(w http.ResponseWriter, r *http.Request, route string, body []byte) {
	username, ok := s.user(r)
	if !ok {
		writeError(w, http.StatusForbidden, "jwt_auth_invalid_token", "Signature verification failed")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nonce := r.Header.Get(wp.HeaderNonce)
	switch {
	case nonce == "":
		writeError(w, http.StatusUnauthorized, "woocommerce_rest_missing_nonce",
			"Missing the Nonce header. This endpoint requires a valid nonce.")
		return
	case !s.nonces[nonce]:
		writeError(w, http.StatusForbidden, "woocommerce_rest_invalid_nonce", "Nonce is invalid.")
		return
	}

	switch route {
	case wp.PathCartAddItem:
		var req wp.AddItemRequest
		if json.Unmarshal(body, &req) != nil || req.ID <= 0 || req.Quantity <= 0 {
			writeError(w, http.StatusBadRequest, "woocommerce_rest_cart_invalid_product", "This product cannot be added to the cart.")
			return
		}
		s.addItem(username, req.ID, req.Quantity)
	case wp.PathCartUpdate:
		var req wp.UpdateItemRequest
		if json.Unmarshal(body, &req) != nil || !s.setQuantity(username, req.Key, req.Quantity) {
			writeError(w, http.StatusNotFound, "woocommerce_rest_cart_invalid_key", "Cart item does not exist.")
			return
		}
	case wp.PathCartRemove:
		var req wp.RemoveItemRequest
		if json.Unmarshal(body, &req) != nil || !s.setQuantity(username, req.Key, 0) {
			writeError(w, http.StatusNotFound, "woocommerce_rest_cart_invalid_key", "Cart item does not exist.")
			return
		}
	}

	writeJSON(w, http.StatusCreated, http.Header{wp.HeaderNonce: {s.issueNonce()}}, s.cartOf(username))
}

// user resolves the bearer token. Requests without one are guests ("", true);
// an unknown token fails.
func (s *Server) user(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", true
	}
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	username, ok := s.tokens[token]
	return username, ok
}

// The helpers below require s.mu.

func (s *Server) signToken(userID int) string {
	s.tokenSeq++
	now := time.Now()
	tok, _ := s.signer.Sign(jwt.Claims{
		Issuer:    s.URL,
		Subject:   strconv.Itoa(s.tokenSeq),
		IssuedAt:  now.Unix(),
		NotBefore: now.Unix(),
		ExpiresAt: now.Add(s.tokenTTL).Unix(),
		Data:      []byte(fmt.Sprintf(`{"user":{"id":"%d"}}`, userID)),
	})
	return tok
}

func (s *Server) issueNonce() string {
	s.nonceSeq++
	n := fmt.Sprintf("n-%d", s.nonceSeq)
	s.nonces[n] = true
	return n
}

func (s *Server) cartOf(username string) wp.Cart {
	c, ok := s.carts[username]
	if !ok {
		empty := wp.EmptyCart()
		empty.Totals.CurrencyCode = "USD"
		return empty
	}
	out := *c
	out.Items = slices.Clone(c.Items)
	return out
}

func (s *Server) addItem(username string, product, qty int) {
	c := s.cartOf(username)
	key := fmt.Sprintf("item-%d", product)
	found := false
	for i := range c.Items {
		if c.Items[i].Key == key {
			c.Items[i].Quantity += qty
			found = true
		}
	}
	if !found {
		c.Items = append(c.Items, wp.CartItem{Key: key, ProductID: product, Name: fmt.Sprintf("Product %d", product), Quantity: qty})
	}
	s.store(username, c)
}

func (s *Server) setQuantity(username, key string, qty int) bool {
	c := s.cartOf(username)
	for i := range c.Items {
		if c.Items[i].Key != key {
			continue
		}
		if qty <= 0 {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
		} else {
			c.Items[i].Quantity = qty
		}
		s.store(username, c)
		return true
	}
	return false
}

func (s *Server) store(username string, c wp.Cart) {
	items := make([]wp.CartItem, 0, len(c.Items))
	var count, total int
	for _, it := range c.Items {
		line := it.Quantity * UnitPrice
		it.Totals = wp.CartItemTotals{
			LineSubtotal: wp.Amount(strconv.Itoa(line)),
			LineTotal:    wp.Amount(strconv.Itoa(line)),
		}
		items = append(items, it)
		count += it.Quantity
		total += line
	}
	c.Items = items
	c.ItemsCount = count
	c.Totals = wp.CartTotals{
		TotalItems:    wp.Amount(strconv.Itoa(total)),
		TotalPrice:    wp.Amount(strconv.Itoa(total)),
		TotalShipping: "0",
		TotalDiscount: "0",
		CurrencyCode:  "USD",
	}
	s.carts[username] = &c
}

func writeJSON(w http.ResponseWriter, status int, header http.Header, v any) {
	for k, vs := range header {
		for _, val := range vs {
			w.Header().Add(k, val)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	body := wp.ErrorBody{Code: code, Message: message}
	body.Data.Status = status
	writeJSON(w, status, nil, body)
}
