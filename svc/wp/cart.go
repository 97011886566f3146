package wp

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
)

// Nonce headers. Requests always send HeaderNonce; responses are checked in
// NonceResponseHeaders order because different Store API versions use
// different names.
const HeaderNonce = "Nonce"

var NonceResponseHeaders = []string{"Nonce", "X-WC-Store-API-Nonce", "X-WP-Nonce"}

// NonceFromHeader returns the first nonce found in h.
func NonceFromHeader(h http.Header) (string, bool) {
	for _, name := range NonceResponseHeaders {
		if v := h.Get(name); v != "" {
			return v, true
		}
	}
	return "", false
}

// Amount is a monetary value in minor units. The Store API sends strings,
// older endpoints numbers; both decode, null and garbage decode to "0".
type Amount string

func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0, bytes.Equal(b, []byte("null")):
		*a = "0"
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil || s == "" {
			*a = "0"
			return nil
		}
		*a = Amount(s)
	default:
		if _, err := strconv.ParseFloat(string(b), 64); err != nil {
			*a = "0"
			return nil
		}
		*a = Amount(b)
	}
	return nil
}

// Int returns the amount as an integer, or 0 when it is not one.
func (a Amount) Int() int64 {
	n, err := strconv.ParseInt(string(a), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func (a Amount) orZero() Amount {
	if a == "" {
		return "0"
	}
	return a
}

// Cart is the Store API cart, trimmed to the fields the client uses.
type Cart struct {
	Items      []CartItem `json:"items"`
	Totals     CartTotals `json:"totals"`
	ItemsCount int        `json:"items_count"`
}

// CartItem is a single cart line.
type CartItem struct {
	Key       string         `json:"key"`
	ProductID int            `json:"id"`
	Name      string         `json:"name,omitempty"`
	Quantity  int            `json:"quantity"`
	Totals    CartItemTotals `json:"totals"`
}

// LineTotal is the line total in minor units.
func (i CartItem) LineTotal() Amount {
	return i.Totals.LineTotal
}

type CartItemTotals struct {
	LineSubtotal Amount `json:"line_subtotal"`
	LineTotal    Amount `json:"line_total"`
}

type CartTotals struct {
	TotalItems    Amount `json:"total_items"`
	TotalPrice    Amount `json:"total_price"`
	TotalShipping Amount `json:"total_shipping"`
	TotalDiscount Amount `json:"total_discount"`
	CurrencyCode  string `json:"currency_code,omitempty"`
}

// EmptyCart is the sentinel used whenever there is no synced cart.
func EmptyCart() Cart {
	return Cart{
		Items: []CartItem{},
		Totals: CartTotals{
			TotalItems:    "0",
			TotalPrice:    "0",
			TotalShipping: "0",
			TotalDiscount: "0",
		},
	}
}

// Normalize returns a copy with every absent sub-field defaulted, so callers
// never see nil slices or empty amounts.
func (c Cart) Normalize() Cart {
	out := Cart{
		Items:      make([]CartItem, 0, len(c.Items)),
		ItemsCount: max(c.ItemsCount, 0),
		Totals: CartTotals{
			TotalItems:    c.Totals.TotalItems.orZero(),
			TotalPrice:    c.Totals.TotalPrice.orZero(),
			TotalShipping: c.Totals.TotalShipping.orZero(),
			TotalDiscount: c.Totals.TotalDiscount.orZero(),
			CurrencyCode:  c.Totals.CurrencyCode,
		},
	}
	for _, it := range c.Items {
		it.Totals.LineSubtotal = it.Totals.LineSubtotal.orZero()
		it.Totals.LineTotal = it.Totals.LineTotal.orZero()
		out.Items = append(out.Items, it)
	}
	return out
}

// AddItemRequest is the add-item body.
type AddItemRequest struct {
	ID       int `json:"id"`
	Quantity int `json:"quantity"`
}

// UpdateItemRequest is the update-item body.
type UpdateItemRequest struct {
	Key      string `json:"key"`
	Quantity int    `json:"quantity"`
}

// RemoveItemRequest is the remove-item body.
type RemoveItemRequest struct {
	Key string `json:"key"`
}

// Store API error codes for a missing or expired nonce. They come with a
// 401/403 status but say nothing about the bearer token.
const (
	CodeMissingNonce = "woocommerce_rest_missing_nonce"
	CodeInvalidNonce = "woocommerce_rest_invalid_nonce"
)

// IsNonceError reports whether an error body is a nonce rejection.
func IsNonceError(body []byte) bool {
	var eb ErrorBody
	if len(body) == 0 || json.Unmarshal(body, &eb) != nil {
		return false
	}
	return eb.Code == CodeMissingNonce || eb.Code == CodeInvalidNonce
}
