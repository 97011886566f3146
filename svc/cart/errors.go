package cart

import "errors"

var (
	ErrInvalidProduct  = errors.New("cart: invalid product id")
	ErrInvalidQuantity = errors.New("cart: quantity must be positive")
	ErrInvalidItemKey  = errors.New("cart: empty item key")
	ErrStaleResponse   = errors.New("cart: response belongs to a cleared cart")
)
