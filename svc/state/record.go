package state

import (
	"maps"
	"slices"
	"time"

	"github.com/dmitrymomot/storefront/svc/wp"
)

// CurrentVersion is the record layout written by this package. Records with
// any other version are discarded on load.
const CurrentVersion = 1

// Record is everything persisted between runs, stored as one JSON document.
type Record struct {
	Version int         `json:"v"`
	Token   string      `json:"token,omitempty"`
	User    wp.Identity `json:"user"`
	Profile *wp.User    `json:"profile,omitempty"`
	Cart    *wp.Cart    `json:"cart,omitempty"`
	Nonce   string      `json:"nonce,omitempty"`
	SavedAt time.Time   `json:"saved_at"`
}

// IsZero reports a record carrying no state at all.
func (r Record) IsZero() bool {
	return r.Token == "" && r.User.IsZero() && r.Profile == nil && r.Cart == nil && r.Nonce == ""
}

// enforce keeps dependent fields consistent: without a token nothing tied
// to the user may survive.
func (r *Record) enforce() {
	if r.Token != "" {
		return
	}
	r.User = wp.Identity{}
	r.Profile = nil
	r.Cart = nil
	r.Nonce = ""
}

func (r Record) clone() Record {
	out := r
	if r.Profile != nil {
		p := *r.Profile
		p.AvatarURLs = maps.Clone(r.Profile.AvatarURLs)
		out.Profile = &p
	}
	if r.Cart != nil {
		c := *r.Cart
		c.Items = slices.Clone(r.Cart.Items)
		out.Cart = &c
	}
	return out
}
