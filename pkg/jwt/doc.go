// Package jwt inspects the HS256 tokens issued by the WordPress JWT auth
// plugin.
//
// The client cannot verify tokens (the key stays on the server), but it can
// read their claims to see when a token expires:
//
//	claims, err := jwt.Decode(token)
//	if err == nil && claims.ExpiresWithin(time.Now(), 5*time.Minute) {
//		// refresh now
//	}
//
// Signer implements the server side (Sign, Verify) and is used by the
// in-process test backend.
package jwt
