package wp

import (
	"encoding/json"
	"regexp"
	"strings"
)

// CodeValidToken is the only validate response code treated as valid.
const CodeValidToken = "jwt_auth_valid_token"

// Credentials is the token endpoint request body.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse is returned by the token and refresh endpoints.
type TokenResponse struct {
	Token           string `json:"token"`
	UserEmail       string `json:"user_email"`
	UserNicename    string `json:"user_nicename"`
	UserDisplayName string `json:"user_display_name"`
}

// Identity returns the user identity fields carried by the token response.
func (t TokenResponse) Identity() Identity {
	return Identity{
		Email:       t.UserEmail,
		Nicename:    t.UserNicename,
		DisplayName: t.UserDisplayName,
	}
}

// Identity is the minimal user description issued with a token.
type Identity struct {
	Email       string `json:"email"`
	Nicename    string `json:"nicename"`
	DisplayName string `json:"display_name"`
}

// IsZero reports an empty identity.
func (i Identity) IsZero() bool {
	return i == Identity{}
}

// ValidateResponse is returned by the validate endpoint.
type ValidateResponse struct {
	Code string `json:"code"`
	Data struct {
		Status int `json:"status"`
	} `json:"data"`
}

// User is the profile returned by /wp/v2/users/me.
type User struct {
	ID          int               `json:"id"`
	Name        string            `json:"name"`
	Slug        string            `json:"slug"`
	Description string            `json:"description,omitempty"`
	Link        string            `json:"link,omitempty"`
	AvatarURLs  map[string]string `json:"avatar_urls,omitempty"`
}

// ErrorBody is the WordPress REST error envelope.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Status int `json:"status"`
	} `json:"data"`
}

var htmlTag = regexp.MustCompile(`<[^>]*>`)

// ParseErrorMessage extracts a human readable message from an error body.
// The JWT plugin wraps some messages in HTML, which is stripped.
func ParseErrorMessage(body []byte) (string, bool) {
	var eb ErrorBody
	if len(body) == 0 || json.Unmarshal(body, &eb) != nil {
		return "", false
	}
	msg := strings.TrimSpace(htmlTag.ReplaceAllString(eb.Message, ""))
	if msg == "" {
		return "", false
	}
	return msg, true
}
