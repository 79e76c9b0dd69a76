package osu

import (
	"strconv"

	json "github.com/goccy/go-json"
)

// Score is one score record from the API. The API's shape varies by game
// mode and grows new fields over time, so records stay semi-structured:
// scalars, one level of nested objects (statistics etc.) and the mods
// list. Numbers are decoded as json.Number so ids keep their exact
// textual form.
type Score map[string]any

// Str returns the string form of a scalar field, empty if absent.
func (s Score) Str(key string) string {
	switch v := s[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// UserID returns the numeric user_id, or false if absent/non-numeric.
func (s Score) UserID() (int64, bool) {
	switch v := s["user_id"].(type) {
	case json.Number:
		id, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return id, true
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, false
		}
		return id, true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

// tokenResponse is the OAuth token endpoint's success body.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}
