package ingest

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// fingerprintFields are the identity-bearing fields of a score record,
// in the order they are concatenated before hashing.
var fingerprintFields = [4]string{"id", "user_id", "beatmap_id", "created_at"}

// Fingerprint derives a stable digest from the identity fields of a score
// record. Missing fields contribute an empty string, so it never fails.
// The same logical record hashes identically whether it came fresh from
// the API or was re-read from the CSV file.
func Fingerprint(rec map[string]any) string {
	var b strings.Builder
	for _, field := range fingerprintFields {
		b.WriteString(Stringify(rec[field]))
	}
	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// FingerprintRow computes the same digest from a CSV row's columns.
func FingerprintRow(cols map[string]string) string {
	var b strings.Builder
	for _, field := range fingerprintFields {
		b.WriteString(cols[field])
	}
	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Stringify coerces a decoded JSON scalar to its string form. Numbers are
// decoded as json.Number upstream, so their textual form survives verbatim.
// Non-scalar values fall back to their JSON encoding.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(data)
	}
}
