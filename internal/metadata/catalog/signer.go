package catalog

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
	"time"
)

// SigV4 constants.
const (
	Algorithm       = "AWS4-HMAC-SHA256"
	AmzDateFormat   = "20060102T150405Z"
	shortDateFormat = "20060102"
	scopeTerminator = "aws4_request"
)

// Credentials are the long-lived key pair used to sign requests.
type Credentials struct {
	AccessKey string
	SecretKey string
}

// SigningInput is everything that goes into a signature. Path is the escaped
// request path as sent on the wire; RawQuery is the encoded query string.
// Headers must include host and x-amz-date; every header given is signed.
type SigningInput struct {
	Method   string
	Path     string
	RawQuery string
	Headers  map[string]string
	Payload  []byte
	Region   string
	Service  string
	Time     time.Time
}

// Signature is the result of Sign. The intermediate strings are kept for
// debugging rejected requests.
type Signature struct {
	Authorization    string
	Signature        string
	CredentialScope  string
	SignedHeaders    string
	CanonicalRequest string
	StringToSign     string
}

// Sign computes an AWS Signature Version 4 for in. It performs no I/O.
func Sign(in SigningInput, creds Credentials) Signature {
	t := in.Time.UTC()
	date := t.Format(shortDateFormat)
	scope := strings.Join([]string{date, in.Region, in.Service, scopeTerminator}, "/")

	signedHeaders, canonicalHeaders := canonicalHeaders(in.Headers)
	canonicalRequest := strings.Join([]string{
		in.Method,
		canonicalURI(in.Path),
		canonicalQuery(in.RawQuery),
		canonicalHeaders,
		signedHeaders,
		HashPayload(in.Payload),
	}, "\n")

	stringToSign := strings.Join([]string{
		Algorithm,
		t.Format(AmzDateFormat),
		scope,
		hexSHA256([]byte(canonicalRequest)),
	}, "\n")

	key := SigningKey(creds.SecretKey, date, in.Region, in.Service)
	sig := hex.EncodeToString(hmacSHA256(key, []byte(stringToSign)))

	return Signature{
		Authorization: Algorithm +
			" Credential=" + creds.AccessKey + "/" + scope +
			", SignedHeaders=" + signedHeaders +
			", Signature=" + sig,
		Signature:        sig,
		CredentialScope:  scope,
		SignedHeaders:    signedHeaders,
		CanonicalRequest: canonicalRequest,
		StringToSign:     stringToSign,
	}
}

// SigningKey derives the request signing key:
// HMAC(HMAC(HMAC(HMAC("AWS4"+secret, date), region), service), "aws4_request").
func SigningKey(secret, date, region, service string) []byte {
	k := hmacSHA256([]byte("AWS4"+secret), []byte(date))
	k = hmacSHA256(k, []byte(region))
	k = hmacSHA256(k, []byte(service))
	return hmacSHA256(k, []byte(scopeTerminator))
}

// HashPayload returns the hex SHA-256 of the raw request body.
func HashPayload(payload []byte) string {
	return hexSHA256(payload)
}

// canonicalHeaders lower-cases names, trims values and collapses inner
// runs of spaces, and sorts by name.
func canonicalHeaders(headers map[string]string) (signed, canonical string) {
	names := make([]string, 0, len(headers))
	values := make(map[string]string, len(headers))
	for k, v := range headers {
		name := strings.ToLower(strings.TrimSpace(k))
		names = append(names, name)
		values[name] = collapseSpaces(v)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteByte(':')
		b.WriteString(values[name])
		b.WriteByte('\n')
	}
	return strings.Join(names, ";"), b.String()
}

func collapseSpaces(s string) string {
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool { return r == ' ' }), " ")
}

// canonicalQuery sorts keys and values and encodes spaces as %20.
func canonicalQuery(raw string) string {
	if raw == "" {
		return ""
	}
	q, err := url.ParseQuery(raw)
	if err != nil {
		return raw
	}
	for k := range q {
		sort.Strings(q[k])
	}
	return strings.ReplaceAll(q.Encode(), "+", "%20")
}

// canonicalURI URI-encodes every byte outside the unreserved set, keeping
// slashes. An already escaped path is encoded again, as the service expects.
func canonicalURI(path string) string {
	if path == "" {
		return "/"
	}
	const hexDigits = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(path); i++ {
		c := path[i]
		if isUnreserved(c) || c == '/' {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0x0f])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	return 'A' <= c && c <= 'Z' ||
		'a' <= c && c <= 'z' ||
		'0' <= c && c <= '9' ||
		c == '-' || c == '_' || c == '.' || c == '~'
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

func hexSHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
