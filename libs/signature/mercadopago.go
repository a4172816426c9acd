// Package signature validates Mercado Pago webhook notifications.
//
// Mercado Pago signs each notification with HMAC-SHA256 over a manifest
// built from the notified resource id, the x-request-id header and the
// timestamp carried in x-signature:
//
//	id:{data.id};request-id:{x-request-id};ts:{ts};
//
// Parts whose value is absent are left out of the manifest.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderSignature = "X-Signature"
	HeaderRequestID = "X-Request-Id"
	QueryDataID     = "data.id"
)

var (
	ErrNotConfigured      = errors.New("webhook secret not configured")
	ErrMissingSignature   = errors.New("missing x-signature header")
	ErrMalformedSignature = errors.New("malformed x-signature header")
	ErrInvalidSignature   = errors.New("invalid signature")
	ErrTimestampTolerance = errors.New("signature timestamp outside tolerance")
)

// Header is the parsed x-signature value.
type Header struct {
	TS string
	V1 string
}

// ParseHeader reads "ts=<ts>,v1=<hex>". Unknown keys are ignored; both ts
// and v1 are required.
func ParseHeader(raw string) (Header, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Header{}, ErrMissingSignature
	}
	var h Header
	for _, part := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return Header{}, fmt.Errorf("%w: %q", ErrMalformedSignature, part)
		}
		switch strings.TrimSpace(key) {
		case "ts":
			h.TS = strings.TrimSpace(value)
		case "v1":
			h.V1 = strings.ToLower(strings.TrimSpace(value))
		}
	}
	if h.TS == "" || h.V1 == "" {
		return Header{}, fmt.Errorf("%w: ts and v1 are required", ErrMalformedSignature)
	}
	if _, err := hex.DecodeString(h.V1); err != nil {
		return Header{}, fmt.Errorf("%w: v1 is not hex", ErrMalformedSignature)
	}
	return h, nil
}

// NormalizeDataID lower-cases alphanumeric ids, as Mercado Pago does when
// signing.
func NormalizeDataID(id string) string {
	id = strings.TrimSpace(id)
	for _, r := range id {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return id
		}
	}
	return strings.ToLower(id)
}

func Manifest(dataID, requestID, ts string) string {
	var b strings.Builder
	if dataID != "" {
		b.WriteString("id:" + dataID + ";")
	}
	if requestID != "" {
		b.WriteString("request-id:" + requestID + ";")
	}
	if ts != "" {
		b.WriteString("ts:" + ts + ";")
	}
	return b.String()
}

// Sign returns the lower-case hex HMAC-SHA256 of manifest.
func Sign(secret, manifest string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(manifest))
	return hex.EncodeToString(mac.Sum(nil))
}

// Notification is what a verified request identifies.
type Notification struct {
	DataID    string
	RequestID string
	Timestamp time.Time
}

type Verifier struct {
	Secret string
	// Tolerance bounds the age of ts. Zero disables the check.
	Tolerance time.Duration
	Now       func() time.Time
}

// VerifyRequest checks the signature of an incoming notification. The body
// is not part of the manifest and is left unread.
func (v Verifier) VerifyRequest(r *http.Request) (Notification, error) {
	return v.Verify(
		r.Header.Get(HeaderSignature),
		r.Header.Get(HeaderRequestID),
		r.URL.Query().Get(QueryDataID),
	)
}

func (v Verifier) Verify(signatureHeader, requestID, dataID string) (Notification, error) {
	if v.Secret == "" {
		return Notification{}, ErrNotConfigured
	}
	h, err := ParseHeader(signatureHeader)
	if err != nil {
		return Notification{}, err
	}
	n := Notification{
		DataID:    NormalizeDataID(dataID),
		RequestID: strings.TrimSpace(requestID),
	}

	expected := Sign(v.Secret, Manifest(n.DataID, n.RequestID, h.TS))
	if !hmac.Equal([]byte(expected), []byte(h.V1)) {
		return Notification{}, ErrInvalidSignature
	}

	ts, err := parseTimestamp(h.TS)
	if err != nil {
		return Notification{}, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	n.Timestamp = ts
	if v.Tolerance > 0 {
		now := time.Now
		if v.Now != nil {
			now = v.Now
		}
		if age := now().Sub(ts); age > v.Tolerance || age < -v.Tolerance {
			return Notification{}, ErrTimestampTolerance
		}
	}
	return n, nil
}

// parseTimestamp accepts unix seconds or milliseconds.
func parseTimestamp(ts string) (time.Time, error) {
	n, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || n <= 0 {
		return time.Time{}, fmt.Errorf("ts %q is not a unix timestamp", ts)
	}
	if n >= 1e12 {
		return time.UnixMilli(n).UTC(), nil
	}
	return time.Unix(n, 0).UTC(), nil
}

// SignatureHeader renders an x-signature value. Used by tests and the
// webhook simulator.
func SignatureHeader(secret, dataID, requestID string, ts time.Time) string {
	tsStr := strconv.FormatInt(ts.Unix(), 10)
	v1 := Sign(secret, Manifest(NormalizeDataID(dataID), requestID, tsStr))
	return "ts=" + tsStr + ",v1=" + v1
}
