package httpx

import (
	"net/http"
	"strconv"
)

// ActorID identifies the back-office user a request runs on behalf of.
// The gateway in front of this service injects the header; absent or
// malformed values degrade to the anonymous actor 0.
func ActorID(r *http.Request) int64 {
	id, err := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// IdempotencyKey returns the client-chosen Idempotency-Key header, or
// the empty string when the client did not ask for replay protection.
func IdempotencyKey(r *http.Request) string {
	return r.Header.Get("Idempotency-Key")
}

// URLParamInt64 parses a numeric path parameter already extracted by
// the router.
func URLParamInt64(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
