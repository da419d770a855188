package blob

import (
	"encoding/base64"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Logical paths accept any Unicode; physical keys must be safe for backends
// with restricted key charsets. Each path segment either passes through
// unchanged (safe charset, not starting with the reserved marker) or is
// rewritten to "u_<base64url-nopad(name)><ext>" with the last dot-extension
// kept visible for content-type inference.

const encodedMarker = "u_"

var (
	safeSegment = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
	safeExt     = regexp.MustCompile(`^\.[A-Za-z0-9_-]+$`)
	b64         = base64.RawURLEncoding
)

// EncodePath encodes every segment of a logical path.
func EncodePath(logical string) string {
	if logical == "" {
		return ""
	}
	segments := strings.Split(logical, "/")
	for i, seg := range segments {
		segments[i] = encodeSegment(seg)
	}
	return strings.Join(segments, "/")
}

// DecodePath is the inverse of EncodePath.
func DecodePath(physical string) string {
	if physical == "" {
		return ""
	}
	segments := strings.Split(physical, "/")
	for i, seg := range segments {
		segments[i] = decodeSegment(seg)
	}
	return strings.Join(segments, "/")
}

func encodeSegment(seg string) string {
	if seg == "" {
		return seg
	}
	if safeSegment.MatchString(seg) && !strings.HasPrefix(seg, encodedMarker) {
		return seg
	}
	// Idempotence over invertibility: a segment that already parses as an
	// encoding stays as-is, so EncodePath(EncodePath(p)) == EncodePath(p).
	// The cost is that a logical name which itself looks like an encoding
	// (marker prefix plus a valid base64url body, e.g. "u_aGk") decodes to
	// its base64 payload rather than back to itself.
	if _, ok := parseEncoded(seg); ok {
		return seg
	}
	name, ext := splitExt(seg)
	return encodedMarker + b64.EncodeToString([]byte(name)) + ext
}

func decodeSegment(seg string) string {
	if decoded, ok := parseEncoded(seg); ok {
		return decoded
	}
	return seg
}

// parseEncoded reports whether seg is a valid encoded segment, returning the
// decoded logical segment when it is.
func parseEncoded(seg string) (string, bool) {
	if !strings.HasPrefix(seg, encodedMarker) {
		return "", false
	}
	body, ext := splitExt(seg[len(encodedMarker):])
	raw, err := b64.DecodeString(body)
	if err != nil || !utf8.Valid(raw) {
		return "", false
	}
	return string(raw) + ext, true
}

// splitExt separates the last dot-extension when it is key-safe; unsafe
// extensions stay inside the encoded body.
func splitExt(seg string) (string, string) {
	idx := strings.LastIndex(seg, ".")
	if idx <= 0 {
		return seg, ""
	}
	ext := seg[idx:]
	if !safeExt.MatchString(ext) {
		return seg, ""
	}
	return seg[:idx], ext
}
