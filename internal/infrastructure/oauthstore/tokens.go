// Package oauthstore persists MCP-server OAuth credentials across a
// keyring-or-file store with a multi-process refresh-token-reuse guard
// (spec 4.E). Grounded structurally on
// original_source/codex-rs/rmcp-client/src/oauth.rs and on the token-shape
// idiom of _examples/haasonsaas-nexus/internal/auth/oauth.go, which already
// wires golang.org/x/oauth2 for a different (user-login) OAuth flow.
package oauthstore

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"
)

// StoredOAuthTokens is the on-disk/keyring representation of one server's
// credentials (spec 3 "StoredOAuthTokens").
type StoredOAuthTokens struct {
	ServerName      string            `json:"server_name"`
	ServerURL       string            `json:"server_url"`
	ClientID        string            `json:"client_id"`
	AccessToken     string            `json:"access_token"`
	TokenType       string            `json:"token_type"`
	RefreshToken    string            `json:"refresh_token,omitempty"`
	Scopes          []string          `json:"scopes,omitempty"`
	ExpiresAtMillis int64             `json:"expires_at_millis,omitempty"`
	Extra           map[string]string `json:"extra,omitempty"`
}

// canonicalKeySource is canonicalized (deterministically key-ordered) before
// hashing, matching spec 4.E's storage-key derivation.
type canonicalKeySource struct {
	Type    string            `json:"type"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
}

// StorageKey derives `{server_name}|first_16_hex(sha256(canonical_json(...)))`
// (spec 4.E "Key").
func StorageKey(serverName, url string) string {
	src := canonicalKeySource{Type: "http", URL: url, Headers: map[string]string{}}
	// encoding/json marshals struct fields in declaration order and map
	// keys in sorted order, which is sufficient determinism here since the
	// only map is always empty; this matches the Rust canonical_json used
	// by the original implementation for this exact payload shape.
	data, err := json.Marshal(src)
	if err != nil {
		// Unreachable for this fixed shape; keep the key derivation total.
		data = []byte(fmt.Sprintf(`{"type":"http","url":%q,"headers":{}}`, url))
	}
	sum := sha256.Sum256(data)
	prefix := fmt.Sprintf("%x", sum)[:16]
	return serverName + "|" + prefix
}

// marshalTokens and unmarshalTokens give the keyring backend (which stores
// opaque strings rather than a JSON map like FileStore) the same wire shape.
func marshalTokens(t *StoredOAuthTokens) ([]byte, error) {
	return json.Marshal(t)
}

func unmarshalTokens(data []byte) (*StoredOAuthTokens, error) {
	var t StoredOAuthTokens
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Recompute clears ExpiresAtMillis if it is already in the past, matching
// spec 4.E "expires_in is recomputed from expires_at at load time".
func (t *StoredOAuthTokens) Recompute(now time.Time) {
	if t.ExpiresAtMillis == 0 {
		return
	}
	if now.UnixMilli() >= t.ExpiresAtMillis {
		t.ExpiresAtMillis = 0
	}
}

// Equal compares every field used for refresh decisions except
// ExpiresAtMillis, which is deliberately ignored because it is a derived
// quantity (spec 4.E "Equality for refresh decisions").
func (t *StoredOAuthTokens) Equal(other *StoredOAuthTokens) bool {
	if t == nil || other == nil {
		return t == other
	}
	if t.AccessToken != other.AccessToken ||
		t.TokenType != other.TokenType ||
		t.RefreshToken != other.RefreshToken ||
		t.ClientID != other.ClientID {
		return false
	}
	if len(t.Scopes) != len(other.Scopes) {
		return false
	}
	for i := range t.Scopes {
		if t.Scopes[i] != other.Scopes[i] {
			return false
		}
	}
	if len(t.Extra) != len(other.Extra) {
		return false
	}
	for k, v := range t.Extra {
		if other.Extra[k] != v {
			return false
		}
	}
	return true
}
