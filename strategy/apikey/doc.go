// Package apikey provides a stateless API key Strategy.
//
// Keys are read from a request header (X-API-Key by default), hashed with
// SHA-256 and looked up in a Store. Only hashes are stored; HashKey produces
// the value to register. A matching, unexpired key yields an *auth.Identity
// whose claims carry the key's metadata and key_id.
package apikey
