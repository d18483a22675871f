// Package adminapi implements the admin-gated HTTP mutators: delete room,
// delete message, delete attachment, block user, room/attachment listings,
// and the create-test-data smoke endpoint.
package adminapi

import (
	"bytes"
	"crypto/subtle"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/roomfabric/hub/internal/v1/identity"
	"github.com/roomfabric/hub/internal/v1/logging"
	"github.com/roomfabric/hub/internal/v1/ratelimit"
	"github.com/roomfabric/hub/internal/v1/wire"
)

// signerContextKey is where RequireAdmin stashes the verified signer's
// public key so handlers never re-parse or re-verify the request.
const signerContextKey = "admin_signer_public_key"

// RequireAdmin implements the HTTP signature scheme from spec §6: the
// signer's public key and detached signature travel in the
// wire.HeaderPublicKey/wire.HeaderSignature headers, and the signature
// covers a canonicalization of the request method, path, and raw body.
// Once verified, the signer is additionally compared against the
// configured admin key in constant time. Requests that fail either check
// are rejected with 401 before any handler runs.
func RequireAdmin(adminPubKeyHex string) gin.HandlerFunc {
	return func(c *gin.Context) {
		publicKey := c.GetHeader(wire.HeaderPublicKey)
		signature := c.GetHeader(wire.HeaderSignature)
		if publicKey == "" || signature == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing signature headers"})
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "could not read request body"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		digest := wire.CanonicalHTTPRequest(c.Request.Method, c.Request.URL.Path, body)
		if err := identity.Verify(publicKey, signature, digest); err != nil {
			logging.Warn(c.Request.Context(), "adminapi: signature verification failed")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}

		if subtle.ConstantTimeCompare([]byte(publicKey), []byte(adminPubKeyHex)) != 1 {
			logging.Warn(c.Request.Context(), "adminapi: signer is not the admin key")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not an admin key"})
			return
		}

		c.Set(signerContextKey, publicKey)
		c.Set(ratelimit.PublicKeyContextKey, publicKey)
		c.Next()
	}
}

// signerPublicKey returns the public key RequireAdmin already verified for
// this request.
func signerPublicKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(signerContextKey)
	if !ok {
		return "", false
	}
	key, ok := v.(string)
	return key, ok
}
