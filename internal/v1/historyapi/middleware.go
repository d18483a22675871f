// Package historyapi implements the unauthenticated read endpoints plus the
// two owner-signed write endpoints (bulk send, delete-own-message) described
// for HistoryAPI.
package historyapi

import (
	"bytes"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/roomfabric/hub/internal/v1/identity"
	"github.com/roomfabric/hub/internal/v1/logging"
	"github.com/roomfabric/hub/internal/v1/ratelimit"
	"github.com/roomfabric/hub/internal/v1/wire"
)

const signerContextKey = "history_signer_public_key"

// RequireSigned verifies the same HTTP signature scheme as
// adminapi.RequireAdmin (public key and signature in headers, signature
// over method+path+body) but, unlike RequireAdmin, makes no claim about
// whose key it is: any holder of a key pair may call send-messages or
// delete their own message. Authorization beyond "this really is a
// signature" is the individual handler's job (e.g. delete-message's
// owner-or-admin check).
func RequireSigned() gin.HandlerFunc {
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
			logging.Warn(c.Request.Context(), "historyapi: signature verification failed")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}

		c.Set(signerContextKey, publicKey)
		c.Set(ratelimit.PublicKeyContextKey, publicKey)
		c.Next()
	}
}

// signerPublicKey returns the public key RequireSigned already verified for
// this request.
func signerPublicKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(signerContextKey)
	if !ok {
		return "", false
	}
	key, ok := v.(string)
	return key, ok
}
