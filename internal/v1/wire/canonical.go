package wire

import (
	"crypto/sha256"
	"strconv"
	"strings"
)

// The Canonical* functions below produce a deterministic byte sequence for a
// signable frame variant. The field list and order are fixed per variant and exclude the
// signature field and any routing annotation (sender, target, receive-side
// fields) per the wire contract. The result is hashed with sha256 so every
// variant feeds SignatureService a fixed-size digest regardless of content
// length; client and server MUST agree on both the field list and this
// hashing step, or every signature silently fails to verify.

const fieldSep = "\x1f" // unit separator, never appears in user content

func canonicalHash(parts ...string) [32]byte {
	return sha256.Sum256([]byte(strings.Join(parts, fieldSep)))
}

// CanonicalChatMessage canonicalizes the fields of a chat message that the
// sender attests to: id, timestamp, sender display name, content, and the
// signer's public key. Attachment bytes are excluded (they can be large and
// are carried out-of-band of the signature; only their declared name, type
// and size are bound in, so changing any of those invalidates the signature,
// while replacing the bytes alone does not).
func CanonicalChatMessage(msg ChatMessage) [32]byte {
	parts := []string{
		"chat",
		msg.ID,
		strconv.FormatInt(msg.Timestamp, 10),
		msg.Sender,
		msg.Content,
		msg.PublicKey,
	}
	for _, a := range msg.Attachments {
		parts = append(parts, a.Name, a.Type, strconv.Itoa(a.Size))
	}
	return canonicalHash(parts...)
}

// CanonicalJoin canonicalizes the fields of a join frame: room and the
// joining user's name and public key.
func CanonicalJoin(f JoinFrame) [32]byte {
	return canonicalHash("join", f.Room, f.User.Name, f.User.PublicKey)
}

// CanonicalHTTPRequest canonicalizes a signed HTTP request per the wire
// contract: method, path, and the raw request body bytes verbatim. The
// signer's public key travels in a header, never in this digest, so a
// signature for one method+path+body combination cannot be replayed
// against a different endpoint or a tampered body.
func CanonicalHTTPRequest(method, path string, body []byte) [32]byte {
	return canonicalHash("http", method, path, string(body))
}

// CanonicalOffer canonicalizes the fields of an offer frame: id, the raw SDP
// offer body, target identity, room, and the signer's public key. sender is
// a server-observed annotation and is excluded.
func CanonicalOffer(f OfferFrame) [32]byte {
	return canonicalHash(
		"offer",
		f.ID,
		string(f.Offer),
		f.Target.Name,
		f.Target.PublicKey,
		f.Room,
		f.PublicKey,
	)
}
