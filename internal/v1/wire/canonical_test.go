package wire

import "testing"

func TestCanonicalChatMessage_Deterministic(t *testing.T) {
	msg := ChatMessage{ID: "m1", Timestamp: 1000, Sender: "alice", Content: "hi", PublicKey: "02abc"}

	h1 := CanonicalChatMessage(msg)
	h2 := CanonicalChatMessage(msg)

	if h1 != h2 {
		t.Fatal("canonicalization of the same message must be deterministic")
	}
}

func TestCanonicalChatMessage_ExcludesSignatureAndState(t *testing.T) {
	base := ChatMessage{ID: "m1", Timestamp: 1000, Sender: "alice", Content: "hi", PublicKey: "02abc"}
	withSig := base
	withSig.Signature = "deadbeef"
	withSig.State = StateSaved

	if CanonicalChatMessage(base) != CanonicalChatMessage(withSig) {
		t.Fatal("signature and state must not affect canonical bytes")
	}
}

func TestCanonicalChatMessage_ContentChangesHash(t *testing.T) {
	a := ChatMessage{ID: "m1", Timestamp: 1000, Sender: "alice", Content: "hi", PublicKey: "02abc"}
	b := a
	b.Content = "bye"

	if CanonicalChatMessage(a) == CanonicalChatMessage(b) {
		t.Fatal("different content must produce different canonical hash")
	}
}

func TestCanonicalChatMessage_AttachmentMetadataBound(t *testing.T) {
	a := ChatMessage{ID: "m1", Timestamp: 1000, Sender: "alice", Content: "hi", PublicKey: "02abc"}
	b := a
	b.Attachments = []Attachment{{Name: "f.png", Type: "image/png", Size: 10}}

	if CanonicalChatMessage(a) == CanonicalChatMessage(b) {
		t.Fatal("attachment metadata must be bound into the canonical hash")
	}
}

func TestCanonicalJoin_ExcludesSignature(t *testing.T) {
	a := JoinFrame{Type: FrameJoin, Room: "r1", User: User{Name: "alice", PublicKey: "02abc"}}
	b := a
	b.Signature = "deadbeef"

	if CanonicalJoin(a) != CanonicalJoin(b) {
		t.Fatal("signature must not affect join canonicalization")
	}
}

func TestCanonicalJoin_RoomChangesHash(t *testing.T) {
	a := JoinFrame{Type: FrameJoin, Room: "r1", User: User{Name: "alice", PublicKey: "02abc"}}
	b := a
	b.Room = "r2"

	if CanonicalJoin(a) == CanonicalJoin(b) {
		t.Fatal("different room must produce different canonical hash")
	}
}

func TestCanonicalOffer_ExcludesSenderAndSignature(t *testing.T) {
	a := OfferFrame{
		Type:      FrameOffer,
		ID:        "o1",
		Offer:     []byte(`{"sdp":"v=0"}`),
		Target:    User{Name: "bob", PublicKey: "02bob"},
		Room:      "r1",
		PublicKey: "02alice",
	}
	b := a
	b.Sender = &User{Name: "alice", PublicKey: "02alice"}
	b.Signature = "deadbeef"

	if CanonicalOffer(a) != CanonicalOffer(b) {
		t.Fatal("sender annotation and signature must not affect offer canonicalization")
	}
}

func TestCanonicalHTTPRequest_Deterministic(t *testing.T) {
	h1 := CanonicalHTTPRequest("POST", "/api/admin/delete-room", []byte(`{"name":"lobby"}`))
	h2 := CanonicalHTTPRequest("POST", "/api/admin/delete-room", []byte(`{"name":"lobby"}`))
	if h1 != h2 {
		t.Fatal("canonicalization of the same request must be deterministic")
	}
}

func TestCanonicalHTTPRequest_PathBindsSignature(t *testing.T) {
	a := CanonicalHTTPRequest("POST", "/api/admin/delete-room", []byte(`{"name":"lobby"}`))
	b := CanonicalHTTPRequest("POST", "/api/admin/wipe-room", []byte(`{"name":"lobby"}`))
	if a == b {
		t.Fatal("different paths over the same body must hash differently")
	}
}

func TestCanonicalHTTPRequest_MethodBindsSignature(t *testing.T) {
	a := CanonicalHTTPRequest("POST", "/api/delete-message", []byte(`{"messageId":"m1"}`))
	b := CanonicalHTTPRequest("DELETE", "/api/delete-message", []byte(`{"messageId":"m1"}`))
	if a == b {
		t.Fatal("different methods over the same path and body must hash differently")
	}
}

func TestCanonicalHTTPRequest_BodyBindsSignature(t *testing.T) {
	a := CanonicalHTTPRequest("POST", "/api/admin/delete-room", []byte(`{"name":"lobby"}`))
	b := CanonicalHTTPRequest("POST", "/api/admin/delete-room", []byte(`{"name":"other"}`))
	if a == b {
		t.Fatal("different bodies over the same method and path must hash differently")
	}
}

func TestPeekType(t *testing.T) {
	raw := []byte(`{"type":"join","room":"r1"}`)
	ft, err := PeekType(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ft != FrameJoin {
		t.Fatalf("expected join, got %s", ft)
	}
}

func TestPeekType_MissingType(t *testing.T) {
	raw := []byte(`{"room":"r1"}`)
	if _, err := PeekType(raw); err == nil {
		t.Fatal("expected error for missing type discriminator")
	}
}

func TestDecodeJoin(t *testing.T) {
	raw := []byte(`{"type":"join","room":"r1","user":{"name":"alice","publicKey":"02abc"},"signature":"sig"}`)
	f, ok := DecodeJoin(raw)
	if !ok {
		t.Fatal("expected successful decode")
	}
	if f.Room != "r1" || f.User.PublicKey != "02abc" {
		t.Fatalf("unexpected decode result: %+v", f)
	}
}
