package cloudkit

import "testing"

func TestTokenEnvelopeRoundTrip(t *testing.T) {
	tok := Token{AccessToken: "A1", RefreshToken: "R1"}
	encoded, err := EncodeTokenEnvelope("dropbox", tok)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	label, decoded, err := DecodeTokenEnvelope(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if label != "dropbox" || decoded != tok {
		t.Fatalf("round trip mismatch: got (%s, %+v)", label, decoded)
	}
}

func TestTokenEnvelopeAcceptsRawJSON(t *testing.T) {
	raw := `{"p":"amazons3","t":"A2","r":"R2"}`
	label, tok, err := DecodeTokenEnvelope(raw)
	if err != nil {
		t.Fatalf("decode raw: %v", err)
	}
	if label != "amazons3" || tok.AccessToken != "A2" || tok.RefreshToken != "R2" {
		t.Fatalf("unexpected decode: %s %+v", label, tok)
	}
}
