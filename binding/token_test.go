package binding

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"qrmark-backend/fingerprint"
	"qrmark-backend/models"
)

var tokenTestMeta = models.DocumentMetadata{
	Type:           ".pdf",
	ParagraphCount: 5,
	ImageCount:     2,
	Author:         "author",
	Size:           1024,
	ModifiedTime:   1700000000,
}

func testAuthority(t *testing.T) *Authority {
	t.Helper()
	key := bytes.Repeat([]byte{0x42}, KeyLength)
	a, err := NewAuthority(key)
	if err != nil {
		t.Fatalf("failed to create authority: %v", err)
	}
	return a
}

func testFingerprint(t *testing.T, document []byte) *fingerprint.Fingerprint {
	t.Helper()
	fp, err := fingerprint.Compute(document, tokenTestMeta, time.Unix(1700000100, 0))
	if err != nil {
		t.Fatalf("failed to fingerprint: %v", err)
	}
	return fp
}

func TestIssueAndVerify(t *testing.T) {
	a := testAuthority(t)
	doc := []byte("the bound document")
	fp := testFingerprint(t, doc)

	token, err := a.Issue("payload data", fp, time.Hour)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	res, err := a.Verify(token, doc, "payload data")
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !res.Valid {
		t.Error("token should verify as valid")
	}
	if res.Level != models.SecuritySecure {
		t.Errorf("security level: got %v, want secure", res.Level)
	}
	if res.FingerprintID != fp.FingerprintID {
		t.Errorf("fingerprint id: got %q, want %q", res.FingerprintID, fp.FingerprintID)
	}
}

func TestVerifyTamperedPayload(t *testing.T) {
	a := testAuthority(t)
	doc := []byte("the bound document")
	token, err := a.Issue("payload data", testFingerprint(t, doc), time.Hour)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	// Rewrite the bound payload inside the envelope without re-signing.
	envJSON, _ := base64.StdEncoding.DecodeString(token)
	var env struct {
		Payload   string `json:"payload"`
		Signature string `json:"signature"`
		Version   string `json:"version"`
	}
	if err := json.Unmarshal(envJSON, &env); err != nil {
		t.Fatalf("failed to parse envelope: %v", err)
	}
	raw, _ := base64.StdEncoding.DecodeString(env.Payload)
	raw = bytes.Replace(raw, []byte("payload data"), []byte("payload atad"), 1)
	env.Payload = base64.StdEncoding.EncodeToString(raw)
	forgedJSON, _ := json.Marshal(env)
	forged := base64.StdEncoding.EncodeToString(forgedJSON)

	res, err := a.Verify(forged, doc, "payload atad")
	if !errors.Is(err, ErrTokenTampered) {
		t.Fatalf("tampered token: got %v, want ErrTokenTampered", err)
	}
	if res.Valid || res.Level != models.SecurityCompromised {
		t.Errorf("tampered token result: %+v", res)
	}
}

func TestVerifyWrongKey(t *testing.T) {
	doc := []byte("the bound document")
	a := testAuthority(t)
	token, err := a.Issue("payload data", testFingerprint(t, doc), time.Hour)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	other, err := NewAuthority(bytes.Repeat([]byte{0x43}, KeyLength))
	if err != nil {
		t.Fatalf("failed to create authority: %v", err)
	}
	if _, err := other.Verify(token, doc, "payload data"); !errors.Is(err, ErrTokenTampered) {
		t.Fatalf("foreign token: got %v, want ErrTokenTampered", err)
	}
}

func TestVerifyExpiryBoundary(t *testing.T) {
	a := testAuthority(t)
	doc := []byte("the bound document")
	fp := testFingerprint(t, doc)

	issued := time.Unix(1700000000, 0)
	a.now = func() time.Time { return issued }
	token, err := a.Issue("payload data", fp, time.Hour)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	// One second before expiry.
	a.now = func() time.Time { return issued.Add(time.Hour - time.Second) }
	if _, err := a.Verify(token, doc, "payload data"); err != nil {
		t.Fatalf("token should still be valid one second before expiry: %v", err)
	}

	// One second past expiry.
	a.now = func() time.Time { return issued.Add(time.Hour + time.Second) }
	res, err := a.Verify(token, doc, "payload data")
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expired token: got %v, want ErrTokenExpired", err)
	}
	if res.Level != models.SecurityCompromised {
		t.Errorf("expired token level: got %v, want compromised", res.Level)
	}
}

func TestVerifyAfterClockAdvance(t *testing.T) {
	a := testAuthority(t)
	doc := []byte("the bound document")

	issued := time.Unix(1700000000, 0)
	a.now = func() time.Time { return issued }
	token, err := a.Issue("payload data", testFingerprint(t, doc), time.Hour)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	if _, err := a.Verify(token, doc, "payload data"); err != nil {
		t.Fatalf("immediate verification failed: %v", err)
	}

	a.now = func() time.Time { return issued.Add(2 * time.Hour) }
	if _, err := a.Verify(token, doc, "payload data"); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("after 2h advance: got %v, want ErrTokenExpired", err)
	}
}

func TestVerifyModifiedDocument(t *testing.T) {
	a := testAuthority(t)
	doc := []byte("the bound document")
	token, err := a.Issue("payload data", testFingerprint(t, doc), time.Hour)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	modified := append([]byte{}, doc...)
	modified[0] ^= 0x01
	res, err := a.Verify(token, modified, "payload data")
	if !errors.Is(err, ErrDocumentMismatch) {
		t.Fatalf("modified document: got %v, want ErrDocumentMismatch", err)
	}
	if res.Level != models.SecurityCompromised {
		t.Errorf("modified document level: got %v, want compromised", res.Level)
	}
}

func TestVerifyPayloadMismatch(t *testing.T) {
	a := testAuthority(t)
	doc := []byte("the bound document")
	token, err := a.Issue("payload data", testFingerprint(t, doc), time.Hour)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	if _, err := a.Verify(token, doc, "different payload"); !errors.Is(err, ErrPayloadMismatch) {
		t.Fatalf("payload mismatch: got %v, want ErrPayloadMismatch", err)
	}
}

func TestVerifyMalformedToken(t *testing.T) {
	a := testAuthority(t)
	for _, token := range []string{"", "not-base64!!", base64.StdEncoding.EncodeToString([]byte("not json"))} {
		if _, err := a.Verify(token, []byte("doc"), "payload"); !errors.Is(err, ErrTokenMalformed) {
			t.Errorf("token %q: got %v, want ErrTokenMalformed", token, err)
		}
	}
}

func TestIssueDefaultsExpiry(t *testing.T) {
	a := testAuthority(t)
	doc := []byte("the bound document")
	issued := time.Unix(1700000000, 0)
	a.now = func() time.Time { return issued }

	token, err := a.Issue("payload data", testFingerprint(t, doc), 0)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	res, err := a.Verify(token, doc, "payload data")
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if got := res.ExpiresAt.Sub(res.IssuedAt); got != DefaultExpiry {
		t.Errorf("default expiry: got %v, want %v", got, DefaultExpiry)
	}
}

func TestNewAuthorityRejectsShortKey(t *testing.T) {
	if _, err := NewAuthority([]byte("short")); err == nil {
		t.Error("short key should be rejected")
	}
}
