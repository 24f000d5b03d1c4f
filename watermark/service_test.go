package watermark

import (
	"bytes"
	"context"
	"image"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrmark-backend/binding"
	"qrmark-backend/fingerprint"
	"qrmark-backend/models"
	"qrmark-backend/quality"
	"qrmark-backend/stego"
)

var serviceTestMeta = models.DocumentMetadata{
	Type:           ".docx",
	ParagraphCount: 8,
	ImageCount:     2,
	Author:         "author",
	Size:           2048,
	ModifiedTime:   1700000000,
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	authority, err := binding.NewAuthority(bytes.Repeat([]byte{0x07}, binding.KeyLength))
	require.NoError(t, err)

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	store, err := binding.NewStore(t.TempDir(), log)
	require.NoError(t, err)

	return NewService(authority, store, Config{Workers: 2, Logger: log})
}

func testCover(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			off := img.PixOffset(x, y)
			img.Pix[off] = uint8((x * 11) % 256)
			img.Pix[off+1] = uint8((y * 17) % 256)
			img.Pix[off+2] = uint8((x*5 + y*3) % 256)
			img.Pix[off+3] = 255
		}
	}
	return img
}

func TestLegacyEmbedExtractRoundTrip(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	covers := []image.Image{testCover(200, 200)}

	outcome, err := svc.Embed(ctx, covers, "hello watermark", nil)
	require.NoError(t, err)
	assert.Equal(t, models.SecurityLegacy, outcome.Binding.Level)
	require.Len(t, outcome.Results, 1)

	res := outcome.Results[0]
	require.NoError(t, res.Err)
	assert.Equal(t, StateDone, res.State)
	assert.False(t, res.Resized)
	assert.True(t, quality.Validate(res.Metrics.PSNR, 40), "PSNR %v should exceed 40 dB", res.Metrics.PSNR)

	extracted, err := svc.Extract(ctx, []image.Image{res.Stego})
	require.NoError(t, err)
	require.Len(t, extracted, 1)
	require.NoError(t, extracted[0].Err)
	assert.Equal(t, "hello watermark", extracted[0].Payload)
	assert.Equal(t, models.SecurityLegacy, extracted[0].Binding.Level)
}

func TestSecureEmbedExtractVerify(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	document := []byte("the document being protected")
	covers := []image.Image{testCover(300, 300)}

	outcome, err := svc.Embed(ctx, covers, "invoice-42", &SecurityConfig{
		Document: document,
		Metadata: serviceTestMeta,
		Expiry:   time.Hour,
	})
	require.NoError(t, err)
	assert.Equal(t, models.SecuritySecure, outcome.Binding.Level)
	assert.NotEmpty(t, outcome.Binding.Token)
	assert.Len(t, outcome.FingerprintID, fingerprint.IDHexLength)
	require.NoError(t, outcome.Results[0].Err)

	extracted, err := svc.Extract(ctx, []image.Image{outcome.Results[0].Stego})
	require.NoError(t, err)
	require.NoError(t, extracted[0].Err)
	assert.Equal(t, "invoice-42", extracted[0].Payload)
	assert.Equal(t, models.SecuritySecure, extracted[0].Binding.Level)

	v := svc.VerifyBinding(extracted[0].Binding.Token, document, extracted[0].Payload)
	assert.True(t, v.Valid)
	assert.Equal(t, models.SecuritySecure, v.Level)

	// A single changed byte invalidates the binding.
	modified := append([]byte{}, document...)
	modified[3] ^= 0x01
	v = svc.VerifyBinding(extracted[0].Binding.Token, modified, extracted[0].Payload)
	assert.False(t, v.Valid)
	assert.Equal(t, models.SecurityCompromised, v.Level)

	// The same payload presented against a different document reads as
	// moved.
	v = svc.VerifyBinding(extracted[0].Binding.Token, document, "other payload")
	assert.False(t, v.Valid)
	assert.Equal(t, models.SecurityCompromised, v.Level)
}

func TestEmbedResizesPayloadToFit(t *testing.T) {
	svc := newTestService(t)
	covers := []image.Image{testCover(20, 20)} // 360 payload bits available

	outcome, err := svc.Embed(context.Background(), covers, "hi", nil)
	require.NoError(t, err)

	res := outcome.Results[0]
	require.NoError(t, res.Err)
	assert.True(t, res.Resized)
	assert.LessOrEqual(t, res.PayloadWidth*res.PayloadHeight, 360)

	bm, err := stego.Extract(res.Stego)
	require.NoError(t, err)
	assert.Equal(t, res.PayloadWidth, bm.Width)
	assert.Equal(t, res.PayloadHeight, bm.Height)
}

func TestEmbedFailsPerImageOnly(t *testing.T) {
	svc := newTestService(t)
	covers := []image.Image{
		testCover(6, 6), // cannot even hold the header
		testCover(200, 200),
	}

	outcome, err := svc.Embed(context.Background(), covers, "hello watermark", nil)
	require.NoError(t, err)
	require.Len(t, outcome.Results, 2)

	assert.Error(t, outcome.Results[0].Err)
	assert.True(t, IsCapacityError(outcome.Results[0].Err))
	assert.Equal(t, StateFailed, outcome.Results[0].State)

	assert.NoError(t, outcome.Results[1].Err)
	assert.Equal(t, StateDone, outcome.Results[1].State)
}

func TestPreRegisterThenResume(t *testing.T) {
	svc := newTestService(t)
	document := []byte("pre-registered document")

	reg, err := svc.PreRegister(document, serviceTestMeta, "contract-7", time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, reg.RegistrationID)
	assert.NotEmpty(t, reg.BindingToken)

	rec, err := svc.store.Load(reg.FingerprintID)
	require.NoError(t, err)
	assert.Equal(t, binding.StatusPreRegistered, rec.Status)

	// Resume with the exact handle PreRegister returned.
	outcome, err := svc.Embed(context.Background(), []image.Image{testCover(300, 300)}, "", &SecurityConfig{
		RegistrationID: reg.RegistrationID,
	})
	require.NoError(t, err)
	require.NoError(t, outcome.Results[0].Err)
	assert.Equal(t, reg.BindingToken, outcome.Binding.Token)

	rec, err = svc.store.Load(reg.FingerprintID)
	require.NoError(t, err)
	assert.Equal(t, binding.StatusCompleted, rec.Status)

	// The resumed embed carries the registered payload, not the empty
	// request payload.
	extracted, err := svc.Extract(context.Background(), []image.Image{outcome.Results[0].Stego})
	require.NoError(t, err)
	require.NoError(t, extracted[0].Err)
	assert.Equal(t, "contract-7", extracted[0].Payload)
}

func TestResumeByFingerprintID(t *testing.T) {
	svc := newTestService(t)
	reg, err := svc.PreRegister([]byte("doc"), serviceTestMeta, "data", time.Hour)
	require.NoError(t, err)

	outcome, err := svc.Embed(context.Background(), []image.Image{testCover(200, 200)}, "", &SecurityConfig{
		RegistrationID: reg.FingerprintID,
	})
	require.NoError(t, err)
	assert.Equal(t, reg.BindingToken, outcome.Binding.Token)
}

func TestResumeExpiredRegistration(t *testing.T) {
	svc := newTestService(t)
	reg, err := svc.PreRegister([]byte("doc"), serviceTestMeta, "data", time.Hour)
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.Embed(context.Background(), []image.Image{testCover(200, 200)}, "", &SecurityConfig{
		RegistrationID: reg.FingerprintID,
	})
	assert.Error(t, err)
}

func TestResumeUnknownRegistration(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Embed(context.Background(), []image.Image{testCover(200, 200)}, "", &SecurityConfig{
		RegistrationID: "ffffffffffffffff",
	})
	assert.ErrorIs(t, err, binding.ErrRecordNotFound)
}

func TestVerifyBindingLegacy(t *testing.T) {
	svc := newTestService(t)
	v := svc.VerifyBinding("", []byte("any document"), "plain payload")
	assert.True(t, v.Valid)
	assert.Equal(t, models.SecurityLegacy, v.Level)
}

func TestVerifyExtractedParsesEnvelope(t *testing.T) {
	svc := newTestService(t)
	document := []byte("the document")

	outcome, err := svc.Embed(context.Background(), []image.Image{testCover(300, 300)}, "data-1", &SecurityConfig{
		Document: document,
		Metadata: serviceTestMeta,
		Expiry:   time.Hour,
	})
	require.NoError(t, err)

	qrText, err := SecureEnvelope("data-1", outcome.Binding.Token, time.Now())
	require.NoError(t, err)

	v := svc.VerifyExtracted(qrText, document)
	assert.True(t, v.Valid)
	assert.Equal(t, models.SecuritySecure, v.Level)

	v = svc.VerifyExtracted("just plain text", document)
	assert.True(t, v.Valid)
	assert.Equal(t, models.SecurityLegacy, v.Level)
}

func TestClassifyExtracted(t *testing.T) {
	svc := newTestService(t)
	document := []byte("the bound document")

	outcome, err := svc.Embed(context.Background(), []image.Image{testCover(300, 300)}, "data-9", &SecurityConfig{
		Document: document,
		Metadata: serviceTestMeta,
		Expiry:   time.Hour,
	})
	require.NoError(t, err)
	secure := models.SecureBinding(outcome.Binding.Token)

	got := svc.ClassifyExtracted("data-9", secure, document)
	assert.Equal(t, models.SecuritySecure, got.Level)

	modified := append([]byte{}, document...)
	modified[0] ^= 0x01
	got = svc.ClassifyExtracted("data-9", secure, modified)
	assert.Equal(t, models.SecurityCompromised, got.Level)
	assert.NotEmpty(t, got.Reason)

	// Legacy results and missing documents pass through untouched.
	legacy := models.LegacyBinding()
	assert.Equal(t, legacy, svc.ClassifyExtracted("plain", legacy, document))
	assert.Equal(t, secure, svc.ClassifyExtracted("data-9", secure, nil))
}

func TestConfiguredDefaultExpiry(t *testing.T) {
	authority, err := binding.NewAuthority(bytes.Repeat([]byte{0x07}, binding.KeyLength))
	require.NoError(t, err)
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	store, err := binding.NewStore(t.TempDir(), log)
	require.NoError(t, err)

	svc := NewService(authority, store, Config{
		DefaultExpiry: 2 * time.Hour,
		Logger:        log,
	})

	reg, err := svc.PreRegister([]byte("doc"), serviceTestMeta, "data", 0)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(2*time.Hour), reg.ExpiresAt, 10*time.Second)
}

func TestCleanupExpiredRegistrations(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.PreRegister([]byte("doc"), serviceTestMeta, "data", time.Hour)
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	removed, err := svc.CleanupExpiredRegistrations()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

// stubParser is a stand-in for the document-processing collaborator.
type stubParser struct {
	images  []image.Image
	rebuilt [][]image.Image
}

func (p *stubParser) ExtractImages(document []byte) ([]image.Image, error) {
	return p.images, nil
}

func (p *stubParser) Metadata(document []byte) (models.DocumentMetadata, error) {
	return serviceTestMeta, nil
}

func (p *stubParser) Rebuild(document []byte, replacements []image.Image) ([]byte, error) {
	p.rebuilt = append(p.rebuilt, replacements)
	return append([]byte("rebuilt:"), document...), nil
}

func TestEmbedDocument(t *testing.T) {
	svc := newTestService(t)
	parser := &stubParser{images: []image.Image{testCover(200, 200), testCover(250, 250)}}
	svc.parser = parser

	rebuilt, outcome, err := svc.EmbedDocument(context.Background(), []byte("container"), "hello watermark", true, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []byte("rebuilt:container"), rebuilt)
	assert.Equal(t, models.SecuritySecure, outcome.Binding.Level)

	require.Len(t, parser.rebuilt, 1)
	require.Len(t, parser.rebuilt[0], 2)
	for i, img := range parser.rebuilt[0] {
		assert.NotNil(t, img, "replacement %d", i)
	}
}

func TestEmbedDocumentWithoutParser(t *testing.T) {
	svc := newTestService(t)
	_, _, err := svc.EmbedDocument(context.Background(), []byte("container"), "text", false, 0)
	assert.Error(t, err)
}
