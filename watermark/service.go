// Package watermark orchestrates the embed, extract, registration and
// verification flows on top of the codec and binding subsystems.
package watermark

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"qrmark-backend/binding"
	"qrmark-backend/fingerprint"
	"qrmark-backend/imaging"
	"qrmark-backend/models"
	"qrmark-backend/qr"
	"qrmark-backend/quality"
	"qrmark-backend/stego"
)

// Service composes fingerprinting, token issuance, capacity analysis,
// the bit codec and quality scoring into the end-to-end flows.
type Service struct {
	authority     *binding.Authority
	store         *binding.Store
	pool          *Pool
	parser        DocumentParser
	defaultExpiry time.Duration
	log           *logrus.Logger
	now           func() time.Time
}

// Config tunes the service. Parser is optional; without it the
// document-level embed flow is unavailable but image-level flows work.
// DefaultExpiry applies to tokens issued without an explicit expiry.
type Config struct {
	Workers       int
	Parser        DocumentParser
	DefaultExpiry time.Duration
	Logger        *logrus.Logger
}

func NewService(authority *binding.Authority, store *binding.Store, cfg Config) *Service {
	log := cfg.Logger
	if log == nil {
		log = logrus.New()
	}
	expiry := cfg.DefaultExpiry
	if expiry <= 0 {
		expiry = binding.DefaultExpiry
	}
	return &Service{
		authority:     authority,
		store:         store,
		pool:          NewPool(cfg.Workers),
		parser:        cfg.Parser,
		defaultExpiry: expiry,
		log:           log,
		now:           time.Now,
	}
}

// SecurityConfig selects the secure embed flow. Either Document (with
// Metadata) is fingerprinted now, or RegistrationID resumes a
// pre-registered binding at the capacity-checking stage. RegistrationID
// accepts the handle PreRegister returned or the fingerprint id.
type SecurityConfig struct {
	Document       []byte
	Metadata       models.DocumentMetadata
	Expiry         time.Duration
	RegistrationID string
}

// ImageResult is the per-cover outcome. Results are indexed by the
// cover's original position so downstream reconstruction can map them
// back.
type ImageResult struct {
	Index         int
	State         State
	Stego         *image.NRGBA
	Metrics       quality.Metrics
	PayloadWidth  int
	PayloadHeight int
	Resized       bool
	Err           error
}

// EmbedOutcome aggregates one embed request.
type EmbedOutcome struct {
	Results       []ImageResult
	Binding       models.Binding
	FingerprintID string
}

// Embed runs the embedding flow over all covers. A nil sec selects the
// legacy flow. Per-image capacity failures are reported per image and
// never abort sibling images.
func (s *Service) Embed(ctx context.Context, covers []image.Image, payloadText string, sec *SecurityConfig) (*EmbedOutcome, error) {
	if len(covers) == 0 {
		return nil, fmt.Errorf("no cover images supplied")
	}
	if payloadText == "" && (sec == nil || sec.RegistrationID == "") {
		return nil, fmt.Errorf("payload text is required")
	}

	out := &EmbedOutcome{Binding: models.LegacyBinding()}
	qrText := payloadText
	resumedID := ""

	if sec != nil {
		var token string
		var err error
		if sec.RegistrationID != "" {
			rec, lerr := s.store.Load(sec.RegistrationID)
			if lerr != nil {
				return nil, fmt.Errorf("failed to resume registration %s: %w", sec.RegistrationID, lerr)
			}
			if rec.ExpiresAt < s.now().Unix() {
				return nil, fmt.Errorf("registration %s: %w", sec.RegistrationID, binding.ErrTokenExpired)
			}
			token = rec.BindingToken
			payloadText = rec.PayloadData
			out.FingerprintID = rec.Fingerprint.FingerprintID
			resumedID = rec.Fingerprint.FingerprintID
		} else {
			s.log.Debug("state: " + StateFingerprinting.String())
			fp, ferr := fingerprint.Compute(sec.Document, sec.Metadata, s.now())
			if ferr != nil {
				return nil, fmt.Errorf("fingerprinting failed: %v", ferr)
			}
			s.log.Debug("state: " + StateTokenIssuing.String())
			expiry := sec.Expiry
			if expiry <= 0 {
				expiry = s.defaultExpiry
			}
			token, err = s.authority.Issue(payloadText, fp, expiry)
			if err != nil {
				return nil, fmt.Errorf("token issuance failed: %v", err)
			}
			out.FingerprintID = fp.FingerprintID
		}
		qrText, err = SecureEnvelope(payloadText, token, s.now())
		if err != nil {
			return nil, fmt.Errorf("failed to build secure payload: %v", err)
		}
		out.Binding = models.SecureBinding(token)
	}

	symbol, err := qr.Render(qrText, qr.RecoveryMedium)
	if err != nil {
		return nil, err
	}

	out.Results = make([]ImageResult, len(covers))
	if err := s.pool.Run(ctx, len(covers), func(i int) {
		out.Results[i] = s.embedOne(covers[i], symbol, i)
	}); err != nil {
		return out, err
	}

	if resumedID != "" && anySucceeded(out.Results) {
		if err := s.store.Complete(resumedID); err != nil {
			s.log.WithError(err).Warn("failed to mark registration completed")
		}
	}
	return out, nil
}

// embedOne runs capacity check, at most one payload resize, embedding
// and quality scoring for a single cover.
func (s *Service) embedOne(cover image.Image, symbol *imaging.Bitmap, index int) ImageResult {
	res := ImageResult{
		Index:         index,
		State:         StateCapacityChecking,
		PayloadWidth:  symbol.Width,
		PayloadHeight: symbol.Height,
	}

	report := stego.Analyze(cover)
	payload := symbol
	if !report.Fits(symbol.Width, symbol.Height) {
		w, h, err := report.FitDimensions(symbol.Width, symbol.Height)
		if err != nil {
			res.State = StateFailed
			res.Err = err
			return res
		}
		payload = symbol.Resize(w, h)
		res.Resized = true
		res.PayloadWidth = w
		res.PayloadHeight = h
		s.log.WithFields(logrus.Fields{
			"index": index,
			"from":  fmt.Sprintf("%dx%d", symbol.Width, symbol.Height),
			"to":    fmt.Sprintf("%dx%d", w, h),
		}).Warn("payload resized to fit cover capacity")
	}

	res.State = StateEmbedding
	stegoImg, err := stego.Embed(cover, payload)
	if err != nil {
		res.State = StateFailed
		res.Err = err
		return res
	}

	res.State = StateQualityScoring
	res.Metrics = quality.Measure(cover, stegoImg)
	res.Stego = stegoImg
	res.State = StateDone
	return res
}

// ExtractResult is the per-image outcome of an extraction request.
type ExtractResult struct {
	Index   int
	Payload string
	Binding models.Binding
	Err     error
}

// Extract recovers payloads from stego images in parallel, results in
// original image order.
func (s *Service) Extract(ctx context.Context, stegos []image.Image) ([]ExtractResult, error) {
	if len(stegos) == 0 {
		return nil, fmt.Errorf("no stego images supplied")
	}

	results := make([]ExtractResult, len(stegos))
	err := s.pool.Run(ctx, len(stegos), func(i int) {
		results[i] = ExtractResult{Index: i}
		bm, err := stego.Extract(stegos[i])
		if err != nil {
			results[i].Err = err
			return
		}
		text, err := qr.Decode(bm)
		if err != nil {
			results[i].Err = err
			return
		}
		results[i].Payload, results[i].Binding = ParsePayload(text)
	})
	return results, err
}

// Registration is the outcome of a pre-registration: the binding token
// exists before any QR symbol has been embedded.
type Registration struct {
	FingerprintID  string
	RegistrationID string
	BindingToken   string
	ExpiresAt      time.Time
}

// PreRegister fingerprints the document, issues a binding token and
// persists a pre_registered record. The flow resumes later via
// Embed with SecurityConfig.RegistrationID.
func (s *Service) PreRegister(document []byte, meta models.DocumentMetadata, payloadText string, expiry time.Duration) (*Registration, error) {
	if payloadText == "" {
		return nil, fmt.Errorf("payload text is required")
	}
	if expiry <= 0 {
		expiry = s.defaultExpiry
	}

	fp, err := fingerprint.Compute(document, meta, s.now())
	if err != nil {
		return nil, fmt.Errorf("fingerprinting failed: %v", err)
	}
	token, err := s.authority.Issue(payloadText, fp, expiry)
	if err != nil {
		return nil, fmt.Errorf("token issuance failed: %v", err)
	}

	expiresAt := s.now().Add(expiry)
	rec := &binding.RegistrationRecord{
		Fingerprint:  fp,
		PayloadData:  payloadText,
		BindingToken: token,
		Status:       binding.StatusPreRegistered,
		CreatedAt:    s.now().Unix(),
		ExpiresAt:    expiresAt.Unix(),
	}
	if err := s.store.Save(rec); err != nil {
		return nil, err
	}

	return &Registration{
		FingerprintID:  fp.FingerprintID,
		RegistrationID: rec.RegistrationID,
		BindingToken:   token,
		ExpiresAt:      expiresAt,
	}, nil
}

// Verification is the caller-facing outcome of a binding check.
type Verification struct {
	Valid         bool
	Level         models.SecurityLevel
	Reasons       []string
	PayloadData   string
	FingerprintID string
	IssuedAt      time.Time
	ExpiresAt     time.Time
}

// VerifyBinding checks a token against the presented document and the
// extracted payload. An empty token is the legacy case: valid, but with
// no cryptographic guarantee. Verification failures are terminal, never
// retried.
func (s *Service) VerifyBinding(token string, document []byte, extractedPayload string) *Verification {
	if token == "" {
		return &Verification{
			Valid:   true,
			Level:   models.SecurityLegacy,
			Reasons: []string{"payload carries no binding token"},
		}
	}

	res, err := s.authority.Verify(token, document, extractedPayload)
	if err != nil {
		s.log.WithError(err).Info("binding verification failed")
	}
	return &Verification{
		Valid:         res.Valid,
		Level:         res.Level,
		Reasons:       res.Reasons,
		PayloadData:   res.PayloadData,
		FingerprintID: res.FingerprintID,
		IssuedAt:      res.IssuedAt,
		ExpiresAt:     res.ExpiresAt,
	}
}

// ClassifyExtracted re-checks a secure extraction result against the
// presented document, downgrading the binding to compromised when
// verification fails. Legacy results and extractions without a document
// pass through unchanged.
func (s *Service) ClassifyExtracted(payload string, b models.Binding, document []byte) models.Binding {
	if b.Level != models.SecuritySecure || len(document) == 0 {
		return b
	}
	v := s.VerifyBinding(b.Token, document, payload)
	if !v.Valid {
		return models.CompromisedBinding(strings.Join(v.Reasons, "; "))
	}
	return b
}

// VerifyExtracted parses raw QR text and, when it carries a secure
// envelope, verifies its binding against the presented document.
func (s *Service) VerifyExtracted(qrText string, document []byte) *Verification {
	data, b := ParsePayload(qrText)
	if b.Level != models.SecuritySecure {
		return s.VerifyBinding("", document, data)
	}
	return s.VerifyBinding(b.Token, document, data)
}

// EmbedDocument runs the embedding flow over every raster image inside
// a document and rebuilds it with the stego images at their original
// positions. Images that individually fail keep their original pixels.
func (s *Service) EmbedDocument(ctx context.Context, document []byte, payloadText string, secure bool, expiry time.Duration) ([]byte, *EmbedOutcome, error) {
	if s.parser == nil {
		return nil, nil, fmt.Errorf("no document parser configured")
	}

	covers, err := s.parser.ExtractImages(document)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to enumerate document images: %v", err)
	}
	if len(covers) == 0 {
		return nil, nil, fmt.Errorf("document contains no raster images")
	}

	var sec *SecurityConfig
	if secure {
		meta, merr := s.parser.Metadata(document)
		if merr != nil {
			return nil, nil, fmt.Errorf("failed to read document metadata: %v", merr)
		}
		sec = &SecurityConfig{Document: document, Metadata: meta, Expiry: expiry}
	}

	outcome, err := s.Embed(ctx, covers, payloadText, sec)
	if err != nil {
		return nil, outcome, err
	}

	replacements := make([]image.Image, len(covers))
	for i, r := range outcome.Results {
		if r.Err == nil && r.Stego != nil {
			replacements[i] = r.Stego
		}
	}
	rebuilt, err := s.parser.Rebuild(document, replacements)
	if err != nil {
		return nil, outcome, fmt.Errorf("failed to rebuild document: %v", err)
	}
	return rebuilt, outcome, nil
}

// CleanupExpiredRegistrations removes registration records past their
// expiry.
func (s *Service) CleanupExpiredRegistrations() (int, error) {
	return s.store.CleanupExpired(s.now())
}

func anySucceeded(results []ImageResult) bool {
	for _, r := range results {
		if r.Err == nil {
			return true
		}
	}
	return false
}

// IsCapacityError reports whether an embed failure was a capacity
// problem rather than an internal fault.
func IsCapacityError(err error) bool {
	return errors.Is(err, stego.ErrCapacityExceeded)
}
