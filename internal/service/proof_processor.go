package service

import (
	"bytes"
	"io"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"

	appErrors "github.com/noah-isme/training-enrollment-api/pkg/errors"
)

// ProcessedProof is a validated payment proof ready for storage.
type ProcessedProof struct {
	Data []byte
	MIME string
	Ext  string
}

// ProofProcessor sniffs, bounds and normalises uploaded payment proofs.
type ProofProcessor struct {
	allowed  []string
	maxBytes int64
	maxDim   int
}

// NewProofProcessor builds a processor. maxDim <= 0 disables image downscaling.
func NewProofProcessor(allowed []string, maxBytes int64, maxDim int) *ProofProcessor {
	if len(allowed) == 0 {
		allowed = []string{"image/jpeg", "image/png", "application/pdf"}
	}
	return &ProofProcessor{allowed: allowed, maxBytes: maxBytes, maxDim: maxDim}
}

// Process reads the proof, rejects oversize or disallowed content and shrinks large images.
func (p *ProofProcessor) Process(r io.Reader) (*ProcessedProof, error) {
	if r == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "proof file is required")
	}
	limit := p.maxBytes
	if limit <= 0 {
		limit = 5 * 1024 * 1024
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, appErrors.Internal(err, "failed to read proof file")
	}
	if int64(len(data)) > limit {
		return nil, appErrors.Clone(appErrors.ErrPayloadTooLarge, "proof file exceeds the size limit")
	}
	if len(data) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "proof file is empty")
	}

	mt := mimetype.Detect(data)
	if !p.accepts(mt) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "proof file type "+mt.String()+" is not allowed")
	}
	proof := &ProcessedProof{Data: data, MIME: baseMIME(mt.String()), Ext: mt.Extension()}

	if p.maxDim > 0 && strings.HasPrefix(proof.MIME, "image/") {
		if err := p.downscale(proof); err != nil {
			return nil, err
		}
	}
	return proof, nil
}

func (p *ProofProcessor) accepts(mt *mimetype.MIME) bool {
	for _, allowed := range p.allowed {
		if mt.Is(allowed) {
			return true
		}
	}
	return false
}

func (p *ProofProcessor) downscale(proof *ProcessedProof) error {
	format, err := imaging.FormatFromExtension(proof.Ext)
	if err != nil {
		// formats imaging cannot encode are stored untouched
		return nil
	}
	img, err := imaging.Decode(bytes.NewReader(proof.Data), imaging.AutoOrientation(true))
	if err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "proof image could not be decoded")
	}
	bounds := img.Bounds()
	if bounds.Dx() <= p.maxDim && bounds.Dy() <= p.maxDim {
		return nil
	}
	resized := imaging.Fit(img, p.maxDim, p.maxDim, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, format, imaging.JPEGQuality(85)); err != nil {
		return appErrors.Internal(err, "failed to encode proof image")
	}
	proof.Data = buf.Bytes()
	return nil
}

func baseMIME(value string) string {
	if idx := strings.IndexByte(value, ';'); idx >= 0 {
		return strings.TrimSpace(value[:idx])
	}
	return value
}
