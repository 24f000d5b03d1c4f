package watermark

import (
	"image"

	"qrmark-backend/models"
)

// DocumentParser is the document-processing collaborator: it owns
// container parsing and rewriting, this package only sees raster images
// and metadata.
type DocumentParser interface {
	// ExtractImages enumerates all raster images inside the document in
	// their original order.
	ExtractImages(document []byte) ([]image.Image, error)

	// Metadata returns the structural metadata of the document.
	Metadata(document []byte) (models.DocumentMetadata, error)

	// Rebuild reconstructs the document with replacement images at the
	// matching positions. A nil replacement keeps the original image.
	Rebuild(document []byte, replacements []image.Image) ([]byte, error)
}
