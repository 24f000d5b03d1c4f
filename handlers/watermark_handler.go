// Package handlers is made to handle requests
package handlers

import (
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"qrmark-backend/imaging"
	"qrmark-backend/models"
	"qrmark-backend/quality"
	"qrmark-backend/stego"
	"qrmark-backend/watermark"
)

const maxUploadBytes = 64 << 20 // 64MB

type WatermarkHandler struct {
	service *watermark.Service
	log     *logrus.Logger
}

func NewWatermarkHandler(service *watermark.Service, log *logrus.Logger) *WatermarkHandler {
	return &WatermarkHandler{service: service, log: log}
}

func (h *WatermarkHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"message": "QR watermark API is running",
		"version": "2.0.0",
	})
}

// EmbedImages hides a payload in every uploaded cover image. With a
// document upload or a registration id the payload is bound to that
// document first.
func (h *WatermarkHandler) EmbedImages(c *gin.Context) {
	if err := c.Request.ParseMultipartForm(maxUploadBytes); err != nil {
		c.JSON(http.StatusBadRequest, models.EmbedResponse{
			Success: false,
			Message: fmt.Sprintf("Failed to parse form: %v", err),
		})
		return
	}

	payloadText := c.PostForm("payload_text")
	registrationID := c.PostForm("registration_id")
	if payloadText == "" && registrationID == "" {
		c.JSON(http.StatusBadRequest, models.EmbedResponse{
			Success: false,
			Message: "payload_text is required",
		})
		return
	}

	covers, err := readImages(c.Request.MultipartForm.File["cover_images"])
	if err != nil {
		c.JSON(http.StatusBadRequest, models.EmbedResponse{
			Success: false,
			Message: err.Error(),
		})
		return
	}
	if len(covers) == 0 {
		c.JSON(http.StatusBadRequest, models.EmbedResponse{
			Success: false,
			Message: "At least one cover image is required",
		})
		return
	}

	sec, err := h.securityConfig(c, registrationID)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.EmbedResponse{
			Success: false,
			Message: err.Error(),
		})
		return
	}

	outcome, err := h.service.Embed(c.Request.Context(), covers, payloadText, sec)
	if err != nil {
		status := http.StatusInternalServerError
		if watermark.IsCapacityError(err) {
			status = http.StatusBadRequest
		}
		c.JSON(status, models.EmbedResponse{
			Success: false,
			Message: fmt.Sprintf("Embedding failed: %v", err),
		})
		return
	}

	resp := models.EmbedResponse{
		Success:       true,
		Message:       "Payload embedded",
		SecurityLevel: outcome.Binding.Level,
		BindingToken:  outcome.Binding.Token,
		FingerprintID: outcome.FingerprintID,
		Results:       make([]models.EmbedImageResult, len(outcome.Results)),
	}
	for i, r := range outcome.Results {
		item := models.EmbedImageResult{
			Index:         r.Index,
			PayloadWidth:  r.PayloadWidth,
			PayloadHeight: r.PayloadHeight,
			Resized:       r.Resized,
		}
		if r.Err != nil {
			item.Message = r.Err.Error()
		} else {
			pngData, encErr := imaging.EncodePNG(r.Stego)
			if encErr != nil {
				item.Message = encErr.Error()
			} else {
				item.Success = true
				item.StegoPNG = base64.StdEncoding.EncodeToString(pngData)
				item.MSE = r.Metrics.MSE
				item.Quality = quality.Band(r.Metrics.PSNR)
				if !math.IsInf(r.Metrics.PSNR, 1) {
					psnr := r.Metrics.PSNR
					item.PSNR = &psnr
				}
			}
		}
		resp.Results[i] = item
	}
	c.JSON(http.StatusOK, resp)
}

// ExtractImages recovers the payload from every uploaded stego image.
func (h *WatermarkHandler) ExtractImages(c *gin.Context) {
	if err := c.Request.ParseMultipartForm(maxUploadBytes); err != nil {
		c.JSON(http.StatusBadRequest, models.ExtractResponse{
			Success: false,
			Message: fmt.Sprintf("Failed to parse form: %v", err),
		})
		return
	}

	stegos, err := readImages(c.Request.MultipartForm.File["stego_images"])
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ExtractResponse{
			Success: false,
			Message: err.Error(),
		})
		return
	}
	if len(stegos) == 0 {
		c.JSON(http.StatusBadRequest, models.ExtractResponse{
			Success: false,
			Message: "At least one stego image is required",
		})
		return
	}

	results, err := h.service.Extract(c.Request.Context(), stegos)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ExtractResponse{
			Success: false,
			Message: fmt.Sprintf("Extraction failed: %v", err),
		})
		return
	}

	// An optional document upload lets secure payloads be verified in
	// the same request.
	document := optionalDocument(c)

	resp := models.ExtractResponse{
		Success: true,
		Message: "Extraction complete",
		Results: make([]models.ExtractImageResult, len(results)),
	}
	for i, r := range results {
		item := models.ExtractImageResult{Index: r.Index, Security: r.Binding}
		if r.Err != nil {
			item.Message = extractionMessage(r.Err)
		} else {
			item.Success = true
			item.Payload = r.Payload
			item.Security = h.service.ClassifyExtracted(r.Payload, r.Binding, document)
		}
		resp.Results[i] = item
	}
	c.JSON(http.StatusOK, resp)
}

// Capacity reports how large a payload one cover image can carry.
func (h *WatermarkHandler) Capacity(c *gin.Context) {
	if err := c.Request.ParseMultipartForm(maxUploadBytes); err != nil {
		c.JSON(http.StatusBadRequest, models.CapacityResponse{
			Success: false,
			Message: fmt.Sprintf("Failed to parse form: %v", err),
		})
		return
	}

	covers, err := readImages(c.Request.MultipartForm.File["cover_image"])
	if err != nil || len(covers) == 0 {
		c.JSON(http.StatusBadRequest, models.CapacityResponse{
			Success: false,
			Message: "Cover image is required",
		})
		return
	}

	report := stego.Analyze(covers[0])
	maxDim := report.MaxSquareDimension()
	recDim := report.RecommendedDimension()
	c.JSON(http.StatusOK, models.CapacityResponse{
		Success:                true,
		TotalPixels:            report.TotalPixels,
		UsableBits:             report.UsableBits,
		HeaderBits:             report.HeaderBits,
		MaxPayloadBits:         report.MaxPayloadBits,
		MaxPayloadSize:         models.Dimensions{Width: maxDim, Height: maxDim},
		RecommendedPayloadSize: models.Dimensions{Width: recDim, Height: recDim},
	})
}

func (h *WatermarkHandler) securityConfig(c *gin.Context, registrationID string) (*watermark.SecurityConfig, error) {
	if registrationID != "" {
		return &watermark.SecurityConfig{RegistrationID: registrationID}, nil
	}

	docFile, _, err := c.Request.FormFile("document")
	if err != nil {
		// No document means the legacy flow.
		return nil, nil
	}
	defer docFile.Close()

	document, err := io.ReadAll(docFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %v", err)
	}

	expiry := time.Duration(0)
	if hours := c.PostForm("expiry_hours"); hours != "" {
		n, convErr := strconv.Atoi(hours)
		if convErr != nil || n < 1 {
			return nil, fmt.Errorf("expiry_hours must be a positive integer")
		}
		expiry = time.Duration(n) * time.Hour
	}

	return &watermark.SecurityConfig{
		Document: document,
		Metadata: documentMetadata(c, int64(len(document))),
		Expiry:   expiry,
	}, nil
}

func documentMetadata(c *gin.Context, size int64) models.DocumentMetadata {
	paragraphs, _ := strconv.Atoi(c.PostForm("paragraph_count"))
	images, _ := strconv.Atoi(c.PostForm("image_count"))
	modified, _ := strconv.ParseInt(c.PostForm("modified_time"), 10, 64)
	return models.DocumentMetadata{
		Type:           c.PostForm("document_type"),
		ParagraphCount: paragraphs,
		ImageCount:     images,
		Author:         c.PostForm("author"),
		Size:           size,
		ModifiedTime:   modified,
	}
}

func optionalDocument(c *gin.Context) []byte {
	f, _, err := c.Request.FormFile("document")
	if err != nil {
		return nil
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil
	}
	return data
}

func readImages(files []*multipart.FileHeader) ([]image.Image, error) {
	images := make([]image.Image, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %v", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %v", fh.Filename, err)
		}
		img, err := imaging.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %v", fh.Filename, err)
		}
		images = append(images, img)
	}
	return images, nil
}

func extractionMessage(err error) string {
	if errors.Is(err, stego.ErrNoWatermarkFound) || errors.Is(err, stego.ErrInvalidHeader) {
		return err.Error()
	}
	return fmt.Sprintf("Failed to extract payload: %v", err)
}
