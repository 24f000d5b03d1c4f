package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"qrmark-backend/models"
	"qrmark-backend/watermark"
)

type SecurityHandler struct {
	service *watermark.Service
	log     *logrus.Logger
}

func NewSecurityHandler(service *watermark.Service, log *logrus.Logger) *SecurityHandler {
	return &SecurityHandler{service: service, log: log}
}

// PreRegister fingerprints a document and issues a binding token before
// any QR symbol exists. The returned fingerprint id resumes the flow on
// the embed endpoint.
func (h *SecurityHandler) PreRegister(c *gin.Context) {
	if err := c.Request.ParseMultipartForm(maxUploadBytes); err != nil {
		c.JSON(http.StatusBadRequest, models.PreRegisterResponse{
			Success: false,
			Message: fmt.Sprintf("Failed to parse form: %v", err),
		})
		return
	}

	payloadText := c.PostForm("payload_text")
	if payloadText == "" {
		c.JSON(http.StatusBadRequest, models.PreRegisterResponse{
			Success: false,
			Message: "payload_text is required",
		})
		return
	}

	docFile, _, err := c.Request.FormFile("document")
	if err != nil {
		c.JSON(http.StatusBadRequest, models.PreRegisterResponse{
			Success: false,
			Message: "Document file is required",
		})
		return
	}
	defer docFile.Close()

	document, err := io.ReadAll(docFile)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.PreRegisterResponse{
			Success: false,
			Message: fmt.Sprintf("Failed to read document: %v", err),
		})
		return
	}

	expiry := time.Duration(0)
	if hours := c.PostForm("expiry_hours"); hours != "" {
		n, convErr := strconv.Atoi(hours)
		if convErr != nil || n < 1 {
			c.JSON(http.StatusBadRequest, models.PreRegisterResponse{
				Success: false,
				Message: "expiry_hours must be a positive integer",
			})
			return
		}
		expiry = time.Duration(n) * time.Hour
	}

	reg, err := h.service.PreRegister(document, documentMetadata(c, int64(len(document))), payloadText, expiry)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.PreRegisterResponse{
			Success: false,
			Message: fmt.Sprintf("Pre-registration failed: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, models.PreRegisterResponse{
		Success:        true,
		Message:        "Document pre-registered",
		FingerprintID:  reg.FingerprintID,
		RegistrationID: reg.RegistrationID,
		BindingToken:   reg.BindingToken,
		ExpiresAt:      reg.ExpiresAt.Unix(),
	})
}

// VerifyBinding checks a binding token (or raw extracted QR text)
// against the presented document.
func (h *SecurityHandler) VerifyBinding(c *gin.Context) {
	if err := c.Request.ParseMultipartForm(maxUploadBytes); err != nil {
		c.JSON(http.StatusBadRequest, models.VerifyResponse{
			Success: false,
			Message: fmt.Sprintf("Failed to parse form: %v", err),
		})
		return
	}

	docFile, _, err := c.Request.FormFile("document")
	if err != nil {
		c.JSON(http.StatusBadRequest, models.VerifyResponse{
			Success: false,
			Message: "Document file is required",
		})
		return
	}
	defer docFile.Close()

	document, err := io.ReadAll(docFile)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.VerifyResponse{
			Success: false,
			Message: fmt.Sprintf("Failed to read document: %v", err),
		})
		return
	}

	var v *watermark.Verification
	if qrText := c.PostForm("qr_text"); qrText != "" {
		v = h.service.VerifyExtracted(qrText, document)
	} else {
		v = h.service.VerifyBinding(c.PostForm("token"), document, c.PostForm("extracted_payload"))
	}

	resp := models.VerifyResponse{
		Success:       true,
		Valid:         v.Valid,
		SecurityLevel: v.Level,
		Reasons:       v.Reasons,
		PayloadData:   v.PayloadData,
	}
	if !v.IssuedAt.IsZero() {
		resp.IssuedAt = v.IssuedAt.Unix()
		resp.ExpiresAt = v.ExpiresAt.Unix()
	}
	c.JSON(http.StatusOK, resp)
}
