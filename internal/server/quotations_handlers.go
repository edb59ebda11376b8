package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/quotia/backend/internal/quotations"
)

// maxMockupBytes caps uploaded mockup images at 10 MiB.
const maxMockupBytes = 10 << 20

type quotationResponsePayload struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	Text      string `json:"quotation_text,omitempty"`
	CreatedAt string `json:"created_at"`
}

func quotationResponse(quotation quotations.Quotation, includeText bool) quotationResponsePayload {
	payload := quotationResponsePayload{
		ID:        quotation.ID,
		UserID:    quotation.UserID,
		Name:      quotation.Name,
		CreatedAt: quotation.CreatedAt.UTC().Format(time.RFC3339),
	}
	if includeText {
		payload.Text = quotation.QuotationText
	}
	return payload
}

// handleCreateQuotation accepts a multipart form with the project fields and
// an optional mockup image. Generation runs synchronously; the response omits
// the report text, which clients fetch through the lookup endpoints.
func (h *httpHandler) handleCreateQuotation(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	name := strings.TrimSpace(c.PostForm("name"))
	description := strings.TrimSpace(c.PostForm("description"))
	if name == "" || description == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	var capital float64
	if raw := strings.TrimSpace(c.PostForm("capital")); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_capital"})
			return
		}
		capital = parsed
	}
	selfMade := strings.EqualFold(strings.TrimSpace(c.PostForm("isSelfMade")), "true")

	mockup, err := h.readMockupImage(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	quotation, err := h.quotations.Create(c.Request.Context(), quotations.CreateInput{
		UserID:      userID,
		Name:        name,
		Description: description,
		Capital:     capital,
		SelfMade:    selfMade,
		Mockup:      mockup,
	})
	if errors.Is(err, quotations.ErrInvalidInput) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err != nil {
		h.logger.Error("quotation creation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "quotation_failed"})
		return
	}

	c.JSON(http.StatusAccepted, quotationResponse(quotation, false))
}

// readMockupImage extracts the optional mockup upload. A missing file is not
// an error; an oversized or non-image file is. The declared part header is not
// trusted on its own: standard multipart clients declare octet-stream, so the
// bytes are sniffed whenever the header does not already name an image type.
func (h *httpHandler) readMockupImage(c *gin.Context) (*quotations.MockupImage, error) {
	file, header, err := c.Request.FormFile("mockupImage")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, errors.New("invalid_mockup")
	}
	defer file.Close()

	if header.Size > maxMockupBytes {
		return nil, errors.New("mockup_too_large")
	}
	data, err := io.ReadAll(io.LimitReader(file, maxMockupBytes+1))
	if err != nil {
		return nil, errors.New("invalid_mockup")
	}
	if len(data) > maxMockupBytes {
		return nil, errors.New("mockup_too_large")
	}

	mimeType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, errors.New("mockup_not_an_image")
	}

	return &quotations.MockupImage{MIMEType: mimeType, Data: data}, nil
}

func (h *httpHandler) handleListQuotations(c *gin.Context) {
	requesterID := c.GetString(userIDContextKey)
	targetID := c.Param("userId")
	if requesterID != targetID {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	listed, err := h.quotations.ListByOwner(c.Request.Context(), targetID)
	if errors.Is(err, quotations.ErrInvalidInput) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err != nil {
		h.logger.Error("quotation listing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "listing_failed"})
		return
	}

	response := make([]quotationResponsePayload, 0, len(listed))
	for _, quotation := range listed {
		response = append(response, quotationResponse(quotation, false))
	}
	c.JSON(http.StatusOK, gin.H{"quotations": response})
}

func (h *httpHandler) handleGetQuotationByProject(c *gin.Context) {
	requesterID := c.GetString(userIDContextKey)

	quotation, err := h.quotations.GetByProjectName(c.Request.Context(), c.Param("name"))
	if errors.Is(err, quotations.ErrQuotationNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "quotation_not_found"})
		return
	}
	if errors.Is(err, quotations.ErrInvalidInput) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err != nil {
		h.logger.Error("quotation lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed"})
		return
	}
	if quotation.UserID != requesterID {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	c.JSON(http.StatusOK, quotationResponse(quotation, true))
}

func (h *httpHandler) handleDownloadQuotation(c *gin.Context) {
	requesterID := c.GetString(userIDContextKey)

	document, err := h.quotations.RenderDocument(c.Request.Context(), c.Param("id"), requesterID)
	if errors.Is(err, quotations.ErrQuotationNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "quotation_not_found"})
		return
	}
	if errors.Is(err, quotations.ErrNotAuthorized) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	if errors.Is(err, quotations.ErrInvalidInput) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err != nil {
		h.logger.Error("quotation document rendering failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "document_failed"})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", document.Filename))
	c.Data(http.StatusOK, document.MIMEType, document.Bytes)
}
