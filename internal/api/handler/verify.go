package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/genledger/internal/digest"
	"github.com/jmerrifield20/genledger/internal/ledger"
	"github.com/jmerrifield20/genledger/internal/receipt"
	"go.uber.org/zap"
)

const notFoundMessage = "Hash not found in ledger. Data may have been tampered with or never recorded."

// VerifyHandler exposes read-only endpoints over the generation ledger.
type VerifyHandler struct {
	store    ledger.Store
	receipts *receipt.Issuer // nil = receipts disabled
	logger   *zap.Logger
}

// NewVerifyHandler creates a new VerifyHandler.
func NewVerifyHandler(store ledger.Store, logger *zap.Logger) *VerifyHandler {
	return &VerifyHandler{store: store, logger: logger}
}

// SetReceiptIssuer enables signed receipts on verification responses.
func (h *VerifyHandler) SetReceiptIssuer(iss *receipt.Issuer) {
	h.receipts = iss
}

// Register mounts the ledger routes.
func (h *VerifyHandler) Register(r gin.IRoutes) {
	r.GET("/verify_on_chain/:hash", h.Verify)
	r.GET("/ledger", h.Overview)
	if h.receipts != nil {
		r.POST("/verify_receipt", h.VerifyReceipt)
	}
}

type recordedDetails struct {
	Timestamp           time.Time   `json:"timestamp"`
	DataType            ledger.Kind `json:"data_type"`
	OriginalDataPreview string      `json:"original_data_preview"`
}

type verifyResponse struct {
	Status          string          `json:"status"`
	Hash            string          `json:"hash"`
	RecordedDetails recordedDetails `json:"recorded_details"`
	Receipt         string          `json:"receipt,omitempty"`
}

// Verify handles GET /verify_on_chain/:hash. A digest that was never recorded
// is an ordinary 404, not an error. Malformed hashes cannot be on record and
// are answered without touching the store.
func (h *VerifyHandler) Verify(c *gin.Context) {
	hash := digest.Normalize(c.Param("hash"))
	if !digest.Valid(hash) {
		h.notFound(c)
		return
	}

	entry, err := h.store.Lookup(c.Request.Context(), hash)
	if errors.Is(err, ledger.ErrNotFound) {
		h.notFound(c)
		return
	}
	if err != nil {
		h.logger.Error("ledger lookup", zap.String("hash", hash), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query ledger"})
		return
	}
	RecordLookup(true)

	resp := verifyResponse{
		Status: "found",
		Hash:   entry.Digest,
		RecordedDetails: recordedDetails{
			Timestamp:           entry.RecordedAt,
			DataType:            entry.Kind,
			OriginalDataPreview: entry.Preview,
		},
	}
	if h.receipts != nil {
		tok, err := h.receipts.Issue(entry)
		if err != nil {
			h.logger.Warn("issue receipt", zap.String("hash", hash), zap.Error(err))
		} else {
			resp.Receipt = tok
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *VerifyHandler) notFound(c *gin.Context) {
	RecordLookup(false)
	c.JSON(http.StatusNotFound, gin.H{"status": "not_found", "message": notFoundMessage})
}

// Overview handles GET /ledger: the number of digests on record.
func (h *VerifyHandler) Overview(c *gin.Context) {
	n, err := h.store.Len(c.Request.Context())
	if err != nil {
		h.logger.Error("ledger Len", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query ledger"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": n})
}

type verifyReceiptRequest struct {
	Receipt string `json:"receipt"`
}

// VerifyReceipt handles POST /verify_receipt. It checks the receipt signature
// and that the ledger entry it names is still the one on record. A digest
// re-recorded after issue carries a new timestamp, which invalidates the
// receipt.
func (h *VerifyHandler) VerifyReceipt(c *gin.Context) {
	var req verifyReceiptRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Receipt == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No receipt provided"})
		return
	}

	claims, err := h.receipts.Verify(req.Receipt)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"valid": false, "error": "receipt signature or claims invalid"})
		return
	}

	entry, err := h.store.Lookup(c.Request.Context(), claims.Subject)
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		c.JSON(http.StatusOK, gin.H{"valid": false, "hash": claims.Subject, "error": notFoundMessage})
	case err != nil:
		h.logger.Error("ledger lookup", zap.String("hash", claims.Subject), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query ledger"})
	case !entry.RecordedAt.Equal(claims.RecordedAt):
		c.JSON(http.StatusOK, gin.H{
			"valid":       false,
			"hash":        claims.Subject,
			"recorded_at": entry.RecordedAt,
			"error":       "ledger entry was re-recorded after this receipt was issued",
		})
	default:
		c.JSON(http.StatusOK, gin.H{
			"valid":       true,
			"hash":        claims.Subject,
			"data_type":   claims.Kind,
			"recorded_at": claims.RecordedAt,
		})
	}
}
