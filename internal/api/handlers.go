package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/ledger"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
)

// UploadField is the multipart form field holding the CSV file.
const UploadField = "data"

// Listing page bounds.
const (
	DefaultPageSize = 100
	MaxPageSize     = 1000
)

// retryAfter is sent with 429 responses.
const retryAfter = 1 * time.Second

// Handler serves the ledger over HTTP.
type Handler struct {
	ledger   *ledger.Service
	maxBytes int64
}

// NewHandler creates a handler. Upload bodies larger than maxBytes are
// refused with 413.
func NewHandler(svc *ledger.Service, maxBytes int64) *Handler {
	return &Handler{ledger: svc, maxBytes: maxBytes}
}

// UploadTransactions handles POST /transactions. The CSV arrives either
// as the "data" field of a multipart form or as the raw request body.
func (h *Handler) UploadTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)

	body, err := h.uploadReader(r)
	if err != nil {
		h.writeUploadError(ctx, w, err)
		return
	}

	result, err := h.ledger.Ingest(ctx, body, 0)
	if err != nil {
		h.writeUploadError(ctx, w, err)
		return
	}

	status := http.StatusCreated
	switch result.Outcome {
	case ledger.OutcomeEmpty:
		status = http.StatusOK
	case ledger.OutcomeNothingValid:
		status = http.StatusUnprocessableEntity
	}

	slog.Info("Upload processed",
		"outcome", result.Outcome,
		"rows", result.Rows,
		"committed", result.Committed,
		"rejected", len(result.Rejected),
		"request_id", RequestIDFromContext(ctx))

	WriteJSON(w, status, result)
}

var errMissingUploadField = errors.New("multipart form has no " + UploadField + " field")

func (h *Handler) uploadReader(r *http.Request) (io.Reader, error) {
	mr, err := r.MultipartReader()
	if errors.Is(err, http.ErrNotMultipart) {
		return r.Body, nil
	}
	if err != nil {
		return nil, err
	}
	return findPart(mr, UploadField)
}

func findPart(mr *multipart.Reader, name string) (io.Reader, error) {
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, errMissingUploadField
		}
		if err != nil {
			return nil, err
		}
		if part.FormName() == name {
			return part, nil
		}
		_ = part.Close()
	}
}

func (h *Handler) writeUploadError(ctx context.Context, w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr), errors.Is(err, common.ErrTooLarge):
		WriteError(w, http.StatusRequestEntityTooLarge, "upload exceeds "+strconv.FormatInt(h.maxBytes, 10)+" bytes")
	case errors.Is(err, errMissingUploadField):
		WriteError(w, http.StatusBadRequest, err.Error())
	case isStoreError(err):
		writeStoreError(w, err)
	default:
		// Anything else is a broken request body.
		common.LogDebug(ctx, "Failed to read upload", common.Fields{
			"error":      err.Error(),
			"request_id": RequestIDFromContext(ctx),
		})
		WriteError(w, http.StatusBadRequest, "could not read upload")
	}
}

// Report handles GET /report.
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	report, err := h.ledger.Report(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, report)
}

// Verify handles GET /report/verify.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	result, err := h.ledger.Verify(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	status := http.StatusOK
	if !result.OK {
		status = http.StatusConflict
	}
	WriteJSON(w, status, result)
}

// TransactionsResponse is the body of GET /transactions.
type TransactionsResponse struct {
	Transactions []model.Transaction `json:"transactions"`
	Total        int                 `json:"total"`
	Limit        int                 `json:"limit"`
	Offset       int                 `json:"offset"`
}

// ListTransactions handles GET /transactions.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	filter := service.TransactionFilter{Limit: DefaultPageSize}
	var err error

	if v := query.Get("limit"); v != "" {
		filter.Limit, err = strconv.Atoi(v)
		if err != nil || filter.Limit < 1 || filter.Limit > MaxPageSize {
			WriteError(w, http.StatusBadRequest, "limit must be between 1 and "+strconv.Itoa(MaxPageSize))
			return
		}
	}
	if v := query.Get("offset"); v != "" {
		filter.Offset, err = strconv.Atoi(v)
		if err != nil || filter.Offset < 0 {
			WriteError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
	}
	if v := query.Get("start_date"); v != "" {
		d, parseErr := model.ParseDate(v)
		if parseErr != nil {
			WriteError(w, http.StatusBadRequest, "Invalid start_date format")
			return
		}
		filter.StartDate = &d
	}
	if v := query.Get("end_date"); v != "" {
		d, parseErr := model.ParseDate(v)
		if parseErr != nil {
			WriteError(w, http.StatusBadRequest, "Invalid end_date format")
			return
		}
		filter.EndDate = &d
	}
	if filter.StartDate != nil && filter.EndDate != nil && filter.EndDate.Before(*filter.StartDate) {
		WriteError(w, http.StatusBadRequest, "end_date is before start_date")
		return
	}

	transactions, err := h.ledger.Transactions(ctx, filter)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	total, err := h.ledger.Count(ctx)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	// Return an empty array rather than null
	if transactions == nil {
		transactions = []model.Transaction{}
	}
	WriteJSON(w, http.StatusOK, TransactionsResponse{
		Transactions: transactions,
		Total:        total,
		Limit:        filter.Limit,
		Offset:       filter.Offset,
	})
}

// GetTransaction handles GET /transactions/{id}.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	txn, err := h.ledger.Transaction(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeStoreError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, txn)
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.Health(r.Context()); err != nil {
		writeStoreError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func isStoreError(err error) bool {
	return errors.Is(err, common.ErrCongested) ||
		errors.Is(err, common.ErrUnavailable) ||
		errors.Is(err, common.ErrPersistenceFailed) ||
		errors.Is(err, common.ErrInvalidBatch) ||
		errors.Is(err, common.ErrNotFound)
}

// writeStoreError maps the outcome taxonomy onto status codes.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, common.ErrCongested):
		w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
		WriteError(w, http.StatusTooManyRequests, common.ErrCongested.Error())
	case errors.Is(err, common.ErrUnavailable):
		WriteError(w, http.StatusServiceUnavailable, common.ErrUnavailable.Error())
	case errors.Is(err, common.ErrNotFound):
		WriteError(w, http.StatusNotFound, common.ErrNotFound.Error())
	default:
		WriteError(w, http.StatusInternalServerError, common.ErrPersistenceFailed.Error())
	}
}
