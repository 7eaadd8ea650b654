package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/okian/snackboard/internal/adapters/repository"
	"github.com/okian/snackboard/internal/domain/types"
	"github.com/okian/snackboard/pkg/logger"
)

// maxBodyBytes caps POST /records payloads.
const maxBodyBytes = 1 << 20

// counts above this cannot round-trip through a JSON number exactly.
const maxSafeCount = 1<<53 - 1

// RecordsDependencies defines the interface for record reads and writes.
type RecordsDependencies interface {
	Records(ctx context.Context) ([]types.UserRecord, error)
	Upsert(ctx context.Context, id, name string, count int) (types.UserRecord, error)
}

// RecordsHandler handles /records requests.
type RecordsHandler struct {
	deps RecordsDependencies
}

// NewRecordsHandler creates a new records handler.
func NewRecordsHandler(deps RecordsDependencies) *RecordsHandler {
	return &RecordsHandler{deps: deps}
}

// syncRequest mirrors the POST /records body. Raw fields let validation
// tell a missing field from one of the wrong JSON type.
type syncRequest struct {
	UserID   json.RawMessage `json:"userId"`
	UserName json.RawMessage `json:"userName"`
	Count    json.RawMessage `json:"count"`
}

type syncResponse struct {
	Message  string `json:"message"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Count    int    `json:"count"`
}

// HandleRecords dispatches GET and POST on /records.
func (h *RecordsHandler) HandleRecords(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.HandleGetRecords(w, r)
	case http.MethodPost:
		h.HandlePostRecord(w, r)
	default:
		methodNotAllowed(w, "api.records", http.MethodGet, http.MethodPost)
	}
}

// HandleGetRecords handles GET /records and returns the raw, unsorted collection.
func (h *RecordsHandler) HandleGetRecords(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_records"
	records, err := h.deps.Records(r.Context())
	if err != nil {
		err = WrapKind(op, ErrInternal, err)
		logger.Get().Error(r.Context(), "records request failed", logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error while fetching records", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(records))
}

// HandlePostRecord handles POST /records requests.
func (h *RecordsHandler) HandlePostRecord(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_record"
	ctx := r.Context()

	var req syncRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		logger.Get().Debug(ctx, "rejecting unparseable body", logger.Error(WrapKind(op, ErrBadRequest, err)))
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Message: "request body is not valid JSON or is empty",
			Details: err.Error(),
		})
		return
	}

	id, name, count, err := req.validate()
	if err != nil {
		logger.Get().Debug(ctx, "rejecting invalid record", logger.Error(WrapKind(op, ErrBadRequest, err)))
		writeError(w, http.StatusBadRequest,
			"invalid data: userId, userName (string) and count (number) are required", err)
		return
	}

	rec, err := h.deps.Upsert(ctx, id, name, count)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidRecord) {
			logger.Get().Debug(ctx, "store rejected record", logger.Error(Wrap(op, err)))
			writeError(w, http.StatusBadRequest, err.Error(), err)
			return
		}
		err = WrapKind(op, ErrInternal, err)
		logger.Get().Error(ctx, "record sync failed",
			logger.String("user_id", id),
			logger.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal server error while synchronizing", err)
		return
	}

	writeJSON(w, http.StatusOK, syncResponse{
		Message:  "data synchronized successfully",
		UserID:   rec.ID,
		UserName: rec.Name,
		Count:    rec.Count,
	})
}

// validate checks field presence and JSON types and extracts the values.
func (req syncRequest) validate() (id, name string, count int, err error) {
	if !isJSONString(req.UserID) {
		return "", "", 0, errors.New("userId must be a string")
	}
	if err := json.Unmarshal(req.UserID, &id); err != nil {
		return "", "", 0, fmt.Errorf("userId: %w", err)
	}
	if strings.TrimSpace(id) == "" {
		return "", "", 0, errors.New("userId must not be empty")
	}

	if !isJSONString(req.UserName) {
		return "", "", 0, errors.New("userName must be a string")
	}
	if err := json.Unmarshal(req.UserName, &name); err != nil {
		return "", "", 0, fmt.Errorf("userName: %w", err)
	}

	if !isJSONNumber(req.Count) {
		return "", "", 0, errors.New("count must be a number")
	}
	var n float64
	if err := json.Unmarshal(req.Count, &n); err != nil {
		return "", "", 0, fmt.Errorf("count: %w", err)
	}
	if n < 0 || n != math.Trunc(n) || n > maxSafeCount {
		return "", "", 0, errors.New("count must be a non-negative integer")
	}
	return id, name, int(n), nil
}

func isJSONString(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '"'
}

func isJSONNumber(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && (raw[0] == '-' || (raw[0] >= '0' && raw[0] <= '9'))
}
