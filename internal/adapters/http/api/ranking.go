package api

import (
	"context"
	"net/http"

	"github.com/okian/snackboard/internal/domain/ranking"
	"github.com/okian/snackboard/internal/domain/types"
	"github.com/okian/snackboard/pkg/logger"
)

// RankingDependencies defines the interface for ranking reads.
type RankingDependencies interface {
	Ranking(ctx context.Context, limit int) ([]types.UserRecord, error)
}

// RankingHandler handles ranking requests.
type RankingHandler struct {
	deps RankingDependencies
}

// NewRankingHandler creates a new ranking handler.
func NewRankingHandler(deps RankingDependencies) *RankingHandler {
	return &RankingHandler{deps: deps}
}

// HandleGetRanking handles GET /ranking?limit=N requests. A missing,
// non-numeric or non-positive limit returns the full ranking.
func (h *RankingHandler) HandleGetRanking(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_ranking"
	if r.Method != http.MethodGet {
		methodNotAllowed(w, op, http.MethodGet)
		return
	}

	limit := ranking.ParseLimit(r.URL.Query().Get("limit"))
	ranked, err := h.deps.Ranking(r.Context(), limit)
	if err != nil {
		err = WrapKind(op, ErrInternal, err)
		logger.Get().Error(r.Context(), "ranking request failed", logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error while fetching ranking", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(ranked))
}
