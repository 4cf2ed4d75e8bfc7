package httpservice

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ftso-network/ftso/internal/core/application"
	"github.com/ftso-network/ftso/internal/core/domain"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

type Handler struct {
	svc application.Service
}

func NewHandler(svc application.Service) *Handler {
	return &Handler{svc}
}

func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/v1/status", h.handleGetStatus).Methods(http.MethodGet)
	r.HandleFunc("/v1/rounds/{round}", h.handleGetRound).Methods(http.MethodGet)
	r.HandleFunc("/v1/rounds/{round}/results", h.handleGetRoundResults).Methods(http.MethodGet)
	r.HandleFunc("/v1/rounds/{round}/finalization", h.handleGetRoundFinalization).Methods(http.MethodGet)
	r.HandleFunc("/v1/reward-epochs/{epoch}/claims", h.handleGetClaims).Methods(http.MethodGet)
	r.HandleFunc("/v1/reward-epochs/{epoch}/finalization", h.handleGetRewardFinalization).Methods(http.MethodGet)
}

func (h *Handler) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.svc.GetStatus(r.Context())
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, toStatusResponse(status))
}

func (h *Handler) handleGetRound(w http.ResponseWriter, r *http.Request) {
	round, err := parseId(r, "round")
	if err != nil {
		respondWithError(w, err)
		return
	}
	info, err := h.svc.GetRound(r.Context(), round)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, toRoundResponse(info))
}

func (h *Handler) handleGetRoundResults(w http.ResponseWriter, r *http.Request) {
	round, err := parseId(r, "round")
	if err != nil {
		respondWithError(w, err)
		return
	}
	results, err := h.svc.GetRoundResults(r.Context(), round)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, toRoundResultsResponse(results))
}

func (h *Handler) handleGetRoundFinalization(w http.ResponseWriter, r *http.Request) {
	h.getFinalization(w, r, "round", domain.FinalizationScopeRound)
}

func (h *Handler) handleGetRewardFinalization(w http.ResponseWriter, r *http.Request) {
	h.getFinalization(w, r, "epoch", domain.FinalizationScopeRewardEpoch)
}

func (h *Handler) getFinalization(w http.ResponseWriter, r *http.Request, param, scope string) {
	id, err := parseId(r, param)
	if err != nil {
		respondWithError(w, err)
		return
	}
	finalization, err := h.svc.GetFinalization(r.Context(), scope, id)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, toFinalizationResponse(finalization))
}

func (h *Handler) handleGetClaims(w http.ResponseWriter, r *http.Request) {
	epoch, err := parseId(r, "epoch")
	if err != nil {
		respondWithError(w, err)
		return
	}

	var beneficiary *common.Address
	if addr := r.URL.Query().Get("beneficiary"); len(addr) > 0 {
		if !common.IsHexAddress(addr) {
			respondWithError(w, invalidRequestError{fmt.Errorf("invalid beneficiary %s", addr)})
			return
		}
		b := common.HexToAddress(addr)
		beneficiary = &b
	}

	claims, err := h.svc.GetClaims(r.Context(), epoch, beneficiary)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, toClaimsResponse(claims))
}

type invalidRequestError struct {
	err error
}

func (e invalidRequestError) Error() string {
	return e.err.Error()
}

func parseId(r *http.Request, name string) (uint64, error) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, invalidRequestError{fmt.Errorf("invalid %s %q", name, raw)}
	}
	return id, nil
}

func respondWithError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	var reqErr invalidRequestError
	switch {
	case errors.As(err, &reqErr):
		code = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		code = http.StatusNotFound
	default:
		log.WithError(err).Warn("failed to serve request")
	}
	respondWithJSON(w, code, errorResponse{Error: err.Error()})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.WithError(err).Warn("failed to encode response")
	}
}
