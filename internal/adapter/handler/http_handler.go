package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rl1809/split-market/internal/adapter/auth"
	"github.com/rl1809/split-market/internal/core/domain"
	"github.com/rl1809/split-market/internal/core/service"
)

type HTTPHandler struct {
	market   *service.Marketplace
	validate *validator.Validate
	log      logrus.FieldLogger
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func NewHTTPHandler(market *service.Marketplace, log logrus.FieldLogger) *HTTPHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &HTTPHandler{market: market, validate: validator.New(), log: log}
}

// Routes builds the router. Every route behind authn sees the verified
// caller; the callback webhook additionally requires the runtime role.
func (h *HTTPHandler) Routes(authn *auth.Authenticator) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.requestLogger)

	r.Get("/health", h.HealthCheck)

	r.Group(func(r chi.Router) {
		r.Use(authn.Middleware)

		r.Route("/api/v1", func(r chi.Router) {
			r.Post("/properties", h.CreateProperty)
			r.Get("/properties", h.GetProperties)
			r.Put("/properties/{propertyID}/valuation", h.SetValuation)

			r.Get("/accounts/{account}/properties", h.GetUserProperties)
			r.Get("/accounts/{account}/ledger", h.GetAccountLedger)

			r.Get("/splits/on-sale", h.GetSplitsOnSale)
			r.Get("/splits/{splitID}/value", h.GetSplitValue)
			r.Post("/splits/{splitID}/sale", h.PlaceOnSale)
			r.Post("/splits/{splitID}/purchase", h.BuyFromSale)
			r.Get("/splits/{splitID}/offers", h.GetSplitOffers)
			r.Post("/splits/{splitID}/offers", h.MakeOffer)
			r.Post("/splits/{splitID}/offers/{offerID}/accept", h.AcceptOffer)

			r.Get("/sagas/{sagaID}", h.GetSaga)
			r.Put("/marketplace/owner", h.TransferMarketplaceOwnership)
		})

		r.Route("/internal/callbacks", func(r chi.Router) {
			r.Use(auth.RequireRuntime)
			r.Post("/mint/{sagaID}", h.MintCallback)
			r.Post("/transfer/{sagaID}", h.TransferCallback)
		})
	})
	return r
}

func (h *HTTPHandler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.log.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		}).Debug("http request")
	})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) CreateProperty(w http.ResponseWriter, r *http.Request) {
	var req CreatePropertyRequest
	if !h.decode(w, r, &req) {
		return
	}
	in, err := req.toInput()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.market.CreateProperty(r.Context(), auth.CallerFromContext(r.Context()), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toCreatePropertyResponse(res))
}

func (h *HTTPHandler) GetProperties(w http.ResponseWriter, r *http.Request) {
	props, err := h.market.GetProperties(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PropertiesResponse{Properties: toPropertyDTOs(props)})
}

func (h *HTTPHandler) SetValuation(w http.ResponseWriter, r *http.Request) {
	propertyID, ok := h.uintParam(w, r, "propertyID")
	if !ok {
		return
	}
	var req SetValuationRequest
	if !h.decode(w, r, &req) {
		return
	}
	value, err := domain.ParseAmount(req.Valuation)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.market.SetValuation(r.Context(), auth.CallerFromContext(r.Context()), propertyID, value); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"valuation": value.String()})
}

func (h *HTTPHandler) GetUserProperties(w http.ResponseWriter, r *http.Request) {
	props, err := h.market.GetUserProperties(r.Context(), chi.URLParam(r, "account"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PropertiesResponse{Properties: toPropertyDTOs(props)})
}

// GetAccountLedger is visible to the account itself and the marketplace owner.
func (h *HTTPHandler) GetAccountLedger(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	caller := auth.CallerFromContext(r.Context())
	if caller.Account != account {
		owner, err := h.market.MarketplaceOwner(r.Context())
		if err != nil || caller.Account == "" || caller.Account != owner {
			h.fail(w, r, fmt.Errorf("%w: ledger of %s", domain.ErrUnauthorized, account))
			return
		}
	}
	entries, err := h.market.AccountLedger(r.Context(), account)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, LedgerResponse{Entries: toLedgerDTOs(entries)})
}

func (h *HTTPHandler) GetSplitsOnSale(w http.ResponseWriter, r *http.Request) {
	splits, err := h.market.GetSplitsOnSale(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SplitsResponse{Splits: toSplitDTOs(splits)})
}

func (h *HTTPHandler) GetSplitValue(w http.ResponseWriter, r *http.Request) {
	splitID, ok := h.uintParam(w, r, "splitID")
	if !ok {
		return
	}
	value, err := h.market.SplitValue(r.Context(), splitID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SplitValueResponse{SplitID: splitID, Value: value.String()})
}

func (h *HTTPHandler) PlaceOnSale(w http.ResponseWriter, r *http.Request) {
	splitID, ok := h.uintParam(w, r, "splitID")
	if !ok {
		return
	}
	split, err := h.market.PlaceOnSale(r.Context(), auth.CallerFromContext(r.Context()), splitID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSplitDTO(*split))
}

func (h *HTTPHandler) BuyFromSale(w http.ResponseWriter, r *http.Request) {
	splitID, ok := h.uintParam(w, r, "splitID")
	if !ok {
		return
	}
	var req DepositRequest
	if !h.decode(w, r, &req) {
		return
	}
	deposit, err := domain.ParseAmount(req.Deposit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	saga, err := h.market.BuyFromSale(r.Context(), auth.CallerFromContext(r.Context()), splitID, deposit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toSagaDTO(*saga))
}

func (h *HTTPHandler) GetSplitOffers(w http.ResponseWriter, r *http.Request) {
	splitID, ok := h.uintParam(w, r, "splitID")
	if !ok {
		return
	}
	offers, err := h.market.GetSplitOffers(r.Context(), splitID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, OffersResponse{Offers: toOfferDTOs(offers)})
}

func (h *HTTPHandler) MakeOffer(w http.ResponseWriter, r *http.Request) {
	splitID, ok := h.uintParam(w, r, "splitID")
	if !ok {
		return
	}
	var req DepositRequest
	if !h.decode(w, r, &req) {
		return
	}
	deposit, err := domain.ParseAmount(req.Deposit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	offer, err := h.market.MakeOffer(r.Context(), auth.CallerFromContext(r.Context()), splitID, deposit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOfferDTO(*offer))
}

func (h *HTTPHandler) AcceptOffer(w http.ResponseWriter, r *http.Request) {
	splitID, ok := h.uintParam(w, r, "splitID")
	if !ok {
		return
	}
	offerID, ok := h.uintParam(w, r, "offerID")
	if !ok {
		return
	}
	saga, err := h.market.AcceptOffer(r.Context(), auth.CallerFromContext(r.Context()), splitID, offerID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toSagaDTO(*saga))
}

func (h *HTTPHandler) GetSaga(w http.ResponseWriter, r *http.Request) {
	sagaID, ok := h.uuidParam(w, r)
	if !ok {
		return
	}
	saga, err := h.market.GetSaga(r.Context(), sagaID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSagaDTO(*saga))
}

func (h *HTTPHandler) TransferMarketplaceOwnership(w http.ResponseWriter, r *http.Request) {
	var req OwnerRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.market.TransferMarketplaceOwnership(r.Context(), auth.CallerFromContext(r.Context()), req.NewOwner); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"owner": req.NewOwner})
}

func (h *HTTPHandler) MintCallback(w http.ResponseWriter, r *http.Request) {
	sagaID, ok := h.uuidParam(w, r)
	if !ok {
		return
	}
	var req MintCallbackRequest
	if !h.decode(w, r, &req) {
		return
	}
	caller := auth.CallerFromContext(r.Context())
	if !req.Success {
		if err := h.market.OnMintFailed(r.Context(), caller, sagaID, req.Reason); err != nil {
			h.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	split, err := h.market.OnMintCompleted(r.Context(), caller, sagaID, *req.Token)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSplitDTO(*split))
}

func (h *HTTPHandler) TransferCallback(w http.ResponseWriter, r *http.Request) {
	sagaID, ok := h.uuidParam(w, r)
	if !ok {
		return
	}
	var req TransferCallbackRequest
	if !h.decode(w, r, &req) {
		return
	}
	caller := auth.CallerFromContext(r.Context())
	if !req.Success {
		if err := h.market.OnTransferFailed(r.Context(), caller, sagaID, req.Reason); err != nil {
			h.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	split, err := h.market.OnTransferCompleted(r.Context(), caller, sagaID, req.NewOwner)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSplitDTO(*split))
}

// decode reads and validates a JSON body, answering 400 itself on failure.
func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return false
	}
	return true
}

func (h *HTTPHandler) uintParam(w http.ResponseWriter, r *http.Request, name string) (uint64, bool) {
	v, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid " + name})
		return 0, false
	}
	return v, true
}

func (h *HTTPHandler) uuidParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "sagaID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid sagaID"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *HTTPHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, message := httpError(err)
	if status == http.StatusInternalServerError {
		h.log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
	}
	writeJSON(w, status, ErrorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
