// Package httpapi exposes the exchange engine over a REST API.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	app "github.com/R3E-Network/exchange_layer/internal/app"
	domain "github.com/R3E-Network/exchange_layer/internal/app/domain/market"
	"github.com/R3E-Network/exchange_layer/internal/app/events"
	"github.com/R3E-Network/exchange_layer/internal/middleware"
)

// handler bundles HTTP endpoints for the exchange engine.
type handler struct {
	app *app.Application
}

// NewHandler returns a router exposing the exchange REST API. Caller identity
// is read from the request context populated by the auth middleware.
func NewHandler(application *app.Application) http.Handler {
	h := &handler{app: application}
	r := mux.NewRouter()

	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)

	r.HandleFunc("/market/config", h.marketConfig).Methods(http.MethodGet)
	r.HandleFunc("/market/fees", h.accruedFees).Methods(http.MethodGet)
	r.HandleFunc("/market/sales", h.sales).Methods(http.MethodGet)
	r.HandleFunc("/market/withdrawals", h.withdrawals).Methods(http.MethodGet)
	r.HandleFunc("/events", h.events).Methods(http.MethodGet)

	r.HandleFunc("/collections/{collection}/listings", h.listListings).Methods(http.MethodGet)
	r.HandleFunc("/collections/{collection}/listings/{token}", h.getListing).Methods(http.MethodGet)
	r.Handle("/collections/{collection}/listings/{token}", authed(h.createListing)).Methods(http.MethodPost)
	r.Handle("/collections/{collection}/listings/{token}", authed(h.updatePrice)).Methods(http.MethodPatch)
	r.Handle("/collections/{collection}/listings/{token}", authed(h.cancelListing)).Methods(http.MethodDelete)
	r.Handle("/collections/{collection}/listings/{token}/buy", authed(h.buy)).Methods(http.MethodPost)

	r.Handle("/admin/fee-rate", authed(h.setFeeRate)).Methods(http.MethodPut)
	r.Handle("/admin/collections/{collection}", authed(h.setCollectionAllowed)).Methods(http.MethodPut)
	r.Handle("/admin/pause", authed(h.setPaused)).Methods(http.MethodPost)
	r.Handle("/admin/withdraw", authed(h.withdraw)).Methods(http.MethodPost)

	return r
}

// authed rejects requests whose context carries no authenticated caller.
func authed(fn http.HandlerFunc) http.Handler {
	return middleware.RequireCaller(fn)
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) marketConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.app.Market.Config(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *handler) accruedFees(w http.ResponseWriter, r *http.Request) {
	accrued, err := h.app.Market.AccruedFees(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"accrued": accrued.String()})
}

func (h *handler) sales(w http.ResponseWriter, r *http.Request) {
	sales, err := h.app.Market.Sales(r.Context(), r.URL.Query().Get("collection"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, sales)
}

func (h *handler) withdrawals(w http.ResponseWriter, r *http.Request) {
	withdrawals, err := h.app.Market.Withdrawals(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, withdrawals)
}

func (h *handler) events(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	var recent []events.Event
	if t := strings.TrimSpace(r.URL.Query().Get("type")); t != "" {
		recent = h.app.Market.Events().RecentByType(events.Type(t), limit)
	} else {
		recent = h.app.Market.Events().Recent(limit)
	}
	if recent == nil {
		recent = []events.Event{}
	}
	writeJSON(w, http.StatusOK, recent)
}

func (h *handler) listListings(w http.ResponseWriter, r *http.Request) {
	listings, err := h.app.Market.ListListings(r.Context(), mux.Vars(r)["collection"])
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if listings == nil {
		listings = []domain.Listing{}
	}
	writeJSON(w, http.StatusOK, listings)
}

func (h *handler) getListing(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	listing, err := h.app.Market.GetListing(r.Context(), vars["collection"], vars["token"])
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !listing.Active() {
		writeError(w, http.StatusNotFound, domain.ErrNotListed)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (h *handler) createListing(w http.ResponseWriter, r *http.Request) {
	caller := middleware.Caller(r.Context())

	var payload struct {
		Price string `json:"price"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	price, err := parseAmount(payload.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	vars := mux.Vars(r)
	listing, err := h.app.Market.List(r.Context(), caller, vars["collection"], vars["token"], price)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, listing)
}

func (h *handler) updatePrice(w http.ResponseWriter, r *http.Request) {
	caller := middleware.Caller(r.Context())

	var payload struct {
		Price string `json:"price"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	price, err := parseAmount(payload.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	vars := mux.Vars(r)
	listing, err := h.app.Market.UpdatePrice(r.Context(), caller, vars["collection"], vars["token"], price)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (h *handler) cancelListing(w http.ResponseWriter, r *http.Request) {
	caller := middleware.Caller(r.Context())

	vars := mux.Vars(r)
	if err := h.app.Market.Cancel(r.Context(), caller, vars["collection"], vars["token"]); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) buy(w http.ResponseWriter, r *http.Request) {
	caller := middleware.Caller(r.Context())

	var payload struct {
		Payment string `json:"payment"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	payment, err := parseAmount(payload.Payment)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	vars := mux.Vars(r)
	sale, err := h.app.Market.Buy(r.Context(), caller, vars["collection"], vars["token"], payment)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sale)
}

// --- Admin endpoints ---

func (h *handler) setFeeRate(w http.ResponseWriter, r *http.Request) {
	caller := middleware.Caller(r.Context())

	var payload struct {
		Rate uint64 `json:"rate"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.app.Market.SetFeeRate(r.Context(), caller, payload.Rate); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"rate": payload.Rate})
}

func (h *handler) setCollectionAllowed(w http.ResponseWriter, r *http.Request) {
	caller := middleware.Caller(r.Context())

	var payload struct {
		Allowed bool `json:"allowed"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	collection := mux.Vars(r)["collection"]
	var err error
	if payload.Allowed {
		err = h.app.Market.AllowCollection(r.Context(), caller, collection)
	} else {
		err = h.app.Market.DisallowCollection(r.Context(), caller, collection)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"collection": collection, "allowed": payload.Allowed})
}

func (h *handler) setPaused(w http.ResponseWriter, r *http.Request) {
	caller := middleware.Caller(r.Context())

	var payload struct {
		Paused bool `json:"paused"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var err error
	if payload.Paused {
		err = h.app.Market.Pause(r.Context(), caller)
	} else {
		err = h.app.Market.Unpause(r.Context(), caller)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": payload.Paused})
}

func (h *handler) withdraw(w http.ResponseWriter, r *http.Request) {
	caller := middleware.Caller(r.Context())

	var payload struct {
		To     string `json:"to"`
		Amount string `json:"amount"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(payload.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	withdrawal, err := h.app.Market.Withdraw(r.Context(), caller, payload.To, amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, withdrawal)
}

// --- Helpers ---

func parseAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("amount is required")
	}
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return amount, nil
}

// writeDomainError maps engine errors onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, domain.ErrNotListed):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyListed):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrNotAdmin):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrNotOwner), errors.Is(err, domain.ErrNotApproved):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrPaused):
		status = http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrInsufficientPayment),
		errors.Is(err, domain.ErrZeroPrice),
		errors.Is(err, domain.ErrFeeTooHigh),
		errors.Is(err, domain.ErrCollectionNotAllowed):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrTransferFailed), errors.Is(err, domain.ErrWithdrawFailed):
		status = http.StatusBadGateway
	}
	writeError(w, status, err)
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
