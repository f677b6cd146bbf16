package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/utafrali/storefront/internal/listing"
	"github.com/utafrali/storefront/internal/session"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/logger"
	"github.com/utafrali/storefront/pkg/validator"
)

const (
	defaultSuggestions = 5
	maxSuggestions     = 20
	maxAwait           = 5 * time.Second
)

// ListingHandler handles HTTP requests for listing pages and their
// sessions.
type ListingHandler struct {
	profiles *listing.Registry
	sessions *session.Store
	factory  session.Factory
	logger   *slog.Logger
}

// NewListingHandler creates a new listing HTTP handler. factory builds the
// pipelines of one-shot renders; sessions builds its own.
func NewListingHandler(profiles *listing.Registry, sessions *session.Store, factory session.Factory, logger *slog.Logger) *ListingHandler {
	return &ListingHandler{
		profiles: profiles,
		sessions: sessions,
		factory:  factory,
		logger:   logger,
	}
}

// --- Request / response DTOs ---

// ActionRequest is the JSON request body for a session action.
type ActionRequest struct {
	Type  string      `json:"type" validate:"required,oneof=set_category click_category toggle_expanded toggle_brand set_price_range set_rating set_discount set_search set_sort set_page reset"`
	Value actionValue `json:"value" validate:"max=200"`
	Min   *string     `json:"min" validate:"omitempty,money"`
	Max   *string     `json:"max" validate:"omitempty,money"`
}

// actionValue accepts a JSON string, number, boolean or null, so clients
// can send {"value": 2} for a page as well as {"value": "2"}.
type actionValue string

func (v *actionValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*v = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = actionValue(s)
	case bytes.Equal(data, []byte("true")), bytes.Equal(data, []byte("false")):
		*v = actionValue(data)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("value must be a string or a number")
		}
		*v = actionValue(n.String())
	}
	return nil
}

// toAction converts the validated request into a pipeline action.
func (req ActionRequest) toAction() listing.Action {
	a := listing.Action{Type: listing.ActionType(req.Type), Value: string(req.Value)}
	if req.Min != nil {
		d := decimal.RequireFromString(*req.Min)
		a.Min = &d
	}
	if req.Max != nil {
		d := decimal.RequireFromString(*req.Max)
		a.Max = &d
	}
	return a
}

// MountResponse is returned when a listing session is created.
type MountResponse struct {
	SessionID uuid.UUID    `json:"session_id"`
	View      listing.View `json:"view"`
}

// --- Handlers ---

// ListProfiles handles GET /api/v1/listings
func (h *ListingHandler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	httputil.WriteData(w, http.StatusOK, h.profiles.All())
}

// Render handles GET /api/v1/listings/{profile}. It mounts a throwaway
// pipeline from the query string, waits for the first fetch and returns
// the view, for server-side rendering and deep links.
func (h *ListingHandler) Render(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.lookupProfile(w, r)
	if !ok {
		return
	}

	p := h.factory(profile)
	defer p.Close()

	view, err := p.Mount(r.Context(), r.URL.Query())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, view)
}

// Mount handles POST /api/v1/listings/{profile}/sessions
func (h *ListingHandler) Mount(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.lookupProfile(w, r)
	if !ok {
		return
	}

	id, view, err := h.sessions.Mount(r.Context(), profile, r.URL.Query())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.Header().Set("Location", "/api/v1/sessions/"+id.String())
	httputil.WriteData(w, http.StatusCreated, MountResponse{SessionID: id, View: view})
}

// GetSession handles GET /api/v1/sessions/{id}. With ?wait=true it first
// waits for a pending debounced search or in-flight fetch.
func (h *ListingHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	p, r, ok := h.pipeline(w, r)
	if !ok {
		return
	}

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		ctx, cancel := context.WithTimeout(r.Context(), maxAwait)
		defer cancel()
		view, err := p.Await(ctx)
		if err != nil && ctx.Err() == nil {
			httputil.WriteError(w, r, err, h.logger)
			return
		}
		httputil.WriteData(w, http.StatusOK, view)
		return
	}
	httputil.WriteData(w, http.StatusOK, p.View())
}

// Dispatch handles POST /api/v1/sessions/{id}/actions
func (h *ListingHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	p, r, ok := h.pipeline(w, r)
	if !ok {
		return
	}

	var req ActionRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	view, err := p.Dispatch(r.Context(), req.toAction())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, view)
}

// Retry handles POST /api/v1/sessions/{id}/retry
func (h *ListingHandler) Retry(w http.ResponseWriter, r *http.Request) {
	p, r, ok := h.pipeline(w, r)
	if !ok {
		return
	}

	view, err := p.Retry(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, view)
}

// Suggestions handles GET /api/v1/sessions/{id}/suggestions?q=&limit=
func (h *ListingHandler) Suggestions(w http.ResponseWriter, r *http.Request) {
	p, r, ok := h.pipeline(w, r)
	if !ok {
		return
	}

	limit := defaultSuggestions
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxSuggestions {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
				Error: &httputil.ErrorResponse{
					Code:    "INVALID_PARAMETER",
					Message: fmt.Sprintf("limit must be an integer between 1 and %d", maxSuggestions),
				},
			})
			return
		}
		limit = n
	}

	suggestions, err := p.Suggestions(r.URL.Query().Get("q"), limit)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, suggestions)
}

// Unmount handles DELETE /api/v1/sessions/{id}
func (h *ListingHandler) Unmount(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	if err := h.sessions.Unmount(id); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Helpers ---

func (h *ListingHandler) lookupProfile(w http.ResponseWriter, r *http.Request) (listing.Profile, bool) {
	name := chi.URLParam(r, "profile")
	profile, ok := h.profiles.Lookup(name)
	if !ok {
		httputil.WriteError(w, r, apperrors.NotFound("listing", name), h.logger)
		return listing.Profile{}, false
	}
	return profile, true
}

// pipeline resolves the session in the URL and tags the request context
// with its id, so logs and analytics events carry it.
func (h *ListingHandler) pipeline(w http.ResponseWriter, r *http.Request) (*listing.Pipeline, *http.Request, bool) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return nil, r, false
	}

	p, err := h.sessions.Get(id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return nil, r, false
	}

	ctx := logger.WithSessionID(r.Context(), id.String())
	ctx = logger.NewContext(ctx, logger.FromContext(ctx).With(slog.String("session_id", id.String())))
	return p, r.WithContext(ctx), true
}
