package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	mw "compareboard/internal/api/middleware"
	"compareboard/internal/api/response"
	"compareboard/internal/cache"
	"compareboard/internal/checkout"
	"compareboard/pkg/models"
)

// CreditsClient is the upstream surface for prepaid credits.
type CreditsClient interface {
	GetCreditPacks(ctx context.Context, token string) ([]models.CreditPack, error)
	CreateCheckout(ctx context.Context, token, packID string) (*models.CheckoutSession, error)
	GetCreditOperations(ctx context.Context, token string) ([]models.CreditOperation, error)
}

// PacksCache is the byte-level cache surface for the pack listing.
type PacksCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// NewCreditPacksHandler returns an http.HandlerFunc for GET /api/v1/credits/packs.
// The pack listing changes rarely, so it is cached across users.
func NewCreditPacksHandler(client CreditsClient, packsCache PacksCache, ttl time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := mw.GetRawToken(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing token", nil)
			return
		}

		key := cache.CreditPacksKey()
		if raw, found, err := packsCache.Get(r.Context(), key); err == nil && found {
			var packs []models.CreditPack
			if json.Unmarshal(raw, &packs) == nil {
				response.JSON(w, packs)
				return
			}
		}

		packs, err := client.GetCreditPacks(r.Context(), token)
		if err != nil {
			respondUpstreamError(w, err)
			return
		}
		if packs == nil {
			packs = []models.CreditPack{}
		}

		if raw, err := json.Marshal(packs); err == nil {
			if err := packsCache.Set(r.Context(), key, raw, ttl); err != nil {
				slog.Warn("caching credit packs failed", "error", err)
			}
		}

		response.JSON(w, packs)
	}
}

// NewCheckoutHandler returns an http.HandlerFunc for POST /api/v1/credits/checkout.
// The upstream checkout URL must pass the trusted-domain check before it is
// handed to the browser; an untrusted URL is an error, never a redirect.
func NewCheckoutHandler(client CreditsClient, trustedDomain string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := mw.GetRawToken(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing token", nil)
			return
		}

		var req struct {
			PackID string `json:"pack_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.PackID == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "pack_id is required", nil)
			return
		}

		session, err := client.CreateCheckout(r.Context(), token, req.PackID)
		if err != nil {
			respondUpstreamError(w, err)
			return
		}

		if err := checkout.ValidateURL(session.CheckoutURL, trustedDomain); err != nil {
			if errors.Is(err, checkout.ErrUntrustedRedirect) {
				slog.Error("untrusted checkout url rejected",
					"pack_id", req.PackID,
					"session_id", session.SessionID,
				)
				response.Error(w, http.StatusBadGateway, "UNTRUSTED_REDIRECT",
					"The checkout URL failed the trusted-domain check", nil)
				return
			}
			response.Error(w, http.StatusBadGateway, "UNTRUSTED_REDIRECT",
				"The checkout URL could not be validated", nil)
			return
		}

		response.JSON(w, session)
	}
}

// NewCreditOperationsHandler returns an http.HandlerFunc for
// GET /api/v1/credits/operations, a passthrough of the upstream ledger.
func NewCreditOperationsHandler(client CreditsClient) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := mw.GetRawToken(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing token", nil)
			return
		}

		ops, err := client.GetCreditOperations(r.Context(), token)
		if err != nil {
			respondUpstreamError(w, err)
			return
		}
		if ops == nil {
			ops = []models.CreditOperation{}
		}
		response.JSON(w, ops)
	}
}
