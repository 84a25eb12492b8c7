package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/sui-escrow-gateway/escrow"
	"github.com/ruteri/sui-escrow-gateway/executor"
	"github.com/ruteri/sui-escrow-gateway/interfaces"
	"github.com/ruteri/sui-escrow-gateway/metrics"
	"github.com/ruteri/sui-escrow-gateway/query"
	"github.com/ruteri/sui-escrow-gateway/storage"
	"github.com/ruteri/sui-escrow-gateway/zklogin"
)

const (
	// maxBodySize is the maximum allowed JSON request body size (1MB).
	maxBodySize = 1024 * 1024

	// DefaultEpochOffset is how many epochs past the current one a new session stays valid.
	DefaultEpochOffset = 2

	defaultEventLimit = 50
	maxEventLimit     = 1000
)

// HandlerConfig wires the gateway collaborators. Pins and Faucet are optional;
// their endpoints answer with a configuration error when unset.
type HandlerConfig struct {
	Auth     *zklogin.Orchestrator
	Sessions interfaces.SessionStore
	Executor *executor.Executor
	Builder  *escrow.Builder
	Query    *query.Facade
	Ledger   interfaces.TransactionLedger
	Pins     *storage.MetadataStore
	Faucet   interfaces.GasFaucet
	Metrics  *metrics.Collectors

	// EpochOffset defaults to DefaultEpochOffset.
	EpochOffset uint64
	// Now defaults to time.Now.
	Now func() time.Time
}

// Handler serves the gateway API: zkLogin authentication, escrow calls signed
// with the active session, chain queries, pinning and the transaction ledger.
type Handler struct {
	cfg   HandlerConfig
	locks *objectLocks
	log   *slog.Logger
}

// NewHandler creates a new HTTP request handler with the specified dependencies.
func NewHandler(cfg HandlerConfig, log *slog.Logger) *Handler {
	if cfg.EpochOffset == 0 {
		cfg.EpochOffset = DefaultEpochOffset
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Handler{
		cfg:   cfg,
		locks: newObjectLocks(),
		log:   log,
	}
}

// Routes registers the API endpoints on mux.
func (h *Handler) Routes(mux chi.Router) {
	mux.Get("/api/auth/{provider}/begin", h.HandleAuthBegin)
	mux.Get("/api/auth/callback", h.HandleAuthRelay)
	mux.Post("/api/auth/callback", h.HandleAuthCallback)
	mux.Delete("/api/auth/flows/{flowID}", h.HandleAuthAbandon)
	mux.Get("/api/session", h.HandleGetSession)
	mux.Delete("/api/session", h.HandleDeleteSession)

	mux.Post("/api/accounts", h.HandleCreateAccount)
	mux.Post("/api/accounts/{id}/subscription", h.HandleUpgradeSubscription)
	mux.Post("/api/products", h.HandleCreateProduct)
	mux.Get("/api/products/{id}", h.HandleGetProduct)
	mux.Post("/api/products/{id}/verify", h.HandleVerifyProduct)
	mux.Post("/api/escrows", h.HandleCreateEscrow)
	mux.Get("/api/escrows/{id}", h.HandleGetEscrow)
	mux.Post("/api/escrows/{id}/accept", h.escrowAction(h.cfg.Builder.AcceptEscrow))
	mux.Post("/api/escrows/{id}/tracking", h.HandleUpdateTracking)
	mux.Post("/api/escrows/{id}/complete", h.escrowAction(h.cfg.Builder.CompleteEscrow))
	mux.Post("/api/escrows/{id}/dispute", h.escrowAction(h.cfg.Builder.DisputeEscrow))
	mux.Post("/api/escrows/{id}/cancel", h.escrowAction(h.cfg.Builder.CancelEscrow))

	mux.Get("/api/addresses/{address}/balance", h.HandleBalance)
	mux.Get("/api/addresses/{address}/account", h.HandleAccount)
	mux.Get("/api/addresses/{address}/products", h.HandleProducts)
	mux.Get("/api/addresses/{address}/escrows", h.HandleEscrows)
	mux.Get("/api/objects/{id}", h.HandleObject)
	mux.Get("/api/events/{eventType}", h.HandleEvents)
	mux.Get("/api/transactions", h.HandleTransactions)

	mux.Post("/api/pin/json", h.HandlePinJSON)
	mux.Post("/api/pin/product", h.HandlePinProduct)
	mux.Post("/api/pin/file", h.HandlePinFile)
	mux.Get("/api/pin/{cid}", h.HandleFetchPin)

	mux.Post("/api/faucet", h.HandleFaucet)
}

// Ready reports whether the collaborators needed to serve requests respond.
func (h *Handler) Ready(ctx context.Context) error {
	if _, err := h.cfg.Sessions.Load(ctx); err != nil && !errors.Is(err, interfaces.ErrSessionNotFound) {
		return fmt.Errorf("session store: %w", err)
	}
	return nil
}

// authBeginResponse is the redirect a client sends the user to.
type authBeginResponse struct {
	FlowID  string `json:"flow_id"`
	AuthURL string `json:"auth_url"`
	Nonce   string `json:"nonce"`
	State   string `json:"state"`
}

// HandleAuthBegin starts a zkLogin flow.
//
// URL format: GET /api/auth/{provider}/begin?max_epoch=N
// Without max_epoch the session stays valid EpochOffset epochs past the current one.
func (h *Handler) HandleAuthBegin(w http.ResponseWriter, r *http.Request) {
	provider, err := interfaces.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: %v", interfaces.ErrInvalidArgument, err))
		return
	}

	var req *zklogin.AuthRequest
	if raw := r.URL.Query().Get("max_epoch"); raw != "" {
		maxEpoch, perr := strconv.ParseUint(raw, 10, 64)
		if perr != nil {
			h.writeError(w, r, fmt.Errorf("%w: invalid max_epoch %q", interfaces.ErrInvalidArgument, raw))
			return
		}
		_, req, err = h.cfg.Auth.Begin(provider, maxEpoch)
	} else {
		_, req, err = h.cfg.Auth.BeginWithCurrentEpoch(r.Context(), provider, h.cfg.EpochOffset)
	}
	if err != nil {
		h.cfg.Metrics.ObserveFlow(provider.String(), "begin_failed")
		h.writeError(w, r, err)
		return
	}

	h.cfg.Metrics.ObserveFlow(provider.String(), "begun")
	writeJSON(w, http.StatusOK, authBeginResponse{
		FlowID:  req.FlowID,
		AuthURL: req.URL,
		Nonce:   req.Nonce,
		State:   req.State,
	})
}

var relayPage = template.Must(template.New("relay").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>Signing in</title></head>
<body><p id="status">Completing sign-in...</p>
<script>
const params = new URLSearchParams(window.location.hash.slice(1) || window.location.search.slice(1));
fetch({{.}}, {
  method: "POST",
  headers: {"Content-Type": "application/json"},
  body: JSON.stringify({id_token: params.get("id_token"), access_token: params.get("access_token"), state: params.get("state")})
}).then(r => r.json()).then(b => {
  document.getElementById("status").textContent = b.error ? "Sign-in failed: " + b.error : "Signed in as " + b.address;
});
</script></body></html>
`))

// HandleAuthRelay serves the redirect target. Providers return the credential
// in the URL fragment, which only the browser sees, so the page posts it back.
func (h *Handler) HandleAuthRelay(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := relayPage.Execute(w, r.URL.Path); err != nil {
		h.log.Error("Failed to render relay page", "err", err)
	}
}

type authCallbackRequest struct {
	IDToken     string `json:"id_token"`
	AccessToken string `json:"access_token"`
	State       string `json:"state"`
}

// HandleAuthCallback completes the flow the state belongs to. A flow that failed
// on the salt or proof service can be completed again with the same credential.
//
// URL format: POST /api/auth/callback
func (h *Handler) HandleAuthCallback(w http.ResponseWriter, r *http.Request) {
	var req authCallbackRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	token := req.IDToken
	if token == "" {
		token = req.AccessToken
	}
	if token == "" || req.State == "" {
		h.writeError(w, r, fmt.Errorf("%w: id_token and state are required", interfaces.ErrInvalidArgument))
		return
	}

	flow, err := h.cfg.Auth.FlowForState(req.State)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	session, err := h.cfg.Auth.Complete(r.Context(), flow, token)
	if err != nil {
		h.cfg.Metrics.ObserveFlow(flow.Provider.String(), "failed")
		switch {
		case errors.Is(err, interfaces.ErrSaltUnavailable):
			h.cfg.Metrics.ObserveCollaboratorError("salt")
		case errors.Is(err, interfaces.ErrProofUnavailable):
			h.cfg.Metrics.ObserveCollaboratorError("prover")
		}
		h.writeError(w, r, err)
		return
	}

	h.cfg.Metrics.ObserveFlow(flow.Provider.String(), "completed")
	writeJSON(w, http.StatusOK, h.summarize(session))
}

// HandleAuthAbandon discards a pending flow and its ephemeral key.
func (h *Handler) HandleAuthAbandon(w http.ResponseWriter, r *http.Request) {
	flowID := chi.URLParam(r, "flowID")
	if _, ok := h.cfg.Auth.Flow(flowID); !ok {
		h.writeError(w, r, fmt.Errorf("%w: unknown flow %s", interfaces.ErrInvalidArgument, flowID))
		return
	}
	h.cfg.Auth.Abandon(flowID)
	w.WriteHeader(http.StatusNoContent)
}

// sessionSummary is the public view of a session. Key material, salt and the
// credential never leave the gateway.
type sessionSummary struct {
	Address   string              `json:"address"`
	Provider  interfaces.Provider `json:"provider"`
	MaxEpoch  uint64              `json:"maxEpoch"`
	ExpiresAt *time.Time          `json:"expiresAt,omitempty"`
	CreatedAt time.Time           `json:"createdAt"`
	Valid     bool                `json:"valid"`
}

func (h *Handler) summarize(s *interfaces.AuthSession) sessionSummary {
	summary := sessionSummary{
		Address:   s.UserAddress,
		Provider:  s.Provider,
		MaxEpoch:  s.MaxEpoch,
		CreatedAt: s.CreatedAt,
		Valid:     zklogin.IsSessionValid(s, h.cfg.Now()),
	}
	if claims, err := zklogin.ParseJWT(s.JWT); err == nil && claims.ExpiresAt != nil {
		exp := claims.ExpiresAt.Time.UTC()
		summary.ExpiresAt = &exp
	}
	return summary
}

// HandleGetSession returns the active session summary.
func (h *Handler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.cfg.Sessions.Load(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.summarize(s))
}

// HandleDeleteSession logs out, removing the session with its key material.
func (h *Handler) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.cfg.Sessions.Clear(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.log.Info("Session cleared")
	w.WriteHeader(http.StatusNoContent)
}

// signer builds the signing capability of the stored session.
func (h *Handler) signer(ctx context.Context) (*zklogin.Signer, error) {
	s, err := h.cfg.Sessions.Load(ctx)
	if err != nil {
		if errors.Is(err, interfaces.ErrSessionNotFound) {
			return nil, fmt.Errorf("%w: %w", interfaces.ErrSigning, err)
		}
		return nil, err
	}
	return zklogin.NewSigner(s, h.cfg.Now)
}

// decodeBody reads a JSON body of at most maxBodySize bytes.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: request body over %d bytes", interfaces.ErrContentTooLarge, maxBodySize)
		}
		return fmt.Errorf("%w: failed to read request body: %v", interfaces.ErrInvalidArgument, err)
	}
	if len(body) == 0 {
		return fmt.Errorf("%w: empty request body", interfaces.ErrInvalidArgument)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrInvalidArgument, err)
	}
	return nil
}

func pathID(r *http.Request, name string) (interfaces.ObjectID, error) {
	return interfaces.ParseAddress(chi.URLParam(r, name))
}

func limitParam(r *http.Request, def, max int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: invalid limit %q", interfaces.ErrInvalidArgument, raw)
	}
	if n > max {
		n = max
	}
	return n, nil
}
