package httpserver

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ruteri/sui-escrow-gateway/cryptoutils"
	"github.com/ruteri/sui-escrow-gateway/escrow"
	"github.com/ruteri/sui-escrow-gateway/executor"
	"github.com/ruteri/sui-escrow-gateway/interfaces"
	"github.com/ruteri/sui-escrow-gateway/zklogin"
)

// callResponse is the outcome of a submitted call. ObjectID is set for calls
// that create an account, a product or an escrow.
type callResponse struct {
	*executor.Result
	ObjectID *interfaces.ObjectID `json:"objectId,omitempty"`
}

type rejectedResponse struct {
	errorResponse
	Digest string `json:"digest,omitempty"`
}

// submit signs call with the session and executes it. created names the
// escrow module struct whose new object id is reported.
func (h *Handler) submit(w http.ResponseWriter, r *http.Request, call *escrow.Call, created string) {
	signer, err := h.signer(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.cfg.Executor.Execute(r.Context(), call, signer)
	if err != nil {
		if res != nil {
			// Sequenced but aborted: the digest identifies the failed transaction.
			status, code := statusFor(err)
			writeJSON(w, status, rejectedResponse{
				errorResponse: errorResponse{Error: err.Error(), Code: code},
				Digest:        res.Digest,
			})
			return
		}
		if errors.Is(err, interfaces.ErrNetwork) {
			h.cfg.Metrics.ObserveCollaboratorError("chain")
		}
		h.writeError(w, r, err)
		return
	}

	resp := callResponse{Result: res}
	if created != "" {
		if ids := res.Created(created); len(ids) > 0 {
			resp.ObjectID = &ids[0]
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type createAccountRequest struct {
	Email     string `json:"email,omitempty"`
	EmailHash string `json:"emailHash,omitempty"`
}

// HandleCreateAccount registers the session's account. Without an email in the
// body the email claim of the session credential is used.
//
// URL format: POST /api/accounts
func (h *Handler) HandleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &req); err != nil {
			h.writeError(w, r, err)
			return
		}
	}

	emailHash := req.EmailHash
	if emailHash == "" && req.Email != "" {
		emailHash = cryptoutils.HashEmail(req.Email)
	}
	if emailHash == "" {
		s, err := h.cfg.Sessions.Load(r.Context())
		if err != nil {
			h.writeError(w, r, fmt.Errorf("%w: %w", interfaces.ErrSigning, err))
			return
		}
		claims, err := zklogin.ParseJWT(s.JWT)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		emailHash = claims.EmailHash()
	}

	call, err := h.cfg.Builder.CreateAccount(emailHash)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.submit(w, r, call, escrow.StructUserAccount)
}

type upgradeRequest struct {
	Tier    uint8   `json:"tier"`
	Payment *uint64 `json:"payment,omitempty"`
}

// HandleUpgradeSubscription pays for a subscription tier. Payment defaults to the tier price.
//
// URL format: POST /api/accounts/{id}/subscription
func (h *Handler) HandleUpgradeSubscription(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req upgradeRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	payment := uint64(0)
	if req.Payment != nil {
		payment = *req.Payment
	} else {
		tier, err := escrow.LookupTier(h.cfg.Builder.Tiers(), req.Tier)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		payment = tier.Price
	}

	call, err := h.cfg.Builder.UpgradeSubscription(accountID, req.Tier, payment)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.submit(w, r, call, "")
}

type createProductRequest struct {
	AccountID *interfaces.ObjectID `json:"accountId,omitempty"`
	escrow.ProductInput
}

// HandleCreateProduct lists a product. Without accountId the session's account is used.
//
// URL format: POST /api/products
func (h *Handler) HandleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	var accountID interfaces.ObjectID
	if req.AccountID != nil {
		accountID = *req.AccountID
	} else {
		signer, err := h.signer(r.Context())
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		user, err := h.cfg.Query.UserAccount(r.Context(), signer.Address())
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		accountID = user.ID
	}

	call, err := h.cfg.Builder.CreateProduct(accountID, req.ProductInput)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.submit(w, r, call, escrow.StructProduct)
}

// HandleVerifyProduct adds the session's verification to a product.
//
// URL format: POST /api/products/{id}/verify
func (h *Handler) HandleVerifyProduct(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	unlock := h.locks.Lock(productID)
	defer unlock()

	call, err := h.cfg.Builder.VerifyProduct(productID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.submit(w, r, call, "")
}

type createEscrowRequest struct {
	escrow.EscrowInput
	// AmountSUI is a decimal SUI amount used when Amount is zero.
	AmountSUI string `json:"amountSui,omitempty"`
}

// HandleCreateEscrow opens an escrow funded by the session's address.
//
// URL format: POST /api/escrows
func (h *Handler) HandleCreateEscrow(w http.ResponseWriter, r *http.Request) {
	var req createEscrowRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Amount == 0 && req.AmountSUI != "" {
		amount, err := escrow.ParseSui(req.AmountSUI)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		req.Amount = amount
	}

	call, err := h.cfg.Builder.CreateEscrow(req.EscrowInput)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.submit(w, r, call, escrow.StructEscrowContract)
}

// escrowAction serves the escrow transitions that take no arguments.
// Calls on the same escrow are serialized.
func (h *Handler) escrowAction(build func(interfaces.ObjectID) (*escrow.Call, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		escrowID, err := pathID(r, "id")
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		unlock := h.locks.Lock(escrowID)
		defer unlock()

		call, err := build(escrowID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		h.submit(w, r, call, "")
	}
}

type trackingRequest struct {
	Location string `json:"location"`
	Status   string `json:"status"`
}

// HandleUpdateTracking appends a shipment checkpoint.
//
// URL format: POST /api/escrows/{id}/tracking
func (h *Handler) HandleUpdateTracking(w http.ResponseWriter, r *http.Request) {
	escrowID, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req trackingRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	unlock := h.locks.Lock(escrowID)
	defer unlock()

	call, err := h.cfg.Builder.UpdateTracking(escrowID, req.Location, req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.submit(w, r, call, "")
}
