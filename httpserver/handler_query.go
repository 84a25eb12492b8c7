package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/sui-escrow-gateway/interfaces"
	"github.com/ruteri/sui-escrow-gateway/storage"
)

func (h *Handler) addressParam(w http.ResponseWriter, r *http.Request) (interfaces.Address, bool) {
	addr, err := interfaces.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		h.writeError(w, r, err)
		return interfaces.Address{}, false
	}
	return addr, true
}

// HandleBalance returns the SUI balance of an address.
func (h *Handler) HandleBalance(w http.ResponseWriter, r *http.Request) {
	addr, ok := h.addressParam(w, r)
	if !ok {
		return
	}
	bal, err := h.cfg.Query.Balance(r.Context(), addr)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bal)
}

// HandleAccount returns the user account owned by an address.
func (h *Handler) HandleAccount(w http.ResponseWriter, r *http.Request) {
	addr, ok := h.addressParam(w, r)
	if !ok {
		return
	}
	user, err := h.cfg.Query.UserAccount(r.Context(), addr)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleProducts lists the products created by an address.
func (h *Handler) HandleProducts(w http.ResponseWriter, r *http.Request) {
	addr, ok := h.addressParam(w, r)
	if !ok {
		return
	}
	products, err := h.cfg.Query.Products(r.Context(), addr)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

// HandleEscrows lists the escrows an address is buyer or seller of.
func (h *Handler) HandleEscrows(w http.ResponseWriter, r *http.Request) {
	addr, ok := h.addressParam(w, r)
	if !ok {
		return
	}
	escrows, err := h.cfg.Query.Escrows(r.Context(), addr)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, escrows)
}

// HandleGetProduct returns one decoded product.
func (h *Handler) HandleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.cfg.Query.Product(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleGetEscrow returns one decoded escrow with its tracking history.
func (h *Handler) HandleGetEscrow(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	e, err := h.cfg.Query.Escrow(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// HandleObject returns a raw chain object.
func (h *Handler) HandleObject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	obj, err := h.cfg.Query.Object(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, obj)
}

// HandleEvents returns escrow module events, newest first.
//
// URL format: GET /api/events/{eventType}?limit=N
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r, defaultEventLimit, maxEventLimit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	events, err := h.cfg.Query.Events(r.Context(), chi.URLParam(r, "eventType"), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if events == nil {
		events = []interfaces.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// HandleTransactions lists audit records of a sender, newest first. The sender
// defaults to the session address.
//
// URL format: GET /api/transactions?sender=0x..&limit=N
func (h *Handler) HandleTransactions(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r, 0, maxEventLimit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var sender interfaces.Address
	if raw := r.URL.Query().Get("sender"); raw != "" {
		sender, err = interfaces.ParseAddress(raw)
	} else {
		s, lerr := h.cfg.Sessions.Load(r.Context())
		if lerr != nil {
			h.writeError(w, r, lerr)
			return
		}
		sender, err = interfaces.ParseAddress(s.UserAddress)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	records, err := h.cfg.Ledger.List(r.Context(), sender, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

type pinResponse struct {
	CID  interfaces.ContentID `json:"cid"`
	URL  string               `json:"url"`
	Size int                  `json:"size"`
}

type pinJSONRequest struct {
	Content   json.RawMessage        `json:"content"`
	Name      string                 `json:"name,omitempty"`
	KeyValues map[string]interface{} `json:"keyvalues,omitempty"`
}

func (h *Handler) pins() (*storage.MetadataStore, error) {
	if h.cfg.Pins == nil {
		return nil, fmt.Errorf("%w: no pinning backend configured", interfaces.ErrConfiguration)
	}
	return h.cfg.Pins, nil
}

// HandlePinJSON pins an arbitrary JSON document.
//
// URL format: POST /api/pin/json {content, name, keyvalues}
func (h *Handler) HandlePinJSON(w http.ResponseWriter, r *http.Request) {
	pins, err := h.pins()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req pinJSONRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(req.Content) == 0 {
		h.writeError(w, r, fmt.Errorf("%w: content is required", interfaces.ErrInvalidArgument))
		return
	}

	id, err := pins.PinJSON(r.Context(), req.Content, storage.PinMetadata{Name: req.Name, KeyValues: req.KeyValues})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.cfg.Metrics.ObservePinned(interfaces.MetadataType.String(), len(req.Content))
	writeJSON(w, http.StatusOK, pinResponse{CID: id, URL: pins.GatewayURL(id), Size: len(req.Content)})
}

// HandlePinProduct pins a product metadata document.
//
// URL format: POST /api/pin/product
func (h *Handler) HandlePinProduct(w http.ResponseWriter, r *http.Request) {
	pins, err := h.pins()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var doc storage.ProductMetadata
	if err := decodeBody(w, r, &doc); err != nil {
		h.writeError(w, r, err)
		return
	}
	if doc.CreatedAt == 0 {
		doc.CreatedAt = h.cfg.Now().UnixMilli()
	}

	id, err := pins.PinProductMetadata(r.Context(), doc)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pinResponse{CID: id, URL: pins.GatewayURL(id)})
}

// HandlePinFile pins an uploaded file from the multipart field "file".
// The optional "name" field names the pin.
//
// URL format: POST /api/pin/file
func (h *Handler) HandlePinFile(w http.ResponseWriter, r *http.Request) {
	pins, err := h.pins()
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	// Leave room for the multipart envelope on top of the file limit.
	r.Body = http.MaxBytesReader(w, r.Body, storage.MaxImageSize+maxBodySize)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, r, fmt.Errorf("%w: upload over %d bytes", interfaces.ErrContentTooLarge, storage.MaxImageSize))
			return
		}
		h.writeError(w, r, fmt.Errorf("%w: missing file field: %v", interfaces.ErrInvalidArgument, err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, storage.MaxImageSize+1))
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: %v", interfaces.ErrInvalidArgument, err))
		return
	}

	name := r.FormValue("name")
	if name == "" {
		name = header.Filename
	}
	id, err := pins.PinFile(r.Context(), data, storage.PinMetadata{Name: name})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.cfg.Metrics.ObservePinned(interfaces.ImageType.String(), len(data))
	writeJSON(w, http.StatusOK, pinResponse{CID: id, URL: pins.GatewayURL(id), Size: len(data)})
}

// HandleFetchPin returns pinned content by CID.
//
// URL format: GET /api/pin/{cid}?type=metadata|image
func (h *Handler) HandleFetchPin(w http.ResponseWriter, r *http.Request) {
	pins, err := h.pins()
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	contentType := interfaces.MetadataType
	switch r.URL.Query().Get("type") {
	case "", "metadata":
	case "image":
		contentType = interfaces.ImageType
	default:
		h.writeError(w, r, fmt.Errorf("%w: unknown content type %q", interfaces.ErrInvalidArgument, r.URL.Query().Get("type")))
		return
	}

	data, err := pins.Fetch(r.Context(), interfaces.ContentID(chi.URLParam(r, "cid")), contentType)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if contentType == interfaces.MetadataType {
		w.Header().Set("Content-Type", "application/json")
	} else {
		w.Header().Set("Content-Type", http.DetectContentType(data))
	}
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	_, _ = w.Write(data)
}

type faucetRequest struct {
	Address *interfaces.Address `json:"address,omitempty"`
}

// HandleFaucet requests test gas for an address, by default the session address.
//
// URL format: POST /api/faucet
func (h *Handler) HandleFaucet(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Faucet == nil {
		h.writeError(w, r, fmt.Errorf("%w: no faucet on this network", interfaces.ErrConfiguration))
		return
	}

	var req faucetRequest
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &req); err != nil {
			h.writeError(w, r, err)
			return
		}
	}

	var recipient interfaces.Address
	if req.Address != nil {
		recipient = *req.Address
	} else {
		signer, err := h.signer(r.Context())
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		recipient = signer.Address()
	}

	if err := h.cfg.Faucet.RequestGas(r.Context(), recipient); err != nil {
		if errors.Is(err, interfaces.ErrNetwork) {
			h.cfg.Metrics.ObserveCollaboratorError("faucet")
		}
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"recipient": recipient.String()})
}
