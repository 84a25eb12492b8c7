package zklogin

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/sui-escrow-gateway/cryptoutils"
	"github.com/ruteri/sui-escrow-gateway/interfaces"
	"go.uber.org/atomic"
)

// EpochSource reports the current chain epoch.
type EpochSource interface {
	CurrentEpoch(ctx context.Context) (uint64, error)
}

// Config configures an Orchestrator.
type Config struct {
	Providers   map[interfaces.Provider]ProviderConfig
	RedirectURL string
	// KeyScheme of ephemeral keys. Defaults to Ed25519.
	KeyScheme cryptoutils.SignatureScheme
	// FlowTTL bounds how long a pending flow waits for its callback.
	// Defaults to DefaultFlowTTL.
	FlowTTL time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// DefaultFlowTTL covers a provider sign-in including consent screens.
const DefaultFlowTTL = 10 * time.Minute

// AuthRequest is the redirect a caller sends the user to.
type AuthRequest struct {
	FlowID string `json:"flowId"`
	URL    string `json:"authUrl"`
	Nonce  string `json:"nonce"`
	State  string `json:"state"`
}

// Orchestrator drives authentication flows and stores completed sessions.
type Orchestrator struct {
	cfg    Config
	salt   interfaces.SaltProvider
	prover interfaces.ProofProvider
	store  interfaces.SessionStore
	epochs EpochSource
	log    *slog.Logger

	mu    sync.Mutex
	flows map[string]*Flow
	// byRandomness indexes pending flows by the randomness echoed in the state.
	byRandomness map[string]*Flow
}

// NewOrchestrator wires the collaborators. epochs may be nil when callers always pass maxEpoch.
func NewOrchestrator(cfg Config, salt interfaces.SaltProvider, prover interfaces.ProofProvider, store interfaces.SessionStore, epochs EpochSource, log *slog.Logger) *Orchestrator {
	if cfg.Providers == nil {
		cfg.Providers = DefaultProviders()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.FlowTTL <= 0 {
		cfg.FlowTTL = DefaultFlowTTL
	}
	return &Orchestrator{
		cfg:    cfg,
		salt:   salt,
		prover: prover,
		store:  store,
		epochs: epochs,
		log:    log,
		flows:  make(map[string]*Flow),

		byRandomness: make(map[string]*Flow),
	}
}

// Flow is one authentication attempt. Its key material never outlives it unless
// the flow completes into a stored session.
type Flow struct {
	ID       string
	Provider interfaces.Provider
	MaxEpoch uint64

	state     atomic.Uint32
	expiresAt time.Time

	mu         sync.Mutex
	key        cryptoutils.KeyPair
	randomness string
	nonce      string
	failure    error
	resumable  bool

	// Step outputs kept for resumption.
	jwt    string
	claims *Claims
	salt   string
	proof  json.RawMessage
}

// State returns the current flow state.
func (f *Flow) State() FlowState {
	return FlowState(f.state.Load())
}

// Nonce is the value bound into the provider credential.
func (f *Flow) Nonce() string {
	return f.nonce
}

// Failure returns the classified error of a Failed flow.
func (f *Flow) Failure() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failure
}

func (f *Flow) set(s FlowState) {
	f.state.Store(uint32(s))
}

func (f *Flow) fail(err error, resumable bool) error {
	f.failure = err
	f.resumable = resumable
	f.set(StateFailed)
	return err
}

// wipe drops the ephemeral key and the step outputs. Must hold f.mu.
func (f *Flow) wipe() {
	f.key = nil
	f.jwt, f.claims, f.salt, f.proof = "", nil, "", nil
}

// terminate fails flow for good and discards it. Must hold flow.mu.
func (o *Orchestrator) terminate(flow *Flow, err error) error {
	flow.fail(err, false)
	o.unregister(flow.ID)
	flow.wipe()
	return err
}

// Begin starts a flow for provider bound to maxEpoch.
func (o *Orchestrator) Begin(provider interfaces.Provider, maxEpoch uint64) (*Flow, *AuthRequest, error) {
	pcfg, ok := o.cfg.Providers[provider]
	if !ok || pcfg.ClientID == "" {
		return nil, nil, fmt.Errorf("%w: provider %s has no client id", interfaces.ErrConfiguration, provider)
	}
	if o.cfg.RedirectURL == "" {
		return nil, nil, fmt.Errorf("%w: redirect url is not set", interfaces.ErrConfiguration)
	}

	now := o.cfg.Now()
	o.pruneExpired(now)

	flow := &Flow{ID: uuid.NewString(), Provider: provider, MaxEpoch: maxEpoch, expiresAt: now.Add(o.cfg.FlowTTL)}

	key, err := cryptoutils.GenerateKeyPair(o.cfg.KeyScheme)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", interfaces.ErrConfiguration, err)
	}
	randomness, err := cryptoutils.GenerateRandomness()
	if err != nil {
		return nil, nil, err
	}
	flagged := cryptoutils.FlaggedPublicKey(key)
	nonce, err := cryptoutils.ComputeNonce(flagged, maxEpoch, randomness)
	if err != nil {
		return nil, nil, err
	}
	flow.key, flow.randomness, flow.nonce = key, randomness, nonce
	flow.set(StateKeysGenerated)

	payload := &StatePayload{
		Provider:           provider,
		Randomness:         randomness,
		MaxEpoch:           maxEpoch,
		EphemeralPublicKey: base64.StdEncoding.EncodeToString(flagged),
	}
	state, err := payload.Encode()
	if err != nil {
		return nil, nil, err
	}
	authURL, err := pcfg.authorizationURL(o.cfg.RedirectURL, nonce, state)
	if err != nil {
		return nil, nil, err
	}
	flow.set(StateRedirectIssued)

	o.mu.Lock()
	o.flows[flow.ID] = flow
	o.byRandomness[randomness] = flow
	o.mu.Unlock()

	o.log.Info("Began zkLogin flow",
		slog.String("flow_id", flow.ID),
		slog.String("provider", string(provider)),
		slog.Uint64("max_epoch", maxEpoch))

	return flow, &AuthRequest{FlowID: flow.ID, URL: authURL, Nonce: nonce, State: state}, nil
}

// BeginWithCurrentEpoch starts a flow valid for epochOffset epochs past the current one.
func (o *Orchestrator) BeginWithCurrentEpoch(ctx context.Context, provider interfaces.Provider, epochOffset uint64) (*Flow, *AuthRequest, error) {
	if o.epochs == nil {
		return nil, nil, fmt.Errorf("%w: no epoch source", interfaces.ErrConfiguration)
	}
	epoch, err := o.epochs.CurrentEpoch(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read current epoch: %w", err)
	}
	return o.Begin(provider, epoch+epochOffset)
}

// Flow returns a pending flow by id.
func (o *Orchestrator) Flow(id string) (*Flow, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	f, ok := o.flows[id]
	if !ok || !o.cfg.Now().Before(f.expiresAt) {
		return nil, false
	}
	return f, true
}

// PendingFlows counts registered flows, expired ones included until pruned.
func (o *Orchestrator) PendingFlows() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.flows)
}

// FlowForState finds the pending flow a callback state belongs to.
func (o *Orchestrator) FlowForState(state string) (*Flow, error) {
	payload, err := DecodeState(state)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	f, ok := o.byRandomness[payload.Randomness]
	if !ok || !o.cfg.Now().Before(f.expiresAt) {
		return nil, fmt.Errorf("%w: no pending flow for state", interfaces.ErrInvalidCredential)
	}
	// key is immutable while the flow is registered.
	if f.Provider != payload.Provider || f.MaxEpoch != payload.MaxEpoch ||
		base64.StdEncoding.EncodeToString(cryptoutils.FlaggedPublicKey(f.key)) != payload.EphemeralPublicKey {
		return nil, fmt.Errorf("%w: state does not match the pending flow", interfaces.ErrInvalidCredential)
	}
	return f, nil
}

// Abandon drops a pending flow and its key material.
func (o *Orchestrator) Abandon(id string) {
	f := o.unregister(id)
	if f == nil {
		return
	}
	f.mu.Lock()
	f.wipe()
	f.mu.Unlock()
}

func (o *Orchestrator) unregister(id string) *Flow {
	o.mu.Lock()
	defer o.mu.Unlock()
	f, ok := o.flows[id]
	if !ok {
		return nil
	}
	delete(o.flows, id)
	delete(o.byRandomness, f.randomness)
	return f
}

// pruneExpired discards flows whose callback never arrived.
func (o *Orchestrator) pruneExpired(now time.Time) {
	var expired []*Flow
	o.mu.Lock()
	for id, f := range o.flows {
		if now.Before(f.expiresAt) {
			continue
		}
		delete(o.flows, id)
		delete(o.byRandomness, f.randomness)
		expired = append(expired, f)
	}
	o.mu.Unlock()

	// flow.mu is taken after o.mu is released; Complete locks them the other way round.
	for _, f := range expired {
		f.mu.Lock()
		f.wipe()
		f.mu.Unlock()
		o.log.Debug("Dropped expired zkLogin flow", slog.String("flow_id", f.ID))
	}
}

// Complete validates the credential and resolves salt, proof and address, then
// stores the session. Steps run strictly in order. A flow that failed on the
// salt or proof step may be completed again with the same jwt and resumes there.
func (o *Orchestrator) Complete(ctx context.Context, flow *Flow, token string) (*interfaces.AuthSession, error) {
	flow.mu.Lock()
	defer flow.mu.Unlock()

	switch flow.State() {
	case StateRedirectIssued:
	case StateFailed:
		if !flow.resumable {
			return nil, fmt.Errorf("flow failed and cannot be resumed: %w", flow.failure)
		}
		if token != flow.jwt {
			return nil, fmt.Errorf("%w: flow must be resumed with the same credential", interfaces.ErrInvalidCredential)
		}
	default:
		return nil, fmt.Errorf("flow is %s, expected %s", flow.State(), StateRedirectIssued)
	}
	if flow.key == nil {
		return nil, fmt.Errorf("%w: flow was abandoned or expired", interfaces.ErrInvalidCredential)
	}

	log := o.log.With(slog.String("flow_id", flow.ID), slog.String("provider", string(flow.Provider)))

	if flow.claims == nil {
		claims, err := ParseJWT(token)
		if err != nil {
			return nil, o.terminate(flow, err)
		}
		if claims.Expired(o.cfg.Now()) {
			return nil, o.terminate(flow, fmt.Errorf("%w: credential expired at %s", interfaces.ErrSessionExpired, claims.ExpiresAt.Time.UTC().Format(time.RFC3339)))
		}
		if claims.Nonce != "" && claims.Nonce != flow.nonce {
			return nil, o.terminate(flow, fmt.Errorf("%w: nonce does not match the flow", interfaces.ErrInvalidCredential))
		}
		flow.jwt, flow.claims = token, claims
		flow.set(StateJwtReceived)
	} else if flow.claims.Expired(o.cfg.Now()) {
		return nil, o.terminate(flow, fmt.Errorf("%w: credential expired", interfaces.ErrSessionExpired))
	}

	if flow.salt == "" {
		salt, err := o.salt.GetSalt(ctx, token)
		if err != nil {
			log.Warn("Salt request failed", "err", err)
			return nil, flow.fail(classify(interfaces.ErrSaltUnavailable, err), true)
		}
		if salt == "" {
			return nil, flow.fail(fmt.Errorf("%w: empty salt", interfaces.ErrSaltUnavailable), true)
		}
		flow.salt = salt
		flow.set(StateSaltResolved)
	}

	if flow.proof == nil {
		proof, err := o.prover.GetProof(ctx, interfaces.ProofRequest{
			JWT:                        token,
			ExtendedEphemeralPublicKey: base64.StdEncoding.EncodeToString(cryptoutils.FlaggedPublicKey(flow.key)),
			MaxEpoch:                   flow.MaxEpoch,
			JWTRandomness:              flow.randomness,
			Salt:                       flow.salt,
			KeyClaimName:               "sub",
		})
		if err != nil {
			log.Warn("Proof request failed", "err", err)
			return nil, flow.fail(classify(interfaces.ErrProofUnavailable, err), true)
		}
		if len(proof) == 0 {
			return nil, flow.fail(fmt.Errorf("%w: empty proof", interfaces.ErrProofUnavailable), true)
		}
		flow.proof = proof
		flow.set(StateProofResolved)
	}

	address, err := cryptoutils.DeriveZkLoginAddress(flow.salt, flow.claims.Subject, flow.claims.Aud())
	if err != nil {
		return nil, o.terminate(flow, fmt.Errorf("%w: %v", interfaces.ErrInvalidCredential, err))
	}

	session := &interfaces.AuthSession{
		Provider:     flow.Provider,
		Nonce:        flow.nonce,
		Randomness:   flow.randomness,
		MaxEpoch:     flow.MaxEpoch,
		JWT:          token,
		Salt:         flow.salt,
		UserAddress:  address.String(),
		EphemeralKey: cryptoutils.ExportKeyPair(flow.key),
		ZkProof:      flow.proof,
		CreatedAt:    o.cfg.Now().UTC(),
	}
	if err := o.store.Save(ctx, session); err != nil {
		return nil, flow.fail(fmt.Errorf("failed to store session: %w", err), true)
	}
	flow.set(StateSessionActive)
	o.unregister(flow.ID)
	flow.wipe()

	log.Info("zkLogin session active", slog.String("address", session.UserAddress))
	return session.Clone(), nil
}

// classify wraps a collaborator error with the step error. Errors already
// carrying a classification keep it.
func classify(step error, err error) error {
	if errors.Is(err, step) {
		return err
	}
	return fmt.Errorf("%w: %w", step, err)
}
