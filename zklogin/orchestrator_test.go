package zklogin

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/ruteri/sui-escrow-gateway/cryptoutils"
	"github.com/ruteri/sui-escrow-gateway/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestBeginIssuesRedirect(t *testing.T) {
	env := newTestEnv(t)

	flow, req, err := env.orch.Begin(interfaces.ProviderGoogle, 20)
	require.NoError(t, err)
	assert.Equal(t, StateRedirectIssued, flow.State())
	assert.Equal(t, flow.ID, req.FlowID)
	assert.Equal(t, flow.Nonce(), req.Nonce)

	u, err := url.Parse(req.URL)
	require.NoError(t, err)
	assert.Equal(t, "accounts.google.com", u.Host)
	q := u.Query()
	assert.Equal(t, "google-client", q.Get("client_id"))
	assert.Equal(t, "https://app.example.com/callback", q.Get("redirect_uri"))
	assert.Equal(t, "id_token", q.Get("response_type"))
	assert.Equal(t, req.Nonce, q.Get("nonce"))
	assert.Equal(t, req.State, q.Get("state"))

	payload, err := DecodeState(req.State)
	require.NoError(t, err)
	assert.Equal(t, interfaces.ProviderGoogle, payload.Provider)
	assert.Equal(t, uint64(20), payload.MaxEpoch)

	found, err := env.orch.FlowForState(req.State)
	require.NoError(t, err)
	assert.Same(t, flow, found)

	// The nonce is a function of the ephemeral key, the epoch and the randomness.
	nonce, err := cryptoutils.ComputeNonce(cryptoutils.FlaggedPublicKey(flow.key), 20, flow.randomness)
	require.NoError(t, err)
	assert.Equal(t, flow.Nonce(), nonce)

	other, _, err := env.orch.Begin(interfaces.ProviderGoogle, 20)
	require.NoError(t, err)
	assert.NotEqual(t, flow.Nonce(), other.Nonce())
}

func TestBeginRequiresConfiguredProvider(t *testing.T) {
	env := newTestEnv(t)

	flow, req, err := env.orch.Begin(interfaces.ProviderApple, 20)
	require.ErrorIs(t, err, interfaces.ErrConfiguration)
	assert.Nil(t, flow)
	assert.Nil(t, req)

	_, _, err = env.orch.BeginWithCurrentEpoch(context.Background(), interfaces.ProviderGoogle, 2)
	require.ErrorIs(t, err, interfaces.ErrConfiguration)
}

func TestFlowForStateRejectsUnknownState(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.orch.FlowForState("not-base64!")
	require.ErrorIs(t, err, interfaces.ErrInvalidCredential)

	_, req, err := env.orch.Begin(interfaces.ProviderGoogle, 5)
	require.NoError(t, err)
	env.orch.Abandon(req.FlowID)
	_, err = env.orch.FlowForState(req.State)
	require.ErrorIs(t, err, interfaces.ErrInvalidCredential)
}

func TestCompleteActivatesSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	flow, _, err := env.orch.Begin(interfaces.ProviderGoogle, 20)
	require.NoError(t, err)
	token := makeJWT(t, flow.Nonce(), testNow.Add(time.Hour))

	env.salt.On("GetSalt", mock.Anything, token).Return("129390038577185583942388216820280642146", nil).Once()
	env.prover.On("GetProof", mock.Anything, mock.MatchedBy(func(req interfaces.ProofRequest) bool {
		return req.JWT == token && req.MaxEpoch == 20 && req.KeyClaimName == "sub" &&
			req.Salt == "129390038577185583942388216820280642146" && req.JWTRandomness == flow.randomness
	})).Return(testProof, nil).Once()

	sess, err := env.orch.Complete(ctx, flow, token)
	require.NoError(t, err)
	assert.Equal(t, StateSessionActive, flow.State())

	want, err := cryptoutils.DeriveZkLoginAddress("129390038577185583942388216820280642146", "110169484474386276334", "google-client")
	require.NoError(t, err)
	assert.Equal(t, want.String(), sess.UserAddress)
	assert.Equal(t, uint64(20), sess.MaxEpoch)
	assert.Equal(t, token, sess.JWT)
	assert.NotEmpty(t, sess.EphemeralKey)
	assert.Equal(t, testNow, sess.CreatedAt)

	stored, err := env.store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sess, stored)

	_, ok := env.orch.Flow(flow.ID)
	assert.False(t, ok)

	env.salt.AssertExpectations(t)
	env.prover.AssertExpectations(t)
}

func TestCompleteExpiredCredentialMakesNoRequests(t *testing.T) {
	env := newTestEnv(t)

	flow, _, err := env.orch.Begin(interfaces.ProviderGoogle, 20)
	require.NoError(t, err)

	// exp equal to now counts as expired.
	_, err = env.orch.Complete(context.Background(), flow, makeJWT(t, flow.Nonce(), testNow))
	require.ErrorIs(t, err, interfaces.ErrSessionExpired)
	assert.Equal(t, StateFailed, flow.State())
	assert.ErrorIs(t, flow.Failure(), interfaces.ErrSessionExpired)

	env.salt.AssertNotCalled(t, "GetSalt", mock.Anything, mock.Anything)
	env.prover.AssertNotCalled(t, "GetProof", mock.Anything, mock.Anything)

	_, err = env.store.Load(context.Background())
	require.ErrorIs(t, err, interfaces.ErrSessionNotFound)
}

func TestCompleteRejectsInvalidCredentials(t *testing.T) {
	cases := []struct {
		name  string
		token func(t *testing.T, flow *Flow) string
	}{
		{"garbage", func(t *testing.T, _ *Flow) string { return "not.a.jwt" }},
		{"nonce mismatch", func(t *testing.T, _ *Flow) string { return makeJWT(t, "other-nonce", testNow.Add(time.Hour)) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			flow, _, err := env.orch.Begin(interfaces.ProviderGoogle, 20)
			require.NoError(t, err)

			token := tc.token(t, flow)
			_, err = env.orch.Complete(context.Background(), flow, token)
			require.ErrorIs(t, err, interfaces.ErrInvalidCredential)
			assert.Equal(t, StateFailed, flow.State())

			// Terminal: retrying does not reach the network.
			_, err = env.orch.Complete(context.Background(), flow, token)
			require.Error(t, err)
			env.salt.AssertNotCalled(t, "GetSalt", mock.Anything, mock.Anything)
		})
	}
}

func TestCompleteResumesAfterSaltFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	flow, _, err := env.orch.Begin(interfaces.ProviderGoogle, 20)
	require.NoError(t, err)
	token := makeJWT(t, flow.Nonce(), testNow.Add(time.Hour))

	env.salt.On("GetSalt", mock.Anything, token).Return("", errors.New("connection reset")).Once()
	_, err = env.orch.Complete(ctx, flow, token)
	require.ErrorIs(t, err, interfaces.ErrSaltUnavailable)
	assert.Equal(t, StateFailed, flow.State())
	env.prover.AssertNotCalled(t, "GetProof", mock.Anything, mock.Anything)

	// Resuming needs the same credential.
	_, err = env.orch.Complete(ctx, flow, makeJWT(t, flow.Nonce(), testNow.Add(2*time.Hour)))
	require.ErrorIs(t, err, interfaces.ErrInvalidCredential)

	env.salt.On("GetSalt", mock.Anything, token).Return("42", nil).Once()
	env.prover.On("GetProof", mock.Anything, mock.Anything).Return(nil, errors.New("prover busy")).Once()
	_, err = env.orch.Complete(ctx, flow, token)
	require.ErrorIs(t, err, interfaces.ErrProofUnavailable)

	// The salt is kept; only the proof step is retried.
	env.prover.On("GetProof", mock.Anything, mock.Anything).Return(testProof, nil).Once()
	sess, err := env.orch.Complete(ctx, flow, token)
	require.NoError(t, err)
	assert.Equal(t, "42", sess.Salt)

	env.salt.AssertNumberOfCalls(t, "GetSalt", 2)
	env.prover.AssertNumberOfCalls(t, "GetProof", 2)
}

func TestCompleteKeepsNetworkClassification(t *testing.T) {
	env := newTestEnv(t)
	flow, _, err := env.orch.Begin(interfaces.ProviderGoogle, 20)
	require.NoError(t, err)
	token := makeJWT(t, flow.Nonce(), testNow.Add(time.Hour))

	env.salt.On("GetSalt", mock.Anything, token).
		Return("", fmt.Errorf("dial tcp: %w", interfaces.ErrNetwork)).Once()
	_, err = env.orch.Complete(context.Background(), flow, token)
	require.ErrorIs(t, err, interfaces.ErrSaltUnavailable)
	require.ErrorIs(t, err, interfaces.ErrNetwork)
}

func TestCompleteRejectsFlowInWrongState(t *testing.T) {
	env := newTestEnv(t)
	flow := &Flow{ID: "idle"}
	_, err := env.orch.Complete(context.Background(), flow, "token")
	require.Error(t, err)
	assert.Equal(t, StateIdle, flow.State())
}

func TestTerminalFailureDiscardsFlow(t *testing.T) {
	cases := []struct {
		name    string
		token   func(t *testing.T, flow *Flow) string
		wantErr error
	}{
		{"expired", func(t *testing.T, f *Flow) string { return makeJWT(t, f.Nonce(), testNow.Add(-time.Second)) }, interfaces.ErrSessionExpired},
		{"nonce mismatch", func(t *testing.T, _ *Flow) string { return makeJWT(t, "other-nonce", testNow.Add(time.Hour)) }, interfaces.ErrInvalidCredential},
		{"garbage", func(t *testing.T, _ *Flow) string { return "not.a.jwt" }, interfaces.ErrInvalidCredential},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			flow, req, err := env.orch.Begin(interfaces.ProviderGoogle, 20)
			require.NoError(t, err)

			_, err = env.orch.Complete(context.Background(), flow, tc.token(t, flow))
			require.ErrorIs(t, err, tc.wantErr)
			assert.ErrorIs(t, flow.Failure(), tc.wantErr)

			_, ok := env.orch.Flow(flow.ID)
			assert.False(t, ok)
			assert.Zero(t, env.orch.PendingFlows())
			_, err = env.orch.FlowForState(req.State)
			require.ErrorIs(t, err, interfaces.ErrInvalidCredential)

			flow.mu.Lock()
			assert.Nil(t, flow.key)
			assert.Empty(t, flow.jwt)
			flow.mu.Unlock()
		})
	}
}

func TestResumableFailureKeepsFlow(t *testing.T) {
	env := newTestEnv(t)
	flow, _, err := env.orch.Begin(interfaces.ProviderGoogle, 20)
	require.NoError(t, err)
	token := makeJWT(t, flow.Nonce(), testNow.Add(time.Hour))

	env.salt.On("GetSalt", mock.Anything, token).Return("", errors.New("connection reset")).Once()
	_, err = env.orch.Complete(context.Background(), flow, token)
	require.ErrorIs(t, err, interfaces.ErrSaltUnavailable)

	_, ok := env.orch.Flow(flow.ID)
	assert.True(t, ok)
	assert.NotNil(t, flow.key)
}

func TestSuccessfulFlowDropsKeyMaterial(t *testing.T) {
	env := newTestEnv(t)
	flow, _, err := env.orch.Begin(interfaces.ProviderGoogle, 20)
	require.NoError(t, err)
	token := makeJWT(t, flow.Nonce(), testNow.Add(time.Hour))
	env.salt.On("GetSalt", mock.Anything, token).Return("42", nil).Once()
	env.prover.On("GetProof", mock.Anything, mock.Anything).Return(testProof, nil).Once()

	sess, err := env.orch.Complete(context.Background(), flow, token)
	require.NoError(t, err)
	assert.NotEmpty(t, sess.EphemeralKey)
	assert.Nil(t, flow.key)
	assert.Zero(t, env.orch.PendingFlows())
}

func TestPendingFlowsExpire(t *testing.T) {
	env := newTestEnv(t)
	clock := testNow
	env.orch.cfg.Now = func() time.Time { return clock }

	stale, staleReq, err := env.orch.Begin(interfaces.ProviderGoogle, 20)
	require.NoError(t, err)
	for i := 0; i < 99; i++ {
		_, _, err := env.orch.Begin(interfaces.ProviderGoogle, 20)
		require.NoError(t, err)
	}
	assert.Equal(t, 100, env.orch.PendingFlows())

	clock = clock.Add(DefaultFlowTTL)

	// Expired flows stop resolving before they are pruned.
	_, err = env.orch.FlowForState(staleReq.State)
	require.ErrorIs(t, err, interfaces.ErrInvalidCredential)
	_, ok := env.orch.Flow(stale.ID)
	assert.False(t, ok)

	fresh, freshReq, err := env.orch.Begin(interfaces.ProviderGoogle, 20)
	require.NoError(t, err)
	assert.Equal(t, 1, env.orch.PendingFlows())

	found, err := env.orch.FlowForState(freshReq.State)
	require.NoError(t, err)
	assert.Same(t, fresh, found)

	// A caller still holding the pruned flow cannot complete it.
	_, err = env.orch.Complete(context.Background(), stale, makeJWT(t, stale.Nonce(), clock.Add(time.Hour)))
	require.ErrorIs(t, err, interfaces.ErrInvalidCredential)
	env.salt.AssertNotCalled(t, "GetSalt", mock.Anything, mock.Anything)
}

func TestAbandonedFlowCannotComplete(t *testing.T) {
	env := newTestEnv(t)
	flow, _, err := env.orch.Begin(interfaces.ProviderGoogle, 20)
	require.NoError(t, err)

	env.orch.Abandon(flow.ID)
	env.orch.Abandon(flow.ID)

	_, err = env.orch.Complete(context.Background(), flow, makeJWT(t, flow.Nonce(), testNow.Add(time.Hour)))
	require.ErrorIs(t, err, interfaces.ErrInvalidCredential)
	env.salt.AssertNotCalled(t, "GetSalt", mock.Anything, mock.Anything)
}

func TestSecondLoginReplacesStoredSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.salt.On("GetSalt", mock.Anything, mock.Anything).Return("42", nil)
	env.prover.On("GetProof", mock.Anything, mock.Anything).Return(testProof, nil)

	login := func(maxEpoch uint64) *interfaces.AuthSession {
		flow, _, err := env.orch.Begin(interfaces.ProviderGoogle, maxEpoch)
		require.NoError(t, err)
		sess, err := env.orch.Complete(ctx, flow, makeJWT(t, flow.Nonce(), testNow.Add(time.Hour)))
		require.NoError(t, err)
		return sess
	}

	first := login(30)
	second := login(0)
	require.NotEqual(t, first.Nonce, second.Nonce)

	stored, err := env.store.Load(ctx)
	require.NoError(t, err)
	assert.Zero(t, stored.MaxEpoch)
	assert.Equal(t, second.Nonce, stored.Nonce)
	assert.Equal(t, second.EphemeralKey, stored.EphemeralKey)
	assert.Equal(t, second, stored)
}
