package zklogin

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ruteri/sui-escrow-gateway/api/clients"
	"github.com/ruteri/sui-escrow-gateway/interfaces"
	"github.com/ruteri/sui-escrow-gateway/session"
	"github.com/stretchr/testify/require"
)

var (
	testNow   = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	testProof = json.RawMessage(`{
		"proofPoints": {"a": ["1", "2"], "b": [["3", "4"], ["5", "6"]], "c": ["7"]},
		"issBase64Details": {"value": "yJpc3MiOiJodHRwczovL2FjY291bnRzLmdvb2dsZS5jb20iLC", "indexMod4": 1},
		"headerBase64": "eyJhbGciOiJSUzI1NiJ9"
	}`)
)

type testEnv struct {
	orch   *Orchestrator
	salt   *clients.MockSaltProvider
	prover *clients.MockProofProvider
	store  *session.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		salt:   &clients.MockSaltProvider{},
		prover: &clients.MockProofProvider{},
		store:  session.NewMemoryStore(),
	}
	cfg := Config{
		Providers: WithClientIDs(DefaultProviders(), map[interfaces.Provider]string{
			interfaces.ProviderGoogle: "google-client",
		}),
		RedirectURL: "https://app.example.com/callback",
		Now:         func() time.Time { return testNow },
	}
	env.orch = NewOrchestrator(cfg, env.salt, env.prover, env.store, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return env
}

func makeJWT(t *testing.T, nonce string, exp time.Time) string {
	t.Helper()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://accounts.google.com",
			Subject:   "110169484474386276334",
			Audience:  jwt.ClaimStrings{"google-client"},
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(exp.Add(-time.Hour)),
		},
		Email: "buyer@example.com",
		Nonce: nonce,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return token
}
