package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ruteri/sui-escrow-gateway/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaltClient(t *testing.T) {
	var status int
	var response string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "header.payload.sig", body["jwt"])
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(status)
		w.Write([]byte(response))
	}))
	defer srv.Close()

	client := NewSaltClient(srv.URL, 5*time.Second)
	ctx := context.Background()

	status, response = http.StatusOK, `{"salt":"129390038577185583942388216820280642146"}`
	salt, err := client.GetSalt(ctx, "header.payload.sig")
	require.NoError(t, err)
	assert.Equal(t, "129390038577185583942388216820280642146", salt)

	status, response = http.StatusOK, `{}`
	_, err = client.GetSalt(ctx, "header.payload.sig")
	require.ErrorIs(t, err, interfaces.ErrSaltUnavailable)
	assert.NotErrorIs(t, err, interfaces.ErrNetwork)

	status, response = http.StatusBadRequest, `invalid jwt`
	_, err = client.GetSalt(ctx, "header.payload.sig")
	require.ErrorIs(t, err, interfaces.ErrSaltUnavailable)
	assert.NotErrorIs(t, err, interfaces.ErrNetwork)
	assert.Contains(t, err.Error(), "invalid jwt")

	status, response = http.StatusServiceUnavailable, `overloaded`
	_, err = client.GetSalt(ctx, "header.payload.sig")
	require.ErrorIs(t, err, interfaces.ErrSaltUnavailable)
	assert.ErrorIs(t, err, interfaces.ErrNetwork)
}

func TestSaltClientTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := NewSaltClient(srv.URL).GetSalt(context.Background(), "jwt")
	require.ErrorIs(t, err, interfaces.ErrSaltUnavailable)
	require.ErrorIs(t, err, interfaces.ErrNetwork)
}

func TestProverClient(t *testing.T) {
	proof := `{"proofPoints":{"a":["1"],"b":[["2"]],"c":["3"]},"issBase64Details":{"value":"x","indexMod4":2},"headerBase64":"h"}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "42", body["maxEpoch"])
		assert.Equal(t, "sub", body["keyClaimName"])
		assert.Equal(t, "AJ2m", body["extendedEphemeralPublicKey"])
		if body["salt"] == "" {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(proof))
	}))
	defer srv.Close()

	client := NewProverClient(srv.URL)
	req := interfaces.ProofRequest{
		JWT:                        "jwt",
		ExtendedEphemeralPublicKey: "AJ2m",
		MaxEpoch:                   42,
		JWTRandomness:              "100",
		Salt:                       "7",
		KeyClaimName:               "sub",
	}
	got, err := client.GetProof(context.Background(), req)
	require.NoError(t, err)
	assert.JSONEq(t, proof, string(got))

	req.Salt = ""
	_, err = client.GetProof(context.Background(), req)
	require.ErrorIs(t, err, interfaces.ErrProofUnavailable)
	require.ErrorIs(t, err, interfaces.ErrNetwork)
}
