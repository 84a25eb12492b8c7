package clients

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ruteri/sui-escrow-gateway/escrow"
	"github.com/ruteri/sui-escrow-gateway/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGatewayClient(t *testing.T) {
	escrowID := interfaces.MustParseAddress("0xe5")
	seller := interfaces.MustParseAddress("0x5e11e4")

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/google/begin", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "12", r.URL.Query().Get("max_epoch"))
		w.Write([]byte(`{"flow_id":"f1","auth_url":"https://accounts.google.com/o/oauth2/v2/auth?nonce=n","nonce":"n","state":"s"}`))
	})
	mux.HandleFunc("/api/auth/callback", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["id_token"] == "bad" {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte(`{"error":"salt unavailable: connection reset","code":"salt_unavailable"}`))
			return
		}
		assert.Equal(t, "s", body["state"])
		w.Write([]byte(`{"address":"0xabc","provider":"google","maxEpoch":12,"createdAt":"2026-06-02T10:00:00Z","valid":true}`))
	})
	mux.HandleFunc("/api/escrows", func(w http.ResponseWriter, r *http.Request) {
		var in escrow.EscrowInput
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, seller, in.Seller)
		assert.EqualValues(t, 2*escrow.MistPerSui, in.Amount)
		w.Write([]byte(`{"transactionId":"t1","digest":"D1","status":"success","gasUsed":3000000,"objectId":"` + escrowID.String() + `"}`))
	})
	mux.HandleFunc("/api/escrows/"+escrowID.String()+"/complete", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":"rejected: complete_escrow aborted with EInvalidState","code":"rejected","digest":"D2"}`))
	})
	mux.HandleFunc("/api/session", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"session not found","code":"no_session"}`))
	})
	mux.HandleFunc("/api/pin/file", func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		data, _ := io.ReadAll(file)
		assert.Equal(t, "label.png", header.Filename)
		json.NewEncoder(w).Encode(Pin{CID: "bafkreitest", URL: "https://gw/ipfs/bafkreitest", Size: len(data)})
	})
	mux.HandleFunc("/api/faucet", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewGatewayClient(srv.URL + "/")
	ctx := context.Background()

	begin, err := client.BeginAuth(ctx, interfaces.ProviderGoogle, 12)
	require.NoError(t, err)
	assert.Equal(t, "f1", begin.FlowID)
	assert.Equal(t, "s", begin.State)

	summary, err := client.CompleteAuth(ctx, "header.payload.sig", begin.State)
	require.NoError(t, err)
	assert.Equal(t, "0xabc", summary.Address)
	assert.True(t, summary.Valid)

	_, err = client.CompleteAuth(ctx, "bad", begin.State)
	require.ErrorIs(t, err, interfaces.ErrSaltUnavailable)
	var gerr *GatewayError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, http.StatusBadGateway, gerr.Status)

	res, err := client.CreateEscrow(ctx, escrow.EscrowInput{
		Seller:    seller,
		Arbiter:   interfaces.MustParseAddress("0xa4b"),
		ProductID: interfaces.MustParseAddress("0x9d"),
		Amount:    2 * escrow.MistPerSui,
	})
	require.NoError(t, err)
	require.NotNil(t, res.ObjectID)
	assert.Equal(t, escrowID, *res.ObjectID)

	_, err = client.EscrowAction(ctx, escrowID, "complete")
	require.ErrorIs(t, err, interfaces.ErrRejected)
	digest, ok := IsRejected(err)
	assert.True(t, ok)
	assert.Equal(t, "D2", digest)

	_, err = client.EscrowAction(ctx, escrowID, "refund")
	require.ErrorIs(t, err, interfaces.ErrInvalidArgument)

	_, err = client.Session(ctx)
	require.ErrorIs(t, err, interfaces.ErrSessionNotFound)
	require.NoError(t, client.Logout(ctx))

	pin, err := client.PinFile(ctx, "label.png", []byte("png bytes"))
	require.NoError(t, err)
	assert.Equal(t, interfaces.ContentID("bafkreitest"), pin.CID)
	assert.Equal(t, 9, pin.Size)

	err = client.RequestGas(ctx)
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, "internal", gerr.Code)
	assert.Contains(t, gerr.Message, "upstream down")
	_, ok = IsRejected(err)
	assert.False(t, ok)
}

func TestGatewayClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := NewGatewayClient(srv.URL).Session(context.Background())
	require.ErrorIs(t, err, interfaces.ErrNetwork)
}
