package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/logger"
)

func TestMain(m *testing.M) {
	logger.Init("error")
	os.Exit(m.Run())
}

// relayStub отдаёт заданную последовательность статусов подписи.
func relayStub(t *testing.T, statuses ...signStatusResponse) *httptest.Server {
	t.Helper()
	var polls atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("POST /sign-requests", func(w http.ResponseWriter, r *http.Request) {
		var req signRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(signResponse{RequestID: "req-1"})
	})
	mux.HandleFunc("GET /sign-requests/req-1", func(w http.ResponseWriter, r *http.Request) {
		i := polls.Add(1) - 1
		if i >= int64(len(statuses)) {
			i = int64(len(statuses)) - 1
		}
		_ = json.NewEncoder(w).Encode(statuses[i])
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestBridge(url string) *RelayBridge {
	b := NewRelayBridge(url)
	b.pollEvery = 10 * time.Millisecond
	return b
}

func TestRelayBridgeSignConfirmed(t *testing.T) {
	srv := relayStub(t,
		signStatusResponse{Status: "pending"},
		signStatusResponse{Status: "pending"},
		signStatusResponse{Status: "confirmed", TxID: "0xabc"},
	)
	bridge := newTestBridge(srv.URL)

	result := bridge.Sign(context.Background(), Call{Function: "release-milestone-stx", Args: []interface{}{int64(7), 1}})
	assert.Equal(t, OutcomeConfirmed, result.Outcome)
	assert.Equal(t, "0xabc", result.TxID)
}

func TestRelayBridgeSignCancelled(t *testing.T) {
	srv := relayStub(t, signStatusResponse{Status: "cancelled"})
	bridge := newTestBridge(srv.URL)

	result := bridge.Sign(context.Background(), Call{Function: "accept-ownership"})
	assert.Equal(t, OutcomeCancelled, result.Outcome)
}

func TestRelayBridgeSignFailed(t *testing.T) {
	srv := relayStub(t, signStatusResponse{Status: "failed", Error: "err u101"})
	bridge := newTestBridge(srv.URL)

	result := bridge.Sign(context.Background(), Call{Function: "admin-force-refund-stx"})
	assert.Equal(t, OutcomeFailed, result.Outcome)
	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "u101")
}

func TestRelayBridgeSignContextCancelled(t *testing.T) {
	srv := relayStub(t, signStatusResponse{Status: "pending"})
	bridge := newTestBridge(srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	result := bridge.Sign(ctx, Call{Function: "propose-ownership"})
	assert.Equal(t, OutcomeCancelled, result.Outcome)
	assert.Error(t, result.Err)
}

func TestRelayBridgeSignRelayDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	bridge := newTestBridge(srv.URL)

	result := bridge.Sign(context.Background(), Call{Function: "accept-ownership"})
	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.Error(t, result.Err)
}

func TestRelayBridgeReadOnly(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /read-only/get-contract-owner", func(w http.ResponseWriter, r *http.Request) {
		owner := "SP1OWNER"
		_ = json.NewEncoder(w).Encode(readOnlyResponse{Value: &owner})
	})
	mux.HandleFunc("GET /read-only/get-proposed-owner", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(readOnlyResponse{Value: nil})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	bridge := newTestBridge(srv.URL)

	owner, err := bridge.ContractOwner(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "SP1OWNER", owner)

	proposed, err := bridge.ProposedOwner(context.Background())
	require.NoError(t, err)
	assert.Nil(t, proposed)
}

func TestContractCalls(t *testing.T) {
	contract := Contract{Principal: "SP000.escrow", SBTCPrincipal: "SP000.sbtc-token"}

	call := contract.CreateProject(valueobject.TokenSTX, []int64{100, 150})
	assert.Equal(t, "create-project-stx", call.Function)
	assert.Equal(t, []interface{}{int64(100), int64(150)}, call.Args)

	// Для sbtc добавляется principal токен-контракта последним аргументом.
	call = contract.ReleaseMilestone(valueobject.TokenSBTC, 7, 2)
	assert.Equal(t, "release-milestone-sbtc", call.Function)
	assert.Equal(t, []interface{}{int64(7), 2, "SP000.sbtc-token"}, call.Args)

	call = contract.AdminResolveDispute(valueobject.TokenSTX, 7, 1, true)
	assert.Equal(t, "admin-resolve-dispute-stx", call.Function)
	assert.Equal(t, []interface{}{int64(7), 1, true}, call.Args)

	// file-dispute и передача владения не зависят от токена.
	call = contract.FileDispute(7, 1)
	assert.Equal(t, "file-dispute", call.Function)

	call = contract.ProposeOwnership("SP2NEW")
	assert.Equal(t, "propose-ownership", call.Function)
	assert.Equal(t, []interface{}{"SP2NEW"}, call.Args)

	assert.Equal(t, "accept-ownership", contract.AcceptOwnership().Function)
}
