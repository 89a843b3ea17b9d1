package marketplace

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiClient struct {
	t    *testing.T
	base string
	cfg  Config
}

func newAPIClient(t *testing.T, s *Server) *apiClient {
	t.Helper()

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	return &apiClient{t: t, base: ts.URL, cfg: s.cfg}
}

func (c *apiClient) token(account string) string {
	token, err := IssueToken(c.cfg.JWTSecret, c.cfg.Issuer, account, time.Hour)
	require.NoError(c.t, err)
	return token
}

func (c *apiClient) do(method, path, account string, body, out interface{}) int {
	c.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, c.base+path, &buf)
	require.NoError(c.t, err)

	if account != "" {
		req.Header.Set("Authorization", "Bearer "+c.token(account))
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(c.t, json.NewDecoder(resp.Body).Decode(out))
	}

	return resp.StatusCode
}

func TestAPIOfferLifecycle(t *testing.T) {
	s, registry, _ := newTestServer(t)
	api := newAPIClient(t, s)

	seller := uuid.NewString()
	buyer := uuid.NewString()
	assetID := mintAsset(t, registry, seller, uuid.NewString(), 500)

	var offer Offer
	status := api.do("POST", "/offers", seller, map[string]interface{}{
		"asset_id": assetID,
		"price":    1000,
	}, &offer)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, OfferStateOpen, offer.State)

	var settlement Settlement
	status = api.do("POST", fmt.Sprintf("/offers/%d/fill", offer.ID), buyer, map[string]interface{}{
		"deposit": 1000,
	}, &settlement)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, uint64(930), settlement.SellerProceeds)

	var balance Balance
	status = api.do("GET", "/balances/"+seller, "", nil, &balance)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, uint64(930), balance.Amount)

	var claimed map[string]interface{}
	status = api.do("POST", "/withdrawals", seller, nil, &claimed)
	require.Equal(t, http.StatusOK, status)

	var events []*Event
	status = api.do("GET", "/events?limit=10", "", nil, &events)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, events, 3)
}

func TestAPIAuth(t *testing.T) {
	s, _, _ := newTestServer(t)
	api := newAPIClient(t, s)

	status := api.do("POST", "/offers", "", map[string]interface{}{
		"asset_id": 1,
		"price":    100,
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestAPIErrorMapping(t *testing.T) {
	s, registry, _ := newTestServer(t)
	api := newAPIClient(t, s)

	seller := uuid.NewString()
	assetID := mintAsset(t, registry, seller, uuid.NewString(), 500)

	// unknown offer -> not found
	status := api.do("POST", "/offers/404/fill", uuid.NewString(), map[string]interface{}{
		"deposit": 1000,
	}, nil)
	assert.Equal(t, http.StatusNotFound, status)

	// wrong deposit -> invalid argument
	var offer Offer
	status = api.do("POST", "/offers", seller, map[string]interface{}{
		"asset_id": assetID,
		"price":    1000,
	}, &offer)
	require.Equal(t, http.StatusOK, status)

	status = api.do("POST", fmt.Sprintf("/offers/%d/fill", offer.ID), uuid.NewString(), map[string]interface{}{
		"deposit": 1,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	// seller filling own offer -> failed precondition
	status = api.do("POST", fmt.Sprintf("/offers/%d/fill", offer.ID), seller, map[string]interface{}{
		"deposit": 1000,
	}, nil)
	assert.Equal(t, http.StatusPreconditionFailed, status)

	// cancel by a stranger -> permission denied
	status = api.do("POST", fmt.Sprintf("/offers/%d/cancel", offer.ID), uuid.NewString(), nil, nil)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestAPISplitter(t *testing.T) {
	s, _, _ := newTestServer(t)
	api := newAPIClient(t, s)

	payee := uuid.NewString()

	// only the admin may register payees
	status := api.do("POST", "/splitter/payees", uuid.NewString(), map[string]interface{}{
		"payee":  payee,
		"shares": 10,
	}, nil)
	assert.Equal(t, http.StatusForbidden, status)

	var state Splitter
	status = api.do("POST", "/splitter/payees", s.cfg.AdminAccount, map[string]interface{}{
		"payee":  payee,
		"shares": 10,
	}, &state)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, uint64(10), state.TotalShares)

	status = api.do("POST", "/splitter/receipts", s.cfg.AdminAccount, map[string]interface{}{
		"amount": 300,
	}, nil)
	require.Equal(t, http.StatusOK, status)

	var released map[string]interface{}
	status = api.do("POST", "/splitter/releases", s.cfg.AdminAccount, map[string]interface{}{
		"payee": payee,
	}, &released)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(300), released["amount"])

	status = api.do("POST", "/splitter/releases", s.cfg.AdminAccount, map[string]interface{}{
		"payee": payee,
	}, nil)
	assert.Equal(t, http.StatusPreconditionFailed, status)
}
