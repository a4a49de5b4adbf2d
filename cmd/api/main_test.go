package main

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"sealedcourt/account"
	"sealedcourt/auth"
	"sealedcourt/ciphertext"
	"sealedcourt/court"
	"sealedcourt/metrics"
	"sealedcourt/oracle"
	"sealedcourt/payout"
)

const testOwner account.Address = "0xowner"

type testEnv struct {
	t      *testing.T
	court  *court.Court
	local  *oracle.Local
	auth   *auth.Service
	ts     *httptest.Server
	params court.Params
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	sealed, err := ciphertext.NewSealedRandom()
	if err != nil {
		t.Fatalf("sealed: %v", err)
	}
	local := oracle.NewLocal(sealed, oracle.NewProofSigner(priv, ""), zerolog.Nop())

	params := court.DefaultParams()
	params.Owner = testOwner
	params.MinEscrow = 100

	registry := prometheus.NewRegistry()
	stores, _ := court.NewMemoryStores()
	c, err := court.New(params, stores, court.Deps{
		Ciphers:   sealed,
		Oracle:    local,
		Verifier:  oracle.NewProofVerifier(pub, ""),
		Transfers: payout.NewVault(),
		Metrics:   metrics.New(registry),
		Logger:    zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("court: %v", err)
	}

	authSvc := auth.NewService("test-secret", testOwner, 0)
	ts := httptest.NewServer(NewServer(c, sealed, authSvc, registry, zerolog.Nop()).Routes())
	t.Cleanup(ts.Close)

	return &testEnv{t: t, court: c, local: local, auth: authSvc, ts: ts, params: params}
}

func (e *testEnv) do(method, path string, as account.Address, body string) (int, map[string]any) {
	e.t.Helper()

	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, rdr)
	if err != nil {
		e.t.Fatalf("new request: %v", err)
	}
	if as != "" {
		tok, err := e.auth.Issue(as)
		if err != nil {
			e.t.Fatalf("issue token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok.Token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		e.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var payload map[string]any
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &payload)
	}
	return resp.StatusCode, payload
}

func (e *testEnv) encrypt(as account.Address, v uint64) string {
	e.t.Helper()
	code, payload := e.do(http.MethodPost, "/api/ciphertexts", as, fmt.Sprintf(`{"value":%d}`, v))
	if code != http.StatusCreated {
		e.t.Fatalf("encrypt: expected 201, got %d", code)
	}
	return payload["handle"].(string)
}

func TestAPI_RequiresToken(t *testing.T) {
	env := newTestEnv(t)

	if code, _ := env.do(http.MethodGet, "/api/disputes/1", "", ""); code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}

	req, _ := http.NewRequest(http.MethodGet, env.ts.URL+"/api/disputes/1", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", resp.StatusCode)
	}
}

func TestAPI_FullResolution(t *testing.T) {
	env := newTestEnv(t)
	arbs := []account.Address{"0xarb1", "0xarb2", "0xarb3"}

	for _, a := range arbs {
		body := fmt.Sprintf(`{"identity":%q}`, env.encrypt(a, 1))
		if code, _ := env.do(http.MethodPost, "/api/arbitrators", a, body); code != http.StatusCreated {
			t.Fatalf("register %s: expected 201, got %d", a, code)
		}
	}
	if code, _ := env.do(http.MethodPost, "/api/arbitrators", arbs[0], fmt.Sprintf(`{"identity":%q}`, env.encrypt(arbs[0], 1))); code != http.StatusConflict {
		t.Fatalf("re-register: expected 409, got %d", code)
	}

	body := fmt.Sprintf(`{"defendant":"0xbob","encryptedStake":%q,"encryptedEvidence":%q,"escrow":100}`,
		env.encrypt("0xalice", 1), env.encrypt("0xalice", 2))
	code, payload := env.do(http.MethodPost, "/api/disputes", "0xalice", body)
	if code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d (%v)", code, payload)
	}
	id := uint64(payload["id"].(float64))

	if code, _ := env.do(http.MethodPost, fmt.Sprintf("/api/disputes/%d/assign", id), "0xanyone", ""); code != http.StatusOK {
		t.Fatalf("assign: expected 200, got %d", code)
	}

	for i, a := range arbs {
		option := 1
		if i == 2 {
			option = 2
		}
		body := fmt.Sprintf(`{"option":%d,"justification":%q}`, option, env.encrypt(a, 0))
		if code, p := env.do(http.MethodPost, fmt.Sprintf("/api/disputes/%d/votes", id), a, body); code != http.StatusOK {
			t.Fatalf("vote %s: expected 200, got %d (%v)", a, code, p)
		}
	}

	req, ok := env.local.Next()
	if !ok {
		t.Fatal("expected a queued decryption request")
	}
	cleartexts, proof, err := env.local.Fulfil(context.Background(), req)
	if err != nil {
		t.Fatalf("fulfil: %v", err)
	}
	cb, _ := json.Marshal(map[string]any{
		"requestId":  req.ID,
		"cleartexts": cleartexts,
		"proof":      string(proof),
	})
	code, payload = env.do(http.MethodPost, "/oracle/callback", "", string(cb))
	if code != http.StatusOK {
		t.Fatalf("callback: expected 200, got %d (%v)", code, payload)
	}
	if payload["status"] != "resolved" || payload["winner"] != "0xalice" {
		t.Fatalf("unexpected callback payload: %v", payload)
	}

	if code, _ := env.do(http.MethodPost, "/oracle/callback", "", string(cb)); code != http.StatusConflict {
		t.Fatalf("replayed callback: expected 409, got %d", code)
	}

	code, payload = env.do(http.MethodGet, fmt.Sprintf("/api/disputes/%d", id), "0xbob", "")
	if code != http.StatusOK {
		t.Fatalf("get dispute: expected 200, got %d", code)
	}
	if payload["status"] != "resolved" || payload["refundProcessed"] != true {
		t.Fatalf("unexpected dispute payload: %v", payload)
	}

	code, payload = env.do(http.MethodGet, "/api/reputation/0xalice", "0xbob", "")
	if code != http.StatusOK || payload["reputation"] != float64(env.params.WinnerReward) {
		t.Fatalf("unexpected reputation response %d %v", code, payload)
	}
}

func TestAPI_ErrorMapping(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name   string
		method string
		path   string
		as     account.Address
		body   string
		want   int
	}{
		{"bad id", http.MethodGet, "/api/disputes/abc", "0xalice", "", http.StatusBadRequest},
		{"missing dispute", http.MethodGet, "/api/disputes/42", "0xalice", "", http.StatusNotFound},
		{"bad body", http.MethodPost, "/api/disputes", "0xalice", `{"escrow":"lots"}`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/disputes", "0xalice", `{"foo":1}`, http.StatusBadRequest},
		{"low escrow", http.MethodPost, "/api/disputes", "0xalice", `{"defendant":"0xbob","encryptedStake":"a","encryptedEvidence":"b","escrow":1}`, http.StatusBadRequest},
		{"pause by non-owner", http.MethodPost, "/api/arbitrators/0xarb1/pause", "0xalice", "", http.StatusForbidden},
		{"pause unknown", http.MethodPost, "/api/arbitrators/0xarb1/pause", testOwner, "", http.StatusConflict},
		{"unknown arbitrator", http.MethodGet, "/api/arbitrators/0xarb1", "0xalice", "", http.StatusNotFound},
		{"nothing to withdraw", http.MethodPost, "/api/withdrawals", "0xalice", "", http.StatusConflict},
		{"unknown callback", http.MethodPost, "/oracle/callback", "", `{"requestId":"nope","cleartexts":"","proof":""}`, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if code, p := env.do(tc.method, tc.path, tc.as, tc.body); code != tc.want {
				t.Fatalf("expected %d, got %d (%v)", tc.want, code, p)
			}
		})
	}
}

func TestAPI_InsufficientArbitrators(t *testing.T) {
	env := newTestEnv(t)

	body := fmt.Sprintf(`{"defendant":"0xbob","encryptedStake":%q,"encryptedEvidence":%q,"escrow":100}`,
		env.encrypt("0xalice", 1), env.encrypt("0xalice", 2))
	code, payload := env.do(http.MethodPost, "/api/disputes", "0xalice", body)
	if code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", code)
	}
	path := fmt.Sprintf("/api/disputes/%d/assign", uint64(payload["id"].(float64)))
	if code, _ := env.do(http.MethodPost, path, "0xalice", ""); code != http.StatusUnprocessableEntity {
		t.Fatalf("assign: expected 422, got %d", code)
	}
}

func TestStatusFor_Unexpected(t *testing.T) {
	if got := statusFor(errors.New("boom")); got != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", got)
	}
	if got := statusFor(court.ErrClosed); got != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
