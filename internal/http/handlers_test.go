package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/example/ride-dispatch/internal/auth"
	"github.com/example/ride-dispatch/internal/engine"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/notify"
	"github.com/example/ride-dispatch/internal/presence"
	"github.com/example/ride-dispatch/internal/pricing"
	"github.com/example/ride-dispatch/internal/storage"
)

func newTestServer(t *testing.T) (*Server, *auth.Verifier) {
	t.Helper()
	verifier := auth.NewVerifier("test-secret")
	reg := presence.NewRegistry()
	bus := notify.NewBus(reg, nil, nil)
	eng := &engine.Engine{
		Store:   storage.NewMemoryStore(),
		Bus:     bus,
		Drivers: reg,
		Pricing: pricing.Config{BaseFare: 1.0, PerKmRate: 0.5, MinimumFare: 2.0},
	}
	return NewServer(eng, reg, bus, nil, nil, verifier, nil), verifier
}

func bearer(t *testing.T, v *auth.Verifier, sub string, role models.Role) string {
	t.Helper()
	tok, err := v.Issue(sub, role, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	return "Bearer " + tok
}

func do(t *testing.T, s *Server, method, path, authz, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var out struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("bad error body %q: %v", rec.Body.String(), err)
	}
	return out.Error.Code
}

func orderFrom(t *testing.T, rec *httptest.ResponseRecorder) models.Order {
	t.Helper()
	var out struct {
		Order models.Order `json:"order"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("bad order body %q: %v", rec.Body.String(), err)
	}
	return out.Order
}

const orderBody = `{"pickup":{"lat":40.40,"lon":49.85,"label":"A"},"dropoff":{"lat":40.38,"lon":49.90,"label":"B"}}`

func TestCreateOrderEndpoint(t *testing.T) {
	s, v := newTestServer(t)
	rec := do(t, s, "POST", "/api/v1/orders", bearer(t, v, "p1", models.RolePassenger), orderBody)
	if rec.Code != 201 {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	o := orderFrom(t, rec)
	if o.Status != models.StatusBroadcast || o.PassengerID != "p1" {
		t.Fatalf("unexpected order: %+v", o)
	}
}

func TestCreateOrderRequiresPassengerRole(t *testing.T) {
	s, v := newTestServer(t)
	rec := do(t, s, "POST", "/api/v1/orders", bearer(t, v, "d1", models.RoleDriver), orderBody)
	if rec.Code != 403 || errorCode(t, rec) != "FORBIDDEN" {
		t.Fatalf("expected 403 FORBIDDEN, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestMissingCredentialRejected(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, "POST", "/api/v1/orders", "", orderBody)
	if rec.Code != 401 {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAcceptRaceOverHTTP(t *testing.T) {
	s, v := newTestServer(t)
	for _, d := range []string{"d1", "d2"} {
		s.Registry.SetApproved(d, true)
		rec := do(t, s, "POST", "/api/v1/drivers/online", bearer(t, v, d, models.RoleDriver), "")
		if rec.Code != 204 {
			t.Fatalf("driver online: expected 204, got %d", rec.Code)
		}
	}
	rec := do(t, s, "POST", "/api/v1/orders", bearer(t, v, "p1", models.RolePassenger), orderBody)
	o := orderFrom(t, rec)

	path := fmt.Sprintf("/api/v1/orders/%d/accept", o.ID)
	first := do(t, s, "POST", path, bearer(t, v, "d1", models.RoleDriver), "")
	if first.Code != 200 {
		t.Fatalf("expected first accept to win, got %d: %s", first.Code, first.Body.String())
	}
	second := do(t, s, "POST", path, bearer(t, v, "d2", models.RoleDriver), "")
	if second.Code != 409 || errorCode(t, second) != "ALREADY_TAKEN" {
		t.Fatalf("expected 409 ALREADY_TAKEN, got %d %s", second.Code, second.Body.String())
	}
}

func TestAcceptRequiresApproval(t *testing.T) {
	s, v := newTestServer(t)
	do(t, s, "POST", "/api/v1/drivers/online", bearer(t, v, "d1", models.RoleDriver), "")
	rec := do(t, s, "POST", "/api/v1/orders", bearer(t, v, "p1", models.RolePassenger), orderBody)
	o := orderFrom(t, rec)

	got := do(t, s, "POST", fmt.Sprintf("/api/v1/orders/%d/accept", o.ID), bearer(t, v, "d1", models.RoleDriver), "")
	if got.Code != 403 || errorCode(t, got) != "NOT_APPROVED" {
		t.Fatalf("expected 403 NOT_APPROVED, got %d %s", got.Code, got.Body.String())
	}
}

func TestActiveOrderEndpoint(t *testing.T) {
	s, v := newTestServer(t)
	if rec := do(t, s, "GET", "/api/v1/orders/active", bearer(t, v, "p1", models.RolePassenger), ""); rec.Code != 204 {
		t.Fatalf("expected 204 with no active order, got %d", rec.Code)
	}
	do(t, s, "POST", "/api/v1/orders", bearer(t, v, "p1", models.RolePassenger), orderBody)
	rec := do(t, s, "GET", "/api/v1/orders/active", bearer(t, v, "p1", models.RolePassenger), "")
	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if o := orderFrom(t, rec); o.Status != models.StatusBroadcast {
		t.Fatalf("unexpected active order: %+v", o)
	}
}

func TestCancelCompletedOrderEndpoint(t *testing.T) {
	s, v := newTestServer(t)
	s.Registry.SetOnline("d1", true)
	s.Registry.SetApproved("d1", true)

	rec := do(t, s, "POST", "/api/v1/orders", bearer(t, v, "p1", models.RolePassenger), orderBody)
	o := orderFrom(t, rec)
	drv := bearer(t, v, "d1", models.RoleDriver)
	do(t, s, "POST", fmt.Sprintf("/api/v1/orders/%d/accept", o.ID), drv, "")
	for _, st := range []string{"ARRIVED", "STARTED", "COMPLETED"} {
		got := do(t, s, "POST", fmt.Sprintf("/api/v1/orders/%d/status", o.ID), drv, fmt.Sprintf(`{"status":%q}`, st))
		if got.Code != 200 {
			t.Fatalf("status %s: expected 200, got %d: %s", st, got.Code, got.Body.String())
		}
	}
	got := do(t, s, "POST", fmt.Sprintf("/api/v1/orders/%d/cancel", o.ID), bearer(t, v, "p1", models.RolePassenger), "")
	if got.Code != 409 || errorCode(t, got) != "NOT_ACTIVE" {
		t.Fatalf("expected 409 NOT_ACTIVE, got %d %s", got.Code, got.Body.String())
	}
}

func TestDriverApprovalEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	s.Registry.SetOnline("d1", true)
	rec := do(t, s, "POST", "/internal/drivers/d1/approval", "", `{"approved":true}`)
	if rec.Code != 204 {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if online, approved := s.Registry.Available("d1"); !online || !approved {
		t.Fatal("approval flag not applied")
	}
}

func TestOrderIDMustBeInteger(t *testing.T) {
	s, v := newTestServer(t)
	rec := do(t, s, "POST", "/api/v1/orders/abc/accept", bearer(t, v, "d1", models.RoleDriver), "")
	if rec.Code != 400 || errorCode(t, rec) != "INVALID_INPUT" {
		t.Fatalf("expected 400 INVALID_INPUT, got %d %s", rec.Code, rec.Body.String())
	}
}
