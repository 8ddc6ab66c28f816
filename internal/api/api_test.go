package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/oprema/internal/command"
	"github.com/erazemk/oprema/internal/db"
	"github.com/erazemk/oprema/internal/metrics"
	"github.com/erazemk/oprema/internal/model"
	"github.com/erazemk/oprema/internal/notify"
	"github.com/erazemk/oprema/internal/resolver"
	"github.com/erazemk/oprema/internal/store"
	"github.com/erazemk/oprema/internal/transaction"
	"github.com/erazemk/oprema/internal/workflow"
)

const testJWTSecret = "test-secret"

type testEnv struct {
	server *httptest.Server
	db     *sql.DB
	tenant *model.Tenant
	token  string
}

func newDeps(database *sql.DB) Deps {
	m := metrics.New()
	r := resolver.New(database)
	machine := workflow.New(database,
		workflow.WithMetrics(m),
		workflow.WithNotifier(notify.NewStoreSink(database, nil)),
		workflow.OnTransition(r.Invalidate),
	)
	svc := transaction.NewService(database, machine)
	return Deps{
		DB:           database,
		JWTSecret:    testJWTSecret,
		Machine:      machine,
		Sweeper:      workflow.NewSweeper(database, machine, workflow.SweepConfig{}),
		Transactions: svc,
		Resolver:     r,
		Interpreter:  command.NewInterpreter(r, nil),
		Executor:     command.NewExecutor(database, r, machine, svc, command.WithMetrics(m)),
		Metrics:      m,
		LoanPeriod:   7 * 24 * time.Hour,
	}
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	database := db.NewTestDB(t)
	server := httptest.NewServer(NewRouter(newDeps(database)))
	t.Cleanup(server.Close)

	tenant, err := store.CreateTenant(context.Background(), database, "Acme School")
	if err != nil {
		t.Fatalf("CreateTenant: %v", err)
	}
	env := &testEnv{server: server, db: database, tenant: tenant}
	env.token = env.createUser(t, tenant.ID, "admin", model.RoleAdmin)
	return env
}

// createUser creates a user with password "password" and returns a token.
func (env *testEnv) createUser(t *testing.T, tenantID int64, username, role string) string {
	t.Helper()
	hash, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	if _, err := store.CreateUser(context.Background(), env.db, tenantID, username, string(hash), role); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return env.login(t, username, "password")
}

func (env *testEnv) login(t *testing.T, username, password string) string {
	t.Helper()
	resp, body := env.do(t, "POST", "/api/auth/login", "", map[string]string{"username": username, "password": password})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login failed: %d", resp.StatusCode)
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatal("empty token from login")
	}
	return token
}

// do sends a JSON request and decodes a JSON object response.
func (env *testEnv) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	resp := env.raw(t, method, path, token, body)
	defer resp.Body.Close()

	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

// list sends a request and decodes a JSON array response.
func (env *testEnv) list(t *testing.T, path, token string) []map[string]any {
	t.Helper()
	resp := env.raw(t, "GET", path, token, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: expected 200, got %d", path, resp.StatusCode)
	}

	var out []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decoding %s: %v", path, err)
	}
	return out
}

func (env *testEnv) raw(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, env.server.URL+path, reader)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func (env *testEnv) createEquipment(t *testing.T, name, code string, value float64) int64 {
	t.Helper()
	resp, body := env.do(t, "POST", "/api/equipment", env.token, map[string]any{"name": name, "code": code, "value": value})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create equipment: expected 201, got %d", resp.StatusCode)
	}
	return int64(body["id"].(float64))
}

func TestLoginEndpoint(t *testing.T) {
	env := setupTestServer(t)

	resp, _ := env.do(t, "POST", "/api/auth/login", "", map[string]string{"username": "admin", "password": "wrong"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for bad password, got %d", resp.StatusCode)
	}

	resp, _ = env.do(t, "POST", "/api/auth/login", "", map[string]string{"username": "admin"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for missing password, got %d", resp.StatusCode)
	}

	resp, _ = env.do(t, "POST", "/api/auth/login", "", map[string]string{"username": "nobody", "password": "password"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for unknown user, got %d", resp.StatusCode)
	}
}

func TestAuthRequired(t *testing.T) {
	env := setupTestServer(t)

	resp, _ := env.do(t, "GET", "/api/equipment", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", resp.StatusCode)
	}

	resp, _ = env.do(t, "GET", "/api/equipment", "garbage", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for invalid token, got %d", resp.StatusCode)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	env := setupTestServer(t)

	resp, _ := env.do(t, "POST", "/api/auth/logout", env.token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from logout, got %d", resp.StatusCode)
	}

	resp, body := env.do(t, "GET", "/api/equipment", env.token, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 after logout, got %d", resp.StatusCode)
	}
	if body["error"] != "token revoked" {
		t.Errorf("expected token revoked, got %v", body["error"])
	}
}

func TestEquipmentCRUD(t *testing.T) {
	env := setupTestServer(t)

	resp, loc := env.do(t, "POST", "/api/locations", env.token, map[string]string{"name": "Gym"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create location: expected 201, got %d", resp.StatusCode)
	}
	locID := loc["id"].(float64)

	resp, body := env.do(t, "POST", "/api/equipment", env.token, map[string]any{
		"name": "Basketball 1", "code": "BB1-001", "value": 30, "location_id": locID,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if body["status"] != string(model.StatusAvailable) {
		t.Errorf("expected AVAILABLE, got %v", body["status"])
	}
	if body["location_name"] != "Gym" {
		t.Errorf("expected location Gym, got %v", body["location_name"])
	}
	id := int64(body["id"].(float64))

	resp, _ = env.do(t, "POST", "/api/equipment", env.token, map[string]any{"name": "Other", "code": "BB1-001"})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 for duplicate code, got %d", resp.StatusCode)
	}

	resp, _ = env.do(t, "POST", "/api/equipment", env.token, map[string]any{"name": "No code"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for missing code, got %d", resp.StatusCode)
	}

	resp, body = env.do(t, "PUT", fmt.Sprintf("/api/equipment/%d", id), env.token, map[string]any{
		"name": "Basketball One", "code": "BB1-001", "value": 35,
	})
	if resp.StatusCode != http.StatusOK || body["name"] != "Basketball One" {
		t.Errorf("unexpected update response %d %v", resp.StatusCode, body)
	}

	if got := env.list(t, "/api/equipment?q=one", env.token); len(got) != 1 {
		t.Errorf("expected 1 search result, got %d", len(got))
	}
	if got := env.list(t, "/api/equipment?status=checked_out", env.token); len(got) != 0 {
		t.Errorf("expected no checked out equipment, got %d", len(got))
	}

	resp, body = env.do(t, "GET", fmt.Sprintf("/api/equipment/%d", id), env.token, nil)
	if resp.StatusCode != http.StatusOK || body["transaction"] != nil {
		t.Errorf("unexpected get response %d %v", resp.StatusCode, body)
	}

	resp, _ = env.do(t, "DELETE", fmt.Sprintf("/api/equipment/%d", id), env.token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 from delete, got %d", resp.StatusCode)
	}
	resp, _ = env.do(t, "GET", fmt.Sprintf("/api/equipment/%d", id), env.token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", resp.StatusCode)
	}
}

func TestEquipmentWriteRequiresManager(t *testing.T) {
	env := setupTestServer(t)
	userToken := env.createUser(t, env.tenant.ID, "pupil", model.RoleUser)

	resp, _ := env.do(t, "POST", "/api/equipment", userToken, map[string]any{"name": "Ball", "code": "B-1"})
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %d", resp.StatusCode)
	}
}

func TestTenantIsolation(t *testing.T) {
	env := setupTestServer(t)
	id := env.createEquipment(t, "Projector", "PRJ-1", 900)

	other, err := store.CreateTenant(context.Background(), env.db, "Other Club")
	if err != nil {
		t.Fatalf("CreateTenant: %v", err)
	}
	otherToken := env.createUser(t, other.ID, "intruder", model.RoleAdmin)

	resp, _ := env.do(t, "GET", fmt.Sprintf("/api/equipment/%d", id), otherToken, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 across tenants, got %d", resp.StatusCode)
	}
	resp, _ = env.do(t, "POST", fmt.Sprintf("/api/equipment/%d/status", id), otherToken, map[string]string{"status": "MAINTENANCE"})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for cross-tenant transition, got %d", resp.StatusCode)
	}
	if got := env.list(t, "/api/equipment", otherToken); len(got) != 0 {
		t.Errorf("expected empty list for other tenant, got %d", len(got))
	}
	if got := env.list(t, "/api/users", otherToken); len(got) != 1 {
		t.Errorf("expected only the other tenant's user, got %d", len(got))
	}
}

func TestTransitionEndpoint(t *testing.T) {
	env := setupTestServer(t)
	id := env.createEquipment(t, "Volleyball Net", "VN-1", 120)
	path := fmt.Sprintf("/api/equipment/%d/status", id)

	resp, body := env.do(t, "POST", path, env.token, map[string]string{"status": "maintenance"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body["previous_status"] != "AVAILABLE" || body["new_status"] != "MAINTENANCE" {
		t.Errorf("unexpected result %v", body)
	}

	resp, body = env.do(t, "POST", path, env.token, map[string]string{"status": "LOST"})
	if resp.StatusCode != http.StatusConflict || body["kind"] != model.KindInvalidTransition {
		t.Errorf("expected 409 invalid_transition, got %d %v", resp.StatusCode, body)
	}

	resp, body = env.do(t, "POST", path, env.token, map[string]string{"status": "DAMAGED"})
	if resp.StatusCode != http.StatusUnprocessableEntity || body["kind"] != model.KindBusinessRule {
		t.Errorf("expected 422 business rule, got %d %v", resp.StatusCode, body)
	}

	resp, _ = env.do(t, "POST", path, env.token, map[string]string{"status": "CHECKED_OUT"})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for checkout through status endpoint, got %d", resp.StatusCode)
	}

	resp, _ = env.do(t, "POST", path, env.token, map[string]string{"status": "SHINY"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown status, got %d", resp.StatusCode)
	}

	resp, body = env.do(t, "GET", fmt.Sprintf("/api/equipment/%d/transitions", id), env.token, nil)
	if resp.StatusCode != http.StatusOK || body["status"] != "MAINTENANCE" {
		t.Fatalf("unexpected transitions response %d %v", resp.StatusCode, body)
	}
	if allowed := body["allowed"].([]any); len(allowed) != len(workflow.Allowed(model.StatusMaintenance)) {
		t.Errorf("unexpected allowed list %v", allowed)
	}

	history := env.list(t, fmt.Sprintf("/api/equipment/%d/history", id), env.token)
	if len(history) != 1 || history[0]["action"] != model.ActionStatusChange {
		t.Errorf("expected one status change in history, got %v", history)
	}
}

func TestCheckoutAndCheckin(t *testing.T) {
	env := setupTestServer(t)
	id := env.createEquipment(t, "Basketball 1", "BB1-001", 30)

	resp, tx := env.do(t, "POST", "/api/transactions/checkout", env.token, map[string]any{"equipment_id": id, "days": 3})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if tx["status"] != string(model.TxCheckedOut) || tx["holder_name"] != "admin" {
		t.Errorf("unexpected transaction %v", tx)
	}
	txID := int64(tx["id"].(float64))

	resp, body := env.do(t, "POST", "/api/transactions/checkout", env.token, map[string]any{"equipment_id": id})
	if resp.StatusCode != http.StatusUnprocessableEntity || body["kind"] != model.KindBusinessRule {
		t.Errorf("expected 422 for second checkout, got %d %v", resp.StatusCode, body)
	}

	resp, _ = env.do(t, "POST", "/api/transactions/checkout", env.token, map[string]any{
		"equipment_id": id, "due_date": time.Now().Add(-time.Hour),
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for past due date, got %d", resp.StatusCode)
	}

	if open := env.list(t, "/api/transactions?open=true", env.token); len(open) != 1 {
		t.Errorf("expected 1 open transaction, got %d", len(open))
	}

	resp, body = env.do(t, "POST", fmt.Sprintf("/api/transactions/%d/checkin", txID), env.token, nil)
	if resp.StatusCode != http.StatusOK || body["status"] != string(model.TxReturned) {
		t.Errorf("expected returned transaction, got %d %v", resp.StatusCode, body)
	}

	resp, _ = env.do(t, "POST", fmt.Sprintf("/api/transactions/%d/checkin", txID), env.token, nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for second checkin, got %d", resp.StatusCode)
	}

	resp, body = env.do(t, "POST", "/api/transactions/999/checkin", env.token, nil)
	if resp.StatusCode != http.StatusNotFound || body["kind"] != model.KindNotFound {
		t.Errorf("expected 404 for unknown transaction, got %d %v", resp.StatusCode, body)
	}
}

func TestCheckoutForOthersRequiresManager(t *testing.T) {
	env := setupTestServer(t)
	id := env.createEquipment(t, "Basketball 1", "BB1-001", 30)
	userToken := env.createUser(t, env.tenant.ID, "pupil", model.RoleUser)

	admin, _ := store.GetUserByUsername(context.Background(), env.db, "admin")
	resp, _ := env.do(t, "POST", "/api/transactions/checkout", userToken, map[string]any{"equipment_id": id, "user_id": admin.ID})
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %d", resp.StatusCode)
	}

	resp, _ = env.do(t, "POST", "/api/transactions/checkout", userToken, map[string]any{"equipment_id": id})
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("expected 201 for own checkout, got %d", resp.StatusCode)
	}
}

func TestCommandsEndpoint(t *testing.T) {
	env := setupTestServer(t)
	id := env.createEquipment(t, "Basketball 1", "BB1-001", 30)

	resp, body := env.do(t, "POST", "/api/commands", env.token, map[string]string{"transcript": "check out basketball 1"})
	if resp.StatusCode != http.StatusOK || body["success"] != true {
		t.Fatalf("expected success, got %d %v", resp.StatusCode, body)
	}
	intent := body["intent"].(map[string]any)
	if intent["kind"] != string(command.KindCheckout) || intent["stage"] != string(command.StageExecuted) {
		t.Errorf("unexpected intent %v", intent)
	}

	e, _ := store.GetEquipment(context.Background(), env.db, id)
	if e.Status != model.StatusCheckedOut {
		t.Errorf("expected CHECKED_OUT, got %s", e.Status)
	}

	resp, body = env.do(t, "POST", "/api/commands", env.token, map[string]string{"transcript": "asdkjasdj"})
	if resp.StatusCode != http.StatusOK || body["success"] != false || body["kind"] != model.KindLowConfidence {
		t.Errorf("expected low confidence result, got %d %v", resp.StatusCode, body)
	}

	resp, _ = env.do(t, "POST", "/api/commands", env.token, map[string]string{"transcript": "  "})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for empty transcript, got %d", resp.StatusCode)
	}
}

func TestInterpretEndpointDoesNotExecute(t *testing.T) {
	env := setupTestServer(t)
	id := env.createEquipment(t, "Projector", "PRJ-1", 900)

	resp, body := env.do(t, "POST", "/api/commands/interpret", env.token, map[string]string{"transcript": "send the projector to maintenance"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body["kind"] != string(command.KindSetStatus) {
		t.Errorf("expected SET_STATUS, got %v", body["kind"])
	}
	entities := body["entities"].(map[string]any)
	if entities["equipment"] != "PRJ-1" || entities["status"] != string(model.StatusMaintenance) {
		t.Errorf("unexpected entities %v", entities)
	}

	e, _ := store.GetEquipment(context.Background(), env.db, id)
	if e.Status != model.StatusAvailable {
		t.Errorf("expected AVAILABLE, got %s", e.Status)
	}
}

func TestSweepEndpoint(t *testing.T) {
	env := setupTestServer(t)
	managerToken := env.createUser(t, env.tenant.ID, "coach", model.RoleManager)

	resp, _ := env.do(t, "POST", "/api/workflow/sweep", managerToken, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 for manager, got %d", resp.StatusCode)
	}

	resp, body := env.do(t, "POST", "/api/workflow/sweep", env.token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body["overdue"] != float64(0) || body["maintenance"] != float64(0) {
		t.Errorf("expected empty sweep, got %v", body)
	}
}

func TestNotificationsAfterDamage(t *testing.T) {
	env := setupTestServer(t)
	id := env.createEquipment(t, "Basketball 1", "BB1-001", 30)

	resp, _ := env.do(t, "POST", fmt.Sprintf("/api/equipment/%d/status", id), env.token,
		map[string]string{"status": "DAMAGED", "reason": "torn seam"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	list := env.list(t, "/api/notifications", env.token)
	if len(list) != 1 || list[0]["audience"] != model.AudienceManagers {
		t.Errorf("expected one manager notification, got %v", list)
	}
}

func TestEquipmentImage(t *testing.T) {
	env := setupTestServer(t)
	id := env.createEquipment(t, "Projector", "PRJ-1", 900)
	path := fmt.Sprintf("/api/equipment/%d/image", id)

	resp := env.raw(t, "GET", path, env.token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 before upload, got %d", resp.StatusCode)
	}

	var pngData bytes.Buffer
	png.Encode(&pngData, image.NewRGBA(image.Rect(0, 0, 40, 30)))

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	part, _ := mw.CreateFormFile("image", "photo.png")
	part.Write(pngData.Bytes())
	mw.Close()

	req, _ := http.NewRequest("PUT", env.server.URL+path, &form)
	req.Header.Set("Authorization", "Bearer "+env.token)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from upload, got %d", resp.StatusCode)
	}

	resp = env.raw(t, "GET", path, env.token, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("expected image/jpeg, got %q", ct)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestServer(t)
	id := env.createEquipment(t, "Projector", "PRJ-1", 900)
	env.do(t, "POST", fmt.Sprintf("/api/equipment/%d/status", id), env.token, map[string]string{"status": "MAINTENANCE"})

	resp := env.raw(t, "GET", "/metrics", "", nil)
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	want := `oprema_transitions_total{from="AVAILABLE",to="MAINTENANCE"} 1`
	if !strings.Contains(string(data), want) {
		t.Errorf("expected %q in metrics output", want)
	}
}

func TestRequestIDHeader(t *testing.T) {
	env := setupTestServer(t)

	resp := env.raw(t, "GET", "/api/equipment", env.token, nil)
	resp.Body.Close()
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}
