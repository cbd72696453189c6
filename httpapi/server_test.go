package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"rentledger/auth"
	"rentledger/bank"
	"rentledger/dispute"
	"rentledger/escrow"
	"rentledger/fees"
	"rentledger/receipts"
	"rentledger/registry"
	"rentledger/subsidy"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type stubUserRepo struct {
	users map[string]auth.User
	seq   int
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{users: make(map[string]auth.User)}
}

func (s *stubUserRepo) CreateUser(_ context.Context, params auth.CreateUserParams) (auth.User, error) {
	if _, ok := s.users[params.Email]; ok {
		return auth.User{}, auth.ErrDuplicateEmail
	}
	s.seq++
	u := auth.User{
		ID:           fmt.Sprintf("user-%d", s.seq),
		Email:        params.Email,
		FullName:     params.FullName,
		PasswordHash: params.PasswordHash,
		Role:         params.Role,
		CreatedAt:    time.Now().UTC(),
	}
	s.users[params.Email] = u
	return u, nil
}

func (s *stubUserRepo) GetUserByEmail(_ context.Context, email string) (auth.User, error) {
	u, ok := s.users[email]
	if !ok {
		return auth.User{}, auth.ErrUserNotFound
	}
	return u, nil
}

func (s *stubUserRepo) GetUserByID(_ context.Context, userID string) (auth.User, error) {
	for _, u := range s.users {
		if u.ID == userID {
			return u, nil
		}
	}
	return auth.User{}, auth.ErrUserNotFound
}

func newTestServer(t *testing.T) (*Server, *testClock) {
	t.Helper()

	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	schedule, err := fees.NewSchedule(2, 1)
	if err != nil {
		t.Fatalf("new schedule: %v", err)
	}

	store := escrow.NewMemoryStore()
	reg := registry.NewRegistry(registry.NewMemoryStore(), 25).WithClock(clock.Now)
	bankLedger := bank.NewLedger()
	receiptLedger := receipts.NewLedger(receipts.NewMemoryStore()).WithClock(clock.Now)
	if err := receiptLedger.Authorize("escrow-service"); err != nil {
		t.Fatalf("authorize issuer: %v", err)
	}
	pool := subsidy.NewPool()

	svc := escrow.NewService(store, reg, bankLedger, receiptLedger, schedule).
		WithSubsidy(pool).
		WithClock(clock.Now)
	arb := dispute.NewArbitrator(store, bankLedger, schedule).WithClock(clock.Now)

	return &Server{
		escrowService: svc,
		arbitrator:    arb,
		authService:   auth.NewService(newStubUserRepo(), "test-secret"),
		propertyReg:   reg,
		receiptLedger: receiptLedger,
		subsidyPool:   pool,
		bankLedger:    bankLedger,
		schedule:      schedule,
		log:           zap.NewNop(),
	}, clock
}

func withIdentity(req *http.Request, userID string, role auth.Role) *http.Request {
	ctx := context.WithValue(req.Context(), ctxKeyUserID, userID)
	ctx = context.WithValue(ctx, ctxKeyRole, role)
	return req.WithContext(ctx)
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func seedEligibleProperty(t *testing.T, s *Server) {
	t.Helper()
	ctx := context.Background()
	if _, err := s.propertyReg.Register(ctx, "landlord-1", 1, "0xprop"); err != nil {
		t.Fatalf("register property: %v", err)
	}
	if err := s.propertyReg.SetEligibility(ctx, escrow.RoleAdmin, 1, true); err != nil {
		t.Fatalf("approve property: %v", err)
	}
}

func seedAgreement(t *testing.T, s *Server, clock *testClock, activate bool) escrow.AgreementID {
	t.Helper()
	seedEligibleProperty(t, s)

	ctx := context.Background()
	start := clock.Now().Add(24 * time.Hour)
	a, err := s.escrowService.CreateAgreement(ctx, "tenant-1", escrow.CreateParams{
		PropertyID:    1,
		Landlord:      "landlord-1",
		DepositAmount: 1000,
		MonthlyRent:   100,
		RentInterval:  30 * 24 * time.Hour,
		StartDate:     start,
		EndDate:       start.Add(360 * 24 * time.Hour),
		MetadataHash:  "0xmeta",
	})
	if err != nil {
		t.Fatalf("create agreement: %v", err)
	}
	if !activate {
		return a.ID
	}
	if _, err := s.escrowService.TenantConfirm(ctx, a.ID, "tenant-1"); err != nil {
		t.Fatalf("tenant confirm: %v", err)
	}
	if _, err := s.escrowService.LandlordConfirm(ctx, a.ID, "landlord-1"); err != nil {
		t.Fatalf("landlord confirm: %v", err)
	}
	return a.ID
}

func agreementPath(id escrow.AgreementID, suffix string) string {
	return "/api/agreements/" + strconv.FormatInt(int64(id), 10) + suffix
}

func TestHandleRegister_Success(t *testing.T) {
	server, _ := newTestServer(t)

	body := strings.NewReader(`{"email":"alice@example.com","password":"supersecret","full_name":"Alice Doe"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", body)
	rec := httptest.NewRecorder()

	server.handleRegister(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	var resp userResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID == "" || resp.Email != "alice@example.com" || resp.Role != "tenant" {
		t.Fatalf("unexpected response payload: %+v", resp)
	}
}

func TestHandleRegister_WeakPassword(t *testing.T) {
	server, _ := newTestServer(t)

	body := strings.NewReader(`{"email":"alice@example.com","password":"short","full_name":"Alice Doe"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", body)
	rec := httptest.NewRecorder()

	server.handleRegister(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleRegister_DuplicateEmail(t *testing.T) {
	server, _ := newTestServer(t)

	for i, want := range []int{http.StatusCreated, http.StatusConflict} {
		body := strings.NewReader(`{"email":"alice@example.com","password":"supersecret","full_name":"Alice Doe"}`)
		req := httptest.NewRequest(http.MethodPost, "/api/auth/register", body)
		rec := httptest.NewRecorder()

		server.handleRegister(rec, req)

		if rec.Code != want {
			t.Fatalf("attempt %d: expected %d, got %d", i+1, want, rec.Code)
		}
	}
}

func TestHandleRegister_InvalidRole(t *testing.T) {
	server, _ := newTestServer(t)

	body := strings.NewReader(`{"email":"alice@example.com","password":"supersecret","full_name":"Alice Doe","role":"broker"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", body)
	rec := httptest.NewRecorder()

	server.handleRegister(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleLogin_Success(t *testing.T) {
	server, _ := newTestServer(t)
	if _, err := server.authService.Register(context.Background(), auth.RegisterRequest{
		Email:    "bob@example.com",
		Password: "supersecret",
		FullName: "Bob Lee",
		Role:     auth.RoleLandlord,
	}); err != nil {
		t.Fatalf("register user: %v", err)
	}

	body := strings.NewReader(`{"email":"bob@example.com","password":"supersecret"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", body)
	rec := httptest.NewRecorder()

	server.handleLogin(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Token == "" || resp.User.Role != "landlord" {
		t.Fatalf("unexpected login payload: %+v", resp)
	}
}

func TestHandleLogin_WrongPassword(t *testing.T) {
	server, _ := newTestServer(t)
	if _, err := server.authService.Register(context.Background(), auth.RegisterRequest{
		Email:    "bob@example.com",
		Password: "supersecret",
		FullName: "Bob Lee",
	}); err != nil {
		t.Fatalf("register user: %v", err)
	}

	body := strings.NewReader(`{"email":"bob@example.com","password":"wrong-password"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", body)
	rec := httptest.NewRecorder()

	server.handleLogin(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleCreateAgreement_Success(t *testing.T) {
	server, clock := newTestServer(t)
	seedEligibleProperty(t, server)

	start := clock.Now().Add(24 * time.Hour)
	end := start.Add(360 * 24 * time.Hour)
	body := fmt.Sprintf(`{"propertyId":1,"landlord":"landlord-1","depositAmount":1000,"monthlyRent":100,"rentIntervalSeconds":2592000,"startDate":%q,"endDate":%q,"metadataHash":"0xmeta"}`,
		start.Format(time.RFC3339), end.Format(time.RFC3339))

	req := httptest.NewRequest(http.MethodPost, "/api/agreements", strings.NewReader(body))
	req = withIdentity(req, "tenant-1", auth.RoleTenant)
	rec := httptest.NewRecorder()

	server.handleCreateAgreement(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp agreementResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != 1 || resp.Tenant != "tenant-1" || resp.Status != "pending" {
		t.Fatalf("unexpected response payload: %+v", resp)
	}
	if resp.RentIntervalSeconds != 2592000 {
		t.Fatalf("expected interval 2592000, got %d", resp.RentIntervalSeconds)
	}
	if resp.StartDate != start.Format(time.RFC3339) {
		t.Fatalf("expected startDate %s, got %s", start.Format(time.RFC3339), resp.StartDate)
	}
}

func TestHandleCreateAgreement_IneligibleProperty(t *testing.T) {
	server, clock := newTestServer(t)
	if _, err := server.propertyReg.Register(context.Background(), "landlord-1", 1, "0xprop"); err != nil {
		t.Fatalf("register property: %v", err)
	}

	start := clock.Now().Add(24 * time.Hour)
	end := start.Add(360 * 24 * time.Hour)
	body := fmt.Sprintf(`{"propertyId":1,"landlord":"landlord-1","depositAmount":1000,"monthlyRent":100,"rentIntervalSeconds":2592000,"startDate":%q,"endDate":%q,"metadataHash":"0xmeta"}`,
		start.Format(time.RFC3339), end.Format(time.RFC3339))

	req := httptest.NewRequest(http.MethodPost, "/api/agreements", strings.NewReader(body))
	req = withIdentity(req, "tenant-1", auth.RoleTenant)
	rec := httptest.NewRecorder()

	server.handleCreateAgreement(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestHandleCreateAgreement_BadDate(t *testing.T) {
	server, _ := newTestServer(t)

	body := strings.NewReader(`{"propertyId":1,"landlord":"landlord-1","depositAmount":1000,"monthlyRent":100,"rentIntervalSeconds":2592000,"startDate":"soon","endDate":"later","metadataHash":"0xmeta"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/agreements", body)
	req = withIdentity(req, "tenant-1", auth.RoleTenant)
	rec := httptest.NewRecorder()

	server.handleCreateAgreement(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleGetAgreement_NotFound(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/agreements/99", nil)
	req = withIdentity(req, "tenant-1", auth.RoleTenant)
	req = withURLParam(req, "agreementID", "99")
	rec := httptest.NewRecorder()

	server.handleGetAgreement(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleGetAgreement_BadID(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/agreements/abc", nil)
	req = withIdentity(req, "tenant-1", auth.RoleTenant)
	req = withURLParam(req, "agreementID", "abc")
	rec := httptest.NewRecorder()

	server.handleGetAgreement(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleConfirm_Activates(t *testing.T) {
	server, clock := newTestServer(t)
	id := seedAgreement(t, server, clock, false)
	idStr := strconv.FormatInt(int64(id), 10)

	req := httptest.NewRequest(http.MethodPost, agreementPath(id, "/confirm"), nil)
	req = withIdentity(req, "tenant-1", auth.RoleTenant)
	req = withURLParam(req, "agreementID", idStr)
	rec := httptest.NewRecorder()

	server.handleConfirm(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("tenant confirm: expected 200, got %d", rec.Code)
	}
	var resp agreementResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.TenantConfirmed || resp.Status != "pending" {
		t.Fatalf("unexpected state after tenant confirm: %+v", resp)
	}

	req = httptest.NewRequest(http.MethodPost, agreementPath(id, "/confirm"), nil)
	req = withIdentity(req, "landlord-1", auth.RoleLandlord)
	req = withURLParam(req, "agreementID", idStr)
	rec = httptest.NewRecorder()

	server.handleConfirm(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("landlord confirm: expected 200, got %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "active" || resp.DisputeDeadline == "" {
		t.Fatalf("unexpected state after landlord confirm: %+v", resp)
	}
}

func TestHandleConfirm_AdminForbidden(t *testing.T) {
	server, clock := newTestServer(t)
	id := seedAgreement(t, server, clock, false)

	req := httptest.NewRequest(http.MethodPost, agreementPath(id, "/confirm"), nil)
	req = withIdentity(req, "admin-1", auth.RoleAdmin)
	req = withURLParam(req, "agreementID", strconv.FormatInt(int64(id), 10))
	rec := httptest.NewRecorder()

	server.handleConfirm(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestHandlePayRent_Success(t *testing.T) {
	server, clock := newTestServer(t)
	id := seedAgreement(t, server, clock, true)

	body := strings.NewReader(`{"amount":100,"metadataHash":"0xrent"}`)
	req := httptest.NewRequest(http.MethodPost, agreementPath(id, "/rent"), body)
	req = withIdentity(req, "tenant-1", auth.RoleTenant)
	req = withURLParam(req, "agreementID", strconv.FormatInt(int64(id), 10))
	rec := httptest.NewRecorder()

	server.handlePayRent(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp payRentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.LandlordShare != 99 || resp.PlatformFee != 1 || resp.RefundToTenant != 0 {
		t.Fatalf("unexpected split: %+v", resp)
	}
	if resp.Payment.Seq != 1 || resp.Payment.Status != "paid" {
		t.Fatalf("unexpected payment entry: %+v", resp.Payment)
	}
	if resp.ReceiptID == "" {
		t.Fatalf("expected a receipt id")
	}
	if got := server.bankLedger.Balance("landlord-1"); got != 99 {
		t.Fatalf("expected landlord balance 99, got %d", got)
	}
}

func TestHandlePayRent_InsufficientAmount(t *testing.T) {
	server, clock := newTestServer(t)
	id := seedAgreement(t, server, clock, true)

	body := strings.NewReader(`{"amount":99,"metadataHash":"0xrent"}`)
	req := httptest.NewRequest(http.MethodPost, agreementPath(id, "/rent"), body)
	req = withIdentity(req, "tenant-1", auth.RoleTenant)
	req = withURLParam(req, "agreementID", strconv.FormatInt(int64(id), 10))
	rec := httptest.NewRecorder()

	server.handlePayRent(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestHandleReleaseDeposit_LockedWindow(t *testing.T) {
	server, clock := newTestServer(t)
	id := seedAgreement(t, server, clock, true)

	req := httptest.NewRequest(http.MethodPost, agreementPath(id, "/release"), nil)
	req = withIdentity(req, "tenant-1", auth.RoleTenant)
	req = withURLParam(req, "agreementID", strconv.FormatInt(int64(id), 10))
	rec := httptest.NewRecorder()

	server.handleReleaseDeposit(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestHandleReleaseDeposit_Success(t *testing.T) {
	server, clock := newTestServer(t)
	id := seedAgreement(t, server, clock, true)
	clock.Advance(362 * 24 * time.Hour)

	req := httptest.NewRequest(http.MethodPost, agreementPath(id, "/release"), nil)
	req = withIdentity(req, "landlord-1", auth.RoleLandlord)
	req = withURLParam(req, "agreementID", strconv.FormatInt(int64(id), 10))
	rec := httptest.NewRecorder()

	server.handleReleaseDeposit(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp settlementResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "completed" || resp.LandlordShare != 980 || resp.PlatformFee != 20 {
		t.Fatalf("unexpected settlement: %+v", resp)
	}
	if got := server.bankLedger.Balance("landlord-1"); got != 980 {
		t.Fatalf("expected landlord balance 980, got %d", got)
	}
}

func TestHandleRaiseDispute_Success(t *testing.T) {
	server, clock := newTestServer(t)
	id := seedAgreement(t, server, clock, true)

	body := strings.NewReader(`{"reason":"water damage","evidenceRef":"ipfs://leak"}`)
	req := httptest.NewRequest(http.MethodPost, agreementPath(id, "/disputes"), body)
	req = withIdentity(req, "tenant-1", auth.RoleTenant)
	req = withURLParam(req, "agreementID", strconv.FormatInt(int64(id), 10))
	rec := httptest.NewRecorder()

	server.handleRaiseDispute(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp disputeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Initiator != "tenant-1" || len(resp.Evidence) != 1 || resp.Evidence[0] != "ipfs://leak" {
		t.Fatalf("unexpected dispute payload: %+v", resp)
	}
}

func TestHandleResolveDispute_RequiresAdmin(t *testing.T) {
	server, clock := newTestServer(t)
	id := seedAgreement(t, server, clock, true)
	if _, err := server.arbitrator.Raise(context.Background(), id, "tenant-1", "water damage", ""); err != nil {
		t.Fatalf("raise dispute: %v", err)
	}

	body := strings.NewReader(`{"refundTenant":true}`)
	req := httptest.NewRequest(http.MethodPost, agreementPath(id, "/disputes/resolve"), body)
	req = withIdentity(req, "landlord-1", auth.RoleLandlord)
	req = withURLParam(req, "agreementID", strconv.FormatInt(int64(id), 10))
	rec := httptest.NewRecorder()

	server.handleResolveDispute(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestHandleResolveDispute_TenantRefund(t *testing.T) {
	server, clock := newTestServer(t)
	id := seedAgreement(t, server, clock, true)
	if _, err := server.arbitrator.Raise(context.Background(), id, "tenant-1", "water damage", ""); err != nil {
		t.Fatalf("raise dispute: %v", err)
	}

	body := strings.NewReader(`{"refundTenant":true}`)
	req := httptest.NewRequest(http.MethodPost, agreementPath(id, "/disputes/resolve"), body)
	req = withIdentity(req, "admin-1", auth.RoleAdmin)
	req = withURLParam(req, "agreementID", strconv.FormatInt(int64(id), 10))
	rec := httptest.NewRecorder()

	server.handleResolveDispute(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp rulingResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Winner != "tenant-1" || resp.Status != "terminated" || resp.TenantRefund != 1000 {
		t.Fatalf("unexpected ruling: %+v", resp)
	}
	if got := server.bankLedger.Balance("tenant-1"); got != 1000 {
		t.Fatalf("expected tenant balance 1000, got %d", got)
	}
}

func TestHandleRegisterProperty_Success(t *testing.T) {
	server, _ := newTestServer(t)

	body := strings.NewReader(`{"id":7,"metadataHash":"0xp7"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/properties", body)
	req = withIdentity(req, "landlord-1", auth.RoleLandlord)
	rec := httptest.NewRecorder()

	server.handleRegisterProperty(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	var resp propertyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != 7 || resp.Owner != "landlord-1" || resp.Eligible {
		t.Fatalf("unexpected property payload: %+v", resp)
	}
}

func TestHandleSetEligibility_AdminOnly(t *testing.T) {
	server, _ := newTestServer(t)
	if _, err := server.propertyReg.Register(context.Background(), "landlord-1", 1, "0xprop"); err != nil {
		t.Fatalf("register property: %v", err)
	}

	body := strings.NewReader(`{"eligible":true}`)
	req := httptest.NewRequest(http.MethodPatch, "/api/properties/1/eligibility", body)
	req = withIdentity(req, "landlord-1", auth.RoleLandlord)
	req = withURLParam(req, "propertyID", "1")
	rec := httptest.NewRecorder()

	server.handleSetEligibility(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for landlord, got %d", rec.Code)
	}

	body = strings.NewReader(`{"eligible":true}`)
	req = httptest.NewRequest(http.MethodPatch, "/api/properties/1/eligibility", body)
	req = withIdentity(req, "admin-1", auth.RoleAdmin)
	req = withURLParam(req, "propertyID", "1")
	rec = httptest.NewRecorder()

	server.handleSetEligibility(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", rec.Code)
	}
	var resp propertyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Eligible {
		t.Fatalf("expected property to be eligible: %+v", resp)
	}
}

func TestHandleQuote_Eligible(t *testing.T) {
	server, _ := newTestServer(t)
	seedEligibleProperty(t, server)

	req := httptest.NewRequest(http.MethodGet, "/api/properties/1/quote", nil)
	req = withIdentity(req, "tenant-1", auth.RoleTenant)
	req = withURLParam(req, "propertyID", "1")
	rec := httptest.NewRecorder()

	server.handleQuote(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp quoteResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Eligible || resp.Owner != "landlord-1" || resp.ListingFee != 25 {
		t.Fatalf("unexpected quote payload: %+v", resp)
	}
}

func TestHandleUpdateFees_AdminOnly(t *testing.T) {
	server, _ := newTestServer(t)

	body := strings.NewReader(`{"platformFeePercent":4}`)
	req := httptest.NewRequest(http.MethodPatch, "/api/fees", body)
	req = withIdentity(req, "tenant-1", auth.RoleTenant)
	rec := httptest.NewRecorder()

	server.handleUpdateFees(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for tenant, got %d", rec.Code)
	}

	body = strings.NewReader(`{"platformFeePercent":4,"rentFeePercent":2}`)
	req = httptest.NewRequest(http.MethodPatch, "/api/fees", body)
	req = withIdentity(req, "admin-1", auth.RoleAdmin)
	rec = httptest.NewRecorder()

	server.handleUpdateFees(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", rec.Code)
	}
	var resp feesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.PlatformFeePercent != 4 || resp.RentFeePercent != 2 {
		t.Fatalf("unexpected fees payload: %+v", resp)
	}
}

func TestHandleUpdateFees_OutOfRange(t *testing.T) {
	server, _ := newTestServer(t)

	body := strings.NewReader(`{"platformFeePercent":9}`)
	req := httptest.NewRequest(http.MethodPatch, "/api/fees", body)
	req = withIdentity(req, "admin-1", auth.RoleAdmin)
	rec := httptest.NewRecorder()

	server.handleUpdateFees(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleListReceipts_TenantScope(t *testing.T) {
	server, clock := newTestServer(t)
	id := seedAgreement(t, server, clock, true)
	if _, err := server.escrowService.PayRent(context.Background(), id, "tenant-1", 100, "0xrent"); err != nil {
		t.Fatalf("pay rent: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/receipts", nil)
	req = withIdentity(req, "tenant-1", auth.RoleTenant)
	rec := httptest.NewRecorder()

	server.handleListReceipts(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var payload struct {
		Items []receiptResponse `json:"items"`
		Total int               `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Total != 2 || len(payload.Items) != 2 {
		t.Fatalf("expected 2 receipts, got %+v", payload)
	}
	if payload.Items[0].Kind != "agreement" || payload.Items[1].Kind != "payment" {
		t.Fatalf("unexpected receipt kinds: %+v", payload.Items)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/receipts?tenant=tenant-1", nil)
	req = withIdentity(req, "tenant-2", auth.RoleTenant)
	rec = httptest.NewRecorder()

	server.handleListReceipts(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cross-tenant filter, got %d", rec.Code)
	}
}

func TestHandleBalance_Scope(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/balances/tenant-1", nil)
	req = withIdentity(req, "tenant-1", auth.RoleTenant)
	req = withURLParam(req, "actor", "tenant-1")
	rec := httptest.NewRecorder()

	server.handleBalance(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for own balance, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/balances/landlord-1", nil)
	req = withIdentity(req, "tenant-1", auth.RoleTenant)
	req = withURLParam(req, "actor", "landlord-1")
	rec = httptest.NewRecorder()

	server.handleBalance(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for another actor, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/balances/landlord-1", nil)
	req = withIdentity(req, "admin-1", auth.RoleAdmin)
	req = withURLParam(req, "actor", "landlord-1")
	rec = httptest.NewRecorder()

	server.handleBalance(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", rec.Code)
	}
}

func TestRouter_RequiresBearerToken(t *testing.T) {
	server, _ := newTestServer(t)
	router := server.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/agreements", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/agreements", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with garbage token, got %d", rec.Code)
	}
}

func TestRouter_AuthenticatedFlow(t *testing.T) {
	server, _ := newTestServer(t)
	router := server.Router()

	body := strings.NewReader(`{"email":"carol@example.com","password":"supersecret","full_name":"Carol King"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	body = strings.NewReader(`{"email":"carol@example.com","password":"supersecret"}`)
	req = httptest.NewRequest(http.MethodPost, "/api/auth/login", body)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", rec.Code)
	}

	var login loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &login); err != nil {
		t.Fatalf("decode login response: %v", err)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/agreements", nil)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("list agreements: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var payload struct {
		Items []agreementResponse `json:"items"`
		Total int                 `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode list response: %v", err)
	}
	if payload.Total != 0 || len(payload.Items) != 0 {
		t.Fatalf("expected empty listing, got %+v", payload)
	}
}

func TestRouter_Healthz(t *testing.T) {
	server, _ := newTestServer(t)
	router := server.Router()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected healthz body: %s", rec.Body.String())
	}
}
