package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/angelmondragon/trustlend-backend/api/middleware"
	"github.com/angelmondragon/trustlend-backend/internal/blacklist"
	"github.com/angelmondragon/trustlend-backend/internal/limits"
	"github.com/angelmondragon/trustlend-backend/internal/loans"
	"github.com/angelmondragon/trustlend-backend/internal/trust"
	"github.com/angelmondragon/trustlend-backend/internal/verification"
	"github.com/angelmondragon/trustlend-backend/pkg/db/models"
	"github.com/angelmondragon/trustlend-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/trustlend-backend/pkg/errors"
	"github.com/angelmondragon/trustlend-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "controllers-test", Output: io.Discard})
}

func asUser(req *http.Request, id uuid.UUID) *http.Request {
	return req.WithContext(middleware.WithUserID(req.Context(), id.String()))
}

func decodeData(t *testing.T, resp *httptest.ResponseRecorder, dest any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &env))
	require.NoError(t, json.Unmarshal(env.Data, dest))
}

func errorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &env))
	return env.Error.Code
}

type mockLoans struct {
	mock.Mock
}

func (m *mockLoans) RequestLoan(ctx context.Context, input loans.RequestInput) (*loans.RequestResult, error) {
	args := m.Called(ctx, input)
	res, _ := args.Get(0).(*loans.RequestResult)
	return res, args.Error(1)
}

func (m *mockLoans) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Loan, error) {
	args := m.Called(ctx, userID)
	list, _ := args.Get(0).([]models.Loan)
	return list, args.Error(1)
}

func TestRequestLoan_Created(t *testing.T) {
	borrower := uuid.New()
	svc := &mockLoans{}
	loan := &models.Loan{ID: uuid.New(), BorrowerID: borrower, Amount: decimal.NewFromInt(250), Status: enums.LoanStatusRequested}
	svc.On("RequestLoan", mock.Anything, mock.MatchedBy(func(in loans.RequestInput) bool {
		return in.BorrowerID == borrower && in.Amount.Equal(decimal.NewFromInt(250)) && in.Purpose == "rent"
	})).Return(&loans.RequestResult{
		Loan:   loan,
		Limits: &trust.LimitsView{Score: 60, Limits: limits.Limits{Tier: "Silver", MaxAmount: decimal.NewFromInt(500), MaxActiveLoans: 3}},
		Alert:  &models.FraudAlert{Severity: enums.FraudSeverityLow},
	}, nil)

	req := asUser(httptest.NewRequest(http.MethodPost, "/api/v1/loans", strings.NewReader(`{"amount":"250","purpose":"  rent "}`)), borrower)
	resp := httptest.NewRecorder()
	RequestLoan(svc, testLogger()).ServeHTTP(resp, req)

	require.Equal(t, http.StatusCreated, resp.Code)
	var body struct {
		Loan       LoanDTO `json:"loan"`
		TrustScore int     `json:"trust_score"`
		Flagged    bool    `json:"flagged"`
	}
	decodeData(t, resp, &body)
	assert.Equal(t, loan.ID, body.Loan.ID)
	assert.Equal(t, "requested", body.Loan.Status)
	assert.Equal(t, 60, body.TrustScore)
	assert.True(t, body.Flagged)
	svc.AssertExpectations(t)
}

func TestRequestLoan_PropagatesGuardErrors(t *testing.T) {
	svc := &mockLoans{}
	svc.On("RequestLoan", mock.Anything, mock.Anything).
		Return(nil, pkgerrors.New(pkgerrors.CodeForbidden, "borrower is blacklisted"))

	req := asUser(httptest.NewRequest(http.MethodPost, "/api/v1/loans", strings.NewReader(`{"amount":"10"}`)), uuid.New())
	resp := httptest.NewRecorder()
	RequestLoan(svc, testLogger()).ServeHTTP(resp, req)

	assert.Equal(t, http.StatusForbidden, resp.Code)
	assert.Equal(t, string(pkgerrors.CodeForbidden), errorCode(t, resp))
}

func TestRequestLoan_RejectsUnknownFields(t *testing.T) {
	svc := &mockLoans{}
	req := asUser(httptest.NewRequest(http.MethodPost, "/api/v1/loans", strings.NewReader(`{"amount":"10","interest":"5"}`)), uuid.New())
	resp := httptest.NewRecorder()
	RequestLoan(svc, testLogger()).ServeHTTP(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	svc.AssertNotCalled(t, "RequestLoan", mock.Anything, mock.Anything)
}

func TestListLoans_RequiresUserContext(t *testing.T) {
	resp := httptest.NewRecorder()
	ListLoans(&mockLoans{}, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/loans", nil))

	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

type recordingBlacklist struct {
	input   blacklist.BlockInput
	removed uuid.UUID
}

func (r *recordingBlacklist) Block(_ context.Context, input blacklist.BlockInput) (*models.BlacklistEntry, error) {
	r.input = input
	return &models.BlacklistEntry{
		ID:           uuid.New(),
		UserID:       input.UserID,
		Reason:       input.Reason,
		ReporterKind: input.ReporterKind,
		ReporterID:   input.ReporterID,
		Severity:     input.Severity,
		IsActive:     true,
	}, nil
}

func (r *recordingBlacklist) Remove(_ context.Context, userID uuid.UUID) (*models.BlacklistEntry, error) {
	r.removed = userID
	return &models.BlacklistEntry{ID: uuid.New(), UserID: userID, IsActive: false}, nil
}

func (r *recordingBlacklist) List(context.Context, uuid.UUID) ([]models.BlacklistEntry, error) {
	return nil, nil
}

func TestAdminBlockUser_UsesCallerAsReporter(t *testing.T) {
	admin, target := uuid.New(), uuid.New()
	svc := &recordingBlacklist{}
	body := `{"user_id":"` + target.String() + `","reason":"chargeback ring","severity":"high"}`
	req := asUser(httptest.NewRequest(http.MethodPost, "/api/admin/v1/blacklist", strings.NewReader(body)), admin)
	resp := httptest.NewRecorder()
	AdminBlockUser(svc, testLogger()).ServeHTTP(resp, req)

	require.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, target, svc.input.UserID)
	assert.Equal(t, enums.ReporterUser, svc.input.ReporterKind)
	require.NotNil(t, svc.input.ReporterID)
	assert.Equal(t, admin, *svc.input.ReporterID)
	assert.Equal(t, enums.FraudSeverityHigh, svc.input.Severity)
}

func TestAdminBlockUser_RejectsUnknownSeverity(t *testing.T) {
	body := `{"user_id":"` + uuid.NewString() + `","reason":"x","severity":"extreme"}`
	req := asUser(httptest.NewRequest(http.MethodPost, "/api/admin/v1/blacklist", strings.NewReader(body)), uuid.New())
	resp := httptest.NewRecorder()
	AdminBlockUser(&recordingBlacklist{}, nil).ServeHTTP(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestAdminUnblockUser_ReadsPathParam(t *testing.T) {
	target := uuid.New()
	svc := &recordingBlacklist{}
	r := chi.NewRouter()
	r.Delete("/blacklist/{userID}", AdminUnblockUser(svc, nil))

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodDelete, "/blacklist/"+target.String(), nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, target, svc.removed)

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodDelete, "/blacklist/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

type stubRecorder struct {
	got trust.AppendInput
}

func (s *stubRecorder) RecordTrustEvent(_ context.Context, input trust.AppendInput) (*trust.AppendResult, error) {
	s.got = input
	return &trust.AppendResult{
		PreviousScore: 50,
		NewScore:      45,
		Delta:         -5,
		Event: &models.TrustEvent{
			ID:             uuid.New(),
			UserID:         input.UserID,
			Sequence:       2,
			Kind:           input.Kind,
			Delta:          -5,
			PreviousScore:  50,
			ResultingScore: 45,
			Metadata:       datatypes.JSON(`{"extra":{"ticket":"T-1"}}`),
		},
	}, nil
}

func TestAdminRecordTrustEvent(t *testing.T) {
	user := uuid.New()
	svc := &stubRecorder{}
	body := `{"user_id":"` + user.String() + `","kind":"dispute_raised","description":"manual","metadata":{"extra":{"ticket":"T-1"}}}`
	resp := httptest.NewRecorder()
	AdminRecordTrustEvent(svc, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))

	require.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, enums.TrustEventDisputeRaised, svc.got.Kind)
	assert.Equal(t, user, svc.got.UserID)

	var out struct {
		NewScore int           `json:"new_score"`
		Event    TrustEventDTO `json:"event"`
	}
	decodeData(t, resp, &out)
	assert.Equal(t, 45, out.NewScore)
	require.NotNil(t, out.Event.Metadata)
	assert.Equal(t, "T-1", out.Event.Metadata.Extra["ticket"])
}

func TestAdminRecordTrustEvent_UnknownKind(t *testing.T) {
	body := `{"user_id":"` + uuid.NewString() + `","kind":"bribe"}`
	resp := httptest.NewRecorder()
	AdminRecordTrustEvent(&stubRecorder{}, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

type stubFraud struct {
	alert *models.FraudAlert
}

func (s stubFraud) RunFraudCheck(context.Context, uuid.UUID, *decimal.Decimal) (*models.FraudAlert, error) {
	return s.alert, nil
}

func TestAdminFraudCheck(t *testing.T) {
	user := uuid.New()
	body := `{"user_id":"` + user.String() + `","requested_amount":"900"}`

	resp := httptest.NewRecorder()
	AdminFraudCheck(stubFraud{}, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, resp.Code)
	var clean fraudCheckResponse
	decodeData(t, resp, &clean)
	assert.False(t, clean.Flagged)
	assert.Nil(t, clean.Alert)

	alert := &models.FraudAlert{
		ID:             uuid.New(),
		UserID:         user,
		Severity:       enums.FraudSeverityCritical,
		SuspicionScore: 85,
		RedFlags:       datatypes.JSONSlice[string]{"High dispute rate"},
		Details:        datatypes.JSON(`{"dispute_ratio":0.5}`),
	}
	resp = httptest.NewRecorder()
	AdminFraudCheck(stubFraud{alert: alert}, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, resp.Code)
	var flagged fraudCheckResponse
	decodeData(t, resp, &flagged)
	assert.True(t, flagged.Flagged)
	require.NotNil(t, flagged.Alert)
	assert.Equal(t, "critical", flagged.Alert.Severity)
	assert.Equal(t, []string{"High dispute rate"}, flagged.Alert.RedFlags)
	assert.JSONEq(t, `{"dispute_ratio":0.5}`, string(flagged.Alert.Details))
}

func TestAdminFraudCheck_RejectsNonPositiveAmount(t *testing.T) {
	body := `{"user_id":"` + uuid.NewString() + `","requested_amount":"0"}`
	resp := httptest.NewRecorder()
	AdminFraudCheck(stubFraud{}, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

type fakeCodes struct {
	issued  map[string]string
	invalid bool
}

func (f *fakeCodes) Issue(_ context.Context, purpose verification.Purpose, subject string) (*verification.Issued, error) {
	f.issued[string(purpose)+":"+subject] = "123456"
	return &verification.Issued{Code: "123456", ExpiresAt: time.Date(2026, 5, 1, 12, 10, 0, 0, time.UTC)}, nil
}

func (f *fakeCodes) Verify(_ context.Context, purpose verification.Purpose, subject, code string) error {
	if f.issued[string(purpose)+":"+subject] != code {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid verification code")
	}
	return nil
}

type fakeVerifier struct {
	marked []uuid.UUID
}

func (f *fakeVerifier) MarkVerified(_ context.Context, id uuid.UUID) error {
	f.marked = append(f.marked, id)
	return nil
}

func verificationRouter(codes *fakeCodes, users *fakeVerifier, expose bool, user uuid.UUID) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, asUser(req, user))
		})
	})
	r.Post("/verification/{purpose}", IssueVerificationCode(codes, expose, nil))
	r.Post("/verification/{purpose}/verify", ConfirmVerificationCode(codes, users, nil))
	return r
}

func TestVerificationFlow(t *testing.T) {
	user := uuid.New()
	codes := &fakeCodes{issued: map[string]string{}}
	users := &fakeVerifier{}
	router := verificationRouter(codes, users, false, user)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/verification/email", nil))
	require.Equal(t, http.StatusCreated, resp.Code)
	var issued issueCodeResponse
	decodeData(t, resp, &issued)
	assert.Empty(t, issued.Code, "code must not be echoed when exposure is off")
	assert.Equal(t, verification.PurposeEmail, issued.Purpose)

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/verification/email/verify", strings.NewReader(`{"code":"654321"}`)))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Empty(t, users.marked)

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/verification/email/verify", strings.NewReader(`{"code":"123456"}`)))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, []uuid.UUID{user}, users.marked)
}

func TestVerificationExposesCodeOutsideProd(t *testing.T) {
	router := verificationRouter(&fakeCodes{issued: map[string]string{}}, &fakeVerifier{}, true, uuid.New())

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/verification/phone", nil))
	require.Equal(t, http.StatusCreated, resp.Code)
	var issued issueCodeResponse
	decodeData(t, resp, &issued)
	assert.Equal(t, "123456", issued.Code)

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/verification/postcard", nil))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}
