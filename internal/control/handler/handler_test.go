package handler

import (
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vaultbridge/internal/control/models"
	"vaultbridge/internal/control/roles"
	"vaultbridge/internal/control/service"
	"vaultbridge/internal/control/store/accounts"
	"vaultbridge/internal/control/store/pending"
	"vaultbridge/internal/control/store/statecache"
	"vaultbridge/internal/jwtauth"
	"vaultbridge/internal/relay/inproc"
	id "vaultbridge/pkg/domain"
	"vaultbridge/pkg/testutil"
)

type env struct {
	router   chi.Router
	jwt      *jwtauth.Service
	accounts *accounts.MemoryStore
	roles    *roles.MemoryAuthority
	pending  *pending.MemoryStore
	relay    *inproc.Relay
}

func newEnv(t *testing.T) *env {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := &env{
		jwt:      jwtauth.NewService("test-signing-key", "vaultbridge-test"),
		accounts: accounts.NewMemory(),
		roles:    roles.NewMemory(),
		pending:  pending.NewMemory(),
		relay:    inproc.New(logger),
	}

	svc := service.New(
		e.pending, statecache.NewMemory(), e.accounts, e.roles,
		e.relay.Client(id.DomainControl, "0xcontrol"), logger,
	)
	h := New(svc, nil, e.jwt, logger, nil, time.Hour)
	e.router = chi.NewRouter()
	h.Register(e.router)
	return e
}

func (e *env) authed(t *testing.T, req *http.Request, actor id.Address, admin bool) *http.Request {
	t.Helper()
	token, err := e.jwt.GenerateToken(actor, admin, time.Hour)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func (e *env) register(t *testing.T, label string) id.AccountID {
	t.Helper()
	req := e.authed(t, testutil.NewJSONRequest(t, http.MethodPost, "/control/accounts",
		models.RegisterAccountRequest{Label: label}), "0xadmin", true)
	rr := testutil.DoRequest(e.router, req)
	testutil.AssertStatus(t, rr, http.StatusCreated)
	resp := testutil.UnmarshalResponse[models.AccountResponse](t, rr)
	account, err := id.ParseAccountID(resp.ID)
	require.NoError(t, err)
	return account
}

func (e *env) grant(t *testing.T, account id.AccountID, role, holder string) {
	t.Helper()
	req := e.authed(t, testutil.NewJSONRequest(t, http.MethodPost,
		"/control/accounts/"+account.String()+"/roles",
		models.GrantRoleRequest{Role: role, Holder: holder}), "0xadmin", true)
	rr := testutil.DoRequest(e.router, req)
	testutil.AssertStatus(t, rr, http.StatusNoContent)
}

func TestDeposit_AcceptedForOperator(t *testing.T) {
	e := newEnv(t)
	account := e.register(t, "treasury")
	e.grant(t, account, "operator", "0xoperator")

	req := e.authed(t, testutil.NewJSONRequest(t, http.MethodPost, "/control/operations/deposit",
		models.DepositRequest{Account: account.String(), Strategy: "strat-a", Amount: 1000}),
		"0xoperator", false)
	rr := testutil.DoRequest(e.router, req)

	testutil.AssertStatus(t, rr, http.StatusAccepted)
	resp := testutil.UnmarshalResponse[models.OperationResponse](t, rr)
	assert.NotEmpty(t, resp.MessageID)
	assert.Equal(t, models.StatusPending, resp.Status)
	assert.Equal(t, "standard", resp.Priority)
}

func TestDeposit_ForbiddenWithoutRole(t *testing.T) {
	e := newEnv(t)
	account := e.register(t, "treasury")

	req := e.authed(t, testutil.NewJSONRequest(t, http.MethodPost, "/control/operations/deposit",
		models.DepositRequest{Account: account.String(), Strategy: "strat-a", Amount: 1000}),
		"0xoperator", false)
	rr := testutil.DoRequest(e.router, req)

	testutil.AssertStatus(t, rr, http.StatusForbidden)
	testutil.AssertErrorCode(t, rr, "unauthorized")
}

func TestDeposit_UnauthenticatedRejected(t *testing.T) {
	e := newEnv(t)
	account := e.register(t, "treasury")

	req := testutil.NewJSONRequest(t, http.MethodPost, "/control/operations/deposit",
		models.DepositRequest{Account: account.String(), Strategy: "strat-a", Amount: 1000})
	rr := testutil.DoRequest(e.router, req)

	testutil.AssertStatus(t, rr, http.StatusUnauthorized)
}

func TestEmergencyWithdraw_MarkedHighPriority(t *testing.T) {
	e := newEnv(t)
	account := e.register(t, "treasury")
	e.grant(t, account, "guardian", "0xguardian")

	req := e.authed(t, testutil.NewJSONRequest(t, http.MethodPost, "/control/operations/emergency-withdraw",
		models.EmergencyWithdrawRequest{Account: account.String(), Recipient: "0xsafe"}),
		"0xguardian", false)
	rr := testutil.DoRequest(e.router, req)

	testutil.AssertStatus(t, rr, http.StatusAccepted)
	resp := testutil.UnmarshalResponse[models.OperationResponse](t, rr)
	assert.Equal(t, "high", resp.Priority)
}

func TestListOperations_StatusFilter(t *testing.T) {
	e := newEnv(t)
	account := e.register(t, "treasury")
	e.grant(t, account, "operator", "0xoperator")

	for i := 0; i < 3; i++ {
		req := e.authed(t, testutil.NewJSONRequest(t, http.MethodPost, "/control/operations/deposit",
			models.DepositRequest{Account: account.String(), Strategy: "strat-a", Amount: 100}),
			"0xoperator", false)
		testutil.AssertStatus(t, testutil.DoRequest(e.router, req), http.StatusAccepted)
	}

	req := e.authed(t, testutil.NewJSONRequest(t, http.MethodGet,
		"/control/operations?account="+account.String()+"&status=pending", nil),
		"0xoperator", false)
	rr := testutil.DoRequest(e.router, req)
	testutil.AssertStatus(t, rr, http.StatusOK)
	resp := testutil.UnmarshalResponse[[]models.OperationResponse](t, rr)
	assert.Len(t, *resp, 3)

	req = e.authed(t, testutil.NewJSONRequest(t, http.MethodGet,
		"/control/operations?status=bogus", nil), "0xoperator", false)
	rr = testutil.DoRequest(e.router, req)
	testutil.AssertStatus(t, rr, http.StatusBadRequest)
}

func TestAccountState_NotFoundBeforeFirstSnapshot(t *testing.T) {
	e := newEnv(t)
	account := e.register(t, "treasury")

	req := e.authed(t, testutil.NewJSONRequest(t, http.MethodGet,
		"/control/accounts/"+account.String()+"/state", nil), "0xoperator", false)
	rr := testutil.DoRequest(e.router, req)
	testutil.AssertStatus(t, rr, http.StatusNotFound)
	testutil.AssertErrorCode(t, rr, "not_found")
}

func TestRegisterAccount_RequiresAdmin(t *testing.T) {
	e := newEnv(t)

	req := e.authed(t, testutil.NewJSONRequest(t, http.MethodPost, "/control/accounts",
		models.RegisterAccountRequest{Label: "treasury"}), "0xoperator", false)
	rr := testutil.DoRequest(e.router, req)
	testutil.AssertStatus(t, rr, http.StatusForbidden)
}

func TestDeactivateAccount_BlocksNewDeposits(t *testing.T) {
	e := newEnv(t)
	account := e.register(t, "treasury")
	e.grant(t, account, "operator", "0xoperator")

	req := e.authed(t, testutil.NewJSONRequest(t, http.MethodPost,
		"/control/accounts/"+account.String()+"/deactivate", nil), "0xadmin", true)
	rr := testutil.DoRequest(e.router, req)
	testutil.AssertStatus(t, rr, http.StatusOK)
	resp := testutil.UnmarshalResponse[models.AccountResponse](t, rr)
	assert.False(t, resp.Active)

	req = e.authed(t, testutil.NewJSONRequest(t, http.MethodPost, "/control/operations/deposit",
		models.DepositRequest{Account: account.String(), Strategy: "strat-a", Amount: 100}),
		"0xoperator", false)
	rr = testutil.DoRequest(e.router, req)
	testutil.AssertStatus(t, rr, http.StatusUnprocessableEntity)
	testutil.AssertErrorCode(t, rr, "invariant_violation")
}

func TestRevokeRole_RemovesAccess(t *testing.T) {
	e := newEnv(t)
	account := e.register(t, "treasury")
	e.grant(t, account, "operator", "0xoperator")

	req := e.authed(t, testutil.NewJSONRequest(t, http.MethodDelete,
		"/control/accounts/"+account.String()+"/roles/operator", nil), "0xadmin", true)
	rr := testutil.DoRequest(e.router, req)
	testutil.AssertStatus(t, rr, http.StatusNoContent)

	req = e.authed(t, testutil.NewJSONRequest(t, http.MethodPost, "/control/operations/deposit",
		models.DepositRequest{Account: account.String(), Strategy: "strat-a", Amount: 100}),
		"0xoperator", false)
	rr = testutil.DoRequest(e.router, req)
	testutil.AssertStatus(t, rr, http.StatusForbidden)
}

func TestGetOperation_UnknownMessage(t *testing.T) {
	e := newEnv(t)

	req := e.authed(t, testutil.NewJSONRequest(t, http.MethodGet,
		"/control/operations/msg-ghost", nil), "0xoperator", false)
	rr := testutil.DoRequest(e.router, req)
	testutil.AssertStatus(t, rr, http.StatusNotFound)
}
