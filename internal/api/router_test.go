package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/verygoodsaas/backoffice/internal/api"
	"github.com/verygoodsaas/backoffice/internal/auth"
	"github.com/verygoodsaas/backoffice/internal/database"
	"github.com/verygoodsaas/backoffice/internal/services"
	"github.com/verygoodsaas/backoffice/pkg/mail"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	m.Run()
}

type apiHarness struct {
	t      *testing.T
	router *gin.Engine
	db     *gorm.DB
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	require.NoError(t, database.AutoMigrate(db))

	sessions, err := auth.NewSessionService(auth.SessionConfig{
		Secret: "api-test-secret-api-test-secret",
		Issuer: "backoffice-test",
	})
	require.NoError(t, err)
	cookies := auth.NewCookieWriter("session", false)

	// An unconfigured transport: invitation and reset emails fail loudly,
	// which the handlers tolerate.
	mailer := mail.NewSMTPMailer(mail.SMTPSettings{})

	activity, err := services.NewActivityService(db)
	require.NoError(t, err)
	authz, err := services.NewAuthzService(db)
	require.NoError(t, err)
	accounts, err := services.NewAccountService(db, activity, authz, mailer, "https://backoffice.test")
	require.NoError(t, err)
	invitations, err := services.NewInvitationService(db, activity, authz, mailer, "https://backoffice.test")
	require.NoError(t, err)
	teams, err := services.NewTeamService(db, activity, authz)
	require.NoError(t, err)
	leads, err := services.NewLeadService(db)
	require.NoError(t, err)

	router := api.NewRouter(api.Deps{
		Sessions:    sessions,
		Cookies:     cookies,
		Accounts:    accounts,
		Authz:       authz,
		Teams:       teams,
		Invitations: invitations,
		Activity:    activity,
		Leads:       leads,
	})

	return &apiHarness{t: t, router: router, db: db}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (h *apiHarness) do(method, path, cookie string, body any) (*httptest.ResponseRecorder, envelope) {
	h.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(h.t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	for _, c := range rec.Result().Cookies() {
		if c.Name == "session" && c.Value != "" {
			return fmt.Sprintf("%s=%s", c.Name, c.Value)
		}
	}
	t.Fatal("expected session cookie to be set")
	return ""
}

func (h *apiHarness) signUp(email, orgName string) string {
	h.t.Helper()

	rec, env := h.do(http.MethodPost, "/api/auth/sign-up", "", gin.H{
		"email":    email,
		"password": "strong-password",
		"org_name": orgName,
	})
	require.Equal(h.t, http.StatusCreated, rec.Code)
	require.True(h.t, env.Success)
	return sessionCookie(h.t, rec)
}

func TestHealthEndpoint(t *testing.T) {
	h := newAPIHarness(t)

	rec, _ := h.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	h := newAPIHarness(t)

	rec, env := h.do(http.MethodGet, "/api/account", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.False(t, env.Success)
	require.Equal(t, "AUTHENTICATION_MISSING", env.Error.Code)
}

func TestSignUpAndFetchAccount(t *testing.T) {
	h := newAPIHarness(t)

	cookie := h.signUp("founder@example.com", "Founders Org")

	rec, env := h.do(http.MethodGet, "/api/account", cookie, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, env.Success)
	require.Contains(t, string(env.Data), "founder@example.com")
	require.Contains(t, string(env.Data), "Founders Org")
}

func TestSignInWithWrongPassword(t *testing.T) {
	h := newAPIHarness(t)

	h.signUp("login@example.com", "Login Org")

	rec, env := h.do(http.MethodPost, "/api/auth/sign-in", "", gin.H{
		"email":    "login@example.com",
		"password": "not-the-password",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "INVALID_CREDENTIALS", env.Error.Code)
}

func TestTamperedSessionRejected(t *testing.T) {
	h := newAPIHarness(t)

	h.signUp("secure@example.com", "Secure Org")

	rec, _ := h.do(http.MethodGet, "/api/account", "session=not-a-real-token", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestInvitationLifecycleOverHTTP(t *testing.T) {
	h := newAPIHarness(t)

	ownerCookie := h.signUp("owner@example.com", "Invite Org")

	rec, env := h.do(http.MethodPost, "/api/invitations", ownerCookie, gin.H{
		"email": "joiner@example.com",
		"role":  "member",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var invitation struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &invitation))
	require.NotEmpty(t, invitation.ID)

	rec, env = h.do(http.MethodGet, "/api/invitations/"+invitation.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, string(env.Data), "joiner@example.com")

	joinerCookie := h.signUp("joiner@example.com", "Joiner Own Org")

	rec, _ = h.do(http.MethodPost, "/api/invitations/"+invitation.ID+"/accept", joinerCookie, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = h.do(http.MethodGet, "/api/teams", joinerCookie, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, string(env.Data), "Invite Org")
	require.Contains(t, string(env.Data), "Joiner Own Org")
}

func TestSwitchTeamOverHTTP(t *testing.T) {
	h := newAPIHarness(t)

	ownerCookie := h.signUp("owner@example.com", "Main Org")

	rec, env := h.do(http.MethodPost, "/api/invitations", ownerCookie, gin.H{
		"email": "nomad@example.com",
		"role":  "member",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var invitation struct {
		ID     string `json:"id"`
		TeamID string `json:"team_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &invitation))

	nomadCookie := h.signUp("nomad@example.com", "Nomad Org")
	rec, _ = h.do(http.MethodPost, "/api/invitations/"+invitation.ID+"/accept", nomadCookie, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = h.do(http.MethodPost, "/api/team/switch", nomadCookie, gin.H{"team_id": invitation.TeamID})
	require.Equal(t, http.StatusOK, rec.Code)
	switchedCookie := sessionCookie(t, rec)

	rec, env = h.do(http.MethodGet, "/api/team", switchedCookie, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, string(env.Data), "Main Org")
}

func TestSwitchToForeignTeamForbidden(t *testing.T) {
	h := newAPIHarness(t)

	h.signUp("victim@example.com", "Victim Org")
	attackerCookie := h.signUp("attacker@example.com", "Attacker Org")

	rec, env := h.do(http.MethodGet, "/api/team", attackerCookie, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ownTeam struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &ownTeam))

	var victimTeamID string
	require.NoError(t, h.db.Raw("SELECT id FROM teams WHERE name = ?", "Victim Org").Scan(&victimTeamID).Error)

	rec, env = h.do(http.MethodPost, "/api/team/switch", attackerCookie, gin.H{"team_id": victimTeamID})
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "AUTHORIZATION_DENIED", env.Error.Code)
}

func TestActivityListOverHTTP(t *testing.T) {
	h := newAPIHarness(t)

	cookie := h.signUp("active@example.com", "Active Org")

	rec, env := h.do(http.MethodGet, "/api/activity", cookie, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, string(env.Data), "CREATE_TEAM")
	require.Contains(t, string(env.Data), "SIGN_UP")
}

func TestLeadCRUDOverHTTP(t *testing.T) {
	h := newAPIHarness(t)

	cookie := h.signUp("sales@example.com", "Sales Org")

	rec, env := h.do(http.MethodPost, "/api/leads", cookie, gin.H{
		"contact_name": "Big Fish",
		"lead_status":  "Contacted",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var lead struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &lead))

	rec, env = h.do(http.MethodGet, "/api/leads/"+lead.ID, cookie, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, string(env.Data), "Big Fish")

	rec, _ = h.do(http.MethodPut, "/api/leads/"+lead.ID, cookie, gin.H{
		"contact_name": "Bigger Fish",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = h.do(http.MethodDelete, "/api/leads/"+lead.ID, cookie, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = h.do(http.MethodGet, "/api/leads", cookie, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, string(env.Data), "Bigger Fish")

	otherCookie := h.signUp("rival@example.com", "Rival Org")
	rec, _ = h.do(http.MethodGet, "/api/leads/"+lead.ID, otherCookie, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSignOutClearsCookie(t *testing.T) {
	h := newAPIHarness(t)

	cookie := h.signUp("leaver@example.com", "Leaver Org")

	rec, _ := h.do(http.MethodPost, "/api/auth/sign-out", cookie, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var cleared bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == "session" && c.MaxAge < 0 {
			cleared = true
		}
	}
	require.True(t, cleared)
}

func TestUpdateTeamNameValidation(t *testing.T) {
	h := newAPIHarness(t)

	cookie := h.signUp("renamer@example.com", "Rename Org")

	rec, env := h.do(http.MethodPut, "/api/team/name", cookie, gin.H{"name": "abc"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "VALIDATION_FAILED", env.Error.Code)

	rec, env = h.do(http.MethodPut, "/api/team/name", cookie, gin.H{"name": "Renamed Org"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, string(env.Data), "Renamed Org")
}

func TestSignInWithInviteHint(t *testing.T) {
	h := newAPIHarness(t)

	ownerCookie := h.signUp("owner@example.com", "Hint Org")

	rec, env := h.do(http.MethodPost, "/api/invitations", ownerCookie, gin.H{
		"email": "hinted@example.com",
		"role":  "member",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var invitation struct {
		ID     string `json:"id"`
		TeamID string `json:"team_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &invitation))

	h.signUp("hinted@example.com", "Hinted Own Org")

	rec, _ = h.do(http.MethodPost, "/api/auth/sign-in", "", gin.H{
		"email":     "hinted@example.com",
		"password":  "strong-password",
		"invite_id": invitation.ID,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	hintedCookie := sessionCookie(t, rec)

	rec, env = h.do(http.MethodGet, "/api/team", hintedCookie, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, string(env.Data), "Hint Org")
}

func TestApproveInvitationOverHTTP(t *testing.T) {
	h := newAPIHarness(t)

	ownerCookie := h.signUp("owner@example.com", "Approve Org")
	h.signUp("pending@example.com", "Pending Own Org")

	rec, env := h.do(http.MethodPost, "/api/invitations", ownerCookie, gin.H{
		"email": "pending@example.com",
		"role":  "member",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var invitation struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &invitation))

	rec, env = h.do(http.MethodPost, "/api/invitations/"+invitation.ID+"/approve", ownerCookie, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, string(env.Data), "accepted")

	rec, env = h.do(http.MethodGet, "/api/invitations", ownerCookie, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, string(env.Data), "pending@example.com")
}

func TestExplicitAcceptSwitchesActiveTeam(t *testing.T) {
	h := newAPIHarness(t)

	ownerCookie := h.signUp("owner@example.com", "Invite Org")

	rec, env := h.do(http.MethodPost, "/api/invitations", ownerCookie, gin.H{
		"email": "joiner@example.com",
		"role":  "member",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var invitation struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &invitation))

	joinerCookie := h.signUp("joiner@example.com", "Joiner Own Org")

	rec, _ = h.do(http.MethodPost, "/api/invitations/"+invitation.ID+"/accept", joinerCookie, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	acceptCookie := sessionCookie(t, rec)

	rec, env = h.do(http.MethodGet, "/api/team", acceptCookie, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, string(env.Data), "Invite Org")
	require.NotContains(t, string(env.Data), "Joiner Own Org")
}
