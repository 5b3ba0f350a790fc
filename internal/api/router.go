package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/verygoodsaas/backoffice/internal/auth"
	"github.com/verygoodsaas/backoffice/internal/handlers"
	"github.com/verygoodsaas/backoffice/internal/middleware"
	"github.com/verygoodsaas/backoffice/internal/services"
)

// Deps collects everything the router needs.
type Deps struct {
	Sessions *auth.SessionService
	Cookies  *auth.CookieWriter

	Accounts    *services.AccountService
	Authz       *services.AuthzService
	Teams       *services.TeamService
	Invitations *services.InvitationService
	Activity    *services.ActivityService
	Leads       *services.LeadService
}

// NewRouter builds the HTTP surface: public auth endpoints, the
// session-guarded API, and the operational endpoints.
func NewRouter(deps Deps) *gin.Engine {
	router := gin.New()
	router.Use(
		middleware.Recovery(),
		middleware.RequestLogger(),
		middleware.Metrics(),
		middleware.SecurityHeaders(),
	)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authHandler := handlers.NewAuthHandler(deps.Accounts, deps.Invitations, deps.Sessions, deps.Cookies)
	accountHandler := handlers.NewAccountHandler(deps.Accounts, deps.Cookies)
	teamHandler := handlers.NewTeamHandler(deps.Teams, deps.Authz, deps.Sessions, deps.Cookies)
	invitationHandler := handlers.NewInvitationHandler(deps.Invitations, deps.Sessions, deps.Cookies)
	activityHandler := handlers.NewActivityHandler(deps.Activity)
	leadHandler := handlers.NewLeadHandler(deps.Leads)

	api := router.Group("/api")

	public := api.Group("/auth")
	{
		public.POST("/sign-up", authHandler.SignUp)
		public.POST("/sign-in", authHandler.SignIn)
		public.POST("/password-reset/request", authHandler.RequestPasswordReset)
		public.POST("/password-reset/confirm", authHandler.ConfirmPasswordReset)
	}

	// The accept page loads invitation details before the user has an
	// account, so the read stays public.
	api.GET("/invitations/:invitationID", invitationHandler.Get)

	protected := api.Group("")
	protected.Use(middleware.RequireAuth(deps.Sessions, deps.Cookies, deps.Authz))
	{
		protected.POST("/auth/sign-out", authHandler.SignOut)

		protected.GET("/account", accountHandler.Get)
		protected.PUT("/account", accountHandler.Update)
		protected.PUT("/account/password", accountHandler.UpdatePassword)
		protected.DELETE("/account", accountHandler.Delete)

		protected.GET("/team", teamHandler.Get)
		protected.GET("/teams", teamHandler.List)
		protected.PUT("/team/name", teamHandler.UpdateName)
		protected.POST("/team/switch", teamHandler.Switch)
		protected.DELETE("/team/members/:membershipID", teamHandler.RemoveMember)
		protected.PUT("/users/:userID/role", teamHandler.UpdateUserRole)
		protected.POST("/billing/subscription", teamHandler.SyncSubscription)

		protected.POST("/invitations", invitationHandler.Create)
		protected.GET("/invitations", invitationHandler.ListPending)
		protected.POST("/invitations/:invitationID/accept", invitationHandler.Accept)
		protected.POST("/invitations/:invitationID/approve", invitationHandler.Approve)
		protected.DELETE("/invitations/:invitationID", invitationHandler.Delete)

		protected.GET("/activity", activityHandler.List)

		protected.GET("/leads", leadHandler.List)
		protected.POST("/leads", leadHandler.Create)
		protected.GET("/leads/:leadID", leadHandler.Get)
		protected.PUT("/leads/:leadID", leadHandler.Update)
		protected.DELETE("/leads/:leadID", leadHandler.Delete)
	}

	return router
}
