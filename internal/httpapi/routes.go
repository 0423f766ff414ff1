package httpapi

import (
	"payment-platform/internal/rbac"

	"github.com/gin-gonic/gin"
)

// Register mounts the payment API on v1. The group must already carry the
// access-token middleware. inflight, when non-nil, guards every route that
// moves money.
func (h Handlers) Register(v1 *gin.RouterGroup, inflight gin.HandlerFunc) {
	guard := func(fn gin.HandlerFunc) []gin.HandlerFunc {
		if inflight == nil {
			return []gin.HandlerFunc{fn}
		}
		return []gin.HandlerFunc{inflight, fn}
	}
	payers := rbac.RequireAnyRole(rbac.RoleCustomer, rbac.RoleMerchant)
	finance := rbac.RequireAnyRole(rbac.RoleFinance)

	v1.Use(rbac.RequireUser())

	payments := v1.Group("/payments")
	{
		payments.POST("", append([]gin.HandlerFunc{payers}, guard(h.CreatePayment)...)...)
		payments.GET("/:id", h.GetPayment)
		payments.POST("/:id/process", guard(h.ProcessPayment)...)
		payments.POST("/:id/authorize", guard(h.AuthorizePayment)...)
		payments.POST("/:id/capture", guard(h.CapturePayment)...)
		payments.POST("/:id/confirm", guard(h.ConfirmPayment)...)
		payments.POST("/:id/cancel", h.CancelPayment)
		payments.POST("/:id/refund", guard(h.RefundPayment)...)
		payments.POST("/:id/retry", guard(h.RetryPayment)...)
		payments.POST("/:id/chargeback", finance, h.ChargebackPayment)
	}

	// Deposits are staged by the rail integration (hidden service role) and
	// settled once the rail confirms them.
	deposits := v1.Group("/deposits")
	deposits.Use(rbac.RequireAnyRole(rbac.RoleService, rbac.RoleFinance))
	{
		deposits.POST("", h.StageDeposit)
		deposits.POST("/:id/settle", h.SettleDeposit)
	}

	admin := v1.Group("/admin")
	admin.Use(finance)
	{
		admin.POST("/adjustments", h.Adjust)
	}

	v1.GET("/wallet", h.GetWallet)
	v1.GET("/wallet/check", h.CheckBalance)
	v1.GET("/journal/balance", h.JournalBalance)
	v1.GET("/journal/verify", finance, h.VerifyJournal)

	links := v1.Group("/links")
	{
		links.POST("", rbac.RequireAnyRole(rbac.RoleMerchant), h.CreateLink)
		links.GET("/:id", h.GetLink)
		links.POST("/:id/pay", append([]gin.HandlerFunc{payers}, guard(h.PayLink)...)...)
		links.POST("/:id/deactivate", rbac.RequireAnyRole(rbac.RoleMerchant), h.DeactivateLink)
	}
}
