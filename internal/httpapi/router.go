// Package httpapi exposes the library over a JSON REST API.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smartlibrary/library/internal/auth"
	"github.com/smartlibrary/library/internal/catalog"
	"github.com/smartlibrary/library/internal/circulation"
	"github.com/smartlibrary/library/internal/domain"
	"github.com/smartlibrary/library/internal/events"
	"github.com/smartlibrary/library/internal/members"
	"github.com/smartlibrary/library/internal/metrics"
	"github.com/smartlibrary/library/internal/reports"
)

// Pinger checks a backing store.
type Pinger interface {
	Ping() error
}

// Services are the dependencies of the API. Metrics and Events may be nil.
type Services struct {
	Catalog     *catalog.Service
	Members     *members.Service
	Circulation *circulation.Service
	Reports     *reports.Service
	Auth        *auth.Service
	DB          Pinger
	Events      *events.Dispatcher
	Metrics     *metrics.Metrics
}

type handler struct {
	Services
	log *zap.Logger
}

// NewRouter builds the gin engine with every route under /api.
func NewRouter(svc Services, log *zap.Logger) *gin.Engine {
	h := &handler{Services: svc, log: log}

	r := gin.New()
	r.Use(gin.Recovery(), requestID(), requestLogger(log), instrument(svc.Metrics))
	r.NoRoute(func(c *gin.Context) {
		abort(c, http.StatusNotFound, "route not found", nil)
	})

	api := r.Group("/api")
	api.GET("/health", h.health)

	authGroup := api.Group("/auth")
	authGroup.POST("/register", h.register)
	authGroup.POST("/login", h.login)

	protected := api.Group("")
	protected.Use(h.authenticate(svc.Auth))
	staff := h.requireRole(domain.RoleAdmin, domain.RoleLibrarian)

	protected.GET("/auth/profile", h.profile)
	protected.POST("/auth/users", h.requireRole(domain.RoleAdmin), h.createUser)

	books := protected.Group("/books")
	books.GET("", h.listBooks)
	books.GET("/overdue", h.overdueBooks)
	books.GET("/category/:category", h.booksByCategory)
	books.GET("/:id", h.getBook)
	books.GET("/:id/status", h.bookStatus)
	books.POST("", staff, h.createBook)
	books.PUT("/:id", staff, h.updateBook)
	books.DELETE("/:id", staff, h.deleteBook)

	memberRoutes := protected.Group("/members", staff)
	memberRoutes.GET("", h.listMembers)
	memberRoutes.GET("/:id", h.getMember)
	memberRoutes.GET("/:id/transactions", h.memberTransactions)
	memberRoutes.POST("", h.registerMember)
	memberRoutes.PUT("/:id", h.updateMember)
	memberRoutes.DELETE("/:id", h.deleteMember)

	txns := protected.Group("/transactions", staff)
	txns.GET("", h.listTransactions)
	txns.GET("/:id", h.getTransaction)
	txns.POST("/borrow", h.borrow)
	txns.POST("/sweep-overdue", h.sweepOverdue)
	txns.POST("/:id/return", h.returnBook)
	txns.PUT("/:id", h.updateTransaction)
	txns.DELETE("/:id", h.deleteTransaction)

	reportRoutes := protected.Group("/reports", staff)
	reportRoutes.GET("/dashboard", h.dashboard)
	reportRoutes.GET("/categories", h.categories)
	reportRoutes.GET("/member-activity", h.memberActivity)
	reportRoutes.GET("/overdue", h.overdueReport)
	reportRoutes.GET("/overdue/export", h.exportOverdue)
	reportRoutes.GET("/monthly-trends", h.monthlyTrends)

	return r
}

func (h *handler) health(c *gin.Context) {
	status, code := "OK", http.StatusOK
	checks := gin.H{"database": "ok", "events": "ok"}

	if h.DB != nil {
		if err := h.DB.Ping(); err != nil {
			checks["database"] = err.Error()
			status, code = "DEGRADED", http.StatusServiceUnavailable
		}
	}
	if !h.Events.Healthy() {
		checks["events"] = "publisher unhealthy"
	}

	c.JSON(code, gin.H{
		"status":    status,
		"message":   "Smart Library API is running",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}
