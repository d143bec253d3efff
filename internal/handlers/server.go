package handlers

import (
	"html/template"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"paperfolio/internal/auth"
	"paperfolio/internal/ledger"
	"paperfolio/internal/portfolio"
	"paperfolio/internal/trade"
)

const sessionUserKey = "user_id"

// Server wires the router, services, and middleware.
type Server struct {
	R         *gin.Engine
	Auth      *auth.Service
	Ledger    *ledger.Store
	Portfolio *portfolio.Engine
	Trades    *trade.Executor
	Quotes    portfolio.QuoteLookup
	Logger    *zap.Logger
}

// NewServer builds the gin engine with sessions, request logging, recovery,
// and all routes registered.
func NewServer(
	authSvc *auth.Service,
	ledgerStore *ledger.Store,
	engine *portfolio.Engine,
	executor *trade.Executor,
	quotes portfolio.QuoteLookup,
	logger *zap.Logger,
	sessionSecret string,
	templatesGlob string,
) *Server {
	g := gin.New()

	// Request logging
	g.Use(func(cn *gin.Context) {
		start := time.Now()
		requestID := uuid.NewString()
		cn.Set("request_id", requestID)
		cn.Next()
		logger.Info("http_request",
			zap.String("request_id", requestID),
			zap.String("method", cn.Request.Method),
			zap.String("path", cn.Request.URL.Path),
			zap.Int("status", cn.Writer.Status()),
			zap.String("ip", cn.ClientIP()),
			zap.Duration("latency", time.Since(start)),
		)
	})

	g.Use(gin.Recovery())
	g.Use(sessions.Sessions("paperfolio_session", cookie.NewStore([]byte(sessionSecret))))

	g.SetFuncMap(template.FuncMap{
		"usd": func(d decimal.Decimal) string { return "$" + d.StringFixed(2) },
	})
	g.LoadHTMLGlob(templatesGlob)

	s := &Server{
		R:         g,
		Auth:      authSvc,
		Ledger:    ledgerStore,
		Portfolio: engine,
		Trades:    executor,
		Quotes:    quotes,
		Logger:    logger,
	}

	g.GET("/health", func(cn *gin.Context) { cn.JSON(http.StatusOK, gin.H{"status": "healthy"}) })

	g.GET("/login", s.getLogin)
	g.POST("/login", s.postLogin)
	g.GET("/logout", s.getLogout)
	g.GET("/register", s.getRegister)
	g.POST("/register", s.postRegister)

	authed := g.Group("/", s.requireLogin)
	{
		authed.GET("/", s.getIndex)
		authed.GET("/buy", s.getBuy)
		authed.POST("/buy", s.postBuy)
		authed.GET("/sell", s.getSell)
		authed.POST("/sell", s.postSell)
		authed.GET("/quote", s.getQuote)
		authed.POST("/quote", s.postQuote)
		authed.GET("/history", s.getHistory)
		authed.GET("/ws/prices", s.streamPrices)
	}

	return s
}

// requireLogin redirects unauthenticated requests to the login form.
func (s *Server) requireLogin(c *gin.Context) {
	sess := sessions.Default(c)
	v := sess.Get(sessionUserKey)
	userID, ok := v.(int)
	if !ok {
		c.Redirect(http.StatusSeeOther, "/login")
		c.Abort()
		return
	}
	c.Set("userID", userID)
	c.Next()
}

func currentUserID(c *gin.Context) int {
	return c.GetInt("userID")
}

// apology renders the user-facing failure page. Internal details never
// reach it.
func (s *Server) apology(c *gin.Context, status int, msg string) {
	c.HTML(status, "apology.tmpl", gin.H{"Message": msg})
}

func (s *Server) internalError(c *gin.Context, where string, err error) {
	s.Logger.Error("internal_error",
		zap.String("request_id", c.GetString("request_id")),
		zap.String("where", where),
		zap.Error(err),
	)
	s.apology(c, http.StatusInternalServerError, "something went wrong")
}
