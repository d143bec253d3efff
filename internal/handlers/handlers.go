package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"paperfolio/internal/auth"
	"paperfolio/internal/portfolio"
	"paperfolio/internal/quote"
	"paperfolio/internal/trade"
)

// getIndex shows the portfolio: cash, each holding valued at the current
// market price, and total assets.
func (s *Server) getIndex(c *gin.Context) {
	userID := currentUserID(c)

	user, err := s.Auth.UserByID(c.Request.Context(), userID)
	if errors.Is(err, auth.ErrUserNotFound) {
		// Stale session for a user that no longer exists
		c.Redirect(http.StatusSeeOther, "/login")
		return
	}
	if err != nil {
		s.internalError(c, "UserByID", err)
		return
	}

	summary, err := s.Portfolio.Recompute(c.Request.Context(), userID)
	if err != nil {
		s.Logger.Warn("portfolio recompute failed",
			zap.String("request_id", c.GetString("request_id")),
			zap.Error(err),
		)
		s.apology(c, http.StatusBadGateway, "portfolio is temporarily unavailable")
		return
	}

	c.HTML(http.StatusOK, "index.tmpl", gin.H{
		"Username":    user.Username,
		"Cash":        user.Cash,
		"Summary":     summary,
		"TotalAssets": portfolio.TotalAssets(user.Cash, summary),
	})
}

func (s *Server) getBuy(c *gin.Context) {
	c.HTML(http.StatusOK, "buy.tmpl", nil)
}

func (s *Server) postBuy(c *gin.Context) {
	symbol := c.PostForm("symbol")
	shares, err := parseShares(c.PostForm("shares"))
	if err != nil {
		s.apology(c, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := s.Trades.Buy(c.Request.Context(), currentUserID(c), symbol, shares); err != nil {
		s.renderTradeError(c, err)
		return
	}
	c.Redirect(http.StatusSeeOther, "/")
}

func (s *Server) getSell(c *gin.Context) {
	symbols, err := s.Trades.HeldSymbols(c.Request.Context(), currentUserID(c))
	if err != nil {
		s.internalError(c, "HeldSymbols", err)
		return
	}
	c.HTML(http.StatusOK, "sell.tmpl", gin.H{"Symbols": symbols})
}

func (s *Server) postSell(c *gin.Context) {
	symbol := c.PostForm("symbol")
	shares, err := parseShares(c.PostForm("shares"))
	if err != nil {
		s.apology(c, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := s.Trades.Sell(c.Request.Context(), currentUserID(c), symbol, shares); err != nil {
		s.renderTradeError(c, err)
		return
	}
	c.Redirect(http.StatusSeeOther, "/")
}

func (s *Server) getHistory(c *gin.Context) {
	entries, err := s.Ledger.History(c.Request.Context(), currentUserID(c))
	if err != nil {
		s.internalError(c, "History", err)
		return
	}
	c.HTML(http.StatusOK, "history.tmpl", gin.H{"Entries": entries})
}

func (s *Server) getQuote(c *gin.Context) {
	c.HTML(http.StatusOK, "quote.tmpl", nil)
}

func (s *Server) postQuote(c *gin.Context) {
	symbol := strings.TrimSpace(c.PostForm("symbol"))
	if symbol == "" {
		s.apology(c, http.StatusBadRequest, "please enter a stock symbol")
		return
	}

	q, err := s.Quotes.Lookup(c.Request.Context(), symbol)
	if err != nil {
		s.apology(c, http.StatusBadRequest, "quote is temporarily unavailable")
		return
	}
	if q == nil {
		s.apology(c, http.StatusBadRequest, "symbol is not valid")
		return
	}

	c.HTML(http.StatusOK, "quoted.tmpl", gin.H{"Quote": q})
}

func (s *Server) getLogin(c *gin.Context) {
	c.HTML(http.StatusOK, "login.tmpl", nil)
}

func (s *Server) postLogin(c *gin.Context) {
	sess := sessions.Default(c)
	sess.Clear()

	user, err := s.Auth.Login(c.Request.Context(), c.PostForm("username"), c.PostForm("password"))
	if err != nil {
		switch {
		case auth.IsValidation(err):
			s.apology(c, http.StatusForbidden, err.Error())
		case errors.Is(err, auth.ErrInvalidCredentials):
			s.apology(c, http.StatusForbidden, err.Error())
		default:
			s.internalError(c, "Login", err)
		}
		return
	}

	sess.Set(sessionUserKey, user.ID)
	if err := sess.Save(); err != nil {
		s.internalError(c, "session save", err)
		return
	}
	c.Redirect(http.StatusSeeOther, "/")
}

func (s *Server) getLogout(c *gin.Context) {
	sess := sessions.Default(c)
	sess.Clear()
	if err := sess.Save(); err != nil {
		s.internalError(c, "session save", err)
		return
	}
	c.Redirect(http.StatusSeeOther, "/")
}

func (s *Server) getRegister(c *gin.Context) {
	c.HTML(http.StatusOK, "register.tmpl", nil)
}

// postRegister creates the account and logs the user in with their id in the
// session, the same way login does.
func (s *Server) postRegister(c *gin.Context) {
	user, err := s.Auth.Register(c.Request.Context(),
		c.PostForm("username"), c.PostForm("password"), c.PostForm("confirmation"))
	if err != nil {
		switch {
		case auth.IsValidation(err):
			s.apology(c, http.StatusBadRequest, err.Error())
		case errors.Is(err, auth.ErrUsernameTaken):
			s.apology(c, http.StatusBadRequest, err.Error())
		default:
			s.internalError(c, "Register", err)
		}
		return
	}

	sess := sessions.Default(c)
	sess.Clear()
	sess.Set(sessionUserKey, user.ID)
	if err := sess.Save(); err != nil {
		s.internalError(c, "session save", err)
		return
	}
	c.Redirect(http.StatusSeeOther, "/")
}

// renderTradeError maps executor errors onto user-facing responses. Business
// rejections keep their specific reason; store failures stay generic.
func (s *Server) renderTradeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, trade.ErrInvalidSymbol),
		errors.Is(err, trade.ErrInvalidShares),
		errors.Is(err, trade.ErrInsufficientFunds),
		errors.Is(err, trade.ErrInsufficientShares),
		errors.Is(err, trade.ErrNotHeld):
		s.apology(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, quote.ErrUnavailable):
		s.apology(c, http.StatusBadRequest, "quote is temporarily unavailable")
	default:
		s.internalError(c, "trade", err)
	}
}

func parseShares(raw string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || n <= 0 {
		return 0, trade.ErrInvalidShares
	}
	return n, nil
}
