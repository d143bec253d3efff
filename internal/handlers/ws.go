package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// PriceUpdate is one websocket message: a fresh quote for a held symbol.
type PriceUpdate struct {
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name"`
	Price     string    `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const priceStreamInterval = 2 * time.Second

// streamPrices pushes live quotes for the symbols the session user currently
// holds until the client goes away.
func (s *Server) streamPrices(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	userID := currentUserID(c)
	ticker := time.NewTicker(priceStreamInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
			if err := s.pushPrices(c.Request.Context(), conn, userID); err != nil {
				return
			}
		}
	}
}

func (s *Server) pushPrices(ctx context.Context, conn *websocket.Conn, userID int) error {
	symbols, err := s.Trades.HeldSymbols(ctx, userID)
	if err != nil {
		s.Logger.Warn("price stream positions read failed", zap.Error(err))
		return err
	}

	for _, symbol := range symbols {
		q, err := s.Quotes.Lookup(ctx, symbol)
		if err != nil || q == nil {
			// Skip this tick for the symbol; the next one may succeed.
			continue
		}
		update := PriceUpdate{
			Symbol:    q.Symbol,
			Name:      q.Name,
			Price:     q.Price.StringFixed(2),
			Timestamp: time.Now(),
		}
		if err := conn.WriteJSON(update); err != nil {
			return err
		}
	}
	return nil
}
