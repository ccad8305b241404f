package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chonlathan-cloud/ProjectMIABackend/internal/access"
	"github.com/chonlathan-cloud/ProjectMIABackend/internal/config"
	"github.com/chonlathan-cloud/ProjectMIABackend/internal/domain"
	"github.com/chonlathan-cloud/ProjectMIABackend/internal/http/middleware"
	"github.com/chonlathan-cloud/ProjectMIABackend/internal/service"
	"github.com/chonlathan-cloud/ProjectMIABackend/internal/stream"
)

// InboxHandler exposes the conversation endpoints.
type InboxHandler struct {
	Inbox  *service.InboxService
	Guard  *access.Guard
	Broker *stream.Broker
	Config config.Config
	Logger *zap.Logger
}

func (h *InboxHandler) authorizeShop(c *gin.Context) (domain.Shop, bool) {
	auth, ok := middleware.GetAuthContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Not authenticated"})
		return domain.Shop{}, false
	}
	shopID := c.Query("shop")
	if shopID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "shop query parameter is required"})
		return domain.Shop{}, false
	}

	shop, err := h.Guard.Authorize(c.Request.Context(), auth, shopID, nil)
	if err != nil {
		respondError(c, h.Logger, err)
		return domain.Shop{}, false
	}
	return shop, true
}

// Customers lists the shop's conversations.
func (h *InboxHandler) Customers(c *gin.Context) {
	shop, ok := h.authorizeShop(c)
	if !ok {
		return
	}

	summaries, err := h.Inbox.Customers(c.Request.Context(), shop.ShopID)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"customers": summaries})
}

// History returns one conversation's transcript.
func (h *InboxHandler) History(c *gin.Context) {
	shop, ok := h.authorizeShop(c)
	if !ok {
		return
	}

	events, err := h.Inbox.History(c.Request.Context(), shop.ShopID, c.Param("customer_id"))
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": events})
}

type sendRequest struct {
	Text string `json:"text" binding:"required"`
}

// Send pushes an operator message into the conversation.
func (h *InboxHandler) Send(c *gin.Context) {
	shop, ok := h.authorizeShop(c)
	if !ok {
		return
	}

	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "text is required"})
		return
	}

	event, err := h.Inbox.Send(c.Request.Context(), shop, c.Param("customer_id"), req.Text)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

// Stream pushes live conversation events over SSE until the client
// disconnects or the idle timeout elapses.
func (h *InboxHandler) Stream(c *gin.Context) {
	shop, ok := h.authorizeShop(c)
	if !ok {
		return
	}
	customerID := c.Param("customer_id")

	// The request context is the stream's parent, so a dropped connection
	// cancels the subscription.
	st := h.Broker.OpenStream(c.Request.Context(), shop.ShopID, customerID, h.Config.StreamIdleTimeout)
	defer st.Close()

	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	c.Stream(func(_ io.Writer) bool {
		event, open := <-st.Events()
		if !open {
			if streamErr := st.Err(); streamErr != nil {
				h.Logger.Warn("stream interrupted",
					zap.String("shop_id", shop.ShopID),
					zap.String("customer_id", customerID),
					zap.Error(streamErr))
				c.SSEvent("error", gin.H{"detail": "stream interrupted"})
			}
			return false
		}
		c.SSEvent("message", event)
		return true
	})
}
