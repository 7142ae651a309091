package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"gateway-reconciler/internal/apperror"
	"gateway-reconciler/internal/domain"
	"gateway-reconciler/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type paymentMethodRequest struct {
	Type          string `json:"type" form:"type" binding:"required"`
	SubType       string `json:"sub_type" form:"sub_type"`
	ShopperLocale string `json:"shopper_locale" form:"shopper_locale"`
}

func (p paymentMethodRequest) method() domain.PaymentMethod {
	return domain.PaymentMethod{Type: p.Type, SubType: p.SubType, ShopperLocale: p.ShopperLocale}
}

type transactionResponse struct {
	ID            string            `json:"id"`
	RemoteID      string            `json:"remote_id"`
	PaymentMethod string            `json:"payment_method"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	Status        string            `json:"status"`
	Message       string            `json:"message,omitempty"`
	Payload       map[string]string `json:"payload,omitempty"`
	CreatedAt     string            `json:"created_at"`
	UpdatedAt     string            `json:"updated_at"`
}

func (s *Server) healthHandler(c *gin.Context) {
	if s.health == nil {
		c.JSON(http.StatusOK, gin.H{"status": "up"})
		return
	}
	stats := s.health.Health(c.Request.Context())
	code := http.StatusOK
	if stats["status"] == "down" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, stats)
}

// notificationHandler acknowledges every delivery the gateway should not
// send again. Store failures answer 500 so the gateway redelivers.
func (s *Server) notificationHandler(c *gin.Context) {
	data, err := flatBody(c)
	if err != nil {
		s.logger.Warn("Unreadable notification body", zap.Error(err))
		c.String(http.StatusOK, "[accepted]")
		return
	}

	err = s.checkout.HandleNotification(c.Request.Context(), data)
	if err != nil && !final(err) {
		s.logger.Error("Notification failed, awaiting redelivery",
			zap.String("merchant_reference", data["merchantReference"]),
			zap.String("event_code", data["eventCode"]),
			zap.Error(err),
		)
		c.String(http.StatusInternalServerError, "[failed]")
		return
	}
	if err != nil {
		s.logger.Warn("Notification not applied",
			zap.String("merchant_reference", data["merchantReference"]),
			zap.String("event_code", data["eventCode"]),
			zap.Error(err),
		)
	}
	c.String(http.StatusOK, "[accepted]")
}

// final reports whether a notification error is a business outcome that a
// redelivery would not change.
func final(err error) bool {
	return errors.Is(err, domain.ErrOrderNotFound) ||
		errors.Is(err, domain.ErrIllegalTransition) ||
		errors.Is(err, domain.ErrMalformedNotification)
}

func (s *Server) paymentTypesHandler(c *gin.Context) {
	types := s.checkout.PaymentTypes()
	out := make([]gin.H, 0, len(types))
	for _, pt := range types {
		out = append(out, gin.H{"name": pt.Name, "label": pt.Label, "sub_types": pt.SubTypes})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) createOrderHandler(c *gin.Context) {
	var in service.NewOrder
	if err := c.ShouldBindJSON(&in); err != nil {
		_ = c.Error(apperror.BadRequest(err))
		return
	}
	order, err := s.orders.CreateOrder(c.Request.Context(), in)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":                 order.ID,
		"merchant_reference": order.MerchantReference,
		"status":             order.Status,
		"total":              order.Total,
		"currency":           order.Currency,
	})
}

func (s *Server) transactionsHandler(c *gin.Context) {
	order, txs, err := s.checkout.Transactions(c.Request.Context(), c.Param("reference"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	out := make([]transactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, transactionResponse{
			ID:            t.ID.String(),
			RemoteID:      t.RemoteID,
			PaymentMethod: t.PaymentMethod,
			Amount:        t.Amount,
			Currency:      t.Currency,
			Status:        string(t.Status),
			Message:       t.Message,
			Payload:       t.Payload,
			CreatedAt:     t.CreatedAt.UTC().Format(time.RFC3339),
			UpdatedAt:     t.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"merchant_reference": order.MerchantReference,
		"order_status":       order.Status,
		"transactions":       out,
	})
}

func (s *Server) buildRequestHandler(c *gin.Context) {
	var p paymentMethodRequest
	if err := c.ShouldBindQuery(&p); err != nil {
		_ = c.Error(apperror.BadRequest(err))
		return
	}
	req, err := s.checkout.BuildRequest(c.Request.Context(), c.Param("reference"), p.method())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (s *Server) checkoutHandler(c *gin.Context) {
	var p paymentMethodRequest
	if err := c.ShouldBindJSON(&p); err != nil {
		_ = c.Error(apperror.BadRequest(err))
		return
	}
	resp, err := s.checkout.Checkout(c.Request.Context(), c.Param("reference"), p.method())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"merchant_reference": resp.MerchantReference,
		"psp_reference":      resp.PSPReference,
		"result":             resp.Result,
	})
}

// redirectResultHandler receives the shopper coming back from the hosted
// payment page, as query string or form post.
func (s *Server) redirectResultHandler(c *gin.Context) {
	data, err := flatBody(c)
	if err != nil {
		_ = c.Error(apperror.BadRequest(err))
		return
	}
	for k, v := range c.Request.URL.Query() {
		if _, ok := data[k]; !ok && len(v) > 0 {
			data[k] = v[0]
		}
	}
	if err := s.checkout.HandleRedirectResult(c.Request.Context(), c.Param("reference"), data); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"merchant_reference": c.Param("reference"), "result": data["authResult"]})
}

func (s *Server) captureHandler(c *gin.Context) {
	resp, err := s.checkout.Capture(c.Request.Context(), c.Param("reference"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"merchant_reference": resp.MerchantReference,
		"psp_reference":      resp.PSPReference,
		"result":             resp.Result,
	})
}

// flatBody reads a JSON object of strings or a url-encoded form into a map.
func flatBody(c *gin.Context) (map[string]string, error) {
	data := map[string]string{}
	if c.Request.ContentLength == 0 {
		return data, nil
	}
	if strings.HasPrefix(c.ContentType(), "application/json") {
		if err := c.ShouldBindJSON(&data); err != nil {
			return nil, err
		}
		return data, nil
	}
	if err := c.Request.ParseForm(); err != nil {
		return nil, err
	}
	for k, v := range c.Request.PostForm {
		if len(v) > 0 {
			data[k] = v[0]
		}
	}
	return data, nil
}
