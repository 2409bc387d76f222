package httpapi

import (
	"net/http"
	"time"

	"github.com/dmitrijs2005/neoma/internal/common"
	"github.com/dmitrijs2005/neoma/internal/server/models"
	"github.com/dmitrijs2005/neoma/internal/server/services"
	"github.com/gin-gonic/gin"
)

type itemRequest struct {
	Format   string `json:"format"`
	Quality  string `json:"quality"`
	Quantity int    `json:"quantity"`
}

type priceRequest struct {
	Format    string        `json:"format"`
	Quality   string        `json:"quality"`
	Items     []itemRequest `json:"items"`
	PromoCode string        `json:"promoCode"`
}

func (r priceRequest) toService() services.PriceRequest {
	out := services.PriceRequest{Format: r.Format, Quality: r.Quality, PromoCode: r.PromoCode}
	for _, it := range r.Items {
		out.Items = append(out.Items, services.CheckoutItem{Format: it.Format, Quality: it.Quality, Quantity: it.Quantity})
	}
	return out
}

type priceResponse struct {
	PricingVersion  string `json:"pricingVersion"`
	SubtotalCents   int64  `json:"subtotalCents"`
	PromoCode       string `json:"promoCode,omitempty"`
	PercentOff      int    `json:"percentOff"`
	DiscountedCents int64  `json:"discountedCents"`
	ShippingCents   int64  `json:"shippingCents"`
	TotalCents      int64  `json:"totalCents"`
	ItemCount       int    `json:"itemCount"`
}

func (s *Server) price(c *gin.Context) {
	var req priceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, s.logger, common.ErrValidation)
		return
	}
	b, err := s.deps.Checkout.Price(req.toService())
	if err != nil {
		writeError(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, priceResponse{
		PricingVersion:  b.PricingVersion,
		SubtotalCents:   b.SubtotalCents,
		PromoCode:       b.PromoCode,
		PercentOff:      b.PercentOff,
		DiscountedCents: b.DiscountedCents,
		ShippingCents:   b.ShippingCents,
		TotalCents:      b.TotalCents,
		ItemCount:       b.ItemCount,
	})
}

type checkoutRequest struct {
	priceRequest
	PurchaseType string `json:"purchaseType"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	PosterRef    string `json:"posterRef"`
}

type checkoutResponse struct {
	RedirectURL    string `json:"redirectUrl,omitempty"`
	SessionID      string `json:"sessionId,omitempty"`
	Included       bool   `json:"included"`
	Amount         int64  `json:"amount"`
	PricingVersion string `json:"pricingVersion"`
}

func (s *Server) checkout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, s.logger, common.ErrValidation)
		return
	}

	sess, err := s.deps.Checkout.CreateSession(c.Request.Context(), services.CheckoutIntent{
		PriceRequest: req.toService(),
		Principal:    principal(c),
		PurchaseType: models.PurchaseType(req.PurchaseType),
		Email:        req.Email,
		Password:     req.Password,
		PosterRef:    req.PosterRef,
	})
	if err != nil {
		writeError(c, s.logger, err)
		return
	}
	c.JSON(http.StatusOK, checkoutResponse{
		RedirectURL:    sess.RedirectURL,
		SessionID:      sess.SessionID,
		Included:       sess.Included,
		Amount:         sess.AmountCents,
		PricingVersion: sess.PricingVersion,
	})
}

type orderResponse struct {
	ID           string    `json:"id"`
	PurchaseType string    `json:"purchaseType"`
	AmountCents  int64     `json:"amountCents"`
	PosterRef    string    `json:"posterRef,omitempty"`
	Format       string    `json:"format,omitempty"`
	Quality      string    `json:"quality,omitempty"`
	ItemCount    int       `json:"itemCount"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (s *Server) orders(c *gin.Context) {
	list, err := s.deps.Checkout.Orders(c.Request.Context(), c.GetString(keyUserID))
	if err != nil {
		writeError(c, s.logger, err)
		return
	}
	out := make([]orderResponse, 0, len(list))
	for _, o := range list {
		out = append(out, orderResponse{
			ID:           o.ID,
			PurchaseType: string(o.PurchaseType),
			AmountCents:  o.AmountCents,
			PosterRef:    o.PosterRef,
			Format:       o.Format,
			Quality:      o.Quality,
			ItemCount:    o.ItemCount,
			CreatedAt:    o.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"orders": out})
}
