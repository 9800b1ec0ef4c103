// Package http exposes the command protocol and the funds surface over REST.
// It is a thin mapping layer: every mutating route builds a Command envelope
// and hands it to the sequencer.
package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/thy3368/rustlob-sub005/internal/account"
	"github.com/thy3368/rustlob-sub005/internal/api/dto"
	"github.com/thy3368/rustlob-sub005/internal/domain"
	"github.com/thy3368/rustlob-sub005/internal/middleware"
	"github.com/thy3368/rustlob-sub005/internal/sequencer"
)

type Server struct {
	seq      *sequencer.Sequencer
	accounts *account.Service
	engine   *gin.Engine
}

func NewServer(seq *sequencer.Sequencer, accounts *account.Service, rateLimit time.Duration) *Server {
	s := &Server{seq: seq, accounts: accounts}

	r := gin.Default()
	v1 := r.Group("/api/v1")
	{
		trading := v1.Group("/")
		if rateLimit > 0 {
			trading.Use(middleware.NewRateLimiter(rateLimit).Middleware())
		}
		trading.POST("/orders", s.placeOrder)
		trading.DELETE("/orders/:order_id", s.cancelOrder)
		trading.DELETE("/orders", s.cancelAll)

		v1.GET("/orderbook", s.depth)
		v1.GET("/balances/:account_id", s.balances)
		v1.POST("/accounts", s.createAccount)
		v1.POST("/deposit", s.deposit)
		v1.POST("/withdraw", s.withdraw)
		v1.POST("/transfer", s.transfer)
	}
	s.engine = r
	return s
}

func (s *Server) Run(addr string) error { return s.engine.Run(addr) }

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.engine }

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrSymbolNotFound),
		errors.Is(err, domain.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrPriceOutOfRange),
		errors.Is(err, domain.ErrQuantityOutOfRange),
		errors.Is(err, domain.ErrInvalidTimeInForce):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAccountFrozen),
		errors.Is(err, domain.ErrAccountClosed),
		errors.Is(err, domain.ErrSelfTrade),
		errors.Is(err, domain.ErrOverflow):
		return http.StatusUnprocessableEntity
	}
	var invalid *domain.InvalidParameterError
	if errors.As(err, &invalid) {
		return http.StatusBadRequest
	}
	var insufficient *domain.InsufficientAvailableError
	var fok *domain.FillOrKillError
	if errors.As(err, &insufficient) || errors.As(err, &fok) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func abortErr(c *gin.Context, err error) {
	c.JSON(statusFor(err), dto.ErrorResponse{Error: err.Error()})
}

func parseAmount(field, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, &domain.InvalidParameterError{Field: field, Reason: "not a decimal"}
	}
	return d, nil
}

func (s *Server) placeOrder(c *gin.Context) {
	var req dto.PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortErr(c, &domain.InvalidParameterError{Field: "body", Reason: err.Error()})
		return
	}
	qty, err := parseAmount("quantity", req.Quantity)
	if err != nil {
		abortErr(c, err)
		return
	}
	if req.ClientOrderID == "" {
		req.ClientOrderID = uuid.NewString()
	}

	cmd := &domain.Command{Nonce: req.Nonce, TimestampMs: time.Now().UnixMilli()}
	switch domain.OrderType(req.Type) {
	case domain.Limit:
		price, err := parseAmount("price", req.Price)
		if err != nil {
			abortErr(c, err)
			return
		}
		tif := domain.TimeInForce(req.TimeInForce)
		if req.TimeInForce == "" {
			tif = domain.GTC
		}
		cmd.Type = domain.CmdLimitOrder
		cmd.LimitOrder = &domain.LimitOrderCmd{
			TraderID:      req.TraderID,
			Symbol:        req.Symbol,
			Side:          domain.Side(req.Side),
			Price:         price,
			Quantity:      qty,
			TimeInForce:   tif,
			ExpireAt:      req.ExpireAt,
			ClientOrderID: req.ClientOrderID,
		}
	case domain.Market:
		var priceLimit *decimal.Decimal
		if req.PriceLimit != "" {
			pl, err := parseAmount("price_limit", req.PriceLimit)
			if err != nil {
				abortErr(c, err)
				return
			}
			priceLimit = &pl
		}
		cmd.Type = domain.CmdMarketOrder
		cmd.MarketOrder = &domain.MarketOrderCmd{
			TraderID:      req.TraderID,
			Symbol:        req.Symbol,
			Side:          domain.Side(req.Side),
			Quantity:      qty,
			PriceLimit:    priceLimit,
			ClientOrderID: req.ClientOrderID,
		}
	default:
		abortErr(c, &domain.InvalidParameterError{Field: "type", Reason: "must be LIMIT or MARKET"})
		return
	}

	res := s.seq.Handle(c.Request.Context(), cmd)
	if res.Err != nil {
		abortErr(c, res.Err)
		return
	}
	out := dto.PlaceOrderResponse{
		Nonce:     res.Meta.Nonce,
		Duplicate: res.Meta.IsDuplicate,
		OrderID:   res.Order.OrderID,
		Status:    string(res.Order.Status),
		Filled:    res.Order.Filled.String(),
		Remaining: res.Order.Remaining.String(),
		Fills:     make([]dto.Fill, 0, len(res.Order.Fills)),
	}
	for _, f := range res.Order.Fills {
		out.Fills = append(out.Fills, dto.Fill{
			MatchedOrderID: f.MatchedOrderID,
			Price:          f.Price.String(),
			Quantity:       f.Quantity.String(),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) cancelOrder(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("order_id"), 10, 64)
	if err != nil {
		abortErr(c, &domain.InvalidParameterError{Field: "order_id", Reason: "not an integer"})
		return
	}
	var req dto.CancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortErr(c, &domain.InvalidParameterError{Field: "body", Reason: err.Error()})
		return
	}
	cmd := &domain.Command{
		Nonce:       req.Nonce,
		TimestampMs: time.Now().UnixMilli(),
		Type:        domain.CmdCancelOrder,
		CancelOrder: &domain.CancelOrderCmd{TraderID: req.TraderID, OrderID: orderID},
	}
	res := s.seq.Handle(c.Request.Context(), cmd)
	if res.Err != nil {
		abortErr(c, res.Err)
		return
	}
	c.JSON(http.StatusOK, dto.CancelOrderResponse{
		Nonce:     res.Meta.Nonce,
		Duplicate: res.Meta.IsDuplicate,
		OrderID:   res.Cancel.OrderID,
		Status:    string(res.Cancel.Status),
		Unfilled:  res.Cancel.Unfilled.String(),
	})
}

func (s *Server) cancelAll(c *gin.Context) {
	var req dto.CancelAllRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortErr(c, &domain.InvalidParameterError{Field: "body", Reason: err.Error()})
		return
	}
	cmd := &domain.Command{
		Nonce:       req.Nonce,
		TimestampMs: time.Now().UnixMilli(),
		Type:        domain.CmdCancelAll,
		CancelAll: &domain.CancelAllCmd{
			TraderID: req.TraderID,
			Symbol:   req.Symbol,
			Side:     domain.Side(req.Side),
		},
	}
	res := s.seq.Handle(c.Request.Context(), cmd)
	if res.Err != nil {
		abortErr(c, res.Err)
		return
	}
	c.JSON(http.StatusOK, dto.CancelAllResponse{
		Nonce:     res.Meta.Nonce,
		Duplicate: res.Meta.IsDuplicate,
		Count:     res.CancelAll.Count,
		OrderIDs:  res.CancelAll.OrderIDs,
	})
}

func (s *Server) depth(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		abortErr(c, &domain.InvalidParameterError{Field: "symbol", Reason: "required"})
		return
	}
	levels, _ := strconv.Atoi(c.DefaultQuery("levels", "0"))
	d, err := s.seq.Depth(c.Request.Context(), symbol, levels)
	if err != nil {
		abortErr(c, err)
		return
	}
	out := dto.DepthResponse{Symbol: d.Symbol, Timestamp: d.Timestamp}
	for _, l := range d.Bids {
		out.Bids = append(out.Bids, dto.DepthLevel{Price: l.Price.String(), Quantity: l.Quantity.String(), Orders: l.Orders})
	}
	for _, l := range d.Asks {
		out.Asks = append(out.Asks, dto.DepthLevel{Price: l.Price.String(), Quantity: l.Quantity.String(), Orders: l.Orders})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) balances(c *gin.Context) {
	accountID, err := strconv.ParseInt(c.Param("account_id"), 10, 64)
	if err != nil {
		abortErr(c, &domain.InvalidParameterError{Field: "account_id", Reason: "not an integer"})
		return
	}
	out := dto.BalancesResponse{AccountID: accountID}
	for _, b := range s.accounts.Balances(accountID) {
		out.Balances = append(out.Balances, dto.BalanceView{
			Asset:     b.ID.Asset,
			Available: b.Available.String(),
			Frozen:    b.Frozen.String(),
			Version:   b.Version,
			UpdatedAt: b.UpdatedAt,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) createAccount(c *gin.Context) {
	var req dto.CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortErr(c, &domain.InvalidParameterError{Field: "body", Reason: err.Error()})
		return
	}
	a := s.accounts.CreateAccount(req.AccountID, req.UserID)
	c.JSON(http.StatusOK, gin.H{"account_id": a.ID, "status": a.Status})
}

func (s *Server) deposit(c *gin.Context) {
	var req dto.FundsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortErr(c, &domain.InvalidParameterError{Field: "body", Reason: err.Error()})
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		abortErr(c, err)
		return
	}
	if err := s.accounts.Credit(req.AccountID, req.Asset, amount); err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// withdraw resolves to freeze + debit-frozen against the account service, the
// same path an external funds gateway would take.
func (s *Server) withdraw(c *gin.Context) {
	var req dto.FundsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortErr(c, &domain.InvalidParameterError{Field: "body", Reason: err.Error()})
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		abortErr(c, err)
		return
	}
	if err := s.accounts.CheckAndFreeze(req.AccountID, req.Asset, amount); err != nil {
		abortErr(c, err)
		return
	}
	if err := s.accounts.DebitFrozen(req.AccountID, req.Asset, amount); err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) transfer(c *gin.Context) {
	var req dto.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortErr(c, &domain.InvalidParameterError{Field: "body", Reason: err.Error()})
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		abortErr(c, err)
		return
	}
	if err := s.accounts.Transfer(req.FromAccountID, req.ToAccountID, req.Asset, amount); err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
