// Package gateway is the HTTP ingress for the engine, grounded on the
// teacher's routes/ and controllers/market_controllers packages:
// fiber v2 handlers, gookit/validate DTO validation, a JWT auth
// middleware, and a flat {"errors": [...]} error envelope.
package gateway

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/novaxchange/clobcore/internal/engine"
)

type Server struct {
	app *fiber.App
	eng *engine.Engine
	log *logrus.Logger
}

func NewServer(eng *engine.Engine, log *logrus.Logger) *Server {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	s := &Server{app: app, eng: eng, log: log}
	s.routes()
	return s
}

func (s *Server) Listen(addr string) error { return s.app.Listen(addr) }

func (s *Server) routes() {
	v1 := s.app.Group("/v1", authenticate)

	v1.Post("/orders", s.createOrder)
	v1.Get("/orders/:pair/:id", s.getOrder)
	v1.Delete("/orders/:pair/:id", s.cancelOrder)

	// depth and market stats are public, matching the teacher's
	// /api/v2/public/markets/:market/depth route being outside the
	// authenticated group.
	s.app.Get("/v1/orderbook/:pair", s.getOrderbook)
	s.app.Get("/v1/markets/:pair", s.getMarketStats)
}

func (s *Server) createOrder(c *fiber.Ctx) error {
	userID := currentUserID(c)
	if userID == "" {
		return c.Status(fiber.StatusInternalServerError).JSON(Errors{Errors: []string{"jwt.decode_and_verify"}})
	}

	payload := new(CreateOrderParams)
	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(Errors{Errors: []string{"server.method.invalid_message_body"}})
	}

	errs := new(Errors)
	runValidate(payload, errs)
	if errs.Size() > 0 {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(errs)
	}

	req := engine.SubmitRequest{
		UserID:      userID,
		TradingPair: payload.TradingPair,
		Side:        payload.side(),
		Type:        payload.orderType(),
		TimeInForce: payload.timeInForce(),
		LimitPrice:  payload.price(),
		Quantity:    payload.Quantity,
	}

	result, order, warnings, err := s.eng.Submit(req)
	if err != nil {
		s.log.WithFields(logrus.Fields{"pair": req.TradingPair, "user": userID, "err": err}).Warn("order rejected")
		return c.Status(fiber.StatusUnprocessableEntity).JSON(Errors{Errors: []string{err.Error()}})
	}

	resp := fiber.Map{"order": toOrderView(order)}
	if result != nil {
		trades := make([]TradeView, 0, len(result.Fills))
		for _, t := range result.Fills {
			trades = append(trades, toTradeView(t))
		}
		resp["fills"] = trades
	}
	if len(warnings) > 0 {
		resp["warnings"] = warnings
	}

	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (s *Server) getOrder(c *fiber.Ctx) error {
	pair := c.Params("pair")
	id := c.Params("id")

	o, found := s.eng.LookupOrder(pair, id)
	if !found {
		return c.Status(fiber.StatusNotFound).JSON(Errors{Errors: []string{"record.not_found"}})
	}

	return c.Status(fiber.StatusOK).JSON(toOrderView(o))
}

func (s *Server) cancelOrder(c *fiber.Ctx) error {
	pair := c.Params("pair")
	id := c.Params("id")
	userID := currentUserID(c)

	order, found := s.eng.Cancel(pair, id)
	if !found {
		return c.Status(fiber.StatusNotFound).JSON(Errors{Errors: []string{"record.not_found"}})
	}
	if order.UserID != userID {
		return c.Status(fiber.StatusNotFound).JSON(Errors{Errors: []string{"record.not_found"}})
	}

	return c.Status(fiber.StatusOK).JSON(toOrderView(order))
}

func (s *Server) getOrderbook(c *fiber.Ctx) error {
	pair := c.Params("pair")
	snap, ok := s.eng.Snapshot(pair, 20)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(Errors{Errors: []string{"record.not_found"}})
	}
	return c.Status(fiber.StatusOK).JSON(snap)
}

func (s *Server) getMarketStats(c *fiber.Ctx) error {
	pair := c.Params("pair")
	stats, ok := s.eng.MarketStats(pair)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(Errors{Errors: []string{"record.not_found"}})
	}
	return c.Status(fiber.StatusOK).JSON(stats)
}
