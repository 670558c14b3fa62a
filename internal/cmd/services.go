package main

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/bazaarhq/bazaar/internal/auction"
	"github.com/bazaarhq/bazaar/internal/auction/gateway"
	"github.com/bazaarhq/bazaar/internal/auction/lifecycle"
	"github.com/bazaarhq/bazaar/internal/auction/repository"
	"github.com/bazaarhq/bazaar/internal/auction/timer"
	"github.com/bazaarhq/bazaar/internal/mail"
	"github.com/bazaarhq/bazaar/internal/orders"
	"github.com/bazaarhq/bazaar/internal/shipping"
	"github.com/bazaarhq/bazaar/internal/users"
)

type Services struct {
	Auctions   *auction.App
	Users      *users.App
	Controller *lifecycle.Controller
	Gateway    *gateway.Manager
	WSHandler  *gateway.WebSocketHandler
	Orders     *orders.Repository
	Shipping   *shipping.Repository
}

func setupServices(pool *pgxpool.Pool, config *Config) *Services {
	// Wire up dependency injection chain
	// Pool → Repository layer → Lifecycle controller → App layer → Gateway
	clock := clockwork.NewRealClock()

	ordersRepo := orders.NewRepository(pool)
	shippingRepo := shipping.NewRepository(pool)
	auctionRepo := repository.NewRepository(pool, config.Auction.BidPolicy, ordersRepo, shippingRepo, clock)

	notifier := setupNotifier(config)

	timers := timer.New(clock)
	controller := lifecycle.NewController(auctionRepo, timers, clock, notifier)

	app := auction.NewApp(auctionRepo, controller, clock, config.Auction.MinDuration)

	jwtSecret := getEnv("JWT_SECRET", "")
	userApp := users.NewApp(users.NewRepository(pool), jwtSecret)

	manager := gateway.NewManager(app, clock, gateway.DefaultConnectionConfig())
	wsHandler := gateway.NewWebSocketHandler(manager, jwtSecret)
	wsHandler.Subscribe(controller)

	return &Services{
		Auctions:   app,
		Users:      userApp,
		Controller: controller,
		Gateway:    manager,
		WSHandler:  wsHandler,
		Orders:     ordersRepo,
		Shipping:   shippingRepo,
	}
}

func setupNotifier(config *Config) mail.Notifier {
	if config.SMTP.Host == "" {
		log.Info().Msg("SMTP not configured, using log notifier")
		return mail.LogNotifier{}
	}
	return mail.NewSMTPNotifier(config.SMTP)
}
