package mail

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gopkg.in/gomail.v2"
)

// Notifier delivers best-effort auction outcome messages. Failures are
// logged by callers and never affect the auction's recorded outcome.
type Notifier interface {
	AuctionWon(ctx context.Context, to string, auctionID uuid.UUID, amount int64) error
	AuctionEndedWithoutBids(ctx context.Context, auctionID uuid.UUID) error
}

// SMTPConfig holds mail delivery settings.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	// OpsAddress receives the ended-without-bids notifications.
	OpsAddress string `yaml:"ops_address"`
}

// SMTPNotifier sends mail through an SMTP relay.
type SMTPNotifier struct {
	dialer *gomail.Dialer
	cfg    SMTPConfig
}

func NewSMTPNotifier(cfg SMTPConfig) *SMTPNotifier {
	return &SMTPNotifier{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		cfg:    cfg,
	}
}

func (n *SMTPNotifier) AuctionWon(ctx context.Context, to string, auctionID uuid.UUID, amount int64) error {
	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", "You won the auction")
	m.SetBody("text/plain", fmt.Sprintf(
		"Congratulations! You won auction %s with a bid of %d. A pending order has been created for you.",
		auctionID, amount,
	))
	if err := n.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send auction-won mail: %w", err)
	}
	return nil
}

func (n *SMTPNotifier) AuctionEndedWithoutBids(ctx context.Context, auctionID uuid.UUID) error {
	if n.cfg.OpsAddress == "" {
		return nil
	}
	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.From)
	m.SetHeader("To", n.cfg.OpsAddress)
	m.SetHeader("Subject", "Auction ended without bids")
	m.SetBody("text/plain", fmt.Sprintf("Auction %s ended with no bids.", auctionID))
	if err := n.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send no-bids mail: %w", err)
	}
	return nil
}

// LogNotifier logs instead of sending. Used in development and tests.
type LogNotifier struct{}

func (LogNotifier) AuctionWon(ctx context.Context, to string, auctionID uuid.UUID, amount int64) error {
	log.Info().
		Str("to", to).
		Str("auction_id", auctionID.String()).
		Int64("amount", amount).
		Msg("would send auction-won mail")
	return nil
}

func (LogNotifier) AuctionEndedWithoutBids(ctx context.Context, auctionID uuid.UUID) error {
	log.Info().
		Str("auction_id", auctionID.String()).
		Msg("would send no-bids mail")
	return nil
}
