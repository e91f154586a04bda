//go:build integration

package publisher

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"os"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"

	"apod_fetcher/internal/domain"
)

type RabbitMQIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *rabbitmq.RabbitMQContainer
	amqpURL   string
	logger    *slog.Logger
}

func (s *RabbitMQIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	container, err := rabbitmq.Run(s.ctx,
		"rabbitmq:3.13-management-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server startup complete").
				WithStartupTimeout(60*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	amqpURL, err := container.AmqpURL(s.ctx)
	s.Require().NoError(err)
	s.amqpURL = amqpURL
}

func (s *RabbitMQIntegrationSuite) TearDownSuite() {
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func TestRabbitMQIntegrationSuite(t *testing.T) {
	suite.Run(t, new(RabbitMQIntegrationSuite))
}

func (s *RabbitMQIntegrationSuite) config(name string) Config {
	return Config{
		URL:        s.amqpURL,
		Exchange:   "apod-" + name,
		RoutingKey: "resource." + name,
		QueueName:  "apod-" + name,
	}
}

func (s *RabbitMQIntegrationSuite) event(fallback bool) domain.FetchEvent {
	date, err := domain.ParseDate("2024-01-01")
	s.Require().NoError(err)
	media, err := url.Parse("https://apod.nasa.gov/apod/image/2401/x.jpg")
	s.Require().NoError(err)
	copyright := "Tunc Tezel"

	origin := domain.OriginRemote
	if fallback {
		origin = domain.OriginLastGood
	}

	return domain.FetchEvent{
		Resource: &domain.Resource{
			Title:       "Night Sky",
			Explanation: "Stars.",
			Date:        date,
			Copyright:   &copyright,
			MediaURL:    media,
		},
		Origin:   origin,
		Fallback: fallback,
	}
}

func (s *RabbitMQIntegrationSuite) TestPublisher_Connection() {
	pub, err := NewRabbitMQ(s.config("connect"), s.logger)
	s.Require().NoError(err)
	s.NoError(pub.Close())
}

func (s *RabbitMQIntegrationSuite) TestPublisher_ExchangeOnly() {
	cfg := s.config("exchange-only")
	cfg.QueueName = ""

	pub, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	defer pub.Close()

	s.NoError(pub.Publish(s.ctx, s.event(false)))
}

func (s *RabbitMQIntegrationSuite) TestPublisher_PublishFetched() {
	cfg := s.config("fetched")

	pub, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	defer pub.Close()

	s.Require().NoError(pub.Publish(s.ctx, s.event(false)))

	msg := s.consumeMessage(cfg)
	s.Require().NotNil(msg)
	s.Equal("application/json", msg.ContentType)
	s.Equal(ActionFetched, msg.Type)
	s.Equal(uint8(amqp.Persistent), msg.DeliveryMode)

	var received EventMessage
	s.Require().NoError(json.Unmarshal(msg.Body, &received))
	s.Equal(ActionFetched, received.Action)
	s.Equal("remote", received.Origin)
	s.Equal("latest", received.Requested)
	s.Equal("2024-01-01", received.Resource.Date)
	s.Equal("Night Sky", received.Resource.Title)
	s.Require().NotNil(received.Resource.Copyright)
	s.Equal("Tunc Tezel", *received.Resource.Copyright)
	s.False(received.Timestamp.IsZero())
}

func (s *RabbitMQIntegrationSuite) TestPublisher_PublishFallback() {
	cfg := s.config("fallback")

	pub, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	defer pub.Close()

	s.Require().NoError(pub.Publish(s.ctx, s.event(true)))

	msg := s.consumeMessage(cfg)
	s.Require().NotNil(msg)

	var received EventMessage
	s.Require().NoError(json.Unmarshal(msg.Body, &received))
	s.Equal(ActionFallback, received.Action)
	s.Equal("last_good", received.Origin)
}

func (s *RabbitMQIntegrationSuite) consumeMessage(cfg Config) *amqp.Delivery {
	conn, err := amqp.Dial(s.amqpURL)
	s.Require().NoError(err)
	defer conn.Close()

	ch, err := conn.Channel()
	s.Require().NoError(err)
	defer ch.Close()

	msgs, err := ch.Consume(cfg.QueueName, "", true, false, false, false, nil)
	s.Require().NoError(err)

	select {
	case msg := <-msgs:
		return &msg
	case <-time.After(5 * time.Second):
		s.Fail("timeout waiting for message")
		return nil
	}
}
