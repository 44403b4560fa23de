package queue

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"roast-machine/internal/config"
	"roast-machine/internal/models"
	"roast-machine/pkg/logger"

	"github.com/nats-io/nats.go"
)

const (
	JokeSubject   = "jokes.generated"
	ConsumerGroup = "roast-archive"
	fetchBatch    = 10
)

type NATS struct {
	conn      *nats.Conn
	jetstream nats.JetStreamContext
	cfg       config.NATSConfig
}

// New connects to NATS and makes sure the joke stream exists.
func New(cfg config.NATSConfig) (*NATS, error) {
	conn, err := nats.Connect(cfg.URL, nats.Name("roast-machine"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to get JetStream: %w", err)
	}

	n := &NATS{
		conn:      conn,
		jetstream: js,
		cfg:       cfg,
	}

	if err := n.ensureStream(); err != nil {
		conn.Close()
		return nil, err
	}

	return n, nil
}

func (n *NATS) ensureStream() error {
	_, err := n.jetstream.StreamInfo(n.cfg.StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream %s: %w", n.cfg.StreamName, err)
	}

	_, err = n.jetstream.AddStream(&nats.StreamConfig{
		Name:     n.cfg.StreamName,
		Subjects: []string{JokeSubject},
		Storage:  nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", n.cfg.StreamName, err)
	}

	logger.Info("Created NATS stream", logger.String("stream", n.cfg.StreamName))
	return nil
}

func (n *NATS) Close() {
	if n.conn != nil {
		n.conn.Close()
	}
}

type JokeMessage struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Style     string    `json:"style"`
	Factoid   string    `json:"factoid"`
	Hash      string    `json:"hash"`
	CreatedAt time.Time `json:"created_at"`
}

func NewJokeMessage(j models.Joke) *JokeMessage {
	return &JokeMessage{
		ID:        j.ID,
		Content:   j.Text,
		Style:     j.Style,
		Factoid:   j.Factoid,
		Hash:      Hash(j.Text),
		CreatedAt: j.CreatedAt,
	}
}

// Joke converts the message back into a record.
func (m *JokeMessage) Joke() models.Joke {
	return models.Joke{
		ID:        m.ID,
		Text:      m.Content,
		Style:     m.Style,
		Factoid:   m.Factoid,
		CreatedAt: m.CreatedAt,
	}
}

// Hash fingerprints joke text case and whitespace insensitively.
func Hash(content string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(content)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func (n *NATS) PublishJoke(ctx context.Context, joke *JokeMessage) error {
	data, err := json.Marshal(joke)
	if err != nil {
		return fmt.Errorf("failed to marshal joke: %w", err)
	}

	_, err = n.jetstream.Publish(JokeSubject, data, nats.Context(ctx), nats.MsgId(joke.ID))
	if err != nil {
		return fmt.Errorf("failed to publish joke: %w", err)
	}

	logger.Debug("Joke published to queue",
		logger.String("id", joke.ID),
		logger.String("hash", joke.Hash),
	)

	return nil
}

// ConsumeJokes pulls joke events until ctx is done. A message whose handler
// fails is negatively acknowledged for redelivery.
func (n *NATS) ConsumeJokes(ctx context.Context, handler func(context.Context, *JokeMessage) error) error {
	sub, err := n.jetstream.PullSubscribe(
		JokeSubject,
		ConsumerGroup,
		nats.BindStream(n.cfg.StreamName),
	)
	if err != nil {
		return fmt.Errorf("failed to subscribe to jokes: %w", err)
	}
	defer sub.Unsubscribe()

	wait := n.cfg.FetchWait
	if wait <= 0 {
		wait = 500 * time.Millisecond
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msgs, err := sub.Fetch(fetchBatch, nats.MaxWait(wait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			return fmt.Errorf("failed to fetch messages: %w", err)
		}

		for _, msg := range msgs {
			if err := dispatch(ctx, msg.Data, handler); err != nil {
				logger.Error("Failed to process joke", logger.Err(err))
				if errors.Is(err, errMalformed) {
					_ = msg.Term()
					continue
				}
				_ = msg.Nak()
				continue
			}
			_ = msg.Ack()
		}
	}
}

var errMalformed = errors.New("malformed joke message")

func dispatch(ctx context.Context, data []byte, handler func(context.Context, *JokeMessage) error) error {
	var joke JokeMessage
	if err := json.Unmarshal(data, &joke); err != nil {
		return fmt.Errorf("%w: %w", errMalformed, err)
	}
	if joke.ID == "" || joke.Content == "" {
		return fmt.Errorf("%w: missing id or content", errMalformed)
	}
	return handler(ctx, &joke)
}
