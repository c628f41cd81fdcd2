package events

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/park285/Cheese-Arena/internal/gameplay"
	"github.com/park285/Cheese-Arena/internal/obslog"
	"go.uber.org/zap"
)

// Sender is the subset of *nats.Conn the publisher needs.
type Sender interface {
	Publish(subject string, data []byte) error
}

// GameOver is the message body published for every finished room.
type GameOver struct {
	RoomID        string    `json:"roomId"`
	TimeControl   int       `json:"timeControl"`
	TimeIncrement int       `json:"timeIncrement"`
	IsDraw        bool      `json:"isDraw"`
	Winner        int64     `json:"winner,omitempty"`
	Loser         int64     `json:"loser,omitempty"`
	Reason        string    `json:"reason"`
	Moves         int       `json:"moves"`
	EndedAt       time.Time `json:"endedAt"`
}

func Encode(out gameplay.Outcome) ([]byte, error) {
	return json.Marshal(GameOver{
		RoomID:        out.RoomID,
		TimeControl:   out.Settings.TimeControl,
		TimeIncrement: out.Settings.TimeIncrement,
		IsDraw:        out.Draw,
		Winner:        int64(out.Winner),
		Loser:         int64(out.Loser),
		Reason:        out.Reason,
		Moves:         out.Moves,
		EndedAt:       out.EndedAt,
	})
}

// Publisher fans room outcomes out on a NATS subject. Publishing is fire-and-forget.
type Publisher struct {
	sender  Sender
	subject string
	nc      *nats.Conn
}

func NewPublisher(sender Sender, subject string) *Publisher {
	return &Publisher{sender: sender, subject: subject}
}

// Connect dials url and returns a publisher that owns the connection.
func Connect(url, subject string) (*Publisher, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("NATS_URL required for event publisher")
	}
	if strings.TrimSpace(subject) == "" {
		return nil, errors.New("NATS_SUBJECT required for event publisher")
	}
	nc, err := nats.Connect(url,
		nats.Name("arena-server"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(500*time.Millisecond),
		nats.Timeout(3*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				obslog.L().Warn("nats_disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			obslog.L().Info("nats_reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, err
	}
	p := NewPublisher(nc, subject)
	p.nc = nc
	return p, nil
}

func (p *Publisher) Publish(out gameplay.Outcome) error {
	data, err := Encode(out)
	if err != nil {
		return err
	}
	return p.sender.Publish(p.subject, data)
}

func (p *Publisher) RoomCreated(gameplay.RoomInfo) {}

func (p *Publisher) RoomClosed(out gameplay.Outcome) {
	if err := p.Publish(out); err != nil {
		obslog.L().Warn("game_over_publish_failed", zap.String("room_id", out.RoomID), zap.Error(err))
	}
}

// Close drains the owned connection, flushing pending publishes.
func (p *Publisher) Close() error {
	if p == nil || p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}
