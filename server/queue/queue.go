// Package queue publishes message events to RabbitMQ. One JSON event is
// emitted per persisted message so downstream consumers (CRM sync,
// analytics, auditing) can follow the message stream without touching the
// database.
package queue

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/streadway/amqp"

	"github.com/teamchat/inbox/server/logs"
	t "github.com/teamchat/inbox/server/store/types"
)

type configType struct {
	URL      string `json:"url"`
	Exchange string `json:"exchange"`
	// Routing key prefix; the message direction is appended, e.g.
	// "inbox.message.inbound".
	RoutingPrefix string `json:"routing_prefix,omitempty"`
}

// MessageEvent is the wire format of a single published event.
type MessageEvent struct {
	Chatroom  string    `json:"chatroom"`
	SeqId     int       `json:"seq"`
	Direction string    `json:"direction"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Channel   string    `json:"channel"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created"`
}

// Publisher is a RabbitMQ connection publishing message events.
type Publisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel

	url           string
	exchange      string
	routingPrefix string

	// Events queued for publishing, buffered. The delivery path never
	// blocks on the broker.
	events chan *MessageEvent
	stop   chan bool
}

// NewPublisher connects to the broker and declares the exchange. Returns
// nil without error if the config section is absent.
func NewPublisher(jsonconf json.RawMessage) (*Publisher, error) {
	if len(jsonconf) == 0 {
		return nil, nil
	}

	var config configType
	if err := json.Unmarshal(jsonconf, &config); err != nil {
		return nil, errors.New("queue: failed to parse config: " + err.Error())
	}
	if config.URL == "" || config.Exchange == "" {
		return nil, errors.New("queue: missing url or exchange")
	}
	if config.RoutingPrefix == "" {
		config.RoutingPrefix = "inbox.message"
	}

	conn, ch, err := connect(config.URL, config.Exchange)
	if err != nil {
		return nil, err
	}

	p := &Publisher{
		conn:          conn,
		channel:       ch,
		url:           config.URL,
		exchange:      config.Exchange,
		routingPrefix: config.RoutingPrefix,
		events:        make(chan *MessageEvent, 1024),
		stop:          make(chan bool, 1),
	}
	go p.publishLoop()

	logs.Info.Println("queue: connected, exchange=", config.Exchange)

	return p, nil
}

// Publish queues one message event. Never blocks: the event is dropped
// with a warning if the buffer is full.
func (p *Publisher) Publish(msg *t.Message) {
	ev := &MessageEvent{
		Chatroom:  msg.Chatroom.String(),
		SeqId:     msg.SeqId,
		Direction: msg.Direction,
		From:      msg.From,
		To:        msg.To,
		Channel:   msg.Channel,
		Body:      msg.Body,
		CreatedAt: msg.CreatedAt,
	}

	select {
	case p.events <- ev:
	default:
		logs.Warn.Println("queue: event buffer full, dropping event")
	}
}

// Shutdown stops the publishing loop and closes the connection.
func (p *Publisher) Shutdown() {
	select {
	case p.stop <- true:
	default:
	}
}

func (p *Publisher) publishLoop() {
	for {
		select {
		case ev := <-p.events:
			if err := p.publish(ev); err != nil {
				logs.Warn.Println("queue: publish failed", err)
				// The broker connection is gone. Redial, then retry the
				// event once.
				if !p.redial() {
					return
				}
				if err = p.publish(ev); err != nil {
					logs.Warn.Println("queue: event dropped after reconnect", err)
				}
			}

		case <-p.stop:
			p.channel.Close()
			p.conn.Close()
			logs.Info.Println("queue: shut down")
			return
		}
	}
}

func (p *Publisher) publish(ev *MessageEvent) error {
	body, _ := json.Marshal(ev)
	return p.channel.Publish(
		p.exchange,
		p.routingPrefix+"."+ev.Direction,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		})
}

// redial reestablishes the broker connection, backing off up to a minute
// between attempts. Returns false if shutdown was requested meanwhile.
func (p *Publisher) redial() bool {
	p.channel.Close()
	p.conn.Close()

	backoff := time.Second
	for {
		conn, ch, err := connect(p.url, p.exchange)
		if err == nil {
			p.conn, p.channel = conn, ch
			logs.Info.Println("queue: reconnected to broker")
			return true
		}
		logs.Warn.Println("queue: reconnect failed", err)

		select {
		case <-time.After(backoff):
			if backoff < time.Minute {
				backoff *= 2
			}
		case <-p.stop:
			return false
		}
	}
}

func connect(url, exchange string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	// ExchangeDeclare: name, type, durable, autoDelete, internal, noWait, args.
	if err = ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}
