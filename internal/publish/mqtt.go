package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/matterctl/internal/device"
	"github.com/danmuck/matterctl/internal/observability"
	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/rs/zerolog"
)

var (
	ErrNoBroker  = errors.New("publish: broker url is required")
	ErrQueueFull = errors.New("publish: queue full")
	ErrClosed    = errors.New("publish: publisher closed")
)

const (
	DefaultTopicPrefix    = "matterctl"
	DefaultConnectTimeout = 5 * time.Second
	DefaultQueueSize      = 64
)

type Config struct {
	Broker         string
	TopicPrefix    string
	ClientID       string
	Username       string
	Password       string
	QoS            byte
	ConnectTimeout time.Duration
	// QueueSize bounds the results waiting for the broker. Publish drops
	// results once it is full.
	QueueSize int
}

// MQTT publishes results through an autopaho connection that reconnects
// until Close is called. Publish only enqueues; a single sender goroutine
// owns the connection, so a slow or absent broker never holds up a caller.
type MQTT struct {
	cm      *autopaho.ConnectionManager
	prefix  string
	qos     byte
	timeout time.Duration
	logger  zerolog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan message
	stop   context.CancelFunc
	sent   chan struct{}
}

type message struct {
	topic   string
	payload []byte
}

// NewMQTT starts connecting and sending in the background and returns
// immediately. Each queued result waits up to ConnectTimeout for the
// connection before it is dropped.
func NewMQTT(ctx context.Context, cfg Config, logger zerolog.Logger) (*MQTT, error) {
	if strings.TrimSpace(cfg.Broker) == "" {
		return nil, ErrNoBroker
	}
	u, err := url.Parse(cfg.Broker)
	if err != nil {
		return nil, fmt.Errorf("publish: parse broker url: %w", err)
	}
	prefix := strings.Trim(strings.TrimSpace(cfg.TopicPrefix), "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	logger = logger.With().Str("component", "publish").Str("broker", u.Redacted()).Logger()

	cliCfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{u},
		KeepAlive:                     20,
		CleanStartOnInitialConnection: true,
		ConnectUsername:               cfg.Username,
		OnConnectionUp: func(*autopaho.ConnectionManager, *paho.Connack) {
			logger.Info().Msg("publish.MQTT connection up")
		},
		OnConnectError: func(err error) {
			logger.Warn().Err(err).Msg("publish.MQTT connect failed")
		},
		ClientConfig: paho.ClientConfig{
			ClientID: cfg.ClientID,
			OnClientError: func(err error) {
				logger.Warn().Err(err).Msg("publish.MQTT client error")
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				logger.Warn().Uint8("reason", d.ReasonCode).Msg("publish.MQTT server disconnect")
			},
		},
	}
	if cfg.Password != "" {
		cliCfg.ConnectPassword = []byte(cfg.Password)
	}

	cm, err := autopaho.NewConnection(ctx, cliCfg)
	if err != nil {
		return nil, fmt.Errorf("publish: start connection: %w", err)
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	runCtx, stop := context.WithCancel(context.Background())
	m := &MQTT{
		cm:      cm,
		prefix:  prefix,
		qos:     cfg.QoS,
		timeout: timeout,
		logger:  logger,
		queue:   make(chan message, size),
		stop:    stop,
		sent:    make(chan struct{}),
	}
	go m.run(runCtx)
	return m, nil
}

// Publish queues res for delivery and never blocks. The request context is
// not used for delivery since the result outlives the request.
func (m *MQTT) Publish(_ context.Context, res device.Result) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("publish: encode result: %w", err)
	}
	msg := message{topic: Topic(m.prefix, res), payload: payload}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	select {
	case m.queue <- msg:
		return nil
	default:
		observability.RecordPublishDropped()
		return fmt.Errorf("%w: dropped %s", ErrQueueFull, msg.topic)
	}
}

func (m *MQTT) run(ctx context.Context) {
	defer close(m.sent)
	for msg := range m.queue {
		if err := m.send(ctx, msg); err != nil {
			observability.RecordPublishDropped()
			m.logger.Warn().Err(err).Str("topic", msg.topic).Msg("publish.MQTT dropped result")
		}
	}
}

func (m *MQTT) send(ctx context.Context, msg message) error {
	waitCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := m.cm.AwaitConnection(waitCtx); err != nil {
		return fmt.Errorf("publish: broker unavailable: %w", err)
	}
	if _, err := m.cm.Publish(waitCtx, &paho.Publish{
		QoS:     m.qos,
		Topic:   msg.topic,
		Payload: msg.payload,
	}); err != nil {
		return fmt.Errorf("publish: %s: %w", msg.topic, err)
	}
	m.logger.Debug().Str("topic", msg.topic).Msg("publish.MQTT published")
	return nil
}

// Close stops accepting results, gives queued ones until ctx is done to go
// out, then disconnects and stops reconnect attempts.
func (m *MQTT) Close(ctx context.Context) error {
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		close(m.queue)
	}
	m.mu.Unlock()

	select {
	case <-m.sent:
	case <-ctx.Done():
		m.logger.Warn().Int("pending", len(m.queue)).Msg("publish.MQTT close deadline reached, discarding queue")
	}
	m.stop()
	<-m.sent

	if err := m.cm.Disconnect(ctx); err != nil {
		return fmt.Errorf("publish: disconnect: %w", err)
	}
	return nil
}

// Topic returns the topic a result is published on.
func Topic(prefix string, res device.Result) string {
	if res.Operation == device.OpList {
		return prefix + "/devices/list"
	}
	return strings.Join([]string{prefix, topicLevel(res.NodeID), topicLevel(res.EndpointID), res.Operation}, "/")
}

// topicLevel keeps ids from introducing extra levels or wildcards.
func topicLevel(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return "_"
	}
	return strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(id)
}
