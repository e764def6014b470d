// Package notify publishes flashing status events to an MQTT broker, for
// operators who want to watch a run remotely instead of staring at a
// serial console. It is optional: spec.md's controller never depends on
// it, and a run with no broker configured silently does nothing.
//
// This is the teacher's own mqtt.go flow (see openenterprise/bindicator),
// re-homed from an embedded WiFi stack (soypat/lneto's xnet.StackAsync
// over a CYW43439 radio) onto a plain net.Conn: this tool runs on a host
// OS with real kernel sockets, so the teacher's lneto/xnet/cyw43439 stack
// has no role here, but its natiu-mqtt wire client is reused unchanged.
package notify

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	mqtt "github.com/soypat/natiu-mqtt"
)

const (
	connectTimeout = 10 * time.Second
	connectRetries = 50
	pollInterval   = 100 * time.Millisecond
)

var topicStatus = []byte("sstflash/status")

// Publisher publishes plain-text status payloads (see FormatEvent) to an
// MQTT broker over a TCP connection. The zero value is not usable; use Dial.
type Publisher struct {
	conn   net.Conn
	client *mqtt.Client
	flags  mqtt.PublishFlags
	logger *slog.Logger
}

// Dial connects to addr (host:port) and completes the MQTT CONNECT
// handshake, following the teacher's fetchScheduleViaMQTT connect sequence
// in mqtt.go.
func Dial(addr string, logger *slog.Logger) (*Publisher, error) {
	conn, err := net.DialTimeout("tcp", addr, connectTimeout)
	if err != nil {
		return nil, fmt.Errorf("notify: dial %s: %w", addr, err)
	}

	flags, err := mqtt.NewPublishFlags(mqtt.QoS0, false, false)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("notify: publish flags: %w", err)
	}

	cfg := mqtt.ClientConfig{
		Decoder: mqtt.DecoderNoAlloc{UserBuffer: make([]byte, 512)},
	}
	client := mqtt.NewClient(cfg)

	var varconn mqtt.VariablesConnect
	varconn.SetDefaultMQTT([]byte("sstflash"))

	conn.SetDeadline(time.Now().Add(connectTimeout))
	if err := client.StartConnect(conn, &varconn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("notify: start connect: %w", err)
	}

	for i := 0; i < connectRetries && !client.IsConnected(); i++ {
		time.Sleep(pollInterval)
		if err := client.HandleNext(); err != nil {
			logger.Warn("notify: handle-next", slog.String("err", err.Error()))
		}
	}
	if !client.IsConnected() {
		conn.Close()
		return nil, errors.New("notify: connect timeout")
	}

	return &Publisher{conn: conn, client: client, flags: flags, logger: logger}, nil
}

// Publish sends a single status payload to the status topic.
func (p *Publisher) Publish(payload string) error {
	p.conn.SetDeadline(time.Now().Add(connectTimeout))
	pub := mqtt.VariablesPublish{TopicName: topicStatus}
	if err := p.client.PublishPayload(p.flags, pub, []byte(payload)); err != nil {
		return fmt.Errorf("notify: publish: %w", err)
	}
	return nil
}

// Close disconnects cleanly and releases the underlying connection.
func (p *Publisher) Close() error {
	p.client.Disconnect(errors.New("sstflash: run complete"))
	return p.conn.Close()
}

// FormatEvent renders a flasher.Event-shaped progress update as the plain
// text payload Publish sends, one status line per block.
func FormatEvent(phase string, blockIndex, totalBlocks int) string {
	return fmt.Sprintf("phase=%s block=%d/%d", phase, blockIndex+1, totalBlocks)
}
