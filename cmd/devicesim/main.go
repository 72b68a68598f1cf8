// devicesim plays a phone's sensor and location stream into the broker so the
// detection service can be exercised without a handset.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"alertaraven/config"
	"alertaraven/models"
	"alertaraven/services"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type options struct {
	transport  string
	broker     string
	user       string
	pass       string
	topic      string
	deviceID   string
	scenario   string
	eventAt    int
	rate       int
	ticks      int
	background bool
	seed       int64
}

type publisher interface {
	Publish(ctx context.Context, msg *models.DeviceMessage) error
	Close() error
}

func main() {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "devicesim",
		Short: "Simulate a phone's sensor and location stream",
		Long: `devicesim publishes accelerometer, gyroscope and location readings
for a scripted scenario: idle, fall (one accelerometer spike) or crash
(sudden deceleration from cruise speed to standstill).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
		SilenceUsage: true,
	}

	f := cmd.Flags()
	f.StringVar(&opts.transport, "transport", "mqtt", "mqtt or amqp")
	f.StringVar(&opts.broker, "broker", "localhost:1883", "MQTT broker address (host:port)")
	f.StringVar(&opts.user, "user", "", "MQTT username")
	f.StringVar(&opts.pass, "pass", "", "MQTT password")
	f.StringVar(&opts.topic, "topic", "device_stream", "MQTT topic to publish to")
	f.StringVar(&opts.deviceID, "device", "phone-sim-001", "Device ID")
	f.StringVar(&opts.scenario, "scenario", ScenarioIdle, "idle, fall or crash")
	f.IntVar(&opts.eventAt, "event-at", 5, "Tick at which the fall or crash happens")
	f.IntVar(&opts.rate, "rate", 1, "Ticks per second")
	f.IntVar(&opts.ticks, "ticks", 0, "Stop after this many ticks (0 runs until interrupted)")
	f.BoolVar(&opts.background, "background", false, "Mark readings as captured in the background")
	f.Int64Var(&opts.seed, "seed", time.Now().UnixNano(), "Noise seed")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, opts *options) error {
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	if opts.rate < 1 {
		return fmt.Errorf("rate must be at least 1")
	}

	gen, err := NewGenerator(opts.deviceID, opts.scenario, opts.eventAt, opts.background, opts.seed)
	if err != nil {
		return err
	}

	pub, err := newPublisher(opts, logger)
	if err != nil {
		return err
	}
	defer pub.Close()

	interval := time.Second / time.Duration(opts.rate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("Device simulator started",
		zap.String("device_id", opts.deviceID),
		zap.String("scenario", opts.scenario),
		zap.String("transport", opts.transport),
		zap.Duration("interval", interval))

	sent := 0
	for tick := 0; opts.ticks == 0 || tick < opts.ticks; tick++ {
		select {
		case <-ctx.Done():
			logger.Info("Shutting down", zap.Int("messages", sent))
			return nil
		case now := <-ticker.C:
			for _, msg := range gen.Next(now) {
				if err := pub.Publish(ctx, msg); err != nil {
					logger.Error("Failed to publish message",
						zap.String("type", string(msg.Type)),
						zap.Error(err))
					continue
				}
				sent++
			}
			if gen.Event() {
				logger.Info("Scenario event published", zap.String("scenario", opts.scenario), zap.Int("tick", tick))
			}
		}
	}

	logger.Info("Simulation finished", zap.Int("messages", sent))
	return nil
}

func newPublisher(opts *options, logger *zap.Logger) (publisher, error) {
	switch opts.transport {
	case "mqtt":
		return newMQTTPublisher(opts, logger)
	case "amqp":
		cfg, err := config.LoadConfig()
		if err != nil {
			return nil, err
		}
		return services.NewRabbitMQService(cfg, logger)
	}
	return nil, fmt.Errorf("unknown transport %q", opts.transport)
}

// mqttPublisher sends to the broker's MQTT plugin; the service queue is bound
// to amq.topic with the topic as routing key.
type mqttPublisher struct {
	client mqtt.Client
	topic  string
}

func newMQTTPublisher(opts *options, logger *zap.Logger) (*mqttPublisher, error) {
	clientOpts := mqtt.NewClientOptions()
	clientOpts.AddBroker(fmt.Sprintf("tcp://%s", opts.broker))
	clientOpts.SetClientID(fmt.Sprintf("%s-sim", opts.deviceID))
	clientOpts.SetUsername(opts.user)
	clientOpts.SetPassword(opts.pass)
	clientOpts.SetKeepAlive(60 * time.Second)
	clientOpts.SetPingTimeout(10 * time.Second)
	clientOpts.SetAutoReconnect(true)

	clientOpts.OnConnect = func(client mqtt.Client) {
		logger.Info("Connected to MQTT broker", zap.String("broker", opts.broker))
	}
	clientOpts.OnConnectionLost = func(client mqtt.Client, err error) {
		logger.Error("MQTT connection lost", zap.Error(err))
	}

	client := mqtt.NewClient(clientOpts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return &mqttPublisher{client: client, topic: opts.topic}, nil
}

func (p *mqttPublisher) Publish(_ context.Context, msg *models.DeviceMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal device message: %w", err)
	}
	token := p.client.Publish(p.topic, 1, false, body)
	token.Wait()
	return token.Error()
}

func (p *mqttPublisher) Close() error {
	p.client.Disconnect(250)
	return nil
}
