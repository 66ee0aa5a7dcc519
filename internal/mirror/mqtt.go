package mirror

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const disconnectQuiesceMS = 250

// Client is an MQTT connection used both to publish and to observe.
type Client struct {
	client mqtt.Client
}

// Dial connects to broker.
func Dial(broker, clientID string) (*Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, token.Error())
	}
	return &Client{client: client}, nil
}

// Publish sends payload at QoS 0, retained. It does not wait for delivery;
// only an error already known when the call returns is reported.
func (c *Client) Publish(topic string, payload []byte) error {
	token := c.client.Publish(topic, 0, true, payload)
	select {
	case <-token.Done():
		return token.Error()
	default:
		return nil
	}
}

// SubscribeStatus calls fn with every decoded status message.
func (c *Client) SubscribeStatus(prefix string, fn func(Status)) error {
	return c.subscribe(StatusTopic(prefix), func(payload []byte) error {
		var st Status
		if err := json.Unmarshal(payload, &st); err != nil {
			return err
		}
		fn(st)
		return nil
	})
}

// SubscribePoses calls fn with every decoded pose message.
func (c *Client) SubscribePoses(prefix string, fn func(Pose)) error {
	return c.subscribe(PoseWildcard(prefix), func(payload []byte) error {
		var p Pose
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		fn(p)
		return nil
	})
}

func (c *Client) subscribe(topic string, handle func([]byte) error) error {
	token := c.client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		if err := handle(msg.Payload()); err != nil {
			logger().Warn("unmarshal error", "topic", msg.Topic(), "error", err)
		}
	})
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", topic, token.Error())
	}
	logger().Info("subscribed", "topic", topic)
	return nil
}

// Close disconnects from the broker.
func (c *Client) Close() {
	c.client.Disconnect(disconnectQuiesceMS)
}
