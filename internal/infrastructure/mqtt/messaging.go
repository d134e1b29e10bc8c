package mqtt

import (
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// await blocks on token for at most d and tags any failure with kind.
func await(token pahomqtt.Token, d time.Duration, kind error) error {
	if !token.WaitTimeout(d) {
		return fmt.Errorf("%w: no broker response within %v", kind, d)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", kind, err)
	}
	return nil
}

func checkTopic(topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	return nil
}

// Publish sends payload to topic and waits for the broker to ack it.
//
//	topic := mqtt.Topics{}.Request("192.168.1.50", reqID)
//	err := client.Publish(topic, body, 1, false)
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := checkTopic(topic, qos); err != nil {
		return err
	}
	if n := len(payload); n > maxPayloadSize {
		return fmt.Errorf("%w: %d byte payload over the %d byte limit", ErrPublishFailed, n, maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return await(c.client.Publish(topic, qos, retained, payload), opTimeout, ErrPublishFailed)
}

// PublishRetained publishes a retained message at the configured QoS.
// An empty payload clears whatever the broker holds for topic.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	return c.Publish(topic, payload, byte(c.cfg.QoS), true)
}

// Subscribe registers handler for topic, wildcards included. Tracked
// subscriptions are replayed by handleConnect after a reconnect.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if err := checkTopic(topic, qos); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.track(topic, &subscription{qos: qos, handler: handler})
	err := await(c.client.Subscribe(topic, qos, c.wrapHandler(handler)), opTimeout, ErrSubscribeFailed)
	if err != nil {
		c.track(topic, nil)
	}
	return err
}

// Unsubscribe stops delivery for topic.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	c.track(topic, nil)
	return await(c.client.Unsubscribe(topic), opTimeout, ErrUnsubscribeFailed)
}

// track records sub for topic; nil forgets it.
func (c *Client) track(topic string, sub *subscription) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if sub == nil {
		delete(c.subscriptions, topic)
		return
	}
	c.subscriptions[topic] = *sub
}

// SubscriptionCount returns how many topics are tracked.
func (c *Client) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subscriptions)
}

// HasSubscription reports whether exactly topic is tracked.
func (c *Client) HasSubscription(topic string) bool {
	c.subMu.RLock()
	_, ok := c.subscriptions[topic]
	c.subMu.RUnlock()
	return ok
}
