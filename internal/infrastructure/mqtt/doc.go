// Package mqtt connects rainbridge to the MQTT broker shared with the
// controller gateways.
//
// The client wraps paho.mqtt.golang with auto-reconnect, subscription
// restore after reconnect, a retained online/offline status with a Last
// Will, and panic-safe handlers.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.Events("192.168.1.50"), 1,
//	    func(topic string, payload []byte) error {
//	        return handleEvent(topic, payload)
//	    })
//
// Use TLS (cfg.Broker.TLS) whenever the broker is not on localhost.
package mqtt
