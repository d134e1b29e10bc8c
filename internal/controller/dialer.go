package controller

import (
	"context"
	"time"

	"github.com/nerrad567/rainbridge/internal/infrastructure/config"
)

// MQTTDialer builds MQTTHandles that share one bus connection.
type MQTTDialer struct {
	Bus     Bus
	QoS     byte
	Timeout time.Duration
	Logger  Logger
}

// Dial returns an uninitialised handle for device. Call Init on it.
func (d *MQTTDialer) Dial(_ context.Context, device config.DeviceConfig) (Handle, error) {
	return NewMQTTHandle(d.Bus, device, HandleOptions{
		QoS:     d.QoS,
		Timeout: d.Timeout,
		Logger:  d.Logger,
	}), nil
}
