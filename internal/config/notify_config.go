package config

import "time"

type NotifyConfig interface {
	GetNotifyURL() string
	GetHeartbeatInterval() time.Duration
	GetReconnectBaseInterval() time.Duration
	GetReconnectMaxInterval() time.Duration
	GetMaxReconnectAttempts() int
}

type Notify struct{}

var _ NotifyConfig = Notify{}

func (Notify) GetNotifyURL() string {
	return GetEnv("NOTIFY_URL", "ws://localhost:8080/api/notifications/ws")
}

func (Notify) GetHeartbeatInterval() time.Duration {
	return 30 * time.Second
}

func (Notify) GetReconnectBaseInterval() time.Duration {
	return 3 * time.Second
}

func (Notify) GetReconnectMaxInterval() time.Duration {
	return 30 * time.Second
}

func (Notify) GetMaxReconnectAttempts() int {
	return 10
}
