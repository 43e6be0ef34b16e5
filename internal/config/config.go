package config

type Config interface {
	EnvConfig
	OidcConfig
	SessionConfig
	NotifyConfig
}

type mainConfig struct {
	EnvVars
	Session
	Notify
}

func New() Config {
	return mainConfig{}
}
