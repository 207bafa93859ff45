package config

const (
	defaultDriver    = DriverFile
	defaultAPIListen = ":8081"

	defaultClientAPITarget = "http://localhost:8081"

	defaultEventsBrokers = "localhost:9092"
	defaultEventsTopic   = "spool.graph.mutations"
	defaultEventsWorkers = 3
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Driver: defaultDriver,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Client: ClientConfig{
			APITarget: defaultClientAPITarget,
		},
		Events: EventsConfig{
			Enabled: false,
			Brokers: defaultEventsBrokers,
			Topic:   defaultEventsTopic,
			Workers: defaultEventsWorkers,
		},
	}
}
