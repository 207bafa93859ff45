package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --wal on
// "spool status", "spool compact", and "spool serve").
type Flag struct {
	// Name is the long flag name (e.g. "wal").
	Name string

	// Shorthand is the one-letter short flag (e.g. "w"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "storage.path").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddBoolFlag,
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagAPIListen    = "api-listen"
	FlagAPITarget    = "api-target"
	FlagDriver       = "driver"
	FlagWAL          = "wal"
	FlagSQLite       = "sqlite"
	FlagPostgresDSN  = "postgres-dsn"
	FlagEvents       = "events"
	FlagBrokers      = "brokers"
	FlagTopic        = "topic"
	FlagEventWorkers = "event-workers"
)

// NewFlagSet returns the canonical flag registry. Commands pull their flags
// from here by registry key.
func NewFlagSet() FlagSet {
	return FlagSet{
		FlagAPIListen: {
			Name:        "api-listen",
			Shorthand:   "a",
			ViperKey:    "api.listen",
			Description: "Address for the API server to listen on",
		},
		FlagAPITarget: {
			Name:        "api-target",
			ViperKey:    "client.api_target",
			Description: "Base URL of a running spool API server",
		},
		FlagDriver: {
			Name:        "driver",
			ViperKey:    "storage.driver",
			Description: "Storage driver (file, sqlite, postgres, inmemory)",
		},
		FlagWAL: {
			Name:        "wal",
			Shorthand:   "w",
			ViperKey:    "storage.path",
			Description: "Path to the write-ahead log file",
		},
		FlagSQLite: {
			Name:        "sqlite",
			Shorthand:   "s",
			ViperKey:    "storage.sqlite_path",
			Description: "Path to the SQLite log database",
		},
		FlagPostgresDSN: {
			Name:        "postgres-dsn",
			ViperKey:    "storage.postgres_dsn",
			Description: "Postgres connection string for the log",
		},
		FlagEvents: {
			Name:        "events",
			ViperKey:    "events.enabled",
			Description: "Publish mutation events to Kafka",
		},
		FlagBrokers: {
			Name:        "brokers",
			ViperKey:    "events.brokers",
			Description: "Comma-separated Kafka broker addresses",
		},
		FlagTopic: {
			Name:        "topic",
			ViperKey:    "events.topic",
			Description: "Kafka topic for mutation events",
		},
		FlagEventWorkers: {
			Name:        "event-workers",
			ViperKey:    "events.workers",
			Description: "Number of async event publish workers",
		},
	}
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddBoolFlag registers a bool flag on cmd from the given FlagSet.
func AddBoolFlag(cmd *cobra.Command, fs FlagSet, key string, target *bool) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultBool(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().BoolVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().BoolVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddUintFlag registers a uint flag on cmd from the given FlagSet.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *uint) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultUint(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().UintVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().UintVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}

// defaultBool returns the default bool value for a viper key from NewDefaultConfig.
func defaultBool(viperKey string) bool {
	v := viper.New()
	setViperDefaults(v)
	return v.GetBool(viperKey)
}

// defaultUint returns the default uint value for a viper key from NewDefaultConfig.
func defaultUint(viperKey string) uint {
	v := viper.New()
	setViperDefaults(v)
	return v.GetUint(viperKey)
}
