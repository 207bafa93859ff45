// Package initcmder provides the init command for initializing a local .spool
// directory in the current working directory.
package initcmder

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/spool/pkg/config"
)

const (
	dirName        = ".spool"
	configFileName = "config.toml"
)

const initLongDesc string = `Initialize a new .spool/ directory in the current working directory.

Creates a local .spool/ directory that takes precedence over the default
~/.spool/ directory for the write-ahead log, pin state, configuration,
and other spool operations. A config.toml with default values is written
when none exists yet.

The --preset flag selects the storage backend the config is written for.
It accepts a named preset (file, sqlite, postgres) or an http(s) URL to a
shared config.toml, which is fetched, validated, and written as-is.
Re-running init with --preset overwrites the existing config.toml; without
it an existing config is left untouched.

This is useful for maintaining separate spool state per project or directory.

Examples:
  spool init
  spool init --preset sqlite
  spool init --preset https://configs.example.com/spool/team.toml`

const initShortDesc string = "Initialize a local .spool/ directory"

func NewInitCmd() *cobra.Command {
	var preset string

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runInit(preset)
		},
	}

	cmd.Flags().StringVar(&preset, "preset", "", "Storage preset name (file, sqlite, postgres) or config URL")

	return cmd
}

func runInit(preset string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	dir := filepath.Join(cwd, dirName)

	info, err := os.Stat(dir)
	alreadyInit := err == nil && info.IsDir()

	if !alreadyInit {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating .spool directory: %w", err)
		}
	}

	configPath := filepath.Join(dir, configFileName)

	switch {
	case preset != "":
		data, err := presetTOML(preset)
		if err != nil {
			return err
		}
		if err := os.WriteFile(configPath, data, 0o600); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

	default:
		// A plain re-init never clobbers an existing config.
		if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
			data, err := encodeConfig(config.NewDefaultConfig())
			if err != nil {
				return err
			}
			if err := os.WriteFile(configPath, data, 0o600); err != nil {
				return fmt.Errorf("writing config: %w", err)
			}
		}
	}

	if alreadyInit {
		fmt.Printf("Already initialized: %s\n", dir)
		return nil
	}

	fmt.Printf("Initialized .spool directory: %s\n", dir)
	return nil
}

// presetTOML resolves the --preset argument to config.toml contents. Named
// presets come from the config package; anything http(s) is fetched and
// validated before a byte is written to disk.
func presetTOML(preset string) ([]byte, error) {
	if strings.HasPrefix(preset, "http://") || strings.HasPrefix(preset, "https://") {
		return fetchRemoteConfig(preset)
	}

	cfg, err := config.PresetConfig(preset)
	if err != nil {
		return nil, err
	}

	return encodeConfig(cfg)
}

func encodeConfig(cfg *config.Config) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return buf.Bytes(), nil
}

func fetchRemoteConfig(url string) ([]byte, error) {
	client := &http.Client{Timeout: 10 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching remote config: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading remote config: %w", err)
	}

	if _, err := config.ParseConfigTOML(data); err != nil {
		return nil, err
	}

	return data, nil
}
