// Package config parses and validates the builder's TOML configuration
// file: a global version plus a list of boards, each carrying a list of
// board-configs (name, tags, scripts, paths).
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pelletier/go-toml/v2"
)

// BoardConfig is one named, runnable unit within a Board.
type BoardConfig struct {
	Name        string   `toml:"name"`
	Tags        []string `toml:"tags"`
	BuildScript string   `toml:"build_script"`
	RunScript   string   `toml:"run_script"`
	ResultsPath string   `toml:"results_path"`
	LibraryPath string   `toml:"library_path"`
}

// Board groups a named physical board and its board-configs.
type Board struct {
	Name        string        `toml:"name"`
	Description string        `toml:"description"`
	Configs     []BoardConfig `toml:"configs"`
}

// global is the `[global]` TOML table.
type global struct {
	Version string `toml:"version"`
}

// raw mirrors the on-disk TOML shape before validation.
type raw struct {
	Global global  `toml:"global"`
	Boards []Board `toml:"boards"`
}

// BuilderConfig is the builder's parsed and validated configuration.
type BuilderConfig struct {
	Version string
	Boards  []Board

	// Hash is stable across re-loads of a byte-identical config and changes
	// whenever the posted shape changes, so a BoardConfig id stays
	// referentially stable across reconnects that re-post the same config.
	Hash string
}

// Load reads and validates a builder configuration file at path.
func Load(path string) (*BuilderConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse validates and hashes the TOML document in data.
func Parse(data []byte) (*BuilderConfig, error) {
	var r raw
	if err := toml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}

	if err := validate(r); err != nil {
		return nil, err
	}

	return &BuilderConfig{
		Version: r.Global.Version,
		Boards:  r.Boards,
		Hash:    hashConfig(r),
	}, nil
}

func validate(r raw) error {
	if r.Global.Version == "" {
		return fmt.Errorf("config: global.version is required")
	}
	if len(r.Boards) == 0 {
		return fmt.Errorf("config: at least one board is required")
	}

	seenBoards := map[string]bool{}
	for _, b := range r.Boards {
		if b.Name == "" {
			return fmt.Errorf("config: board with empty name")
		}
		if seenBoards[b.Name] {
			return fmt.Errorf("config: duplicate board name %q", b.Name)
		}
		seenBoards[b.Name] = true

		if len(b.Configs) == 0 {
			return fmt.Errorf("config: board %q has no configs", b.Name)
		}

		seenConfigs := map[string]bool{}
		for _, c := range b.Configs {
			if c.Name == "" {
				return fmt.Errorf("config: board %q has a config with empty name", b.Name)
			}
			if seenConfigs[c.Name] {
				return fmt.Errorf("config: board %q has duplicate config name %q", b.Name, c.Name)
			}
			seenConfigs[c.Name] = true

			for field, value := range map[string]string{
				"build_script": c.BuildScript,
				"run_script":   c.RunScript,
				"results_path": c.ResultsPath,
			} {
				if value == "" {
					return fmt.Errorf("config: board %q config %q: %s is required", b.Name, c.Name, field)
				}
				if !filepath.IsAbs(value) {
					return fmt.Errorf("config: board %q config %q: %s must be an absolute path, got %q", b.Name, c.Name, field, value)
				}
			}
			if c.LibraryPath != "" && !filepath.IsAbs(c.LibraryPath) {
				return fmt.Errorf("config: board %q config %q: library_path must be an absolute path, got %q", b.Name, c.Name, c.LibraryPath)
			}
		}
	}
	return nil
}

// hashConfig produces a content hash stable under board/config reordering in
// the source file but sensitive to any material field change.
func hashConfig(r raw) string {
	boards := make([]Board, len(r.Boards))
	copy(boards, r.Boards)
	sort.Slice(boards, func(i, j int) bool { return boards[i].Name < boards[j].Name })
	for i := range boards {
		cfgs := make([]BoardConfig, len(boards[i].Configs))
		copy(cfgs, boards[i].Configs)
		sort.Slice(cfgs, func(a, b int) bool { return cfgs[a].Name < cfgs[b].Name })
		boards[i].Configs = cfgs
	}

	h := sha256.New()
	fmt.Fprintf(h, "version=%s\n", r.Global.Version)
	for _, b := range boards {
		fmt.Fprintf(h, "board=%s|%s\n", b.Name, b.Description)
		for _, c := range b.Configs {
			fmt.Fprintf(h, "config=%s|%v|%s|%s|%s|%s\n",
				c.Name, c.Tags, c.BuildScript, c.RunScript, c.ResultsPath, c.LibraryPath)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
