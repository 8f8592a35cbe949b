package config

import "testing"

const validTOML = `
[global]
version = "1.0.0"

[[boards]]
name = "rpi4"
description = "Raspberry Pi 4"

[[boards.configs]]
name = "release"
tags = ["arm64", "release"]
build_script = "/opt/ej/scripts/build.sh"
run_script = "/opt/ej/scripts/run.sh"
results_path = "/opt/ej/results/release.json"
`

func TestParseValid(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(validTOML))
	if err != nil {
		t.Fatalf("Parse(validTOML) = error %v", err)
	}
	if cfg.Version != "1.0.0" {
		t.Errorf("cfg.Version = %q, want %q", cfg.Version, "1.0.0")
	}
	if len(cfg.Boards) != 1 || len(cfg.Boards[0].Configs) != 1 {
		t.Fatalf("cfg.Boards = %+v, want one board with one config", cfg.Boards)
	}
	if cfg.Hash == "" {
		t.Error("cfg.Hash = \"\", want non-empty")
	}
}

func TestParseHashStableUnderReorder(t *testing.T) {
	t.Parallel()

	const ordered = `
[global]
version = "1.0.0"

[[boards]]
name = "rpi4"
description = "Raspberry Pi 4"

[[boards.configs]]
name = "debug"
tags = ["arm64", "debug"]
build_script = "/opt/ej/scripts/build.sh"
run_script = "/opt/ej/scripts/run.sh"
results_path = "/opt/ej/results/debug.json"

[[boards.configs]]
name = "release"
tags = ["arm64", "release"]
build_script = "/opt/ej/scripts/build.sh"
run_script = "/opt/ej/scripts/run.sh"
results_path = "/opt/ej/results/release.json"
`

	const reordered = `
[global]
version = "1.0.0"

[[boards]]
name = "rpi4"
description = "Raspberry Pi 4"

[[boards.configs]]
name = "release"
tags = ["arm64", "release"]
build_script = "/opt/ej/scripts/build.sh"
run_script = "/opt/ej/scripts/run.sh"
results_path = "/opt/ej/results/release.json"

[[boards.configs]]
name = "debug"
tags = ["arm64", "debug"]
build_script = "/opt/ej/scripts/build.sh"
run_script = "/opt/ej/scripts/run.sh"
results_path = "/opt/ej/results/debug.json"
`

	a, err := Parse([]byte(ordered))
	if err != nil {
		t.Fatalf("Parse(ordered) = error %v", err)
	}
	b, err := Parse([]byte(reordered))
	if err != nil {
		t.Fatalf("Parse(reordered) = error %v", err)
	}
	if a.Hash != b.Hash {
		t.Errorf("hashes differ for reordered config: %s != %s", a.Hash, b.Hash)
	}
}

func TestParseRejectsRelativePaths(t *testing.T) {
	t.Parallel()

	const bad = `
[global]
version = "1.0.0"

[[boards]]
name = "rpi4"

[[boards.configs]]
name = "release"
build_script = "scripts/build.sh"
run_script = "/opt/ej/scripts/run.sh"
results_path = "/opt/ej/results/release.json"
`
	if _, err := Parse([]byte(bad)); err == nil {
		t.Fatal("Parse(bad) = nil error, want error for relative build_script")
	}
}

func TestParseRejectsDuplicateConfigNames(t *testing.T) {
	t.Parallel()

	const dup = `
[global]
version = "1.0.0"

[[boards]]
name = "rpi4"

[[boards.configs]]
name = "release"
build_script = "/a"
run_script = "/b"
results_path = "/c"

[[boards.configs]]
name = "release"
build_script = "/a"
run_script = "/b"
results_path = "/c"
`
	if _, err := Parse([]byte(dup)); err == nil {
		t.Fatal("Parse(dup) = nil error, want error for duplicate config name")
	}
}
