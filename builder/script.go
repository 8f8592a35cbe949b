package builder

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/embj-org/ej/internal/config"
	"github.com/embj-org/ej/internal/controlproto"
	"github.com/embj-org/ej/internal/ejerr"
	"github.com/embj-org/ej/logger"
	"github.com/embj-org/ej/process"
)

// scriptGracePeriod is how long a script gets to exit after the builder
// sends Exit on its control endpoint before it's killed outright.
const scriptGracePeriod = 5 * time.Second

// scriptOutcome is the result of one build- or run-script invocation.
type scriptOutcome struct {
	boardName  string
	configName string
	success    bool
	log        string
	result     string // only populated for run scripts that wrote a results file
}

// runScript spawns scriptPath with the fixed argv contract
// (action, config_path, board_name, board_config_name, control_socket_path),
// relaying ctx cancellation to the script through its control endpoint and,
// failing that, killing the process after scriptGracePeriod.
func runScript(ctx context.Context, log logger.Logger, action, scriptPath, configPath string, board config.Board, bc config.BoardConfig, controlDir string) scriptOutcome {
	outcome := scriptOutcome{boardName: board.Name, configName: bc.Name}

	socketPath := filepath.Join(controlDir, fmt.Sprintf("%s-%s-%d.sock", board.Name, bc.Name, time.Now().UnixNano()))
	identity := controlproto.Identity{
		Action:          action,
		ConfigPath:      configPath,
		BoardName:       board.Name,
		BoardConfigName: bc.Name,
	}

	cs, err := newControlServer(socketPath, identity, log)
	if err != nil {
		outcome.log = fmt.Sprintf("control endpoint: %v", err)
		return outcome
	}
	go cs.serve(ctx)

	var out bytes.Buffer
	proc := process.New(log, process.Config{
		Path:              scriptPath,
		Args:              []string{action, configPath, board.Name, bc.Name, socketPath},
		Stdout:            &out,
		Stderr:            &out,
		SignalGracePeriod: scriptGracePeriod,
	})

	runErr := proc.Run(ctx)
	outcome.log = out.String()

	if runErr != nil {
		outcome.log += fmt.Sprintf("\n%v: %v", ejerr.ScriptFailed, runErr)
		return outcome
	}

	exitStatus := proc.WaitStatus().ExitStatus()
	outcome.success = exitStatus == 0
	if !outcome.success {
		outcome.log += fmt.Sprintf("\n%v: exit status %d", ejerr.ScriptFailed, exitStatus)
	}

	if action == "run" && bc.ResultsPath != "" {
		if data, err := os.ReadFile(bc.ResultsPath); err == nil {
			outcome.result = string(data)
		}
	}

	return outcome
}
