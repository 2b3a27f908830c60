package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/gyromean/hywoma/internal/config"
	"github.com/gyromean/hywoma/internal/daemon"
	ferrors "github.com/gyromean/hywoma/internal/foundation/errors"
	"github.com/gyromean/hywoma/internal/hyprctl"
	"github.com/gyromean/hywoma/internal/ipc"
	"github.com/gyromean/hywoma/internal/version"
)

var CLI struct {
	Config  string `short:"c" help:"Policy file path (defaults to the XDG location)"`
	Socket  string `short:"s" help:"Daemon control socket path"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Daemon struct{} `cmd:"" help:"Run the workspace manager daemon"`

	Check struct{} `cmd:"" help:"Validate the policy file and exit"`

	Status struct {
		Live bool `help:"Query the compositor directly instead of the daemon"`
	} `cmd:"" help:"Show daemon status"`

	Reload struct{} `cmd:"" help:"Ask the running daemon to reload the policy file"`

	Plan struct{} `cmd:"" help:"Preview the commands the next pass would dispatch"`

	Pass struct {
		Reason string `short:"r" help:"Reason recorded with the pass"`
	} `cmd:"" help:"Trigger a reconciliation pass"`

	Version struct{} `cmd:"" help:"Print version information"`
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name("hywoma"),
		kong.Description("Declarative workspace placement for the Hyprland compositor."))

	logLevel := slog.LevelInfo
	if env := config.NormalizeLogLevel(os.Getenv("HYWOMA_LOG_LEVEL")); env != "" {
		logLevel = slogLevel(env)
	}
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	adapter := ferrors.NewCLIErrorAdapter(CLI.Verbose, logger)

	var err error
	switch kctx.Command() {
	case "daemon":
		err = runDaemon()
	case "check":
		err = runCheck()
	case "status":
		err = runStatus()
	case "reload":
		err = runReload()
	case "plan":
		err = runPlan()
	case "pass":
		err = runPass()
	case "version":
		fmt.Println(version.String())
	}
	adapter.HandleError(err)
}

// policyPath resolves the policy file, preferring the flag over the
// conventional XDG location.
func policyPath() string {
	if CLI.Config != "" {
		return CLI.Config
	}
	return config.DefaultPath()
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogLevelDebug:
		return slog.LevelDebug
	case config.LogLevelWarn:
		return slog.LevelWarn
	case config.LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// buildLogger applies the policy file's logging settings. HYWOMA_LOG_LEVEL
// overrides the file, and the -v flag wins over both, so a noisy run never
// requires editing the file.
func buildLogger(lc config.LoggingConfig) *slog.Logger {
	level := slogLevel(lc.Level)
	if env := config.NormalizeLogLevel(os.Getenv("HYWOMA_LOG_LEVEL")); env != "" {
		level = slogLevel(env)
	}
	if CLI.Verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if lc.Format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func runDaemon() error {
	path := policyPath()
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	logger := buildLogger(cfg.Logging)
	slog.SetDefault(logger)

	sockets, err := hyprctl.Discover()
	if err != nil {
		return err
	}

	d, err := daemon.NewDaemon(daemon.Options{
		Config:     cfg,
		PolicyPath: path,
		Sockets:    sockets,
		IPCPath:    CLI.Socket,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- d.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		slog.Info("Shutdown signal received, stopping daemon")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.Settings.ShutdownTimeout)
	defer stopCancel()
	if err := d.Stop(stopCtx); err != nil {
		return err
	}

	slog.Info("Daemon stopped")
	return nil
}

func runCheck() error {
	path := policyPath()
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	workspaces := 0
	for _, m := range cfg.Rules.Monitors {
		workspaces += len(m.Workspaces)
	}
	fmt.Printf("%s: OK (%d monitor rules, %d workspaces)\n", path, len(cfg.Rules.Monitors), workspaces)
	return nil
}

func runStatus() error {
	if CLI.Status.Live {
		return runLiveStatus()
	}

	status, err := ipc.NewClient(CLI.Socket).Status(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("state:         %s\n", status.State)
	fmt.Printf("uptime:        %s\n", status.Uptime)
	fmt.Printf("policy:        %s (generation %d)\n", status.PolicyPath, status.PolicyGeneration)
	fmt.Printf("controller:    %s\n", status.Controller)
	fmt.Printf("event stream:  %s\n", status.EventStream)
	disconnected := ""
	if status.MonitorsDisconnected > 0 {
		disconnected = fmt.Sprintf(" (+%d disconnected)", status.MonitorsDisconnected)
	}
	fmt.Printf("mirror:        %d monitors%s, %d workspaces, %d windows\n",
		status.Monitors, disconnected, status.Workspaces, status.Windows)

	if lp := status.LastPass; lp != nil {
		fmt.Printf("last pass:     %s (trigger %s, %d/%d commands, %d skips, took %s)\n",
			lp.Outcome, lp.Trigger, lp.Completed, lp.Commands, lp.Skips, lp.Elapsed)
	} else {
		fmt.Printf("last pass:     none\n")
	}
	return nil
}

// runLiveStatus prints the compositor's own view of monitors and workspaces,
// bypassing the daemon. Works without a running daemon.
func runLiveStatus() error {
	sockets, err := hyprctl.Discover()
	if err != nil {
		return err
	}
	ctl := hyprctl.NewControl(sockets.Control, 5*time.Second, slog.Default())
	ctx := context.Background()

	monitors, err := ctl.Monitors(ctx)
	if err != nil {
		return err
	}
	workspaces, err := ctl.Workspaces(ctx)
	if err != nil {
		return err
	}
	active, err := ctl.ActiveWorkspace(ctx)
	if err != nil {
		return err
	}

	byMonitor := make(map[string][]hyprctl.Workspace, len(monitors))
	for _, ws := range workspaces {
		byMonitor[ws.Monitor] = append(byMonitor[ws.Monitor], ws)
	}

	for _, m := range monitors {
		focus := ""
		if m.Focused {
			focus = " (focused)"
		}
		fmt.Printf("%s%s  %s\n", m.Name, focus, m.Description)

		wss := byMonitor[m.Name]
		sort.Slice(wss, func(i, j int) bool { return wss[i].ID < wss[j].ID })
		for _, ws := range wss {
			marker := ""
			if ws.ID == active.ID {
				marker = " *"
			}
			fmt.Printf("  %d %s (%d windows)%s\n", ws.ID, ws.Name, ws.Windows, marker)
		}
	}
	return nil
}

func runReload() error {
	generation, err := ipc.NewClient(CLI.Socket).Reload(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("policy reloaded, generation %d\n", generation)
	return nil
}

func runPlan() error {
	plan, err := ipc.NewClient(CLI.Socket).Plan(context.Background())
	if err != nil {
		return err
	}

	if plan.Empty {
		fmt.Println("nothing to do, state matches policy")
	} else {
		fmt.Printf("plan %s (generation %d, revision %d)\n", plan.PlanID, plan.Generation, plan.Revision)
		for i, cmd := range plan.Commands {
			fmt.Printf("  %d. %s\n", i+1, renderCommand(cmd))
		}
	}

	if len(plan.Skips) > 0 {
		fmt.Println("deferred:")
		for _, s := range plan.Skips {
			fmt.Printf("  - workspace %d on %s: %s\n", s.WorkspaceID, s.Monitor, s.Reason)
		}
	}
	return nil
}

func renderCommand(cmd ipc.PlanCommand) string {
	var text string
	switch cmd.Verb {
	case "create_workspace":
		text = fmt.Sprintf("create workspace %d", cmd.WorkspaceID)
	case "destroy_workspace":
		text = fmt.Sprintf("destroy workspace %d", cmd.WorkspaceID)
	case "bind_workspace":
		text = fmt.Sprintf("bind workspace %d to %s", cmd.WorkspaceID, cmd.Monitor)
	case "rename_workspace", "reorder_workspace":
		text = fmt.Sprintf("rename workspace %d to %q", cmd.WorkspaceID, cmd.Name)
	case "focus_workspace":
		text = fmt.Sprintf("focus workspace %d", cmd.WorkspaceID)
	case "move_window":
		text = fmt.Sprintf("move window %s to workspace %d", cmd.Window, cmd.WorkspaceID)
	default:
		text = fmt.Sprintf("%s workspace %d", cmd.Verb, cmd.WorkspaceID)
	}
	if cmd.Reason != "" {
		text += fmt.Sprintf(" (%s)", cmd.Reason)
	}
	return text
}

func runPass() error {
	if err := ipc.NewClient(CLI.Socket).Pass(context.Background(), CLI.Pass.Reason); err != nil {
		return err
	}
	fmt.Println("pass requested")
	return nil
}
