package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/vinayprograms/agentcollab/collab"
	"github.com/vinayprograms/agentcollab/config"
	"github.com/vinayprograms/agentcollab/errors"
	"github.com/vinayprograms/agentcollab/logging"
	"github.com/vinayprograms/agentcollab/shutdown"
	"github.com/vinayprograms/agentcollab/telemetry"
	"github.com/vinayprograms/agentcollab/tools"
)

// version can be overridden at build time via -ldflags "-X main.version=...".
var version = "0.1.0"

// globalFlags are shared by every operation.
type globalFlags struct {
	agentID   string
	asJSON    bool
	envFile   string
	credsFile string
	backend   string
}

// operation describes one subcommand and the flags it maps to tool args.
type operation struct {
	name     string
	short    string
	flags    []string
	required []string
}

var operations = []operation{
	{name: "post_task", short: "Post a task for other agents", flags: []string{"title", "content", "priority", "context"}, required: []string{"title"}},
	{name: "post_status", short: "Post a status update", flags: []string{"title", "status-text", "content", "task-id"}, required: []string{"title"}},
	{name: "post_message", short: "Post a general message", flags: []string{"title", "content", "priority", "context", "message-type", "in-reply-to"}, required: []string{"title"}},
	{name: "post_handoff", short: "Hand off work to another agent", flags: []string{"title", "content", "context", "target-agent"}, required: []string{"title"}},
	{name: "get_messages", short: "List recent messages", flags: []string{"limit", "type", "status"}},
	{name: "get_message", short: "Read one message", flags: []string{"task-id"}, required: []string{"task-id"}},
	{name: "get_pending_tasks", short: "List unclaimed tasks"},
	{name: "claim_task", short: "Claim a task", flags: []string{"task-id"}, required: []string{"task-id"}},
	{name: "complete_task", short: "Mark a task completed", flags: []string{"task-id", "result"}, required: []string{"task-id"}},
}

// flagArgs maps a flag to the tool argument it fills.
var flagArgs = map[string]string{
	"title":        "title",
	"content":      "content",
	"status-text":  "status_text",
	"task-id":      "task_id",
	"priority":     "priority",
	"context":      "context",
	"result":       "result",
	"type":         "message_type",
	"message-type": "message_type",
	"status":       "status",
	"target-agent": "target_agent",
	"in-reply-to":  "in_reply_to",
}

func newRootCmd(open opener) *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "agentcollab <operation> [flags]",
		Short:         "Agent collaboration through a shared mailbox",
		Long:          color.CyanString("agentcollab") + "\nPost tasks, status updates and handoffs to a mailbox shared by independent agents.",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.Help()
			return errors.InvalidInput("operation required")
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.agentID, "agent-id", "", "Override agent ID")
	pf.BoolVar(&g.asJSON, "json", false, "Output as JSON")
	pf.StringVar(&g.envFile, "env-file", ".env", "Environment file loaded before reading the environment")
	pf.StringVar(&g.credsFile, "credentials", "", "Credentials file (default: standard locations)")
	pf.StringVar(&g.backend, "backend", "", "Mailbox backend: graph, nats or redis (overrides AGENTCOLLAB_BACKEND)")

	for _, op := range operations {
		root.AddCommand(newOperationCmd(op, g, open))
	}

	// Unknown operations fail with exit 1 instead of printing help.
	root.Args = func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			return errors.InvalidInput("unknown operation: " + args[0])
		}
		return nil
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return errors.InvalidInput(err.Error())
	})
	root.SetErr(os.Stderr)
	return root
}

func newOperationCmd(op operation, g *globalFlags, open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   op.name,
		Short: op.short,
		Args:  cobra.NoArgs,
	}

	f := cmd.Flags()
	for _, name := range op.flags {
		switch name {
		case "content":
			f.String("content", "", "Message content or task description")
			f.String("description", "", "Alias for --content")
		case "limit":
			f.Int("limit", 20, "Max messages to return")
		case "priority":
			f.String("priority", "", "Priority: high, normal or low (default normal, high for handoffs)")
		case "title":
			f.String("title", "", "Message/task title")
		case "status-text":
			f.String("status-text", "", "Status update text")
		case "task-id":
			f.String("task-id", "", "Task or message ID")
		case "context":
			f.String("context", "", "JSON context data")
		case "result":
			f.String("result", "", "JSON result data for complete_task")
		case "type":
			f.String("type", "", "Filter by message type")
		case "status":
			f.String("status", "", "Filter by status")
		case "message-type":
			f.String("message-type", "", "Message type")
		case "target-agent":
			f.String("target-agent", "", "Agent the handoff is addressed to")
		case "in-reply-to":
			f.String("in-reply-to", "", "ID of the message being answered")
		}
	}

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		args, err := toolArgs(cmd, op)
		if err != nil {
			return report(cmd, g, &tools.Result{Operation: op.name, Err: coded(err)})
		}
		res := execute(cmd.Context(), g, open, args)
		return report(cmd, g, res)
	}
	return cmd
}

// toolArgs converts the set flags of cmd into tool arguments.
func toolArgs(cmd *cobra.Command, op operation) (tools.Args, error) {
	args := tools.Args{"operation": op.name}
	f := cmd.Flags()

	for _, name := range op.required {
		if v, _ := f.GetString(name); v == "" {
			return nil, errors.InvalidInput(fmt.Sprintf("--%s required for %s", name, op.name),
				errors.WithMetadata("argument", name))
		}
	}

	for _, name := range op.flags {
		switch name {
		case "limit":
			n, _ := f.GetInt("limit")
			args["limit"] = n
		case "content":
			content, _ := f.GetString("content")
			if content == "" {
				content, _ = f.GetString("description")
			}
			if content != "" {
				args["content"] = content
				args["description"] = content
			}
		default:
			if v, _ := f.GetString(name); v != "" {
				args[flagArgs[name]] = v
			}
		}
	}
	if op.name == "get_message" {
		args["message_id"] = args["task_id"]
	}
	return args, nil
}

// execute opens the mailbox, runs one operation and closes it again.
func execute(ctx context.Context, g *globalFlags, open opener, args tools.Args) *tools.Result {
	op := args.StringOr("operation", "")
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := shutdown.CancelOnSignal(cancel)
	defer stop()

	loadOpts := config.LoadOptions{CredentialsFile: g.credsFile, Backend: g.backend}
	if g.envFile != "" {
		loadOpts.EnvFiles = []string{g.envFile}
	}
	cfg, err := config.Load(loadOpts)
	if err != nil {
		return &tools.Result{Operation: op, Err: coded(err)}
	}

	log := logging.New().WithComponent("cli")
	log.SetOutput(os.Stderr)
	log.SetLevel(logging.ParseLevel(cfg.App.LogLevel))

	agentID := g.agentID
	if agentID == "" {
		agentID = cfg.App.AgentID
	}
	if agentID == "" {
		agentID = fmt.Sprintf("agentcollab-cli-%d", os.Getpid())
	}

	mb, err := open(ctx, cfg, agentID, log)
	if err != nil {
		return &tools.Result{Operation: op, Err: coded(err)}
	}
	defer mb.Close()

	tool, err := tools.NewCollabTool(mb.Orchestrator, log)
	if err != nil {
		return &tools.Result{Operation: op, Err: coded(err)}
	}
	tool.SetTracer(mb.Tracer)

	start := time.Now()
	res := tool.Run(ctx, args)
	log.Debug("operation finished", logging.Fields{"operation": op, "duration": time.Since(start).String()})
	return res
}

// report prints res and returns a non-nil error for failures so that the
// process exits 1.
func report(cmd *cobra.Command, g *globalFlags, res *tools.Result) error {
	stdout := cmd.OutOrStdout()
	stderr := cmd.ErrOrStderr()

	if g.asJSON {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, string(data))
	} else if res.Success() {
		printSummary(stdout, res)
	} else {
		color.New(color.FgRed).Fprintln(stderr, tools.Summary(res))
	}

	if !res.Success() {
		return reported{res.Err}
	}
	return nil
}

func coded(err error) *errors.Error {
	if c := errors.AsError(err); c != nil {
		return c
	}
	return errors.Wrap(err, err.Error())
}

// reported marks an error that has already been printed.
type reported struct {
	err error
}

func (r reported) Error() string { return r.err.Error() }
func (r reported) Unwrap() error { return r.err }

func printSummary(w io.Writer, res *tools.Result) {
	summary := tools.Summary(res)
	if res.IsList() || res.Operation == "get_message" {
		fmt.Fprintln(w, summary)
		return
	}
	color.New(color.FgGreen).Fprintln(w, summary)
}

// mailbox bundles the orchestrator with everything that must be released
// alongside it.
type mailbox struct {
	*collab.Orchestrator
	Tracer  *telemetry.Tracer
	release *shutdown.Sequence
}

// Close releases the orchestrator, its connections and telemetry in that
// order. Without a release sequence only the orchestrator is closed.
func (m *mailbox) Close() error {
	if m.release == nil {
		return m.Orchestrator.Close()
	}
	return m.release.Close()
}
