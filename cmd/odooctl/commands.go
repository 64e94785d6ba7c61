// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/odooctl/pkg/ux"
)

// command is one registry entry. The cobra subcommands and the interactive
// menu are both built from registry, so the two entry points cannot drift.
type command struct {
	Name string

	// Usage is appended to Name in the cobra Use line.
	Usage   string
	Summary string

	// MenuLabel is shown in the interactive menu. Empty hides the entry.
	MenuLabel string

	// Stack is true if the command needs the bootstrapped stack.
	Stack bool

	Args  cobra.PositionalArgs
	Flags func(cmd *cobra.Command, a *app)
	Run   func(ctx context.Context, a *app, args []string) error
}

func registry() []command {
	return []command{
		{
			Name:      "start",
			Summary:   "Build the image if needed, start Odoo and PostgreSQL and wait until both run",
			MenuLabel: "Start the stack",
			Stack:     true,
			Args:      cobra.NoArgs,
			Run:       runStart,
		},
		{
			Name:      "stop",
			Summary:   "Stop and remove the containers (data volumes are kept)",
			MenuLabel: "Stop the stack",
			Stack:     true,
			Args:      cobra.NoArgs,
			Run:       runStop,
		},
		{
			Name:      "restart",
			Summary:   "Restart the existing containers",
			MenuLabel: "Restart the stack",
			Stack:     true,
			Args:      cobra.NoArgs,
			Run:       runRestart,
		},
		{
			Name:      "rebuild",
			Summary:   "Regenerate the Dockerfile from .env, rebuild the image and recreate the containers",
			MenuLabel: "Rebuild image and containers",
			Stack:     true,
			Args:      cobra.NoArgs,
			Run:       runRebuild,
		},
		{
			Name:      "status",
			Summary:   "Show the stack state, per-service state and the Odoo URL",
			MenuLabel: "Show status",
			Stack:     true,
			Args:      cobra.NoArgs,
			Run:       runStatus,
		},
		{
			Name:      "logs",
			Usage:     "[service]",
			Summary:   "Stream service logs (default: odoo) until interrupted",
			MenuLabel: "Follow Odoo logs",
			Stack:     true,
			Args:      cobra.MaximumNArgs(1),
			Flags: func(cmd *cobra.Command, a *app) {
				cmd.Flags().IntVarP(&a.logsOpts.Tail, "tail", "n", 0, "number of lines to show before following (0 = all)")
				cmd.Flags().BoolVar(&a.logsOpts.NoFollow, "no-follow", false, "print the backlog and exit")
			},
			Run: runLogs,
		},
		{
			Name:      "shell",
			Summary:   "Open an interactive shell in a running container",
			MenuLabel: "Open a shell in the Odoo container",
			Stack:     true,
			Args:      cobra.NoArgs,
			Flags: func(cmd *cobra.Command, a *app) {
				cmd.Flags().StringVar(&a.shellOpts.Service, "service", "odoo", "service to attach to")
				cmd.Flags().StringVarP(&a.shellOpts.User, "user", "u", "root", "user inside the container")
			},
			Run: runShell,
		},
		{
			Name:      "test",
			Usage:     "[module,...]",
			Summary:   "Run module tests on a scratch database (default: every module in extra-addons/)",
			MenuLabel: "Run module tests",
			Stack:     true,
			Run:       runTest,
		},
		{
			Name:      "fix-permissions",
			Summary:   "Set container ownership and SELinux labels on extra-addons/",
			MenuLabel: "Fix addons permissions",
			Stack:     true,
			Args:      cobra.NoArgs,
			Run:       runFixPermissions,
		},
		{
			Name:      "validate",
			Summary:   "Check compose.yaml with the compose-go loader",
			MenuLabel: "Validate compose.yaml",
			Stack:     true,
			Args:      cobra.NoArgs,
			Run:       runValidate,
		},
		{
			Name:      "clean",
			Summary:   "DANGER: remove containers AND the database and filestore volumes",
			MenuLabel: "Clean (delete all data)",
			Stack:     true,
			Args:      cobra.NoArgs,
			Flags: func(cmd *cobra.Command, a *app) {
				cmd.Flags().StringVar(&a.confirm, "confirm", "", "skip the prompt; must be exactly "+ux.ConfirmPhrase)
			},
			Run: runClean,
		},
		{
			Name:      "help",
			Usage:     "[command]",
			Summary:   "Show help for odooctl or one command",
			MenuLabel: "Help",
			Run:       runHelp,
		},
	}
}

// lookupCommand finds a registry entry by name.
func lookupCommand(name string) (command, bool) {
	for _, c := range registry() {
		if c.Name == name {
			return c, true
		}
	}
	return command{}, false
}

// dispatch bootstraps the stack when c needs it and runs c.
func (a *app) dispatch(ctx context.Context, c command, args []string) error {
	if c.Stack {
		if err := a.ensureStack(ctx); err != nil {
			return err
		}
	}
	return c.Run(ctx, a, args)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "odooctl",
		Short: "Deploy and operate a local Odoo stack with docker compose",
		Long: `odooctl keeps an Odoo deployment directory in shape and runs its
lifecycle: it writes .env, Dockerfile and compose.yaml when they are
missing, prepares extra-addons/ for the container user, and drives
docker compose.

Run without a command for the interactive menu.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runMenu(cmd.Context())
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetOut(ux.Out())
	root.SetErr(ux.ErrOut())

	pf := root.PersistentFlags()
	pf.StringVarP(&a.opts.Dir, "dir", "C", "", "deployment directory (default: current directory, env ODOOCTL_DIR)")
	pf.StringVarP(&a.opts.ProjectName, "project-name", "p", "", "compose project name (env COMPOSE_PROJECT_NAME)")
	pf.StringVar(&a.opts.LogDir, "log-dir", "", "write JSON logs to this directory (env ODOOCTL_LOG_DIR)")
	pf.StringVar(&a.opts.Personality, "personality", "", "output style: full, standard, minimal, machine (env ODOOCTL_PERSONALITY)")
	pf.BoolVarP(&a.opts.Verbose, "verbose", "v", false, "debug logging (env ODOOCTL_VERBOSE)")

	for _, c := range registry() {
		c := c
		sub := &cobra.Command{
			Use:   strings.TrimSpace(c.Name + " " + c.Usage),
			Short: c.Summary,
			Args:  c.Args,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.dispatch(cmd.Context(), c, args)
			},
		}
		if c.Flags != nil {
			c.Flags(sub, a)
		}
		if c.Name == "help" {
			root.SetHelpCommand(sub)
			continue
		}
		root.AddCommand(sub)
	}

	a.root = root
	return root
}
