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
	"errors"

	"github.com/AleutianAI/odooctl/cmd/odooctl/internal/status"
	"github.com/AleutianAI/odooctl/pkg/ux"
)

const menuExit = "exit"

// menuOptions lists the registry entries shown in the menu, then Exit.
func menuOptions() []ux.Option {
	var options []ux.Option
	for _, c := range registry() {
		if c.MenuLabel == "" {
			continue
		}
		options = append(options, ux.Option{Label: c.MenuLabel, Value: c.Name})
	}
	return append(options, ux.Option{Label: "Exit", Value: menuExit})
}

// runMenu shows the stack state and dispatches the chosen command until the
// operator exits. Edits to .env are picked up before the next action.
func (a *app) runMenu(ctx context.Context) error {
	if err := a.ensureStack(ctx); err != nil {
		return err
	}
	a.inMenu = true
	defer func() { a.inMenu = false }()

	if a.dir != "" && a.watcher == nil {
		w, err := watchConfig(a.dir, a.logger)
		if err != nil {
			a.logger.Warn("config watch disabled", "error", err)
		} else {
			a.watcher = w
		}
	}

	if ux.GetPersonality().ShowBanner {
		ux.Title("odooctl")
		ux.Muted("Odoo on docker compose")
	}

	options := menuOptions()
	for {
		if a.watcher != nil && a.watcher.TakeStale() {
			a.reloadConfig()
		}
		a.renderMenuHeader(ctx)

		choice, err := a.prompter.Select("What would you like to do?", options)
		if errors.Is(err, ux.ErrAborted) || choice == menuExit {
			return nil
		}
		if err != nil {
			ux.Warning(err.Error())
			continue
		}

		c, ok := lookupCommand(choice)
		if !ok {
			continue
		}
		if err := c.Run(ctx, a, nil); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (a *app) renderMenuHeader(ctx context.Context) {
	snap := a.lc.Status(ctx)
	label := snap.State.String()
	if ux.GetPersonality().Level != ux.PersonalityMachine {
		label = stateIcon(snap.State).Render() + " " + label
	}

	ux.KeyValue("Stack", label)
	if snap.State == status.Running {
		ux.KeyValue("URL", a.lc.Config().URL())
	}
}

func stateIcon(s status.StackState) ux.Icon {
	switch s {
	case status.Running:
		return ux.IconSuccess
	case status.Stopped:
		return ux.IconWarning
	default:
		return ux.IconPending
	}
}
