// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command odooctl deploys and operates a local Odoo stack with docker compose.
//
// Run without arguments for the interactive menu, or name a command:
//
//	odooctl start
//	odooctl logs --tail 200
//	odooctl test sale_custom,stock_extra
//	odooctl clean --confirm CONFIRM
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/AleutianAI/odooctl/cmd/odooctl/internal/infra"
	"github.com/AleutianAI/odooctl/cmd/odooctl/internal/util"
	"github.com/AleutianAI/odooctl/pkg/ux"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	a := newApp()
	err := newRootCmd(a).ExecuteContext(ctx)
	a.close()
	stop()

	if err != nil {
		reportFatal(err)
	}
	os.Exit(util.ExitCodeOf(err))
}

// reportFatal prints an error that ends the process. Environment failures
// carry their own remediation.
func reportFatal(err error) {
	var check *infra.CheckError
	if errors.As(err, &check) {
		ux.ErrorBox("Environment check failed: "+check.Check, check.Error()+"\n\n"+check.Remediation)
		return
	}
	ux.Error(err.Error())
}
