// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package lifecycle implements the stack operations behind every odooctl
command.

	┌──────────────────────────────────────────────────────────────┐
	│                        DefaultLifecycle                      │
	├──────────────────────────────────────────────────────────────┤
	│  Start    validate compose.yaml → up -d → wait until running │
	│  Rebuild  rewrite Dockerfile → build → up --force-recreate   │
	│           → wait until running                               │
	│  Restart  restart in place → wait until running              │
	│  Stop     down (volumes kept)                                │
	│  Clean    CONFIRM → down -v --remove-orphans                 │
	│  Test     createdb → odoo --test-enable → dropdb (always)    │
	│  Shell    requires Running → exec -it                        │
	│  Logs     logs -f until interrupted                          │
	└──────────────────────────────────────────────────────────────┘

Mutating operations are serialized within the process and, when a locker
is configured, across processes working on the same directory.

Nothing here prints to the console. Callers render results with pkg/ux.
*/
package lifecycle
