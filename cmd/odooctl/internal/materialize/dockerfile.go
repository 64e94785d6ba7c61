// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package materialize

import (
	"bytes"
	"embed"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"github.com/AleutianAI/odooctl/cmd/odooctl/config"
)

//go:embed templates/Dockerfile.tmpl
var templateFS embed.FS

var dockerfileTemplate = template.Must(
	template.New("Dockerfile.tmpl").
		Funcs(template.FuncMap{
			"shellJoin": shellJoin,
			"pipTarget": func() string { return PipTarget },
		}).
		ParseFS(templateFS, "templates/Dockerfile.tmpl"),
)

// RenderDockerfile renders the build recipe for cfg.
//
// The output depends only on cfg, and package tokens keep their .env order.
func RenderDockerfile(cfg *config.DeploymentConfig) ([]byte, error) {
	var buf bytes.Buffer
	if err := dockerfileTemplate.Execute(&buf, cfg); err != nil {
		return nil, fmt.Errorf("failed to render Dockerfile: %w", err)
	}
	return buf.Bytes(), nil
}

var shellSafe = regexp.MustCompile(`^[A-Za-z0-9._+:,=@/-]+$`)

// shellJoin joins tokens for a RUN line, single-quoting any token that the
// shell would otherwise interpret (version specifiers, extras brackets).
func shellJoin(tokens config.PackageList) string {
	quoted := make([]string, len(tokens))
	for i, tok := range tokens {
		if shellSafe.MatchString(tok) {
			quoted[i] = tok
			continue
		}
		quoted[i] = "'" + strings.ReplaceAll(tok, "'", `'\''`) + "'"
	}
	return strings.Join(quoted, " ")
}
