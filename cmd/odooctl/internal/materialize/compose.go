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
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/odooctl/cmd/odooctl/config"
)

// Service and volume names used in the generated compose file.
const (
	ServiceOdoo = "odoo"
	ServiceDB   = "db"

	VolumeDBData  = "odoo-db-data"
	VolumeWebData = "odoo-web-data"

	// OdooContainerPort is the port the odoo image listens on.
	OdooContainerPort = 8069

	// OdooDataPath is the odoo user's home, backed by VolumeWebData.
	OdooDataPath = "/var/lib/odoo"

	// PipTarget holds PIP_PACKAGES. It sits outside OdooDataPath because a
	// populated named volume hides whatever a rebuilt image puts there.
	PipTarget = "/opt/odoo-pip"

	// PostgresImage is the database image. Pinned to one major version
	// because a data volume cannot be opened by a different major.
	PostgresImage = "postgres:15"
)

const composeHeader = "# Generated by odooctl. Values in ${...} are read from .env at run time.\n"

type composeFile struct {
	Services map[string]composeService `yaml:"services"`
	Volumes  map[string]composeVolume  `yaml:"volumes"`
}

type composeService struct {
	Image       string                      `yaml:"image,omitempty"`
	Build       *composeBuild               `yaml:"build,omitempty"`
	Restart     string                      `yaml:"restart,omitempty"`
	DependsOn   map[string]composeDependsOn `yaml:"depends_on,omitempty"`
	Environment []string                    `yaml:"environment,omitempty"`
	Ports       []string                    `yaml:"ports,omitempty"`
	Volumes     []string                    `yaml:"volumes,omitempty"`
	Healthcheck *composeHealthcheck         `yaml:"healthcheck,omitempty"`
}

type composeBuild struct {
	Context    string `yaml:"context"`
	Dockerfile string `yaml:"dockerfile"`
}

type composeDependsOn struct {
	Condition string `yaml:"condition"`
}

type composeHealthcheck struct {
	Test     []string `yaml:"test,flow"`
	Interval string   `yaml:"interval"`
	Timeout  string   `yaml:"timeout"`
	Retries  int      `yaml:"retries"`
}

type composeVolume struct{}

// RenderCompose renders the two-service compose definition.
//
// # Description
//
// Credentials and the published port are written as ${VAR} references so
// compose interpolates them from .env on every run; editing .env does not
// require regenerating this file. The odoo service builds the generated
// Dockerfile and waits for the db health check.
func RenderCompose() ([]byte, error) {
	doc := composeFile{
		Services: map[string]composeService{
			ServiceDB: {
				Image:   PostgresImage,
				Restart: "unless-stopped",
				Environment: []string{
					"POSTGRES_USER=${POSTGRES_USER}",
					"POSTGRES_PASSWORD=${POSTGRES_PASSWORD}",
					"POSTGRES_DB=${POSTGRES_DB}",
				},
				Volumes: []string{VolumeDBData + ":/var/lib/postgresql/data"},
				Healthcheck: &composeHealthcheck{
					Test:     []string{"CMD-SHELL", "pg_isready -U ${POSTGRES_USER} -d ${POSTGRES_DB}"},
					Interval: "5s",
					Timeout:  "5s",
					Retries:  10,
				},
			},
			ServiceOdoo: {
				Build:   &composeBuild{Context: ".", Dockerfile: config.DockerfileName},
				Restart: "unless-stopped",
				DependsOn: map[string]composeDependsOn{
					ServiceDB: {Condition: "service_healthy"},
				},
				Environment: []string{
					"HOST=" + ServiceDB,
					"USER=${POSTGRES_USER}",
					"PASSWORD=${POSTGRES_PASSWORD}",
				},
				Ports: []string{fmt.Sprintf("${ODOO_PORT}:%d", OdooContainerPort)},
				Volumes: []string{
					"./" + config.AddonsDirName + ":/mnt/extra-addons",
					VolumeWebData + ":" + OdooDataPath,
				},
			},
		},
		Volumes: map[string]composeVolume{
			VolumeDBData:  {},
			VolumeWebData: {},
		},
	}

	var buf bytes.Buffer
	buf.WriteString(composeHeader)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode compose file: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode compose file: %w", err)
	}
	return buf.Bytes(), nil
}
