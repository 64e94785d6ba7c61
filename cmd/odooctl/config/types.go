// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds the deployment settings read from a project's .env file.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Names of the files and directories that make up a deployment directory.
const (
	EnvFileName     = ".env"
	DockerfileName  = "Dockerfile"
	ComposeFileName = "compose.yaml"
	AddonsDirName   = "extra-addons"
)

// Documented defaults written to a fresh .env.
const (
	DefaultOdooVersion      = "18"
	DefaultOdooPort         = 8069
	DefaultPostgresUser     = "odoo"
	DefaultPostgresPassword = "odoo"
	DefaultPostgresDB       = "postgres"
)

// ErrInvalidConfig is returned when .env values fail validation.
var ErrInvalidConfig = errors.New("invalid deployment configuration")

// =============================================================================
// PackageList
// =============================================================================

// PackageList is a whitespace separated list of package tokens.
// Order is preserved.
type PackageList []string

// UnmarshalText splits text on whitespace.
func (p *PackageList) UnmarshalText(text []byte) error {
	fields := strings.Fields(string(text))
	if len(fields) == 0 {
		*p = nil
		return nil
	}
	*p = PackageList(fields)
	return nil
}

// String joins the tokens with single spaces.
func (p PackageList) String() string {
	return strings.Join(p, " ")
}

// =============================================================================
// DeploymentConfig
// =============================================================================

// DeploymentConfig is the typed form of a project's .env file.
//
// # Description
//
// Loaded once per invocation by Load and passed explicitly to the
// materializer and lifecycle operations. The env tags name the .env keys
// and carry the documented defaults for keys that are absent.
type DeploymentConfig struct {
	// OdooVersion is the odoo image tag, e.g. "18" or "17.0".
	OdooVersion string `env:"ODOO_VERSION" envDefault:"18" validate:"required,imagetag"`

	// OdooPort is the host port published for the web UI.
	OdooPort int `env:"ODOO_PORT" envDefault:"8069" validate:"min=1,max=65535"`

	// AptPackages are installed as root in the generated Dockerfile.
	AptPackages PackageList `env:"APT_PACKAGES" validate:"dive,pkgtoken"`

	// PipPackages are installed as the odoo user in the generated Dockerfile.
	PipPackages PackageList `env:"PIP_PACKAGES" validate:"dive,pkgtoken"`

	PostgresUser     string `env:"POSTGRES_USER" envDefault:"odoo" validate:"required,pgident"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"odoo" validate:"required"`
	PostgresDB       string `env:"POSTGRES_DB" envDefault:"postgres" validate:"required,pgident"`
}

// Default returns the configuration written to a fresh .env.
func Default() *DeploymentConfig {
	return &DeploymentConfig{
		OdooVersion:      DefaultOdooVersion,
		OdooPort:         DefaultOdooPort,
		PostgresUser:     DefaultPostgresUser,
		PostgresPassword: DefaultPostgresPassword,
		PostgresDB:       DefaultPostgresDB,
	}
}

// Environ returns the configuration as KEY=VALUE entries in .env key order.
func (c *DeploymentConfig) Environ() []string {
	return []string{
		"ODOO_VERSION=" + c.OdooVersion,
		"ODOO_PORT=" + strconv.Itoa(c.OdooPort),
		"APT_PACKAGES=" + c.AptPackages.String(),
		"PIP_PACKAGES=" + c.PipPackages.String(),
		"POSTGRES_USER=" + c.PostgresUser,
		"POSTGRES_PASSWORD=" + c.PostgresPassword,
		"POSTGRES_DB=" + c.PostgresDB,
	}
}

// URL returns the address of the Odoo web UI on the host.
func (c *DeploymentConfig) URL() string {
	return fmt.Sprintf("http://localhost:%d", c.OdooPort)
}

// =============================================================================
// Validation
// =============================================================================

var (
	imageTagPattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.-]{0,127}$`)
	pgIdentPattern  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$-]{0,62}$`)

	// Package tokens cover apt names ("libpq-dev", "python3-lxml:amd64") and
	// pip requirement specifiers ("requests>=2.31", "pkg[extra]==1.0").
	pkgTokenPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._+:~=<>!,\[\]-]*$`)
)

var configValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name, _, _ := strings.Cut(f.Tag.Get("env"), ","); name != "" {
			return name
		}
		return f.Name
	})
	_ = v.RegisterValidation("imagetag", matchPattern(imageTagPattern))
	_ = v.RegisterValidation("pgident", matchPattern(pgIdentPattern))
	_ = v.RegisterValidation("pkgtoken", matchPattern(pkgTokenPattern))
	return v
}

func matchPattern(re *regexp.Regexp) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	}
}

// Validate checks every field and reports all problems at once.
//
// # Outputs
//
//   - error: ErrInvalidConfig listing each offending .env key, or nil
func (c *DeploymentConfig) Validate() error {
	err := configValidator.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		problems = append(problems, describeFieldError(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
}

func describeFieldError(fe validator.FieldError) string {
	// Field() is "APT_PACKAGES[1]" for list elements.
	key := fe.Field()
	switch fe.Tag() {
	case "required":
		return key + " must not be empty"
	case "min", "max":
		return fmt.Sprintf("%s must be between 1 and 65535, got %v", key, fe.Value())
	case "imagetag":
		return fmt.Sprintf("%s %q is not a valid image tag", key, fe.Value())
	case "pgident":
		return fmt.Sprintf("%s %q is not a valid PostgreSQL identifier", key, fe.Value())
	case "pkgtoken":
		return fmt.Sprintf("%s contains invalid package name %q", key, fe.Value())
	default:
		return fmt.Sprintf("%s failed %s", key, fe.Tag())
	}
}
