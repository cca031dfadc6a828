// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package config

import (
	"fmt"

	"github.com/tomtom215/glucobar/internal/logging"
	"github.com/tomtom215/glucobar/internal/validation"
)

// minSecretLength is the shortest accepted credential encryption secret.
const minSecretLength = 16

// Validate checks tag constraints first, then the cross-field rules tags
// cannot express.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return verr
	}

	if err := c.validateLibreView(); err != nil {
		return err
	}
	if err := c.validateCredentials(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateLibreView() error {
	if err := validateHTTPURL(c.LibreView.BaseURL, "LIBREVIEW_BASE_URL"); err != nil {
		return fmt.Errorf("LIBREVIEW_BASE_URL is invalid: %w", err)
	}
	if (c.LibreView.Username == "") != (c.LibreView.Password == "") {
		return fmt.Errorf("LIBREVIEW_USERNAME and LIBREVIEW_PASSWORD must be set together")
	}
	return nil
}

func (c *Config) validateCredentials() error {
	if c.Credentials.Path == "" {
		return nil
	}
	if len(c.Credentials.Secret) < minSecretLength {
		return fmt.Errorf("CREDENTIALS_SECRET must be at least %d characters when CREDENTIALS_PATH is set", minSecretLength)
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("LOG_LEVEL %q is not a recognised level", c.Logging.Level)
	}
	return nil
}
