// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package config provides INI-style configuration parsing with access
// tracking and validation, and the mirror pipeline configuration schema.
package config

import (
	"fmt"

	"mirrorsim/pkg/errors"
)

// Every config error is a CONFIGURATION MirrorError with the section and
// option recorded as context.

// NewConfigError creates a configuration error with section/option context.
func NewConfigError(section, option, message string) *errors.MirrorError {
	msg := message
	switch {
	case option != "":
		msg = fmt.Sprintf("option '%s' in section '%s': %s", option, section, message)
	case section != "":
		msg = fmt.Sprintf("section '%s': %s", section, message)
	}
	e := errors.New(errors.ErrConfiguration, msg)
	if section != "" {
		e.SetContext("section", section)
	}
	if option != "" {
		e.SetContext("option", option)
	}
	return e
}

// ErrMissingOption returns an error for a required but missing option.
func ErrMissingOption(section, option string) *errors.MirrorError {
	return NewConfigError(section, option, "must be specified")
}

// ErrMissingSection returns an error for a missing section.
func ErrMissingSection(section string) *errors.MirrorError {
	return NewConfigError(section, "", "section not found")
}

// ErrInvalidValue returns an error for an unparseable value.
func ErrInvalidValue(section, option, value, expected string) *errors.MirrorError {
	return NewConfigError(section, option, fmt.Sprintf("invalid value '%s', expected %s", value, expected))
}

// ErrOutOfRange returns an error for a value outside the allowed range.
func ErrOutOfRange(section, option string, value float64, constraint string) *errors.MirrorError {
	return NewConfigError(section, option, fmt.Sprintf("value %v %s", value, constraint))
}

// ErrInvalidChoice returns an error for an invalid choice value.
func ErrInvalidChoice(section, option, value string, choices []string) *errors.MirrorError {
	return NewConfigError(section, option, fmt.Sprintf("'%s' is not a valid choice (valid: %v)", value, choices))
}
