/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package cmd

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// GetUserSetVar returns values either command line flag or environment variable.
// A flag that is set explicitly must not be blank. If isOptional is true, an unset variable is
// returned as an empty string instead of an error.
func GetUserSetVar(cmd *cobra.Command, flagName, envKey string, isOptional bool) (string, error) {
	if cmd.Flags().Changed(flagName) {
		value, err := cmd.Flags().GetString(flagName)
		if err != nil {
			return "", fmt.Errorf(flagName+" flag not found: %s", err)
		}

		if value == "" {
			return "", fmt.Errorf("%s value is empty", flagName)
		}

		return value, nil
	}

	value, isSet := os.LookupEnv(envKey)

	if isOptional || isSet {
		return value, nil
	}

	return "", fmt.Errorf("Neither %s (command line flag) nor %s (environment variable) have been set.", //nolint: stylecheck,golint,lll
		flagName, envKey)
}

// GetUserSetInt returns an integer from either command line flag or environment variable,
// or defaultValue if neither is set.
func GetUserSetInt(cmd *cobra.Command, flagName, envKey string, defaultValue int) (int, error) {
	value, err := GetUserSetVar(cmd, flagName, envKey, true)
	if err != nil {
		return 0, err
	}

	if value == "" {
		return defaultValue, nil
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s [%s]: %w", flagName, value, err)
	}

	return n, nil
}

// GetUserSetDuration returns a duration from either command line flag or environment variable,
// or defaultValue if neither is set.
func GetUserSetDuration(cmd *cobra.Command, flagName, envKey string, defaultValue time.Duration) (time.Duration,
	error) {
	value, err := GetUserSetVar(cmd, flagName, envKey, true)
	if err != nil {
		return 0, err
	}

	if value == "" {
		return defaultValue, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s [%s]: %w", flagName, value, err)
	}

	return d, nil
}
