// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"bufio"
	"os"

	"github.com/datawire/ocibuild/pkg/cliutil"
	"github.com/spf13/cobra"

	"git.lukeshu.com/s7pextract/lib/s7p"
)

func init() {
	inspectors = append(inspectors, subcommand{
		Command: cobra.Command{
			Use:   "warnings",
			Short: "List non-fatal warnings collected while parsing, one per line",
			Args:  cliutil.WrapPositionalArgs(cobra.NoArgs),
		},
		RunE: func(devices []s7p.DeviceSymbolInfo, cmd *cobra.Command, _ []string) error {
			out := bufio.NewWriter(os.Stdout)
			for _, device := range devices {
				for _, warning := range device.Warnings {
					if _, err := out.WriteString(device.Name + ": " + warning + "\n"); err != nil {
						return err
					}
				}
			}
			return out.Flush()
		},
	})
}
