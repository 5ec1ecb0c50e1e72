// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"os"

	"github.com/datawire/ocibuild/pkg/cliutil"
	"github.com/spf13/cobra"

	"git.lukeshu.com/s7pextract/lib/s7p"
	"git.lukeshu.com/s7pextract/lib/s7p/s7pexport"
)

func init() {
	exporters = append(exporters, subcommand{
		Command: cobra.Command{
			Use:   "delimited",
			Short: "Export the parsed symbol tree as semicolon-delimited text",
			Args:  cliutil.WrapPositionalArgs(cobra.NoArgs),
		},
		RunE: func(devices []s7p.DeviceSymbolInfo, cmd *cobra.Command, _ []string) error {
			return s7pexport.WriteDelimited(os.Stdout, devices)
		},
	})
}
