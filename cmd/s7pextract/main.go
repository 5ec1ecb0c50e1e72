// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Command s7pextract extracts symbolic variable information from a
// Siemens STEP 7 (v5) engineering project folder.
package main

import (
	"context"
	"os"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"
	"github.com/datawire/ocibuild/pkg/cliutil"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"git.lukeshu.com/s7pextract/lib/profile"
	"git.lukeshu.com/s7pextract/lib/s7p"
	"git.lukeshu.com/s7pextract/lib/textui"
)

type logLevelFlag struct {
	logrus.Level
}

func (lvl *logLevelFlag) Type() string { return "loglevel" }
func (lvl *logLevelFlag) Set(str string) error {
	var err error
	lvl.Level, err = logrus.ParseLevel(str)
	return err
}

var _ pflag.Value = (*logLevelFlag)(nil)

// subcommand is a leaf command that needs the parsed project tree.
type subcommand struct {
	cobra.Command
	RunE func(devices []s7p.DeviceSymbolInfo, cmd *cobra.Command, args []string) error
}

var inspectors, exporters []subcommand

func main() {
	logLevelFlag := logLevelFlag{
		Level: logrus.InfoLevel,
	}
	var projectFlag string

	argparser := &cobra.Command{
		Use:   "s7pextract {[flags]|SUBCOMMAND}",
		Short: "Extract symbolic variable information from a STEP 7 project",

		Args: cliutil.WrapPositionalArgs(cliutil.OnlySubcommands),
		RunE: cliutil.RunSubcommands,

		SilenceErrors: true, // main() will handle this after .ExecuteContext() returns
		SilenceUsage:  true, // our FlagErrorFunc will handle it

		CompletionOptions: cobra.CompletionOptions{ //nolint:exhaustivestruct
			DisableDefaultCmd: true,
		},
	}
	argparser.SetFlagErrorFunc(cliutil.FlagErrorFunc)
	argparser.SetHelpTemplate(cliutil.HelpTemplate)
	argparser.PersistentFlags().Var(&logLevelFlag, "verbosity", "set the verbosity")
	argparser.PersistentFlags().StringVar(&projectFlag, "project", "", "path to the STEP 7 project `folder`")
	if err := argparser.MarkPersistentFlagDirname("project"); err != nil {
		panic(err)
	}
	if err := argparser.MarkPersistentFlagRequired("project"); err != nil {
		panic(err)
	}
	stopProfiling := profile.AddProfileFlags(argparser.PersistentFlags(), "profile-")

	argparserInspect := &cobra.Command{
		Use:   "inspect {[flags]|SUBCOMMAND}",
		Short: "Inspect a project's parsed symbol tree",

		Args: cliutil.WrapPositionalArgs(cliutil.OnlySubcommands),
		RunE: cliutil.RunSubcommands,
	}
	argparser.AddCommand(argparserInspect)

	argparserExport := &cobra.Command{
		Use:   "export {[flags]|SUBCOMMAND}",
		Short: "Export a project's parsed symbol tree",

		Args: cliutil.WrapPositionalArgs(cliutil.OnlySubcommands),
		RunE: cliutil.RunSubcommands,
	}
	argparser.AddCommand(argparserExport)

	for _, cmdgrp := range []struct {
		parent   *cobra.Command
		children []subcommand
	}{
		{argparserInspect, inspectors},
		{argparserExport, exporters},
	} {
		for _, child := range cmdgrp.children {
			cmd := child.Command
			runE := child.RunE
			cmd.RunE = func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				logger := logrus.New()
				logger.SetLevel(logLevelFlag.Level)
				ctx = dlog.WithLogger(ctx, dlog.WrapLogrus(logger))

				grp := dgroup.NewGroup(ctx, dgroup.GroupConfig{
					EnableSignalHandling: true,
				})
				grp.Go("main", func(ctx context.Context) error {
					dlog.Infof(ctx, "parsing project %q...", projectFlag)
					devices, err := s7p.Parse(ctx, projectFlag)
					if err != nil {
						return err
					}
					dlog.Infof(ctx, "... parsed %d devices", len(devices))

					cmd.SetContext(ctx)
					return runE(devices, cmd, args)
				})
				return grp.Wait()
			}
			cmdgrp.parent.AddCommand(&cmd)
		}
	}

	err := argparser.ExecuteContext(context.Background())
	if stopErr := stopProfiling(); err == nil {
		err = stopErr
	}
	if err != nil {
		textui.Fprintf(os.Stderr, "%v: error: %v\n", argparser.CommandPath(), err)
		os.Exit(1)
	}
}
