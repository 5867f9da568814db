// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/AleutianAI/soapgen/pkg/logging"
	"github.com/AleutianAI/soapgen/services/generator"
	"github.com/AleutianAI/soapgen/services/generator/config"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

type generateOptions struct {
	specPath    string
	categories  []string
	outPath     string
	interactive bool
}

func newGenerateCmd() *cobra.Command {
	var opts generateOptions
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a SoapUI project in-process",
		Long: `Runs one generation for a specification file. With --interactive and a
terminal on stdin, each line you type is sent as feedback and the project is
regenerated, until an empty line or EOF.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			interactive := opts.interactive
			if interactive && !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
				fmt.Fprintln(cmd.ErrOrStderr(), "stdin is not a terminal; skipping interactive feedback")
				interactive = false
			}
			return runGenerate(ctx, cfg, opts, interactive, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVar(&opts.specPath, "spec", "", "Specification document (e.g. a WSDL file)")
	cmd.Flags().StringArrayVar(&opts.categories, "category", nil, "Test category; repeat for several")
	cmd.Flags().StringVar(&opts.outPath, "out", "", "Write the project here instead of stdout")
	cmd.Flags().BoolVar(&opts.interactive, "interactive", false, "Read feedback lines from the terminal")
	_ = cmd.MarkFlagRequired("spec")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func runGenerate(ctx context.Context, cfg config.Config, opts generateOptions, interactive bool,
	in io.Reader, out, errOut io.Writer) error {

	doc, err := os.ReadFile(opts.specPath)
	if err != nil {
		return fmt.Errorf("read spec: %w", err)
	}

	logCfg := cfg.LoggerConfig(serviceName)
	logCfg.Output = errOut
	logger := logging.New(logCfg)
	a, err := newApp(cfg, logger, nil)
	if err != nil {
		_ = logger.Close()
		return err
	}
	defer a.Close()

	return generateSession(ctx, a.svc, string(doc), opts, interactive, in, out, errOut)
}

// generateSession runs Start, then one Resume per feedback line when
// interactive. A failed run is reported and, in interactive mode, can be
// answered with feedback like any other.
func generateSession(ctx context.Context, svc *generator.Service, doc string, opts generateOptions,
	interactive bool, in io.Reader, out, errOut io.Writer) error {

	res, err := svc.Start(ctx, doc, opts.categories)
	if err := report(res, err, opts.outPath, out, errOut, interactive); err != nil {
		return err
	}
	if !interactive {
		return nil
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		fmt.Fprintf(errOut, "feedback for %s (empty line to finish)> ", res.SessionID)
		if !scanner.Scan() {
			fmt.Fprintln(errOut)
			return scanner.Err()
		}
		feedback := strings.TrimSpace(scanner.Text())
		if feedback == "" {
			return nil
		}

		next, err := svc.Resume(ctx, res.SessionID, feedback)
		if err := report(next, err, opts.outPath, out, errOut, true); err != nil {
			return err
		}
		if next.Delta != nil {
			fmt.Fprintf(errOut, "attempt %d: +%d -%d lines\n",
				next.AttemptCount, next.Delta.LinesAdded, next.Delta.LinesRemoved)
		}
	}
}

// report writes a successful artifact. Generation failures are printed and
// tolerated when keepGoing is set; every other error is returned.
func report(res generator.Result, err error, outPath string, out, errOut io.Writer, keepGoing bool) error {
	var genErr *generator.GenerationFailedError
	switch {
	case errors.As(err, &genErr):
		fmt.Fprintf(errOut, "generation failed (session %s, attempt %d): %s\n",
			genErr.SessionID, genErr.AttemptCount, genErr.Detail)
		if keepGoing {
			return nil
		}
		return err
	case err != nil:
		return err
	}
	return writeArtifact(res.Artifact, outPath, out)
}

func writeArtifact(artifact, outPath string, out io.Writer) error {
	if outPath == "" {
		_, err := fmt.Fprintln(out, artifact)
		return err
	}
	if err := os.WriteFile(outPath, []byte(artifact+"\n"), 0o644); err != nil {
		return fmt.Errorf("write project: %w", err)
	}
	return nil
}
