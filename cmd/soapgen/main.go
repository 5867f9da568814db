// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command soapgen generates SoapUI test projects from service
// specifications and refines them with feedback.
//
// Usage:
//
//	soapgen serve --config soapgen.yaml
//	soapgen generate --spec service.wsdl --category happy_path --out project.xml
//
// Example requests against a running server:
//
//	# Start a session
//	curl -X POST http://localhost:8080/v1/generations \
//	  -H "Content-Type: application/json" \
//	  -d '{"spec_document": "<definitions .../>", "categories": ["happy_path"]}'
//
//	# Resume it with feedback
//	curl -X POST http://localhost:8080/v1/generations/SESSION_ID/feedback \
//	  -H "Content-Type: application/json" \
//	  -d '{"feedback": "add a negative case for an empty symbol"}'
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is the soapgen release version.
const Version = "0.1.0"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "soapgen",
	Short: "Generate SoapUI test projects from service specifications",
	Long: `soapgen turns a WSDL (or similar) document into a SoapUI project using a
language model, and regenerates the project from your feedback while
remembering the session between requests.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newGenerateCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
