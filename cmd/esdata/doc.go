// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the esdata CLI commands.
//
// The root command wires the project configuration into a data loader plugin
// and exposes it through the build, compile, watch and config subcommands.
package cmd
