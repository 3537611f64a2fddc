// SPDX-License-Identifier: MPL-2.0

// Package config loads the esdata project configuration using Viper with CUE
// as the file format.
//
// esdata.cue is looked up at the --config path, then in the platform config
// directory (~/.config/esdata on Linux, ~/Library/Application Support/esdata
// on macOS, %APPDATA%\esdata on Windows), then in the working directory.
// The file is validated against the embedded #Config schema
// (config_schema.cue). Every key can be overridden from the environment with
// the ESDATA_ prefix, e.g. ESDATA_LOG_LEVEL=debug or ESDATA_WATCH_DEBOUNCE=1s.
package config
