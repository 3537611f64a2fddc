// SPDX-License-Identifier: MPL-2.0

// Command esdata bundles web applications whose data loaders are evaluated
// at build time.
package main

import cmd "esdata/cmd/esdata"

func main() {
	cmd.Execute()
}
