// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/lazymod/lazymod/cmd/lazymod"

func main() {
	cmd.Execute()
}
