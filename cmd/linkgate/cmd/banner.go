package cmd

import (
	"fmt"
)

const banner = `
  _ _       _                _
 | (_)_ __ | | ____ _  __ _| |_ ___
 | | | '_ \| |/ / _` + "`" + ` |/ _` + "`" + ` | __/ _ \
 | | | | | |   < (_| | (_| | ||  __/
 |_|_|_| |_|_|\_\__, |\__,_|\__\___|
                |___/
`

func printBanner() {
	fmt.Printf("\x1b[34m%s\x1b[0m", banner)
	fmt.Printf("\x1b[32m  Redirect-Gated Key Service - Version %s\x1b[0m\n\n", Version)
}
