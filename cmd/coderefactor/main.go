// # cmd/coderefactor/main.go
package main

import (
	"os"

	"coderefactor/internal/ui/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
