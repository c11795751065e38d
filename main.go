package main

import (
	"os"

	"github.com/e2immu/e2build/cmd"
	"github.com/e2immu/e2build/pkg/buildsys"
)

func main() {
	// task commands call rm, mv and mkdir through this binary
	if self, err := os.Executable(); err == nil {
		buildsys.HelperCommand = self
	}

	cmd.Execute()
}
