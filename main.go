package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ollama/ollama-sdpa/cmd"
	_ "github.com/ollama/ollama-sdpa/x/ml/backend"
)

func main() {
	cobra.CheckErr(cmd.NewCLI().ExecuteContext(context.Background()))
}
