package cmd

import (
	"github.com/spf13/cobra"

	"github.com/e2immu/e2build/pkg/buildsys/cmd"
)

var rootCmd = &cobra.Command{
	Use:   "e2build",
	Short: "Composite builds over included builds",
	Long: `This command runs composite operations (like "test" or "clean") over the builds a
tasks.star file includes. It also bundles portable rm, mv and mkdir commands for task scripts.`,
}

func init() {
	rootCmd.AddCommand(cmd.RunCmd)
	rootCmd.AddCommand(cmd.BuildsCmd)
	rootCmd.AddCommand(cmd.DepsCmd)
}

func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}
