package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:           "uniguide",
	Short:         "University and visa information chatbot",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(serveCmd, stopCmd, statusCmd)
	rootCmd.AddCommand(askCmd, reindexCmd, uploadCmd, filesCmd, fetchCmd, recordsCmd, clearCmd, analyticsCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	// A .env in the working directory may carry UNIGUIDE_* settings.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
