// Command salesagent indexes the product catalog and runs the sales agent chat loop.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/salescode-agent/server/internal/config"
	logx "github.com/salescode-agent/server/pkg/logger"
)

var (
	envFile string
	appCfg  *config.AppConfig
)

var rootCmd = &cobra.Command{
	Use:           "salesagent",
	Short:         "Retrieval-backed B2B sales agent",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(envFile)
		if err != nil {
			return err
		}
		logx.Init(logx.LoggerOpts{Environment: cfg.Environment()})
		appCfg = cfg
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path of the dotenv file to load")
	rootCmd.AddCommand(indexCmd, chatCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
