package commands

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rl1809/split-market/internal/config"
	"github.com/rl1809/split-market/internal/logging"
)

var (
	envFile string
	cfg     *config.Config
	logger  *logrus.Logger
)

func Execute() error {
	root := &cobra.Command{
		Use:          "split-market",
		Short:        "Marketplace for tokenized property splits",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(envFile)
			if err != nil {
				return err
			}
			cfg = loaded
			logger = logging.New(cfg.AppName, cfg.LogLevel, cfg.LogFormat)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional dotenv file read before the environment")

	root.AddCommand(serveCmd(), migrateCmd(), reconcileCmd(), tokenCmd())
	return root.Execute()
}
