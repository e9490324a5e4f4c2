package main

import (
	"github.com/spf13/cobra"

	"github.com/sanosuguru/go-reservation-engine/internal/config"
)

var (
	Version   = "dev"
	CommitSHA = "none"
	BuildDate = "unknown"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "reservation-engine",
		Short:         "座席・予約枠の保留と予約確定を行う予約エンジン",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newSweepCmd())
	root.AddCommand(newProvisionCmd())
	root.AddCommand(newVersionCmd())

	return root
}

// loadConfig は環境変数から設定を読み込む。driver が空でなければ STORE_DRIVER を上書きする
func loadConfig(driver string) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if driver != "" {
		cfg.Database.Driver = driver
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
