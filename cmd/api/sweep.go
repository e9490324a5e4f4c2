package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sanosuguru/go-reservation-engine/internal/application"
	"github.com/sanosuguru/go-reservation-engine/internal/worker"
)

func newSweepCmd() *cobra.Command {
	var driver string

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "期限切れの保留と放置された処理中予約を1回だけ片付ける",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(driver)
			if err != nil {
				return err
			}

			return runCommand(cmd.Context(), cfg, func(units *application.UnitService, ledger *application.LedgerService) {
				sweeper := worker.NewExpiredHoldSweeper(units, ledger, cfg.Reservation.SweepInterval, cfg.Reservation.PendingBookingTimeout)
				released, expired := sweeper.Sweep(context.Background())
				fmt.Fprintf(cmd.OutOrStdout(), "released_holds=%d expired_bookings=%d\n", released, expired)
			})
		},
	}

	cmd.Flags().StringVar(&driver, "store", "", "保存先（postgres|memory）。未指定なら STORE_DRIVER")
	return cmd
}
