package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sanosuguru/go-reservation-engine/internal/application"
	"github.com/sanosuguru/go-reservation-engine/internal/domain/booking"
)

func newProvisionCmd() *cobra.Command {
	var (
		driver     string
		domain     string
		resourceID string
		prefix     string
		count      int
		labels     string
	)

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "リソースに座席・予約枠を作成",
		Example: `  reservation-engine provision --domain bus --resource route-7 --prefix A --count 40
  reservation-engine provision --domain calendar --resource 2025-01-01 --labels 09:00,10:00,11:00`,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := booking.ParseDomain(domain)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(driver)
			if err != nil {
				return err
			}

			input := application.ProvisionInput{
				Domain:     d,
				ResourceID: resourceID,
				Prefix:     prefix,
				Count:      count,
			}
			if labels != "" {
				input.Labels = strings.Split(labels, ",")
			}

			var runErr error
			err = runCommand(cmd.Context(), cfg, func(units *application.UnitService) {
				created, err := units.ProvisionUnits(cmd.Context(), input)
				if err != nil {
					runErr = err
					return
				}
				for _, u := range created {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", u.ID, u.ResourceID, u.Label)
				}
			})
			if err != nil {
				return err
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&driver, "store", "", "保存先（postgres|memory）。未指定なら STORE_DRIVER")
	cmd.Flags().StringVar(&domain, "domain", "", "ドメイン（calendar|theater|bus|flight|train）")
	cmd.Flags().StringVar(&resourceID, "resource", "", "リソースID")
	cmd.Flags().StringVar(&prefix, "prefix", "", "ラベルの接頭辞")
	cmd.Flags().IntVar(&count, "count", 0, "作成数")
	cmd.Flags().StringVar(&labels, "labels", "", "ラベルのカンマ区切り。指定時は --prefix/--count を無視")
	_ = cmd.MarkFlagRequired("domain")
	_ = cmd.MarkFlagRequired("resource")
	return cmd
}
