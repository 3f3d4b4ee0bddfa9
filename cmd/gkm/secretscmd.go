package main

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/geekmidas/gkm/internal/secrets"
)

func newSecretsCommand(log *logrus.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage encrypted per-stage secrets",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Generate a master key and an empty bag for the stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			configureLogger(log)
			root, err := workspaceRoot()
			if err != nil {
				return err
			}
			stage := viper.GetString("stage")
			if err := secrets.NewStore(root, log).Init(stage); err != nil {
				return err
			}
			log.WithField("stage", stage).Info("Secrets initialized")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Store one secret in the stage bag",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			configureLogger(log)
			root, err := workspaceRoot()
			if err != nil {
				return err
			}
			stage := viper.GetString("stage")
			if err := secrets.NewStore(root, log).Set(stage, args[0], args[1]); err != nil {
				return err
			}
			log.WithFields(logrus.Fields{"stage": stage, "key": args[0]}).Info("Secret stored")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List secret keys for the stage (values are not printed)",
		RunE: func(cmd *cobra.Command, args []string) error {
			configureLogger(log)
			root, err := workspaceRoot()
			if err != nil {
				return err
			}
			bag, err := secrets.NewStore(root, log).Decrypt(viper.GetString("stage"))
			if err != nil {
				return err
			}
			keys := make([]string, 0, len(bag.Values))
			for key := range bag.Values {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			for _, key := range keys {
				fmt.Println(key)
			}
			if bag.Services.Postgres != nil {
				fmt.Println("services.postgres")
			}
			if bag.Services.Redis != nil {
				fmt.Println("services.redis")
			}
			return nil
		},
	})

	return cmd
}
