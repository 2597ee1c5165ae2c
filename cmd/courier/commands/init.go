package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"courier/internal/app"
	"courier/internal/crypto"
	"courier/internal/domain"
	"courier/internal/store"
)

func initCmd() *cobra.Command {
	var (
		user         string
		password     string
		signalingKey string
		device       uint32
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Save account credentials and connection settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			if passphrase == "" {
				return fmt.Errorf("passphrase required (-p)")
			}
			cfg, err := config()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			generated := false
			if signalingKey == "" {
				if signalingKey, err = crypto.NewSignalingKey(); err != nil {
					return err
				}
				generated = true
			}

			credStore, profiles := app.NewStores(cfg)
			creds := domain.Credentials{User: user, Password: password, SignalingKey: signalingKey, Device: device}
			if err := credStore.SaveCredentials(passphrase, creds); err != nil {
				return err
			}
			err = profiles.SaveProfile(store.Profile{
				ServiceURL:     cfg.ServiceURL,
				TrustStorePath: cfg.TrustStorePath,
				UserAgent:      cfg.UserAgent,
				User:           user,
			})
			if err != nil {
				return err
			}

			fmt.Printf("Credentials saved for %s in %s\n", user, cfg.Home)
			if generated {
				fmt.Printf("Signaling key (register it with the service): %s\n", signalingKey)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "account number, e.g. +15550001")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.Flags().StringVar(&signalingKey, "signaling-key", "", "base64 signaling key (generated when empty)")
	cmd.Flags().Uint32Var(&device, "device", domain.DefaultDeviceID, "device id")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
