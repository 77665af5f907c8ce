package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"askbox/internal/infra/config"
)

func newEncryptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt [value]",
		Short: "Encrypt a secret for use as an enc: config value",
		Long: `Encrypt a secret (such as provider.api_key) with the passphrase in
ASKBOX_CONFIG_KEY. Paste the printed value into the config file; askbox
decrypts it at load time when the same passphrase is set.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			passphrase := os.Getenv("ASKBOX_CONFIG_KEY")
			if passphrase == "" {
				return errors.New("ASKBOX_CONFIG_KEY is not set")
			}
			value, err := readQuestion(cmd.InOrStdin(), args)
			if err != nil {
				return errors.New("no value given")
			}
			enc, err := config.EncryptValue(value, passphrase)
			if err != nil {
				return fmt.Errorf("encrypt: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "enc:"+enc)
			return nil
		},
	}
}
