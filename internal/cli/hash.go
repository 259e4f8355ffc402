package cli

import (
	"fmt"
	"strings"

	"github.com/jrsteele09/go-auth-core/hashing"
	"github.com/spf13/cobra"
)

func newHashCommand(a *app) *cobra.Command {
	var algorithm, saltStyle, salt string

	cmd := &cobra.Command{
		Use:   "hash <password>",
		Short: "Hash a password and print the salt and hash",
		Long: `Hash a password with the configured strategy.

With the COLUMN salt style a random salt is generated unless --salt is given.
With EXTERNAL, --salt (or hash.external_salt) is the shared salt.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hc := a.cfg.Hash
			if algorithm != "" {
				hc.Algorithm = hashing.Algorithm(strings.ToUpper(algorithm))
			}
			if saltStyle != "" {
				hc.SaltStyle = hashing.SaltStyle(strings.ToUpper(saltStyle))
			}
			if hc.SaltStyle == hashing.External && salt != "" {
				hc.ExternalSalt = salt
			}

			strategy, err := hashing.New(hc)
			if err != nil {
				return err
			}

			record := hashing.Plain{Salt: salt}
			if strategy.SaltStyle() == hashing.Column && record.Salt == "" {
				if record.Salt, err = hashing.GenerateSalt(); err != nil {
					return err
				}
			}

			hash, err := strategy.ComputeHash(args[0], record)
			if err != nil {
				return err
			}
			used, _ := strategy.GetSalt(record)
			a.logger.Debug().
				Str("algorithm", string(strategy.Algorithm())).
				Str("salt_style", string(strategy.SaltStyle())).
				Msg("password hashed")

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "salt: %s\n", used)
			fmt.Fprintf(out, "hash: %s\n", hash)
			return nil
		},
	}

	cmd.Flags().StringVar(&algorithm, "algorithm", "", "SHA512, PBKDF2, ARGON2ID, BCRYPT or PLAINTEXT")
	cmd.Flags().StringVar(&saltStyle, "salt-style", "", "NO_SALT, COLUMN or EXTERNAL")
	cmd.Flags().StringVar(&salt, "salt", "", "salt to use instead of a generated one")
	return cmd
}
