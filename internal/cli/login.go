package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jrsteele09/go-auth-core/auth"
	"github.com/jrsteele09/go-auth-core/hashing"
	"github.com/jrsteele09/go-auth-core/internal/config"
	"github.com/jrsteele09/go-auth-core/realm"
	"github.com/jrsteele09/go-auth-core/sessions"
	"github.com/jrsteele09/go-auth-core/store/properties"
	"github.com/spf13/cobra"
)

const passwordEnv = "AUTHCTL_PASSWORD"

func newLoginCommand(a *app) *cobra.Command {
	var (
		usersFile string
		password  string
		hashed    bool
		detailed  bool
		checks    []string
	)

	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Log in against a properties realm and print the session",
		Long: `Authenticate a user from a properties file through a session registry.

The password is read from --password or ` + passwordEnv + `. Passwords in the
file are compared as written unless --hashed is set, in which case the
configured hash strategy is used.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if usersFile == "" {
				usersFile = a.cfg.Store.UsersFile
			}
			if usersFile == "" {
				return fmt.Errorf("--users or store.users_file is required: %w", auth.ErrInvalidConfig)
			}
			if password == "" {
				password = config.GetEnv(passwordEnv, "")
			}

			users, err := properties.Load(usersFile, properties.WithLogger(a.logger))
			if err != nil {
				return err
			}
			hc := hashing.Config{Algorithm: hashing.Plaintext, SaltStyle: hashing.NoSalt}
			if hashed {
				hc = a.cfg.Hash
			}
			strategy, err := hashing.New(hc)
			if err != nil {
				return err
			}
			provider, err := realm.New(users, strategy, realm.WithDetailedErrors(detailed), realm.WithLogger(a.logger))
			if err != nil {
				return err
			}

			registry, err := sessions.New(provider,
				sessions.WithDefaultTimeout(a.cfg.Sessions.Timeout),
				sessions.WithReaperPeriod(a.cfg.Sessions.ReaperPeriod),
				sessions.WithLogger(a.logger),
			)
			if err != nil {
				return err
			}
			registry.Start()
			defer registry.Stop()

			ctx := cmd.Context()
			username := args[0]
			id, err := registry.Login(ctx, auth.Credentials{
				realm.UsernameField: username,
				realm.PasswordField: password,
			})
			if err != nil {
				return err
			}
			defer func() {
				if err := registry.Logout(ctx, id); err != nil {
					a.logger.Warn().Err(err).Str("session", id).Msg("logout failed")
				}
			}()

			user, err := registry.User(ctx, id)
			if err != nil {
				return err
			}
			roles, err := users.Roles(ctx, username)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "session:   %s\n", id)
			fmt.Fprintf(out, "principal: %s\n", formatPrincipal(user.Principal()))
			fmt.Fprintf(out, "roles:     %s\n", strings.Join(roles, ","))
			for _, check := range checks {
				ok, err := registry.HasPermission(ctx, id, check)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: %t\n", check, ok)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&usersFile, "users", "", "properties file, store.users_file when unset")
	cmd.Flags().StringVar(&password, "password", "", "password, "+passwordEnv+" when unset")
	cmd.Flags().BoolVar(&hashed, "hashed", false, "verify with the configured hash strategy")
	cmd.Flags().BoolVar(&detailed, "detailed-errors", false, "report the exact authentication failure")
	cmd.Flags().StringArrayVar(&checks, "check", nil, "permission to test, role:<name> for roles (repeatable)")
	return cmd
}

func formatPrincipal(principal map[string]any) string {
	keys := make([]string, 0, len(principal))
	for k := range principal {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, principal[k]))
	}
	return strings.Join(parts, " ")
}
