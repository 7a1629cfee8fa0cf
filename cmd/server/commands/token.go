package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rl1809/split-market/internal/adapter/auth"
	"github.com/rl1809/split-market/internal/core/domain"
)

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage API credentials",
	}
	cmd.AddCommand(tokenIssueCmd())
	return cmd
}

func tokenIssueCmd() *cobra.Command {
	var (
		account string
		role    string
	)
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a signed bearer token for an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			r := domain.Role(role)
			if r != domain.RoleUser && r != domain.RoleRuntime {
				return fmt.Errorf("role must be %q or %q", domain.RoleUser, domain.RoleRuntime)
			}
			authn, err := auth.NewAuthenticator(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL)
			if err != nil {
				return err
			}
			token, err := authn.Issue(account, r)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "account the token identifies")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleUser), "user or runtime")
	cmd.MarkFlagRequired("account")
	return cmd
}
