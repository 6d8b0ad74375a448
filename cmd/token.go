package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for local testing",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		role, _ := cmd.Flags().GetString("role")

		tokens, err := auth.NewTokens(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
		if err != nil {
			return err
		}
		s, err := tokens.Issue(auth.Identity{UserID: user, Role: auth.Role(role)})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), s)
		return err
	},
}

func init() {
	tokenCmd.Flags().String("user", "", "user id placed in the sub claim")
	tokenCmd.Flags().String("role", string(auth.RoleAttendee), "attendee, organizer or admin")
	_ = tokenCmd.MarkFlagRequired("user")
}
