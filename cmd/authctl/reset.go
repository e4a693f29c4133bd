package main

import (
	"context"

	"github.com/dmitrijs2005/authkeeper/internal/client/authclient"
	"github.com/spf13/cobra"
)

func newForgotCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "forgot <email>",
		Short: "Request a password reset email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(cmd, func(ctx context.Context, c *authclient.Client) error {
				msg, err := c.ForgotPassword(ctx, args[0])
				if err != nil {
					return err
				}
				cmd.Println(msg)
				return nil
			})
		},
	}
}

func newResetCmd(opts *options) *cobra.Command {
	var checkOnly bool
	cmd := &cobra.Command{
		Use:   "reset <user-id> <token>",
		Short: "Set a new password with a reset token",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, token := args[0], args[1]
			if checkOnly {
				return opts.withClient(cmd, func(ctx context.Context, c *authclient.Client) error {
					p, err := c.ValidateResetToken(ctx, userID, token)
					if err != nil {
						return err
					}
					cmd.Printf("token is valid for %s\n", p.Email)
					return nil
				})
			}

			pw, err := newPrompter(cmd).password("New password")
			if err != nil {
				return err
			}
			return opts.withClient(cmd, func(ctx context.Context, c *authclient.Client) error {
				if err := c.ResetPassword(ctx, userID, token, pw); err != nil {
					return err
				}
				cmd.Println("password reset, sign in with the new password")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&checkOnly, "check", false, "only check the token, do not spend it")
	return cmd
}
