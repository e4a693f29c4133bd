package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/api"
	"github.com/dmitrijs2005/authkeeper/internal/client/authclient"
	"github.com/spf13/cobra"
)

func printProfile(w io.Writer, p *api.Profile) {
	fmt.Fprintf(w, "id:       %s\n", p.ID)
	fmt.Fprintf(w, "email:    %s\n", p.Email)
	fmt.Fprintf(w, "name:     %s\n", p.DisplayName)
	fmt.Fprintf(w, "verified: %t\n", p.IsVerified)
	if !p.CreatedAt.IsZero() {
		fmt.Fprintf(w, "created:  %s\n", p.CreatedAt.UTC().Format(time.RFC3339))
	}
}

func newSignUpCmd(opts *options) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "signup <email>",
		Short: "Create an account and sign in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := newPrompter(cmd).password("Password")
			if err != nil {
				return err
			}
			return opts.withClient(cmd, func(ctx context.Context, c *authclient.Client) error {
				p, err := c.SignUp(ctx, args[0], pw, name)
				if err != nil {
					return err
				}
				cmd.Printf("signed up as %s\n", p.Email)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newSignInCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "signin <email>",
		Short: "Sign in and cache the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := newPrompter(cmd).password("Password")
			if err != nil {
				return err
			}
			return opts.withClient(cmd, func(ctx context.Context, c *authclient.Client) error {
				p, err := c.SignIn(ctx, args[0], pw)
				if err != nil {
					return err
				}
				cmd.Printf("signed in as %s\n", p.Email)
				return nil
			})
		},
	}
}

func newRefreshCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Rotate the cached refresh token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withClient(cmd, func(ctx context.Context, c *authclient.Client) error {
				pair, err := c.Refresh(ctx)
				if err != nil {
					return err
				}
				if pair.AccessExpiresAt.IsZero() {
					cmd.Println("session refreshed")
					return nil
				}
				cmd.Printf("session refreshed, access token valid until %s\n", pair.AccessExpiresAt.UTC().Format(time.RFC3339))
				return nil
			})
		},
	}
}

func newSignOutCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Revoke the cached session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withClient(cmd, func(ctx context.Context, c *authclient.Client) error {
				if err := c.SignOut(ctx); err != nil {
					return err
				}
				cmd.Println("signed out")
				return nil
			})
		},
	}
}

func newMeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withClient(cmd, func(ctx context.Context, c *authclient.Client) error {
				p, err := c.Me(ctx)
				if err != nil {
					return err
				}
				printProfile(cmd.OutOrStdout(), p)
				return nil
			})
		},
	}
}

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether the cached session is accepted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withClient(cmd, func(ctx context.Context, c *authclient.Client) error {
				s, err := c.Status(ctx)
				if err != nil {
					return err
				}
				if !s.Authenticated {
					cmd.Println("not signed in")
					return nil
				}
				cmd.Printf("signed in as %s (%s)\n", s.Email, s.UserID)
				return nil
			})
		},
	}
}

func newUpdateProfileCmd(opts *options) *cobra.Command {
	var name, email string
	cmd := &cobra.Command{
		Use:   "update-profile",
		Short: "Change display name or email",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var namePtr, emailPtr *string
			if cmd.Flags().Changed("name") {
				namePtr = &name
			}
			if cmd.Flags().Changed("email") {
				emailPtr = &email
			}
			return opts.withClient(cmd, func(ctx context.Context, c *authclient.Client) error {
				p, err := c.UpdateProfile(ctx, namePtr, emailPtr)
				if err != nil {
					return err
				}
				printProfile(cmd.OutOrStdout(), p)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new display name")
	cmd.Flags().StringVar(&email, "email", "", "new email address")
	return cmd
}

func newChangePasswordCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "change-password",
		Short: "Change the password of the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := newPrompter(cmd)
			current, err := p.password("Current password")
			if err != nil {
				return err
			}
			next, err := p.password("New password")
			if err != nil {
				return err
			}
			return opts.withClient(cmd, func(ctx context.Context, c *authclient.Client) error {
				if err := c.ChangePassword(ctx, current, next); err != nil {
					return err
				}
				cmd.Println("password changed, other sessions were signed out")
				return nil
			})
		},
	}
}
