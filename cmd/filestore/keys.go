package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lgulliver/filestore/internal/auth"
	pkgauth "github.com/lgulliver/filestore/pkg/auth"
)

func (c *cli) keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a gateway API key and the hash to add to API_KEY_HASHES",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := pkgauth.GenerateAPIKey()
			if err != nil {
				return err
			}

			fmt.Fprintf(c.out, "key:  %s\n", key)
			fmt.Fprintf(c.out, "hash: %s\n", pkgauth.HashAPIKey(key))
			return nil
		},
	}
}

func (c *cli) tokenCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Issue a gateway JWT signed with JWT_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := auth.NewService(&c.cfg.Auth).IssueToken(args[0], ttl)
			if err != nil {
				return err
			}

			fmt.Fprintln(c.out, token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default JWT_EXPIRATION)")
	return cmd
}
