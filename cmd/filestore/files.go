package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/lgulliver/filestore/internal/filestore"
	"github.com/lgulliver/filestore/internal/storage"
)

func conditionFlags(cmd *cobra.Command, cond *storage.AccessCondition) {
	cmd.Flags().StringVar(&cond.IfMatch, "if-match", "", "only overwrite a file with this ETag")
	cmd.Flags().StringVar(&cond.IfNoneMatch, "if-none-match", "", `refuse to overwrite a file with this ETag, or any file with "*"`)
}

func (c *cli) putCmd() *cobra.Command {
	var cond storage.AccessCondition

	cmd := &cobra.Command{
		Use:   "put <container> <name> [content]",
		Short: "Upload text, or standard input when no content is given",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.fileStore()
			if err != nil {
				return err
			}

			opts := []filestore.Option{c.visibility(), filestore.WithAccessCondition(cond)}
			var uri string
			if len(args) == 3 {
				uri, err = store.PutString(cmd.Context(), containerArg(args[0]), args[1], args[2], opts...)
			} else {
				uri, err = store.Put(cmd.Context(), containerArg(args[0]), args[1], cmd.InOrStdin(), opts...)
			}
			if err != nil {
				return err
			}

			fmt.Fprintln(c.out, uri)
			return nil
		},
	}
	conditionFlags(cmd, &cond)
	return cmd
}

func (c *cli) putFileCmd() *cobra.Command {
	var cond storage.AccessCondition

	cmd := &cobra.Command{
		Use:   "put-file <container> <name> <path>",
		Short: "Upload a local file",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.fileStore()
			if err != nil {
				return err
			}

			uri, err := store.PutFile(cmd.Context(), containerArg(args[0]), args[1], args[2],
				c.visibility(), filestore.WithAccessCondition(cond))
			if err != nil {
				return err
			}

			fmt.Fprintln(c.out, uri)
			return nil
		},
	}
	conditionFlags(cmd, &cond)
	return cmd
}

func (c *cli) getCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "get <container> <name>",
		Short: "Download a file to standard output or a local path",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.fileStore()
			if err != nil {
				return err
			}

			if output == "" {
				_, err = store.Get(cmd.Context(), containerArg(args[0]), args[1], c.out, c.visibility())
				return err
			}

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", output, err)
			}
			if _, err := store.Get(cmd.Context(), containerArg(args[0]), args[1], f, c.visibility()); err != nil {
				f.Close()
				os.Remove(output)
				return err
			}
			return f.Close()
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to this path instead of standard output")
	return cmd
}

func (c *cli) catCmd() *cobra.Command {
	var encodingName string

	cmd := &cobra.Command{
		Use:   "cat <container> <name>",
		Short: "Print a file as text",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.fileStore()
			if err != nil {
				return err
			}

			opts := []filestore.Option{c.visibility()}
			if encodingName != "" {
				enc, err := htmlindex.Get(encodingName)
				if err != nil {
					return fmt.Errorf("unknown encoding %q: %w", encodingName, err)
				}
				opts = append(opts, filestore.WithEncoding(enc))
			}

			text, err := store.GetString(cmd.Context(), containerArg(args[0]), args[1], opts...)
			if err != nil {
				return err
			}

			fmt.Fprint(c.out, text)
			return nil
		},
	}
	cmd.Flags().StringVar(&encodingName, "encoding", "", "text encoding, such as windows-1252 (default utf-8)")
	return cmd
}

func (c *cli) lsCmd() *cobra.Command {
	var prefix string

	cmd := &cobra.Command{
		Use:   "ls <container>",
		Short: "List files in a container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.fileStore()
			if err != nil {
				return err
			}

			items, err := store.List(cmd.Context(), containerArg(args[0]), prefix, c.visibility())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSIZE\tCONTENT TYPE\tLAST MODIFIED")
			for _, item := range items {
				modified := "-"
				if item.LastModified != nil {
					modified = item.LastModified.UTC().Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", item.Name, item.Length, item.ContentType, modified)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "only list files whose names start with this prefix")
	return cmd
}

func (c *cli) rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <container> <name>",
		Short: "Delete a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.fileStore()
			if err != nil {
				return err
			}

			deleted, err := store.Delete(cmd.Context(), containerArg(args[0]), args[1], c.visibility())
			if err != nil {
				return err
			}
			if !deleted {
				return fmt.Errorf("%s: %w", args[1], storage.ErrNotFound)
			}
			return nil
		},
	}
}

func (c *cli) existsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exists <container> <name>",
		Short: "Report whether a file exists",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.fileStore()
			if err != nil {
				return err
			}

			exists, err := store.Exists(cmd.Context(), containerArg(args[0]), args[1], c.visibility())
			if err != nil {
				return err
			}

			fmt.Fprintln(c.out, exists)
			return nil
		},
	}
}

func (c *cli) urlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "url <container> <name>",
		Short: "Print the anonymous URL of a file in the public container",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.fileStore()
			if err != nil {
				return err
			}

			url, err := store.URL(cmd.Context(), containerArg(args[0]), args[1])
			if err != nil {
				return err
			}

			fmt.Fprintln(c.out, url)
			return nil
		},
	}
}

func (c *cli) rmContainerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm-container <container>",
		Short: "Delete a container and every file in it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.fileStore()
			if err != nil {
				return err
			}

			deleted, err := store.DeleteContainer(cmd.Context(), containerArg(args[0]), c.visibility())
			if err != nil {
				return err
			}
			if !deleted {
				fmt.Fprintf(c.out, "container %s does not exist\n", filestore.ContainerName(containerArg(args[0]), c.public))
			}
			return nil
		},
	}
}
