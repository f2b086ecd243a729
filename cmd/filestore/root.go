package main

import (
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/lgulliver/filestore/internal/filestore"
	"github.com/lgulliver/filestore/internal/logging"
	"github.com/lgulliver/filestore/internal/storage"
	"github.com/lgulliver/filestore/pkg/config"
)

// cli holds state shared by all subcommands
type cli struct {
	out    io.Writer
	public bool

	cfg   *config.Config
	store *filestore.FileStore
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{out: out}

	rootCmd := &cobra.Command{
		Use:   "filestore",
		Short: "Store and retrieve files in blob storage containers",
		Long: `filestore reads and writes files in containers of an Azure, S3 or local
blob storage backend, selected with STORAGE_TYPE. Public containers carry the
"-public" suffix and are readable anonymously per file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			c.cfg = cfg
			logging.Setup(cfg.Logging)
			return nil
		},
	}
	rootCmd.SetOut(out)
	rootCmd.PersistentFlags().BoolVar(&c.public, "public", false, "address the public variant of the container")

	rootCmd.AddCommand(
		c.putCmd(),
		c.putFileCmd(),
		c.getCmd(),
		c.catCmd(),
		c.lsCmd(),
		c.rmCmd(),
		c.existsCmd(),
		c.urlCmd(),
		c.rmContainerCmd(),
		c.keygenCmd(),
		c.tokenCmd(),
	)
	return rootCmd
}

// fileStore builds the store on first use so that commands which never
// touch storage do not need a reachable backend
func (c *cli) fileStore() (*filestore.FileStore, error) {
	if c.store != nil {
		return c.store, nil
	}

	backend, err := storage.NewStorageFactory(&c.cfg.Storage).CreateStorage()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.store = filestore.New(backend)
	return c.store, nil
}

func (c *cli) visibility() filestore.Option {
	return filestore.PublicAccess(c.public)
}

// containerArg canonicalises UUID container names
func containerArg(raw string) string {
	if id, err := uuid.Parse(raw); err == nil {
		return filestore.ContainerForID(id)
	}
	return raw
}
