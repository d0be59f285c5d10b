package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/marmos91/lbalog/pkg/lba"
	"github.com/marmos91/lbalog/pkg/lba/extlog"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a fresh block-address log",
	Long: `Init creates an empty block-address log in the configured data file and
writes its anchor next to it. Refuses to overwrite an existing anchor
unless --force is given.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing anchor file")
}

func runInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(anchorPath()); err == nil && !initForce {
		return fmt.Errorf("anchor file %s already exists (use --force to overwrite)", anchorPath())
	}

	alloc, err := openAllocator()
	if err != nil {
		return err
	}
	defer alloc.Close()

	dir := lba.New(extlog.New(alloc), lba.WithGCPolicy(lba.NeverCompact))
	if err := dir.Start(); err != nil {
		return err
	}
	syncAndWait(dir)
	anchor := dir.Anchor()
	dir.Shutdown()

	if err := writeAnchor(anchor); err != nil {
		return err
	}

	fmt.Printf("Initialized empty block-address log in %s\n", viper.GetString("data"))
	return nil
}
