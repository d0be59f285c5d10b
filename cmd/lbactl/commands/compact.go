package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Compact the block-address log",
	Long: `Compact rewrites the block-address log so it holds exactly one live entry
per assigned block id, discarding every superseded entry, then syncs the
new generation and replaces the anchor file.`,
	RunE: runCompact,
}

func runCompact(cmd *cobra.Command, args []string) error {
	alloc, err := openAllocator()
	if err != nil {
		return err
	}
	defer alloc.Close()

	dir, err := recoverDirectory(alloc)
	if err != nil {
		return err
	}

	before := dir.Stats()
	dir.GC()
	syncAndWait(dir)
	anchor := dir.Anchor()
	after := dir.Stats()
	dir.Shutdown()

	if err := writeAnchor(anchor); err != nil {
		return err
	}

	fmt.Printf("Compacted %d assigned ids (%d live, %d tombstones), %d compactions run\n",
		after.MaxBlockID, after.LiveBlocks, after.Tombstones, after.Compactions-before.Compactions)
	return nil
}
