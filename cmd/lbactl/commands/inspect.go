package commands

import (
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/marmos91/lbalog/internal/bytesize"
	"github.com/marmos91/lbalog/pkg/lba"
)

var inspectBlocks int

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print the current block-address mappings",
	Long: `Inspect loads the block-address log from its anchor and prints a summary
of the directory, optionally followed by the first N block mappings.`,
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().IntVar(&inspectBlocks, "blocks", 0, "also list up to N block mappings")
}

func runInspect(cmd *cobra.Command, args []string) error {
	alloc, err := openAllocator()
	if err != nil {
		return err
	}
	defer alloc.Close()

	dir, err := recoverDirectory(alloc)
	if err != nil {
		return err
	}
	stats := dir.Stats()

	summary := tablewriter.NewWriter(os.Stdout)
	summary.SetHeader([]string{"Metric", "Value"})
	summary.Append([]string{"Max block id", strconv.FormatUint(uint64(stats.MaxBlockID), 10)})
	summary.Append([]string{"Live blocks", strconv.Itoa(stats.LiveBlocks)})
	summary.Append([]string{"Tombstones", strconv.Itoa(stats.Tombstones)})
	summary.Append([]string{"Extents in use", strconv.Itoa(alloc.InUse())})
	summary.Append([]string{"Extent size", bytesize.Size(alloc.ExtentSize()).String()})
	summary.Render()

	if inspectBlocks > 0 {
		blocks := tablewriter.NewWriter(os.Stdout)
		blocks.SetHeader([]string{"Block", "Offset"})
		max := stats.MaxBlockID
		for id, listed := lba.BlockID(0), 0; id < max && listed < inspectBlocks; id++ {
			off := dir.BlockOffset(id)
			value := "tombstone"
			if !off.IsTombstone() {
				value = strconv.FormatInt(int64(off), 10)
			}
			blocks.Append([]string{strconv.FormatUint(uint64(id), 10), value})
			listed++
		}
		blocks.Render()
	}

	dir.Shutdown()
	fmt.Println()
	return nil
}
