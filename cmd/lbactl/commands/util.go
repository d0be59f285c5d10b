package commands

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/marmos91/lbalog/internal/bytesize"
	"github.com/marmos91/lbalog/pkg/extent"
	"github.com/marmos91/lbalog/pkg/lba"
	"github.com/marmos91/lbalog/pkg/lba/extlog"
)

// anchorPath resolves the anchor file location from config.
func anchorPath() string {
	if p := viper.GetString("anchor"); p != "" {
		return p
	}
	return viper.GetString("data") + ".anchor"
}

// openAllocator opens the configured data file.
func openAllocator() (*extent.Allocator, error) {
	size, err := bytesize.Parse(viper.GetString("extent-size"))
	if err != nil {
		return nil, fmt.Errorf("parse extent-size: %w", err)
	}
	return extent.Open(viper.GetString("data"), size.Int64())
}

// recoverDirectory opens the directory from the anchor file and blocks
// until it is ready. Policy-driven compaction is off: lbactl compacts only
// when asked to.
func recoverDirectory(alloc *extent.Allocator) (*lba.Directory, error) {
	anchor, err := os.ReadFile(anchorPath())
	if err != nil {
		return nil, fmt.Errorf("read anchor file (is the log initialized?): %w", err)
	}

	dir := lba.New(extlog.New(alloc), lba.WithGCPolicy(lba.NeverCompact))
	ready := make(chan struct{})
	done, err := dir.Recover(anchor, func() { close(ready) })
	if err != nil {
		return nil, err
	}
	if !done {
		<-ready
	}
	return dir, nil
}

// syncAndWait runs one sync to completion.
func syncAndWait(dir *lba.Directory) {
	done := make(chan struct{})
	if !dir.Sync(func() { close(done) }) {
		<-done
	}
}

// writeAnchor atomically replaces the anchor file.
func writeAnchor(anchor []byte) error {
	path := anchorPath()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, anchor, 0644); err != nil {
		return fmt.Errorf("write anchor: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace anchor: %w", err)
	}
	return nil
}
