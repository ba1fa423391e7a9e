// Command mkfs builds a disk image for the simulator: format a fresh
// filesystem of a given block count, then recursively copy a host
// directory tree into it. Grounded on the teacher's
// biscuit/src/mkfs/mkfs.go (copydata/addfiles walking a skeleton
// directory with filepath.WalkDir, MkDir/Append against a Ufs_t), with
// the actual filesystem work delegated to internal/ufs instead of the
// teacher's own ufs harness, and cobra/viper/logrus/uuid layered on
// top for the ambient CLI/config/logging stack the rest of the
// retrieval pack uses.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"labkernel/internal/defs"
	"labkernel/internal/ufs"
	"labkernel/internal/ustr"
)

var log = logrus.WithField("component", "mkfs")

var rootCmd = &cobra.Command{
	Use:   "mkfs --image=PATH --nblocks=N [--skel=DIR]",
	Short: "Format a labkernel disk image and populate it from a host directory",
	RunE:  run,
}

func init() {
	flags := rootCmd.Flags()
	flags.String("image", "", "path to the disk image to create (required)")
	flags.Int("nblocks", 4096, "number of blocks to format the image with")
	flags.String("skel", "", "host directory tree to copy into the image root")

	viper.SetEnvPrefix("LABKERNEL_MKFS")
	viper.AutomaticEnv()
	if err := viper.BindPFlags(flags); err != nil {
		log.WithError(err).Fatal("binding flags")
	}
}

func run(cmd *cobra.Command, args []string) error {
	image := viper.GetString("image")
	if image == "" {
		return fmt.Errorf("--image is required")
	}
	nblocks := viper.GetInt("nblocks")
	skel := viper.GetString("skel")

	buildID := uuid.New()
	log.WithFields(logrus.Fields{
		"image":   image,
		"nblocks": nblocks,
		"buildId": buildID,
	}).Info("formatting image")

	u, err := ufs.Mkfs(image, nblocks)
	if err != nil {
		return fmt.Errorf("mkfs: %w", err)
	}
	defer u.Close()

	if skel != "" {
		if err := addfiles(u, skel); err != nil {
			return err
		}
	}

	u.Sync()
	log.WithField("buildId", buildID).Info("image ready")
	return nil
}

// addfiles walks skeldir on the host and replicates its contents into
// the image's root, grounded on the teacher's addfiles/copydata pair.
func addfiles(u *ufs.Ufs_t, skeldir string) error {
	return filepath.WalkDir(skeldir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("accessing %q: %w", path, err)
		}
		rel := strings.TrimPrefix(path, skeldir)
		if rel == "" {
			return nil
		}
		rel = "/" + strings.TrimPrefix(rel, "/")

		if d.IsDir() {
			if derr := u.MkDir(ustr.Ustr(rel)); derr != 0 && derr != defs.EEXIST {
				return fmt.Errorf("mkdir %q: %s", rel, derr)
			}
			return nil
		}
		return copydata(path, u, rel)
	})
}

// copydata reads the host file at src and creates it in the image at
// dst, grounded on the teacher's copydata's chunked Append loop.
func copydata(src string, u *ufs.Ufs_t, dst string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %q: %w", src, err)
	}
	defer f.Close()

	if cerr := u.MkFile(ustr.Ustr(dst), nil); cerr != 0 {
		return fmt.Errorf("creating %q: %s", dst, cerr)
	}

	buf := make([]byte, defs.PGSIZE)
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			if aerr := u.Append(ustr.Ustr(dst), buf[:n]); aerr != 0 {
				return fmt.Errorf("writing %q: %s", dst, aerr)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return fmt.Errorf("reading %q: %w", src, rerr)
		}
	}
	log.WithField("path", dst).Debug("copied file")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Fatal("mkfs failed")
	}
}
