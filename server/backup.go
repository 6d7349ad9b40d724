package server

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/flate"

	"github.com/cubeflix/csh/internal/codec"
	"github.com/cubeflix/csh/internal/protoerr"
)

// adminBackupHandler implements admin command 10: zip the server root
// into BACKUP-YYYYmmdd-HHMMSS.bak.zip under the given host path,
// refusing to overwrite an existing archive there unless replace is
// true. The reference implementation's replace check reads an outer
// variable instead of the request's own replace argument (SPEC_FULL.md
// §4.[FULL] correction 4); here the argument is honored directly.
func (s *Server) adminBackupHandler(args codec.Mapping) codec.Mapping {
	destDir, ok := getString(args, "path")
	if !ok {
		return errorReply(protoerr.MissingArgs, "missing path")
	}
	replace, _ := getBool(args, "replace")

	name := fmt.Sprintf("BACKUP-%s.bak.zip", time.Now().UTC().Format("20060102-150405"))
	full := filepath.Join(destDir, name)

	if _, err := os.Stat(full); err == nil && !replace {
		return errorReply(protoerr.BackupAlreadyExists, "backup already exists")
	}

	if err := createZipBackup(full, s.fsops.Root()); err != nil {
		return errorReply(protoerr.FilesystemError, err.Error())
	}
	return okReply()
}

// createZipBackup archives every file under root into a new zip file
// at dest, using klauspost/compress's flate, registered through
// archive/zip's RegisterCompressor hook in place of the built-in
// Deflate compressor.
func createZipBackup(dest, root string) error {
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.DefaultCompression)
	})
	defer zw.Close()

	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		header.Method = zip.Deflate

		writer, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()

		_, err = io.Copy(writer, in)
		return err
	})
}
