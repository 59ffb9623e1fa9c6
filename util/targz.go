package util

import (
	"archive/tar"
	"io"
	"os"
	"time"

	"github.com/klauspost/pgzip"
	"github.com/pkg/errors"
)

// TarGzWriter returns a file, gzip writer, and tar writer for the path.
// The tar writer wraps the gzip writer, which wraps the file. Callers
// must close all three, innermost first.
func TarGzWriter(path string) (f, gz io.WriteCloser, tarWriter *tar.Writer, err error) {
	f, err = os.Create(path)
	if err != nil {
		return nil, nil, nil, errors.WithStack(err)
	}
	gz = pgzip.NewWriter(f)
	tarWriter = tar.NewWriter(gz)
	return f, gz, tarWriter, nil
}

// TarGzReader returns a file, gzip reader, and tar reader for the given path.
// The tar reader wraps the gzip reader, which wraps the file.
func TarGzReader(path string) (f, gz io.ReadCloser, tarReader *tar.Reader, err error) {
	f, err = os.Open(path)
	if err != nil {
		return nil, nil, nil, errors.WithStack(err)
	}
	gz, err = pgzip.NewReader(f)
	if err != nil {
		defer f.Close()
		return nil, nil, nil, errors.WithStack(err)
	}
	tarReader = tar.NewReader(gz)
	return f, gz, tarReader, nil
}

// AddTarFile writes the file at path into the archive under the given
// name, carrying over the file's mode and modification time.
func AddTarFile(tarWriter *tar.Writer, path, name string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrapf(err, "stating '%s'", path)
	}

	hdr := &tar.Header{
		Name:    name,
		Mode:    int64(info.Mode()),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
	if err = tarWriter.WriteHeader(hdr); err != nil {
		return errors.Wrapf(err, "writing header for '%s'", name)
	}

	in, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "opening '%s'", path)
	}
	defer in.Close()

	wrote, err := io.Copy(tarWriter, in)
	if err != nil {
		return errors.Wrapf(err, "writing '%s' into archive", path)
	}
	if wrote != hdr.Size {
		return errors.Errorf("wrote %d bytes of '%s' into archive, header declares %d", wrote, name, hdr.Size)
	}

	return nil
}

// AddTarEntry writes an in-memory blob into the archive under the given
// name and mode.
func AddTarEntry(tarWriter *tar.Writer, name string, data []byte, mode os.FileMode) error {
	hdr := &tar.Header{
		Name:    name,
		Mode:    int64(mode),
		Size:    int64(len(data)),
		ModTime: time.Now(),
	}
	if err := tarWriter.WriteHeader(hdr); err != nil {
		return errors.Wrapf(err, "writing header for '%s'", name)
	}
	if _, err := tarWriter.Write(data); err != nil {
		return errors.Wrapf(err, "writing contents of '%s'", name)
	}
	return nil
}
