package upload

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"revit-server-backup/internal/config"
)

// Artifact is the file handed to a provider. Its base name is the name the
// file gets remotely.
type Artifact struct {
	Path string
	Size int64
	// Temporary is set when Path was produced by packaging; Release removes it
	Temporary bool
}

// Name returns the remote file name
func (a *Artifact) Name() string {
	return filepath.Base(a.Path)
}

// Release removes a packaged artifact and its staging directory
func (a *Artifact) Release() error {
	if !a.Temporary {
		return nil
	}
	return os.RemoveAll(filepath.Dir(a.Path))
}

// Packager applies the configured compression and encryption to a backup
// before it leaves the machine
type Packager struct {
	compression config.CompressionConfig
	encryption  config.EncryptionConfig
	workDir     string
}

// NewPackager creates a packager writing its artifacts under workDir
func NewPackager(cfg config.UploadConfig, workDir string) *Packager {
	return &Packager{
		compression: cfg.Compression,
		encryption:  cfg.Encryption,
		workDir:     workDir,
	}
}

// Enabled reports whether Package transforms its input at all
func (p *Packager) Enabled() bool {
	return p.compression.Enabled || p.encryption.Enabled
}

// Extension returns the suffix appended to packaged file names
func (p *Packager) Extension() string {
	ext := ""
	if p.compression.Enabled {
		if c, err := NewCompressor(p.compression.Algorithm); err == nil {
			ext += c.Extension()
		}
	}
	if p.encryption.Enabled {
		ext += EncryptionExtension
	}
	return ext
}

// Package produces the artifact to upload for src. Without compression or
// encryption configured src itself is returned.
func (p *Packager) Package(src string) (*Artifact, error) {
	info, err := os.Stat(src)
	if err != nil {
		return nil, fmt.Errorf("cannot read backup file: %w", err)
	}

	name := filepath.Base(src)
	if !p.Enabled() {
		return &Artifact{Path: src, Size: info.Size()}, nil
	}

	if err := os.MkdirAll(p.workDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create packaging directory: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("failed to open backup file: %w", err)
	}
	defer in.Close()

	stageDir, err := os.MkdirTemp(p.workDir, "package-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create package directory: %w", err)
	}
	outPath := filepath.Join(stageDir, name+p.Extension())

	out, err := os.Create(outPath)
	if err != nil {
		os.RemoveAll(stageDir)
		return nil, fmt.Errorf("failed to create package file: %w", err)
	}

	if err := p.encode(out, in); err != nil {
		out.Close()
		os.RemoveAll(stageDir)
		return nil, err
	}
	if err := out.Close(); err != nil {
		os.RemoveAll(stageDir)
		return nil, fmt.Errorf("failed to close package file: %w", err)
	}

	packaged, err := os.Stat(outPath)
	if err != nil {
		os.RemoveAll(stageDir)
		return nil, fmt.Errorf("cannot read package file: %w", err)
	}

	return &Artifact{Path: outPath, Size: packaged.Size(), Temporary: true}, nil
}

// encode streams in through compression and then encryption into out.
// Writers are closed innermost first so every layer flushes its trailer.
func (p *Packager) encode(out io.Writer, in io.Reader) error {
	var closers []io.Closer
	w := out

	if p.encryption.Enabled {
		passphrase, err := p.encryption.Passphrase()
		if err != nil {
			return err
		}
		enc, err := NewEncryptWriter(w, passphrase)
		if err != nil {
			return err
		}
		closers = append(closers, enc)
		w = enc
	}

	if p.compression.Enabled {
		compressor, err := NewCompressor(p.compression.Algorithm)
		if err != nil {
			return err
		}
		cw, err := compressor.NewWriter(w, p.compression.Level)
		if err != nil {
			return err
		}
		closers = append(closers, cw)
		w = cw
	}

	if _, err := io.Copy(w, in); err != nil {
		return fmt.Errorf("failed to package backup: %w", err)
	}

	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			return fmt.Errorf("failed to finish package: %w", err)
		}
	}
	return nil
}

// Unpack reverses Package, writing the original backup bytes of the package
// at src to dst
func (p *Packager) Unpack(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open package: %w", err)
	}
	defer in.Close()

	var r io.Reader = in
	if p.encryption.Enabled {
		passphrase, err := p.encryption.Passphrase()
		if err != nil {
			return err
		}
		if r, err = NewDecryptReader(r, passphrase); err != nil {
			return err
		}
	}

	if p.compression.Enabled {
		compressor, err := NewCompressor(p.compression.Algorithm)
		if err != nil {
			return err
		}
		cr, err := compressor.NewReader(r)
		if err != nil {
			return err
		}
		defer cr.Close()
		r = cr
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("failed to unpack %s: %w", src, err)
	}
	return out.Close()
}

// UnpackedName strips the packaging extensions from a package file name
func (p *Packager) UnpackedName(name string) string {
	return strings.TrimSuffix(name, p.Extension())
}
