// Package transfer copies staged snapshots to the backup target and checks
// the copied artifact afterwards.
package transfer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	appErrors "revit-server-backup/internal/errors"
)

// DefaultMaxAge is the freshness window applied when none is configured
const DefaultMaxAge = 8 * time.Hour

// VerificationStatus is the outcome of a post-copy check
type VerificationStatus string

const (
	StatusFresh           VerificationStatus = "fresh"
	StatusStale           VerificationStatus = "stale"
	StatusMissing         VerificationStatus = "missing"
	StatusChecksumOK      VerificationStatus = "checksum_ok"
	StatusChecksumInvalid VerificationStatus = "checksum_mismatch"
)

// CopyResult describes a completed copy
type CopyResult struct {
	Bytes  int64
	SHA256 string
}

// Verification is an advisory check result. Warning is set when the check
// did not pass; it is never returned as an error.
type Verification struct {
	Status  VerificationStatus
	Message string
	Age     time.Duration
	Warning *appErrors.AppError
}

// OK reports whether the check passed
func (v Verification) OK() bool {
	return v.Warning == nil
}

// Verifier copies files into the backup target and verifies the result
type Verifier struct {
	now func() time.Time
}

// NewVerifier creates a new transfer verifier
func NewVerifier() *Verifier {
	return &Verifier{now: time.Now}
}

// WithClock replaces the verifier's time source
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// CopyToTarget copies src to dst, creating dst's parent directories and
// keeping src's permissions and modification time. The data is written to a
// temporary sibling first so an interrupted copy never replaces the previous
// backup at dst.
func (v *Verifier) CopyToTarget(src, dst string) (CopyResult, error) {
	info, err := os.Stat(src)
	if err != nil {
		return CopyResult{}, transferError("snapshot is not readable", src, dst, err)
	}
	if !info.Mode().IsRegular() {
		return CopyResult{}, transferError("snapshot is not a regular file", src, dst, nil)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return CopyResult{}, transferError("failed to create target directory", src, dst, err)
	}

	in, err := os.Open(src)
	if err != nil {
		return CopyResult{}, transferError("failed to open snapshot", src, dst, err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.partial")
	if err != nil {
		return CopyResult{}, transferError("failed to create temporary target file", src, dst, err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	hash := sha256.New()
	written, err := io.Copy(io.MultiWriter(tmp, hash), in)
	if err != nil {
		return CopyResult{}, transferError("failed to copy snapshot data", src, dst, err)
	}
	if err := tmp.Sync(); err != nil {
		return CopyResult{}, transferError("failed to flush target file", src, dst, err)
	}
	if err := tmp.Close(); err != nil {
		return CopyResult{}, transferError("failed to close target file", src, dst, err)
	}

	if err := os.Chmod(tmpPath, info.Mode().Perm()); err != nil {
		return CopyResult{}, transferError("failed to preserve file mode", src, dst, err)
	}
	if err := os.Chtimes(tmpPath, info.ModTime(), info.ModTime()); err != nil {
		return CopyResult{}, transferError("failed to preserve modification time", src, dst, err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return CopyResult{}, transferError("failed to move copy into place", src, dst, err)
	}
	committed = true

	return CopyResult{
		Bytes:  written,
		SHA256: hex.EncodeToString(hash.Sum(nil)),
	}, nil
}

// VerifyFreshness checks that dst exists and was modified strictly less than
// maxAge ago. A non-positive maxAge uses DefaultMaxAge.
func (v *Verifier) VerifyFreshness(dst string, maxAge time.Duration) Verification {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	info, err := os.Stat(dst)
	if err != nil {
		return Verification{
			Status:  StatusMissing,
			Message: "Backup file does not exist",
			Warning: appErrors.NewVerificationWarning(
				fmt.Sprintf("backup file does not exist: %s", dst), err).WithContext("target", dst),
		}
	}

	age := v.now().UTC().Sub(info.ModTime().UTC())
	if age < maxAge {
		return Verification{
			Status:  StatusFresh,
			Message: fmt.Sprintf("Backup file was updated within the last %s", formatWindow(maxAge)),
			Age:     age,
		}
	}

	return Verification{
		Status:  StatusStale,
		Message: fmt.Sprintf("Backup file is stale: not updated within the last %s", formatWindow(maxAge)),
		Age:     age,
		Warning: appErrors.NewVerificationWarning(
			fmt.Sprintf("backup file is stale: %s", dst), nil).
			WithContext("target", dst).
			WithContext("age", age.String()),
	}
}

// VerifyChecksum recomputes the SHA-256 of dst and compares it with expected
func (v *Verifier) VerifyChecksum(dst, expected string) Verification {
	actual, err := FileSHA256(dst)
	if err != nil {
		return Verification{
			Status:  StatusMissing,
			Message: "Backup file could not be read for checksum",
			Warning: appErrors.NewVerificationWarning(
				fmt.Sprintf("cannot checksum %s", dst), err).WithContext("target", dst),
		}
	}
	if actual != expected {
		return Verification{
			Status:  StatusChecksumInvalid,
			Message: "Backup file checksum does not match the snapshot",
			Warning: appErrors.NewVerificationWarning(
				fmt.Sprintf("checksum mismatch for %s", dst), nil).
				WithContext("target", dst).
				WithContext("expected", expected).
				WithContext("actual", actual),
		}
	}
	return Verification{Status: StatusChecksumOK, Message: "Backup file checksum matches the snapshot"}
}

// FileSHA256 returns the hex SHA-256 digest of the file at path
func FileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

func formatWindow(d time.Duration) string {
	if d%time.Hour == 0 {
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	}
	return d.String()
}

func transferError(message, src, dst string, cause error) *appErrors.AppError {
	return appErrors.NewTransferError(fmt.Sprintf("%s: %s", message, src), cause).
		WithContext("source", src).
		WithContext("target", dst)
}
