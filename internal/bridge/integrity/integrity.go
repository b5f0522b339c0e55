// Package integrity verifies the persona registry against a SHA-256
// checksum manifest at startup.
//
// The manifest lives at <root>/CHECKSUMS.sha256 and contains one
// "<hex-hash>  <relative-path>" line per tracked file. Verification is
// advisory: a missing manifest, a missing file, or a mismatched hash is
// logged as a warning and never blocks startup.
package integrity

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ManifestName is the checksum manifest filename under the registry root.
const ManifestName = "CHECKSUMS.sha256"

// Report summarizes a verification pass.
type Report struct {
	// Checked is how many manifest entries were examined.
	Checked int
	// Verified is how many files matched their recorded hash.
	Verified int
	// Failed lists relative paths that were missing or mismatched.
	Failed []string
}

// OK reports whether every checked file verified.
func (r Report) OK() bool { return len(r.Failed) == 0 }

// Verify checks the manifest under root, logging a warning per failure.
// It never returns an error: integrity problems degrade to warnings.
// If logger is nil, the default slog logger is used.
func Verify(root string, logger *slog.Logger) Report {
	if logger == nil {
		logger = slog.Default()
	}

	f, err := os.Open(filepath.Join(root, ManifestName))
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("integrity: cannot read checksum manifest", "err", err)
		}
		return Report{}
	}
	defer f.Close()

	var report Report
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			logger.Warn("integrity: skipping malformed manifest line", "line", line)
			continue
		}
		wantHash, relPath := fields[0], fields[1]
		report.Checked++

		gotHash, err := hashFile(filepath.Join(root, relPath))
		if err != nil {
			logger.Warn("integrity: file missing or unreadable", "path", relPath, "err", err)
			report.Failed = append(report.Failed, relPath)
			continue
		}
		if !strings.EqualFold(gotHash, wantHash) {
			logger.Warn("integrity: checksum mismatch", "path", relPath)
			report.Failed = append(report.Failed, relPath)
			continue
		}
		report.Verified++
	}
	if err := scanner.Err(); err != nil {
		logger.Warn("integrity: reading manifest", "err", err)
	}

	if report.OK() && report.Checked > 0 {
		logger.Info("integrity check passed", "files", report.Verified)
	}
	return report
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
