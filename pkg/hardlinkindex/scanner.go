package hardlinkindex

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/LeonardoPuccio/smartmove/pkg/logger"
)

// Scanner enumerates every regular file with link count > 1 under root.
// With comprehensive set, the scan crosses filesystem boundaries
// reachable from root; otherwise it stays on root's filesystem.
type Scanner interface {
	Scan(ctx context.Context, root string, comprehensive bool) ([]Entry, error)
}

// FindScanner delegates scanning to find(1). Kept as an alternative to
// the native walker for setups where find outperforms a stat walk
// (e.g. very deep trees on network filesystems).
type FindScanner struct {
	log *logrus.Entry
}

func NewFindScanner() *FindScanner {
	return &FindScanner{log: logger.GetLogger("scanner")}
}

func (s *FindScanner) Scan(ctx context.Context, root string, comprehensive bool) ([]Entry, error) {
	args := []string{root}
	if !comprehensive {
		args = append(args, "-xdev")
	}
	args = append(args, "-type", "f", "-links", "+1", "-printf", "%D %i %p\n")

	cmd := exec.CommandContext(ctx, "find", args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	s.log.Debugf("Running: find %s", strings.Join(args, " "))

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.Wrapf(ctxErr, "hardlink scan timed out: %q", root)
		}
		return nil, errors.Wrapf(err, "hardlink scan failed: %q: %s", root,
			strings.TrimSpace(stderr.String()))
	}

	return s.parse(stdout.Bytes())
}

func (s *FindScanner) parse(out []byte) ([]Entry, error) {
	var entries []Entry

	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		// "%D %i %p" - path may contain spaces, split only twice
		parts := strings.SplitN(line, " ", 3)
		if len(parts) != 3 {
			s.log.Warnf("Skipping malformed scan line: %q", line)
			continue
		}

		device, err := strconv.ParseUint(parts[0], 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "parse device from scan line: %q", line)
		}

		inode, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "parse inode from scan line: %q", line)
		}

		entries = append(entries, Entry{
			ID:   FileID{Device: device, Inode: inode},
			Path: parts[2],
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read scan output")
	}

	return entries, nil
}
