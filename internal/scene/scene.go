// Package scene lays out accepted clusters as numbered group directories.
package scene

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"scene-splitter/internal/cluster"

	"golang.org/x/sync/errgroup"
)

// FilesystemError reports a failed move, mkdir or removal during
// materialization.
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error {
	return e.Err
}

// Options configures a Materializer.
type Options struct {
	MinSceneSize int    // Clusters must have more members than this
	GroupDigits  int    // Zero padding of group directory names
	SourceDir    string // Shared source directory, removed after relocation when Clean is set
	Clean        bool
	Workers      int // Concurrent cluster relocations; <= 0 means NumCPU
}

// DefaultOptions returns the default options.
func DefaultOptions() Options {
	return Options{
		MinSceneSize: 4,
		GroupDigits:  3,
		Clean:        true,
		Workers:      runtime.NumCPU(),
	}
}

// Group is an accepted cluster and where its files went.
type Group struct {
	ID        int      // Sequential id among accepted clusters
	ClusterID int      // Id of the source cluster
	Dir       string   // Destination directory
	Files     []string // Destination paths in member order
}

// Result summarises a materialization.
type Result struct {
	Groups    []Group
	Discarded int // Images in rejected clusters
}

// Materializer moves the members of accepted clusters into group directories.
type Materializer struct {
	DestDir string
	Options Options
	Logger  *slog.Logger
}

// NewMaterializer creates a Materializer writing groups under destDir.
func NewMaterializer(destDir string, opts Options, logger *slog.Logger) *Materializer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Materializer{DestDir: destDir, Options: opts, Logger: logger}
}

// Plan selects the accepted clusters in creation order and numbers them.
// It touches nothing on disk.
func (m *Materializer) Plan(a cluster.Assignment, paths []string) (Result, error) {
	var res Result
	for _, c := range a.Clusters {
		if c.Size() <= m.Options.MinSceneSize {
			res.Discarded += c.Size()
			continue
		}

		g := Group{
			ID:        len(res.Groups),
			ClusterID: c.ID,
			Dir:       filepath.Join(m.DestDir, GroupName(len(res.Groups), m.Options.GroupDigits)),
			Files:     make([]string, 0, c.Size()),
		}
		for _, idx := range c.Members {
			if idx < 0 || idx >= len(paths) {
				return Result{}, fmt.Errorf("cluster %d member %d has no path (%d paths)", c.ID, idx, len(paths))
			}
			g.Files = append(g.Files, filepath.Join(g.Dir, filepath.Base(paths[idx])))
		}
		res.Groups = append(res.Groups, g)
	}
	return res, nil
}

// Materialize relocates every accepted cluster, in parallel per cluster,
// then removes the source directory once all relocations succeeded. On
// error, clusters already moved stay moved and the source is kept.
func (m *Materializer) Materialize(ctx context.Context, a cluster.Assignment, paths []string) (Result, error) {
	res, err := m.Plan(a, paths)
	if err != nil {
		return Result{}, err
	}
	if m.Options.Clean && m.Options.SourceDir != "" && within(m.Options.SourceDir, m.DestDir) {
		return Result{}, fmt.Errorf("destination %s is inside source %s, which is removed after relocation",
			m.DestDir, m.Options.SourceDir)
	}

	workers := m.Options.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, group := range res.Groups {
		c := a.Clusters[group.ClusterID]
		g.Go(func() error {
			return m.relocate(gctx, group, c, paths)
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	if m.Options.Clean && m.Options.SourceDir != "" {
		if err := os.RemoveAll(m.Options.SourceDir); err != nil {
			return res, &FilesystemError{Op: "remove", Path: m.Options.SourceDir, Err: err}
		}
		m.Logger.Debug("removed source directory", "dir", m.Options.SourceDir)
	}

	return res, nil
}

func (m *Materializer) relocate(ctx context.Context, group Group, c cluster.Cluster, paths []string) error {
	if err := os.MkdirAll(group.Dir, 0o755); err != nil {
		return &FilesystemError{Op: "mkdir", Path: group.Dir, Err: err}
	}
	for i, idx := range c.Members {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := MoveFile(paths[idx], group.Files[i]); err != nil {
			return err
		}
	}
	m.Logger.Info("materialized group", "group", group.ID, "cluster", group.ClusterID,
		"size", len(group.Files), "dir", group.Dir)
	return nil
}

// within reports whether path is dir or lies below it.
func within(dir, path string) bool {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// GroupName returns the zero-padded directory name for a group id.
func GroupName(id, digits int) string {
	if digits <= 0 {
		return fmt.Sprintf("%d", id)
	}
	return fmt.Sprintf("%0*d", digits, id)
}

// MoveFile renames src to dst, falling back to copy and delete when they
// are on different filesystems.
func MoveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return &FilesystemError{Op: "move", Path: src, Err: err}
	}

	if err := copyFile(src, dst); err != nil {
		return &FilesystemError{Op: "copy", Path: src, Err: err}
	}
	if err := os.Remove(src); err != nil {
		return &FilesystemError{Op: "remove", Path: src, Err: err}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
