// Package workspace creates and destroys isolated, filtered copies of an
// application source tree. Each copy lives in its own session directory
// under a configurable root:
//
//	<root>/<session-id>/workspace/   filtered copy of the source tree
//
// The copy is not transactional: an I/O failure partway through leaves a
// partial workspace behind, reported as a PARTIAL_COPY error. Callers
// must treat such a session as invalid and remove it.
package workspace

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/previewkit/previewd/config"
	"github.com/previewkit/previewd/errors"
	"github.com/previewkit/previewd/logging"
	"github.com/sirupsen/logrus"
)

// WorkspaceDirName is the subdirectory of a session root that holds the
// filtered source copy.
const WorkspaceDirName = "workspace"

// Workspace describes one created session directory.
type Workspace struct {
	// ID is the session id; also the directory name under the root.
	ID string
	// RootPath is the session's private directory.
	RootPath string
	// Path is the filtered copy of the source tree, under RootPath.
	Path string
	// SourcePath is the original tree this workspace was copied from.
	SourcePath string
	// CreatedAt is the creation time.
	CreatedAt time.Time
}

// Store produces and destroys session workspaces under a single root.
type Store struct {
	root            string
	excluder        *Excluder
	sharedAssetDirs []string
	logger          *logrus.Entry
}

// NewStore creates a Store rooted at cfg.Root.
func NewStore(cfg config.SessionsConfig) (*Store, error) {
	excluder, err := NewExcluder(cfg.ExcludePatterns)
	if err != nil {
		return nil, errors.ConfigInvalid("bad exclude pattern").WithDetail("cause", err.Error())
	}

	if err := os.MkdirAll(cfg.Root, 0755); err != nil {
		return nil, err
	}

	return &Store{
		root:            cfg.Root,
		excluder:        excluder,
		sharedAssetDirs: cfg.SharedAssetDirs,
		logger:          logging.NewLogger("workspace"),
	}, nil
}

// Root returns the directory that holds the session directories.
func (s *Store) Root() string {
	return s.root
}

// Create copies sourcePath into a fresh session workspace, applying the
// exclusion rules per source-relative path. Configured shared-asset
// directories (siblings of sourcePath) are copied in as well when they
// exist. Returns SOURCE_NOT_FOUND if sourcePath does not exist and
// PARTIAL_COPY on a mid-copy I/O failure.
func (s *Store) Create(sourcePath string) (*Workspace, error) {
	info, err := os.Stat(sourcePath)
	if err != nil || !info.IsDir() {
		return nil, errors.SourceNotFound(sourcePath)
	}

	id := NewSessionID()
	createdAt, _ := SessionTime(id)
	rootPath := filepath.Join(s.root, id)
	workspacePath := filepath.Join(rootPath, WorkspaceDirName)

	if err := os.MkdirAll(workspacePath, 0755); err != nil {
		return nil, errors.PartialCopy(workspacePath, err)
	}

	if err := s.copyTree(sourcePath, workspacePath); err != nil {
		return nil, errors.PartialCopy(workspacePath, err)
	}

	// Shared asset directories sit next to the source root. Absence is a
	// skip, not an error.
	for _, name := range s.sharedAssetDirs {
		assetSrc := filepath.Join(filepath.Dir(sourcePath), name)
		if info, err := os.Stat(assetSrc); err != nil || !info.IsDir() {
			s.logger.WithField("dir", assetSrc).Debug("Shared asset directory not present, skipping")
			continue
		}
		assetDst := filepath.Join(workspacePath, name)
		if err := s.copyTree(assetSrc, assetDst); err != nil {
			return nil, errors.PartialCopy(assetDst, err)
		}
		s.logger.WithField("dir", name).Debug("Copied shared asset directory")
	}

	ws := &Workspace{
		ID:         id,
		RootPath:   rootPath,
		Path:       workspacePath,
		SourcePath: sourcePath,
		CreatedAt:  createdAt,
	}

	s.logger.WithFields(logrus.Fields{
		"session": id,
		"source":  sourcePath,
	}).Info("Created workspace")

	return ws, nil
}

// Remove recursively deletes a session's root directory. A path that is
// already gone is logged and ignored.
func (s *Store) Remove(rootPath string) error {
	if _, err := os.Stat(rootPath); os.IsNotExist(err) {
		s.logger.WithField("path", rootPath).Debug("Workspace already removed")
		return nil
	}

	if err := os.RemoveAll(rootPath); err != nil {
		return errors.Wrap(err, errors.ErrCodeCleanupFailed, "failed to remove workspace").
			WithDetail("path", rootPath)
	}

	s.logger.WithField("path", rootPath).Info("Removed workspace")
	return nil
}

// copyTree walks src and replicates non-excluded entries under dst.
func (s *Store) copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return os.MkdirAll(dst, 0755)
		}

		if s.excluder.Excluded(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}

		// Symlinks and other irregular entries are skipped; a workspace
		// only needs the regular source files.
		if !d.Type().IsRegular() {
			return nil
		}

		return copyFile(path, target)
	})
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
