package toolchain

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dchest/uniuri"
	"github.com/otiai10/copy"
	"golang.org/x/sync/errgroup"
)

// An InstallConfig describes where toolchains get staged and installed and
// which optional components to include.
type InstallConfig struct {
	TmpDir        string // Staging directory for downloads, on the same filesystem as ToolchainsDir if possible
	ToolchainsDir string // The rustup toolchains directory

	WithoutCargo bool     // Skip the cargo component
	WithSource   bool     // Also install rust-src
	WithDev      bool     // Also install rustc-dev
	Components   []string // Additional components to install

	Force bool // Reinstall over an existing toolchain
}

// InstallPath returns the directory this toolchain occupies once installed.
func (t Toolchain) InstallPath(cfg InstallConfig) string {
	return filepath.Join(cfg.ToolchainsDir, t.RustupName())
}

// Exists reports whether the toolchain is already installed.
func (t Toolchain) Exists(cfg InstallConfig) bool {
	fi, err := os.Stat(t.InstallPath(cfg))
	return err == nil && fi.IsDir()
}

// component pairs a dist component name with the target it is built for.
// An empty target means the component is target-independent (rust-src).
type component struct {
	name   string
	target string
}

func (t Toolchain) components(cfg InstallConfig) []component {
	comps := []component{{"rustc", t.Host}}
	if !cfg.WithoutCargo {
		comps = append(comps, component{"cargo", t.Host})
	}
	for _, target := range t.StdTargets {
		comps = append(comps, component{"rust-std", target})
	}
	if cfg.WithSource {
		comps = append(comps, component{"rust-src", ""})
	}
	if cfg.WithDev {
		comps = append(comps, component{"rustc-dev", t.Host})
	}
	for _, name := range cfg.Components {
		comps = append(comps, component{name, t.Host})
	}
	return comps
}

func (t Toolchain) componentURL(c *Client, comp component) string {
	var root string
	if t.Spec.IsNightly() {
		root = fmt.Sprintf("%s/%s", c.NightlyRoot, t.Spec.Date.Format(YYYYMMDD))
	} else {
		root = fmt.Sprintf("%s/%s", c.ciRoot(t.Spec.Alt), t.Spec.Commit)
	}
	if comp.target == "" {
		return fmt.Sprintf("%s/%s-nightly.tar.gz", root, comp.name)
	}
	return fmt.Sprintf("%s/%s-nightly-%s.tar.gz", root, comp.name, comp.target)
}

// Install downloads all of the toolchain's components, verifies and unpacks
// them into a staging directory, and moves the result into the rustup
// toolchains directory. Installing an already present toolchain is a no-op
// unless cfg.Force is set. A missing artifact surfaces as ErrNotFound.
func (t Toolchain) Install(ctx context.Context, client *Client, cfg InstallConfig) error {
	dest := t.InstallPath(cfg)
	if t.Exists(cfg) {
		if !cfg.Force {
			client.Log.Infof("Toolchain %s already installed, reusing it", t.RustupName())
			return nil
		}
		if err := os.RemoveAll(dest); err != nil {
			return errors.Join(fmt.Errorf("removing existing toolchain %s failed", t.RustupName()), err)
		}
	}

	stage := filepath.Join(cfg.TmpDir, "bisector-"+uniuri.New())
	if err := os.MkdirAll(stage, 0o755); err != nil {
		return err
	}
	cleanup := func() { os.RemoveAll(stage) }

	eg, ctx := errgroup.WithContext(ctx)
	for _, comp := range t.components(cfg) {
		comp := comp
		eg.Go(func() error {
			url := t.componentURL(client, comp)
			tarball := filepath.Join(stage, filepath.Base(url))
			if err := client.DownloadVerified(ctx, url, tarball); err != nil {
				return err
			}
			if err := extractComponent(tarball, stage); err != nil {
				return errors.Join(fmt.Errorf("unpacking %s failed", url), err)
			}
			return os.Remove(tarball)
		})
	}
	if err := eg.Wait(); err != nil {
		cleanup()
		return err
	}

	// Prefer renaming out of the staging dir, falling back to a copy when
	// staging and the toolchains dir live on different filesystems.
	if err := os.Rename(stage, dest); err != nil {
		client.Log.Debugf("Rename of %s to %s failed (%v), copying instead", stage, dest, err)
		if err := copy.Copy(stage, dest); err != nil {
			cleanup()
			return errors.Join(fmt.Errorf("installing toolchain %s into %s failed", t.RustupName(), dest), err)
		}
		cleanup()
	}

	client.Log.Infof("Installed toolchain %s", t.RustupName())
	return nil
}

// Remove deletes the installed toolchain.
func (t Toolchain) Remove(cfg InstallConfig) error {
	return os.RemoveAll(t.InstallPath(cfg))
}

// IsCurrentNightly reports whether this toolchain matches the installed
// default nightly.
func (t Toolchain) IsCurrentNightly() bool {
	if !t.Spec.IsNightly() {
		return false
	}
	date, ok := DefaultNightlyDate()
	return ok && date.Equal(t.Spec.Date)
}

// extractComponent unpacks a dist tarball into dest. Dist archives lay their
// payload out as <archive>/<component dir>/<files...> next to installer
// scripts and manifests, which get skipped.
func extractComponent(tarball, dest string) error {
	f, err := os.Open(tarball)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		parts := strings.Split(filepath.ToSlash(hdr.Name), "/")
		// parts[0] is the archive dir, parts[1] the component dir. Anything
		// shallower is installer machinery (install.sh, components, version).
		if len(parts) < 3 || parts[len(parts)-1] == "manifest.in" {
			continue
		}
		rel := filepath.Join(parts[2:]...)
		if rel == "" || rel == "." {
			continue
		}
		target := filepath.Join(dest, rel)
		if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry %s escapes destination", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil && !os.IsExist(err) {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode)&0o777)
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
		}
	}
}
