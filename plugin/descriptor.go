package plugin

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.uber.org/multierr"
	"golang.org/x/crypto/blake2b"
	"gopkg.in/yaml.v3"

	"github.com/kbukum/switchyard/validation"
)

// DescriptorFile is the descriptor file name looked up by Discover.
const DescriptorFile = "plugin.yaml"

// Manifest keys understood by the host.
const (
	// ManifestRuntime selects the runtime: RuntimeInProc (default) or RuntimeProcess.
	ManifestRuntime = "runtime"
	// ManifestEntry names the Catalog entry of an in-process plugin (default: the id).
	ManifestEntry = "entry"
	// ManifestArgs are the whitespace-separated arguments of a process plugin.
	ManifestArgs = "args"
	// ManifestPreflight are arguments for a one-shot run at load time.
	ManifestPreflight = "preflight"
	// ManifestDigestPrefix prefixes per-file digests: "digest.<file>" = hex BLAKE2b-256.
	ManifestDigestPrefix = "digest."
)

// Runtimes.
const (
	RuntimeInProc  = "inproc"
	RuntimeProcess = "process"
)

// Descriptor describes a plugin bundle.
type Descriptor struct {
	ID          string `yaml:"id" json:"id" validate:"required,identifier"`
	Version     string `yaml:"version" json:"version" validate:"required"`
	Name        string `yaml:"name,omitempty" json:"name,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Author      string `yaml:"author,omitempty" json:"author,omitempty"`
	// Paths are the bundle files, in load order. Relative paths are
	// resolved against Dir.
	Paths        []string          `yaml:"paths" json:"paths" validate:"min=1,dive,required"`
	Manifest     map[string]string `yaml:"manifest,omitempty" json:"manifest,omitempty"`
	Capabilities []string          `yaml:"capabilities,omitempty" json:"capabilities,omitempty"`
	// Dir is the plugin directory. LoadDescriptor sets it to the directory
	// of the descriptor file.
	Dir string `yaml:"dir,omitempty" json:"dir,omitempty"`
	// Source is the descriptor file the plugin was read from, if any.
	Source string `yaml:"-" json:"source,omitempty"`
}

// Validate checks required fields.
func (d Descriptor) Validate() error {
	if err := validation.Validate(d); err != nil {
		return err
	}
	return validation.New().
		OneOf("manifest.runtime", d.Runtime(), []string{RuntimeInProc, RuntimeProcess}).
		Identifier("manifest.entry", d.Manifest[ManifestEntry]).
		Keys(d.Manifest, ManifestDigestPrefix, func(v *validation.Validator, file, digest string) {
			field := "manifest." + ManifestDigestPrefix + file
			v.Check(file != "", field, "must name a bundle file").
				Required(field, digest).
				HexDigest(field, strings.TrimSpace(digest), blake2b.Size256)
		}).
		Validate()
}

// Runtime returns the manifest runtime, defaulting to RuntimeInProc.
func (d Descriptor) Runtime() string {
	if rt := strings.TrimSpace(d.Manifest[ManifestRuntime]); rt != "" {
		return strings.ToLower(rt)
	}
	return RuntimeInProc
}

// Entry returns the Catalog entry name, defaulting to the plugin id.
func (d Descriptor) Entry() string {
	if e := strings.TrimSpace(d.Manifest[ManifestEntry]); e != "" {
		return e
	}
	return d.ID
}

// Digest returns the expected digest of the bundle file named base.
func (d Descriptor) Digest(base string) (string, bool) {
	v, ok := d.Manifest[ManifestDigestPrefix+base]
	return strings.ToLower(strings.TrimSpace(v)), ok
}

// digests returns the file names that carry a manifest digest.
func (d Descriptor) digests() []string {
	var names []string
	for k := range d.Manifest {
		if name, ok := strings.CutPrefix(k, ManifestDigestPrefix); ok {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// ResolvedPaths returns Paths with relative entries joined to Dir.
func (d Descriptor) ResolvedPaths() []string {
	out := make([]string, len(d.Paths))
	for i, p := range d.Paths {
		if filepath.IsAbs(p) || d.Dir == "" {
			out[i] = filepath.Clean(p)
		} else {
			out[i] = filepath.Join(d.Dir, p)
		}
	}
	return out
}

// BaseDir returns Dir, or the directory of the first path when Dir is empty.
func (d Descriptor) BaseDir() string {
	if d.Dir != "" {
		return d.Dir
	}
	if paths := d.ResolvedPaths(); len(paths) > 0 {
		return filepath.Dir(paths[0])
	}
	return ""
}

// DisplayName returns Name, or the id when Name is empty.
func (d Descriptor) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.ID
}

// Within returns an error unless the plugin directory and every bundle path
// resolve, symlinks included, to a location inside root.
func (d Descriptor) Within(root string) error {
	base, err := ResolveRoot(root)
	if err != nil {
		return err
	}
	for _, p := range append([]string{d.BaseDir()}, d.ResolvedPaths()...) {
		if err := PathWithin(base, p); err != nil {
			return err
		}
	}
	return nil
}

// PathWithin returns an error unless path resolves to a location inside
// root. root must already be resolved.
func PathWithin(root, path string) error {
	if path == "" {
		return fmt.Errorf("plugin: empty path")
	}
	target, err := realPath(path)
	if err != nil {
		return fmt.Errorf("plugin: resolve %s: %w", path, err)
	}
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("plugin: %s is outside %s", path, root)
	}
	return nil
}

// realPath makes p absolute and resolves symlinks in its longest existing
// prefix, so paths that do not exist yet are still compared canonically.
func realPath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	var rest []string
	cur := abs
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			return filepath.Join(append([]string{resolved}, rest...)...), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return abs, nil
		}
		rest = append([]string{filepath.Base(cur)}, rest...)
		cur = parent
	}
}

// ResolveRoot returns root made absolute with symlinks resolved, as
// expected by PathWithin.
func ResolveRoot(root string) (string, error) {
	if root == "" {
		return "", fmt.Errorf("plugin: no plugin directory configured")
	}
	return realPath(root)
}

// LoadDescriptor reads and validates a descriptor file.
func LoadDescriptor(path string) (Descriptor, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Descriptor{}, fmt.Errorf("plugin: resolve %s: %w", path, err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return Descriptor{}, fmt.Errorf("plugin: read descriptor: %w", err)
	}

	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return Descriptor{}, fmt.Errorf("plugin: parse %s: %w", abs, err)
	}
	if d.Dir == "" {
		d.Dir = filepath.Dir(abs)
	} else if !filepath.IsAbs(d.Dir) {
		d.Dir = filepath.Join(filepath.Dir(abs), d.Dir)
	}
	d.Source = abs

	if err := d.Validate(); err != nil {
		return Descriptor{}, fmt.Errorf("plugin: %s: %w", abs, err)
	}
	return d, nil
}

// Discover loads the descriptor of every immediate sub-directory of dir
// that contains a DescriptorFile. Invalid descriptors are skipped and
// their errors returned together with the valid ones, sorted by id.
func Discover(dir string) ([]Descriptor, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("plugin: read plugin directory: %w", err)
	}

	var (
		found []Descriptor
		errs  error
	)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name(), DescriptorFile)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		d, err := LoadDescriptor(path)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		found = append(found, d)
	}
	slices.SortFunc(found, func(a, b Descriptor) int { return strings.Compare(a.ID, b.ID) })
	return found, errs
}
