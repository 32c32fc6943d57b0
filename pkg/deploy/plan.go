package deploy

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/fluxcd/imagepromote/pkg/config"
	"github.com/fluxcd/imagepromote/pkg/image"
	"github.com/fluxcd/imagepromote/pkg/policy"
)

// DefaultImageName is used when nothing else names the image.
const DefaultImageName = "app"

var (
	imageNamePlaceholder = regexp.MustCompile(`\{\{\s*image_name\s*\}\}`)
	anyPlaceholder       = regexp.MustCompile(`\{\{.*\}\}`)
)

// Plan is what a promotion will do, worked out from the
// configuration before anything is touched.
type Plan struct {
	Tag       string    `json:"tag"`
	ImageName string    `json:"imageName"`
	Source    image.Ref `json:"source"`
	Target    image.Ref `json:"target"`
	Chart     string    `json:"chart"`
	Release   string    `json:"release"`
	Namespace string    `json:"namespace"`
	Rollback  bool      `json:"rollback"`
	Cleanup   bool      `json:"cleanup"`
	Steps     []string  `json:"steps"`
}

// ResolveImageName picks the image name: an explicit override, then
// the configured image name, then the release name, then the last
// element of the chart path, then DefaultImageName. Names that still
// contain a template placeholder are passed over.
func ResolveImageName(cfg config.ReleaseConfig, override string) string {
	for _, candidate := range []string{
		override,
		cfg.ImageName,
		cfg.ReleaseName,
		chartBase(cfg.ChartPath),
	} {
		candidate = strings.TrimSpace(candidate)
		if candidate != "" && !anyPlaceholder.MatchString(candidate) {
			return candidate
		}
	}
	return DefaultImageName
}

func chartBase(path string) string {
	path = strings.TrimSpace(path)
	if path == "" || anyPlaceholder.MatchString(path) {
		return ""
	}
	base := filepath.Base(filepath.Clean(path))
	if base == "." || base == "/" {
		return ""
	}
	return strings.TrimSuffix(base, ".tgz")
}

func substitute(s, imageName string) string {
	return imageNamePlaceholder.ReplaceAllString(s, imageName)
}

// ResolveRelease gives the release name the configuration implies,
// for the same override as ResolveImageName.
func ResolveRelease(cfg config.ReleaseConfig, override string) string {
	name := ResolveImageName(cfg, override)
	if release := substitute(cfg.ReleaseName, name); release != "" {
		return release
	}
	return name
}

// MakePlan works out the refs, chart and release for promoting tag,
// and fails if the tag policy does not allow tag.
func MakePlan(cfg config.ReleaseConfig, tag, override string) (Plan, error) {
	p, err := resolvePlan(cfg, tag, override)
	if err != nil {
		return Plan{}, err
	}
	if err := CheckTag(cfg, p.Tag); err != nil {
		return Plan{}, err
	}
	return p, nil
}

// CheckTag returns an error if the configured tag policy does not
// allow tag.
func CheckTag(cfg config.ReleaseConfig, tag string) error {
	tags, err := policy.Parse(cfg.TagPolicy)
	if err != nil {
		return err
	}
	if !tags.Allows(tag) {
		return errors.Errorf("tag %q is not allowed by tag policy %q", tag, tags.String())
	}
	return nil
}

func resolvePlan(cfg config.ReleaseConfig, tag, override string) (Plan, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return Plan{}, errors.New("no tag given")
	}

	name := ResolveImageName(cfg, override)
	p := Plan{
		Tag:       tag,
		ImageName: name,
		Chart:     substitute(cfg.ChartPath, name),
		Release:   ResolveRelease(cfg, override),
		Namespace: cfg.Namespace,
		Rollback:  cfg.EnableRollback,
		Cleanup:   cfg.EnableCleanup,
	}
	if p.Chart == "" {
		p.Chart = filepath.Join(".", "charts", name)
	}
	var err error
	if p.Source, err = image.NewRef(cfg.SourceRegistry, name, tag); err != nil {
		return Plan{}, errors.Wrap(err, "source image")
	}
	if p.Target, err = image.NewRef(cfg.TargetRegistry, name, tag); err != nil {
		return Plan{}, errors.Wrap(err, "target image")
	}

	p.Steps = []string{
		"check the registry client, release tool and cluster access",
		fmt.Sprintf("log in to %s", p.Source.Registry()),
		fmt.Sprintf("pull %s (up to %d attempts)", p.Source, pullAttempts),
		fmt.Sprintf("tag %s as %s", p.Source, p.Target),
		fmt.Sprintf("log in to %s", p.Target.Registry()),
		fmt.Sprintf("push %s", p.Target),
		fmt.Sprintf("check chart %s", p.Chart),
		fmt.Sprintf("upgrade release %s in namespace %s with image.tag=%s", p.Release, p.Namespace, p.Tag),
		fmt.Sprintf("wait for %s to roll out", p.Release),
	}
	if p.Rollback {
		p.Steps[7] += ", rolling back on failure"
	}
	if p.Cleanup {
		p.Steps = append(p.Steps, fmt.Sprintf("remove local copy of %s", p.Target))
	}
	return p, nil
}
