package badger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/interfaces"
	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/models"
)

// siteFile is the on-disk shape of a site definition. A file may hold one site or a list under "sites".
type siteFile struct {
	models.Site `yaml:",inline"`
	Sites       []models.Site `toml:"sites" yaml:"sites"`
}

// LoadSitesFromFiles loads *.yaml, *.yml and *.toml site definitions from dirPath.
// Invalid files are logged and skipped; existing sites keep their runtime fields.
func LoadSitesFromFiles(ctx context.Context, siteStorage interfaces.SiteStorage, dirPath string, logger arbor.ILogger) (int, error) {
	if _, err := os.Stat(dirPath); os.IsNotExist(err) {
		logger.Debug().Str("dir", dirPath).Msg("Sites directory does not exist, skipping")
		return 0, nil
	}

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return 0, fmt.Errorf("failed to read sites directory: %w", err)
	}

	validate := validator.New()
	loadedCount := 0

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" && ext != ".toml" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dirPath, entry.Name()))
		if err != nil {
			logger.Warn().Err(err).Str("file", entry.Name()).Msg("Failed to read site file")
			continue
		}

		sites, err := parseSiteFile(data, ext)
		if err != nil {
			logger.Warn().Err(err).Str("file", entry.Name()).Msg("Failed to parse site file")
			continue
		}

		for i := range sites {
			site := &sites[i]
			if site.ID == "" {
				site.ID = siteIDFromName(site.Name, entry.Name())
			}
			if err := validate.Struct(site); err != nil {
				logger.Warn().Err(err).Str("file", entry.Name()).Str("site_id", site.ID).Msg("Site definition failed validation")
				continue
			}

			if existing, err := siteStorage.GetSite(ctx, site.ID); err == nil {
				site.CreatedAt = existing.CreatedAt
				site.LastDiscoveredAt = existing.LastDiscoveredAt
				site.LastError = existing.LastError
				if site.Status == "" {
					site.Status = existing.Status
				}
			} else if !errors.Is(err, models.ErrNotFound) {
				logger.Warn().Err(err).Str("site_id", site.ID).Msg("Failed to look up site")
				continue
			}

			if err := siteStorage.SaveSite(ctx, site); err != nil {
				logger.Warn().Err(err).Str("file", entry.Name()).Str("site_id", site.ID).Msg("Failed to save site")
				continue
			}

			logger.Info().Str("file", entry.Name()).Str("site_id", site.ID).Str("name", site.Name).Msg("Site loaded from file")
			loadedCount++
		}
	}

	if loadedCount > 0 {
		logger.Info().Int("count", loadedCount).Msg("Sites loaded from files")
	} else {
		logger.Debug().Msg("No sites loaded from files")
	}

	return loadedCount, nil
}

func parseSiteFile(data []byte, ext string) ([]models.Site, error) {
	var file siteFile
	var err error
	if ext == ".toml" {
		err = toml.Unmarshal(data, &file)
	} else {
		err = yaml.Unmarshal(data, &file)
	}
	if err != nil {
		return nil, err
	}

	if len(file.Sites) > 0 {
		return file.Sites, nil
	}
	if file.Site.BaseURL == "" && file.Site.Name == "" {
		return nil, fmt.Errorf("no site definitions found")
	}
	return []models.Site{file.Site}, nil
}

// siteIDFromName derives a stable slug for sites defined without an id
func siteIDFromName(name, fileName string) string {
	source := name
	if source == "" {
		source = strings.TrimSuffix(fileName, filepath.Ext(fileName))
	}

	var b strings.Builder
	lastDash := false
	for _, r := range strings.ToLower(source) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastDash = false
		case !lastDash && b.Len() > 0:
			b.WriteByte('-')
			lastDash = true
		}
	}
	return "site_" + strings.TrimSuffix(b.String(), "-")
}
