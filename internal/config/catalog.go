package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/ethoslog/internal/progress"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// CatalogFile 对应成就目录 YAML 的结构。
type CatalogFile struct {
	Achievements []AchievementEntry `yaml:"achievements"`
}

// AchievementEntry 描述单个成就及其解锁条件。
type AchievementEntry struct {
	ID            string `yaml:"id"`
	Title         string `yaml:"title"`
	Description   string `yaml:"description"`
	XPReward      int    `yaml:"xp_reward"`
	RequiresClaim bool   `yaml:"requires_claim"`
	Requirement   struct {
		Metric    string `yaml:"metric"`
		Category  string `yaml:"category"`
		Threshold int    `yaml:"threshold"`
	} `yaml:"requirement"`
}

// LoadCatalog 读取成就目录；path 为空时使用内置目录。
func LoadCatalog(path string) (*progress.Catalog, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return CatalogFromYAML(defaultCatalog)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read achievement catalog: %w", err)
	}
	return CatalogFromYAML(data)
}

// CatalogFromYAML 解析并校验成就目录。
func CatalogFromYAML(data []byte) (*progress.Catalog, error) {
	var file CatalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse achievement catalog: %w", err)
	}
	if err := file.Validate(); err != nil {
		return nil, err
	}

	defs := make([]progress.Definition, 0, len(file.Achievements))
	for _, entry := range file.Achievements {
		category, err := progress.ParseCategory(entry.Requirement.Category)
		if err != nil {
			return nil, fmt.Errorf("achievement %s: %w", entry.ID, err)
		}
		defs = append(defs, progress.Definition{
			ID:            strings.TrimSpace(entry.ID),
			Title:         strings.TrimSpace(entry.Title),
			Description:   strings.TrimSpace(entry.Description),
			XPReward:      entry.XPReward,
			RequiresClaim: entry.RequiresClaim,
			Requirement: progress.Requirement{
				Metric:    progress.Metric(strings.TrimSpace(entry.Requirement.Metric)),
				Category:  category,
				Threshold: entry.Requirement.Threshold,
			},
		})
	}

	catalog, err := progress.NewCatalog(defs)
	if err != nil {
		return nil, fmt.Errorf("build achievement catalog: %w", err)
	}
	return catalog, nil
}

// Validate 校验目录的基本结构，细粒度规则由 progress.Definition 负责。
func (f *CatalogFile) Validate() error {
	if len(f.Achievements) == 0 {
		return fmt.Errorf("achievement catalog is empty")
	}
	for i, entry := range f.Achievements {
		if strings.TrimSpace(entry.ID) == "" {
			return fmt.Errorf("achievements[%d].id is required", i)
		}
		if strings.TrimSpace(entry.Title) == "" {
			return fmt.Errorf("achievement %s: title is required", entry.ID)
		}
	}
	return nil
}
