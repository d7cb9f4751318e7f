package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/docanalysis/data/db/docanalysis.db"
	}
	if cfg.Storage.ContentRoot == "" {
		cfg.Storage.ContentRoot = "/usr/local/var/docanalysis/data/content"
	}
	if cfg.Storage.EntityIndexPath == "" {
		cfg.Storage.EntityIndexPath = "/usr/local/var/docanalysis/data/indices/entities"
	}
	if cfg.Analysis.MaxSegmentLength == 0 {
		cfg.Analysis.MaxSegmentLength = 900000
	}
	if cfg.Analysis.SplitLongLines == nil {
		t := true
		cfg.Analysis.SplitLongLines = &t
	}
	if cfg.Analysis.EngineName == "" {
		cfg.Analysis.EngineName = "spacy"
	}
	if cfg.Analysis.ArtifactExt == "" {
		cfg.Analysis.ArtifactExt = "nlpdoc"
	}
	if cfg.Analysis.DefaultLanguage == "" {
		cfg.Analysis.DefaultLanguage = "English"
	}
	if cfg.Models.RuntimeVersion == "" {
		cfg.Models.RuntimeVersion = "3.8.0"
	}
	if cfg.Models.CompatibilityFamily == "" {
		cfg.Models.CompatibilityFamily = "3.8"
	}
	if cfg.Models.SizeClass == "" {
		cfg.Models.SizeClass = "md"
	}
	if cfg.Models.IndexURL == "" {
		cfg.Models.IndexURL = "https://raw.githubusercontent.com/hyperjump/docanalysis-models/main/compatibility.json"
	}
	if cfg.Models.DownloadURL == "" {
		cfg.Models.DownloadURL = "https://github.com/hyperjump/docanalysis-models/releases/download"
	}
	if cfg.Models.Dir == "" {
		cfg.Models.Dir = "/usr/local/var/docanalysis/data/models"
	}
	if cfg.Models.DownloadTimeout == 0 {
		cfg.Models.DownloadTimeout = 5 * time.Minute
	}
	if cfg.Dispatch.Workers == 0 {
		cfg.Dispatch.Workers = 2
	}
	if cfg.Dispatch.QueueSize == 0 {
		cfg.Dispatch.QueueSize = 64
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md", ".rst", ".pdf", ".docx", ".xlsx", ".pptx", ".odt", ".odp", ".ods"}
	}
	if cfg.Watch.Language == "" {
		cfg.Watch.Language = cfg.Analysis.DefaultLanguage
	}
}
