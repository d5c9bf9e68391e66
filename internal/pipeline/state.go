package pipeline

import (
	"git.home.luguber.info/inful/assetpress/internal/config"
	"git.home.luguber.info/inful/assetpress/internal/manifest"
	"git.home.luguber.info/inful/assetpress/internal/metrics"
)

// RunState carries everything the stages share during one run. It is built
// fresh per run and mutated only by the single goroutine executing the stages.
type RunState struct {
	Config      *config.Config
	SnapshotDir string

	// Cataloged absolute paths inside the snapshot, per class.
	Rasters   []string
	Fonts     []string
	TextFiles []string

	Manifest *manifest.RunManifest
	Recorder metrics.Recorder
}
