// Package settings provides the persisted sync settings record and its
// durable store with merge-on-write semantics.
package settings

import "github.com/tabwarden/tabwarden/internal/items"

// SyncSettings is the single persisted settings record, mutated by the
// orchestrator and by the settings UI via the messaging surface.
type SyncSettings struct {
	// ContainerName is the container's base title
	ContainerName string `json:"containerName"`

	// RefreshIntervalMinutes is the sync timer period
	RefreshIntervalMinutes int `json:"refreshIntervalMinutes"`

	// NameTemplate renders an entry title from a tracked item, using the
	// placeholders %repository%, %name% and %number%
	NameTemplate string `json:"nameTemplate"`

	// LastSyncTime is the epoch-millisecond timestamp of the last round
	LastSyncTime int64 `json:"lastSyncTime,omitempty"`

	// ContainerHandle is the advisory handle of the most recently used
	// container. It must be re-validated before use, never trusted blindly.
	ContainerHandle string `json:"containerHandle,omitempty"`

	// ContainerColor is the tab group color
	ContainerColor string `json:"containerColor"`

	// FilterMode selects which item queries run
	FilterMode items.FilterMode `json:"filterMode"`

	// OriginFilter is a comma-separated origin allowlist; empty = no filtering
	OriginFilter string `json:"originFilter"`

	// LastItemCount is the item count of the previous round, used only to
	// compute the "(N new)" transient title delta
	LastItemCount int `json:"lastItemCount"`
}

// Defaults returns the settings record used on first install.
func Defaults() SyncSettings {
	return SyncSettings{
		ContainerName:          "Pull Requests",
		RefreshIntervalMinutes: 1,
		NameTemplate:           "[%repository%] %name%",
		ContainerColor:         "blue",
		FilterMode:             items.FilterModeBoth,
		OriginFilter:           "",
	}
}

// Patch carries a partial settings update. Nil fields retain the prior value.
type Patch struct {
	ContainerName          *string           `json:"containerName,omitempty"`
	RefreshIntervalMinutes *int              `json:"refreshIntervalMinutes,omitempty"`
	NameTemplate           *string           `json:"nameTemplate,omitempty"`
	LastSyncTime           *int64            `json:"lastSyncTime,omitempty"`
	ContainerHandle        *string           `json:"containerHandle,omitempty"`
	ContainerColor         *string           `json:"containerColor,omitempty"`
	FilterMode             *items.FilterMode `json:"filterMode,omitempty"`
	OriginFilter           *string           `json:"originFilter,omitempty"`
	LastItemCount          *int              `json:"lastItemCount,omitempty"`
}

// Apply merges the patch into the record.
func (p Patch) Apply(s *SyncSettings) {
	if p.ContainerName != nil {
		s.ContainerName = *p.ContainerName
	}
	if p.RefreshIntervalMinutes != nil {
		s.RefreshIntervalMinutes = *p.RefreshIntervalMinutes
	}
	if p.NameTemplate != nil {
		s.NameTemplate = *p.NameTemplate
	}
	if p.LastSyncTime != nil {
		s.LastSyncTime = *p.LastSyncTime
	}
	if p.ContainerHandle != nil {
		s.ContainerHandle = *p.ContainerHandle
	}
	if p.ContainerColor != nil {
		s.ContainerColor = *p.ContainerColor
	}
	if p.FilterMode != nil {
		s.FilterMode = *p.FilterMode
	}
	if p.OriginFilter != nil {
		s.OriginFilter = *p.OriginFilter
	}
	if p.LastItemCount != nil {
		s.LastItemCount = *p.LastItemCount
	}
}

// fillMissing populates zero-valued fields from the defaults. Counters and
// timestamps are legitimately zero on first install and are left alone.
func (s *SyncSettings) fillMissing() {
	def := Defaults()
	if s.ContainerName == "" {
		s.ContainerName = def.ContainerName
	}
	if s.RefreshIntervalMinutes <= 0 {
		s.RefreshIntervalMinutes = def.RefreshIntervalMinutes
	}
	if s.NameTemplate == "" {
		s.NameTemplate = def.NameTemplate
	}
	if s.ContainerColor == "" {
		s.ContainerColor = def.ContainerColor
	}
	if !s.FilterMode.Valid() {
		s.FilterMode = def.FilterMode
	}
}
