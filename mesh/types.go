package mesh

import (
	"encoding/json"
	"fmt"
	"time"
)

// ReferenceScannerID is the scanner whose local frame defines the global frame.
const ReferenceScannerID = 0

// Point3 is an integer position or displacement in some scanner's frame.
type Point3 struct {
	X int64
	Y int64
	Z int64
}

// MarshalJSON encodes the point as a compact [x, y, z] array.
func (p Point3) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]int64{p.X, p.Y, p.Z})
}

// UnmarshalJSON decodes a [x, y, z] array.
func (p *Point3) UnmarshalJSON(data []byte) error {
	var v []int64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("decoding point: %w", err)
	}
	if len(v) != 3 {
		return fmt.Errorf("decoding point: expected 3 coordinates, got %d", len(v))
	}
	p.X, p.Y, p.Z = v[0], v[1], v[2]
	return nil
}

func (p Point3) String() string {
	return fmt.Sprintf("%d,%d,%d", p.X, p.Y, p.Z)
}

// Scanner is one sensor's report: its id and the probes it observed, in its
// own local frame.
type Scanner struct {
	ID     int      `json:"id"`
	Probes []Point3 `json:"probes"`
}

// Alignment records how a scanner's local frame maps into its parent's frame:
// parent = Orientation.Apply(local) + Translation.
type Alignment struct {
	Child       int         `json:"child"`
	Parent      int         `json:"parent"`
	Orientation Orientation `json:"orientation"`
	Translation Point3      `json:"translation"`
	Overlap     int         `json:"overlap"` // coincident probes when accepted
}

// Transform returns the alignment as a rigid transform from child to parent.
func (a Alignment) Transform() RigidTransform {
	return RigidTransform{Orientation: a.Orientation, Translation: a.Translation}
}

// ScannerPosition is a scanner's origin expressed in the global frame.
type ScannerPosition struct {
	ScannerID int    `json:"scannerId"`
	Parent    int    `json:"parent"` // -1 for the reference scanner
	Position  Point3 `json:"position"`
}

// FrameSummary is the JSON view of a solved frame used by the HTTP API and
// the MQTT publisher.
type FrameSummary struct {
	RunID              string            `json:"runId"`
	ScannerCount       int               `json:"scannerCount"`
	LandmarkCount      int               `json:"landmarkCount"`
	MaxScannerDistance int64             `json:"maxScannerDistance"`
	Positions          []ScannerPosition `json:"positions"`
	SolvedAt           time.Time         `json:"solvedAt"`
}

// Config represents the full configuration file
type Config struct {
	Input        string             `yaml:"input,omitempty" json:"input,omitempty"`             // Scanner report file or http(s) URL
	PollSeconds  int                `yaml:"pollSeconds,omitempty" json:"pollSeconds,omitempty"` // Refetch interval for URL input; 0 fetches once
	Registration RegistrationConfig `yaml:"registration" json:"registration"`
	MQTT         MQTTConfig         `yaml:"mqtt" json:"mqtt"`
	HTTP         HTTPConfig         `yaml:"http" json:"http"`
	Store        StoreConfig        `yaml:"store" json:"store"`
	Render       RenderConfig       `yaml:"render" json:"render"`
}

// RegistrationConfig controls the registration graph.
type RegistrationConfig struct {
	Workers         int    `yaml:"workers,omitempty" json:"workers,omitempty"`     // Parallel alignment attempts (1 = sequential)
	MaxPasses       int    `yaml:"maxPasses,omitempty" json:"maxPasses,omitempty"` // 0 = stop only when a pass makes no progress
	DetectAmbiguity bool   `yaml:"detectAmbiguity,omitempty" json:"detectAmbiguity,omitempty"`
	CachePath       string `yaml:"cachePath,omitempty" json:"cachePath,omitempty"`
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker,omitempty" json:"broker,omitempty"`
	PublishPrefix string `yaml:"publishPrefix,omitempty" json:"publishPrefix,omitempty"`
	ReportTopic   string `yaml:"reportTopic,omitempty" json:"reportTopic,omitempty"` // One scanner report per message
	ClientID      string `yaml:"clientId,omitempty" json:"clientId,omitempty"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
	QoS           int    `yaml:"qos,omitempty" json:"qos,omitempty"`       // Publish QoS (0, 1 or 2)
	Retain        *bool  `yaml:"retain,omitempty" json:"retain,omitempty"` // Retain published frames; unset = true
}

// HTTPConfig holds HTTP server settings
type HTTPConfig struct {
	Port int `yaml:"port,omitempty" json:"port,omitempty"`
}

// StoreConfig points at the SQLite run history. An empty path disables it.
type StoreConfig struct {
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
}

// RenderConfig holds image output settings
type RenderConfig struct {
	Scale      float64 `yaml:"scale,omitempty" json:"scale,omitempty"`           // Pixels per coordinate unit (raster)
	Padding    float64 `yaml:"padding,omitempty" json:"padding,omitempty"`       // Padding in coordinate units
	Resolution float64 `yaml:"resolution,omitempty" json:"resolution,omitempty"` // Vector PNG DPI
}

// RegisterOptions derives the registration options from the config.
func (c *Config) RegisterOptions() RegisterOptions {
	return RegisterOptions{
		Workers:         c.Registration.Workers,
		MaxPasses:       c.Registration.MaxPasses,
		DetectAmbiguity: c.Registration.DetectAmbiguity,
	}
}
