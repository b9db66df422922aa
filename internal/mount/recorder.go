package mount

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxObservation is the longest observation the recorder accepts.
const MaxObservation = 7 * 24 * time.Hour

// observationRecord is the metadata sidecar written when an observation starts.
type observationRecord struct {
	Prefix      string    `yaml:"prefix"`
	StartedAt   time.Time `yaml:"started_at"`
	DurationSec float64   `yaml:"duration_s"`
	Receiver    receiver  `yaml:"receiver"`
	Modes       modes     `yaml:"modes"`
	Pointing    pointing  `yaml:"pointing"`
}

type receiver struct {
	RFGain      float64 `yaml:"rf_gain"`
	IFGain      float64 `yaml:"if_gain"`
	BBGain      float64 `yaml:"bb_gain"`
	CenterFreq  float64 `yaml:"center_freq"`
	Bandwidth   float64 `yaml:"bandwidth"`
	Channels    int     `yaml:"channels"`
	SampleTimeS float64 `yaml:"sample_time_s"`
}

type modes struct {
	Observation bool `yaml:"obs_mode"`
	Raw         bool `yaml:"raw_mode"`
	Student     bool `yaml:"student"`
}

type pointing struct {
	Az   float64 `yaml:"az"`
	Alt  float64 `yaml:"alt"`
	RA   float64 `yaml:"ra"`
	Dec  float64 `yaml:"dec"`
	Long float64 `yaml:"gal_long"`
	Lat  float64 `yaml:"gal_lat"`
}

// Recorder tracks the single running observation and writes its metadata.
type Recorder struct {
	baseDir string
	now     func() time.Time

	mu     sync.Mutex
	active bool
	timer  *time.Timer
}

// NewRecorder roots relative observation repositories under baseDir.
func NewRecorder(baseDir string) *Recorder {
	return &Recorder{baseDir: expandUserPath(baseDir), now: time.Now}
}

// Start writes the metadata file and flags the recorder busy for the observation duration.
func (r *Recorder) Start(params ObserveParams, at Coords) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active {
		return "", ErrAlreadyRunning
	}
	if math.IsNaN(params.Duration) || params.Duration <= 0 {
		return "", fmt.Errorf("observation duration must be > 0, got %v", params.Duration)
	}
	if params.Duration > MaxObservation.Seconds() {
		return "", fmt.Errorf("observation duration must be <= %v, got %vs", MaxObservation, params.Duration)
	}

	dir := r.resolveRepo(params.Repo)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create observation repo %q: %w", dir, err)
	}

	started := r.now().UTC()
	prefix := sanitizePrefix(params.Prefix)
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.yaml", prefix, started.Format("20060102T150405Z")))

	record := observationRecord{
		Prefix:      prefix,
		StartedAt:   started,
		DurationSec: params.Duration,
		Receiver: receiver{
			RFGain:      params.RFGain,
			IFGain:      params.IFGain,
			BBGain:      params.BBGain,
			CenterFreq:  params.CenterFreq,
			Bandwidth:   params.Bandwidth,
			Channels:    params.Channels,
			SampleTimeS: params.SampleTime,
		},
		Modes: modes{Observation: params.ObsMode, Raw: params.RawMode, Student: params.StudentFlag},
		Pointing: pointing{
			Az: at.Az, Alt: at.Alt, RA: at.RA, Dec: at.Dec, Long: at.Long, Lat: at.Lat,
		},
	}

	out, err := yaml.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("encode observation metadata: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return "", fmt.Errorf("write observation metadata %q: %w", path, err)
	}

	r.active = true
	r.timer = time.AfterFunc(time.Duration(params.Duration*float64(time.Second)), r.finish)
	return path, nil
}

// Active reports whether an observation is still running.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Stop ends the running observation early.
func (r *Recorder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.active = false
}

func (r *Recorder) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = false
	r.timer = nil
}

func (r *Recorder) resolveRepo(repo string) string {
	repo = expandUserPath(repo)
	if repo == "" {
		return r.baseDir
	}
	if filepath.IsAbs(repo) {
		return repo
	}
	return filepath.Join(r.baseDir, repo)
}

func sanitizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	prefix = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == os.PathSeparator {
			return '_'
		}
		return r
	}, prefix)
	if prefix == "" || prefix == "." || prefix == ".." {
		return "obs"
	}
	return prefix
}

func expandUserPath(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if raw == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return raw
		}
		return home
	}
	if !strings.HasPrefix(raw, "~/") {
		return raw
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return raw
	}
	return filepath.Join(home, strings.TrimPrefix(raw, "~/"))
}
