package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths are the files and directories ergowatch reads and writes.
type Paths struct {
	Root      string
	Data      string
	Sessions  string
	Logs      string
	Models    string
	Assets    string
	Unlabeled string
	Labeled   string
	EventLog  string
	Model     string
	Sound     string
	Database  string
}

// Paths resolves the configured locations under the data root.
func (c *Config) Paths() Paths {
	root := c.DataRoot
	data := filepath.Join(root, "data")
	logs := filepath.Join(data, "logs")
	models := filepath.Join(root, "models")
	assets := filepath.Join(root, "assets")

	p := Paths{
		Root:      root,
		Data:      data,
		Sessions:  filepath.Join(data, "sessions"),
		Logs:      logs,
		Models:    models,
		Assets:    assets,
		Unlabeled: filepath.Join(data, "pose_data.csv"),
		Labeled:   filepath.Join(data, "pose_data_labeled.csv"),
		EventLog:  filepath.Join(logs, "bad_posture_log."+c.Alarm.LogFormat),
		Model:     filepath.Join(models, "posture_model.json"),
		Sound:     filepath.Join(assets, "beep.wav"),
		Database:  filepath.Join(data, "ergowatch.db"),
	}

	if c.Detection.ModelPath != "" {
		p.Model = c.Detection.ModelPath
	}
	if c.Alarm.Sound != "" {
		p.Sound = c.Alarm.Sound
	}
	if c.Store.Path != "" {
		p.Database = c.Store.Path
	}
	return p
}

// Ensure creates the data, sessions, logs, models and assets directories.
func (p Paths) Ensure() error {
	for _, dir := range []string{p.Data, p.Sessions, p.Logs, p.Models, p.Assets} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
