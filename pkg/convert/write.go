package convert

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xm2live/xm2live/pkg/live"
)

// Result summarizes one written conversion.
type Result struct {
	ProjectDir string
	ALSPath    string
	Tracks     int
	Notes      int
	Samples    int
}

// WriteProject lays the project out on disk the way Live expects:
//
//	<base>_Ableton_Project/
//	    <base>.als
//	    Samples/*.wav
//
// When cfg.TemplatePath is set the .als is produced by augmenting that
// template instead of building a document from scratch.
func WriteProject(p *live.Project, samples []SampleFile, outDir, base string, cfg Config) (*Result, error) {
	projectDir := filepath.Join(outDir, base+"_Ableton_Project")
	samplesDir := filepath.Join(projectDir, "Samples")
	if err := os.MkdirAll(samplesDir, 0o755); err != nil {
		return nil, fmt.Errorf("create project dir: %w", err)
	}

	for i := range samples {
		path := filepath.Join(samplesDir, samples[i].FileName)
		if err := os.WriteFile(path, samples[i].Data, 0o644); err != nil {
			return nil, fmt.Errorf("write sample %s: %w", samples[i].FileName, err)
		}
	}

	var als []byte
	var err error
	if cfg.TemplatePath != "" {
		var tmpl []byte
		tmpl, err = os.ReadFile(cfg.TemplatePath)
		if err != nil {
			return nil, fmt.Errorf("read template: %w", err)
		}
		als, err = live.SerializeWithTemplate(p, tmpl)
	} else {
		als, err = live.Serialize(p)
	}
	if err != nil {
		return nil, err
	}

	alsPath := filepath.Join(projectDir, base+".als")
	if err := os.WriteFile(alsPath, als, 0o644); err != nil {
		return nil, fmt.Errorf("write project: %w", err)
	}

	return &Result{
		ProjectDir: projectDir,
		ALSPath:    alsPath,
		Tracks:     len(p.Tracks),
		Notes:      p.NoteCount(),
		Samples:    len(samples),
	}, nil
}

// BaseName strips the directory and tracker extension from a module
// path to form the project name.
func BaseName(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	switch strings.ToLower(ext) {
	case ".xm", ".mod":
		base = strings.TrimSuffix(base, ext)
	}
	if base == "" {
		base = "module"
	}
	return base
}

// ConvertFile runs the full pipeline for one module file.
func ConvertFile(path, outDir string, cfg Config) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	project, samples, err := Convert(data, cfg)
	if err != nil {
		return nil, err
	}
	return WriteProject(project, samples, outDir, BaseName(path), cfg)
}
