package services

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"pgs-curation/spreadsheet"
)

// Study ist ein einzelnes Curation-Template.
type Study struct {
	Name     string
	Workbook *spreadsheet.Workbook
	// Source ist die Originaldatei fürs Archiv (leer, wenn die Mappe im Speicher gebaut wurde).
	Source []byte
}

// LoadStudy liest ein Template aus einer Datei; der Name ist der Dateiname ohne Endung.
func LoadStudy(path string) (Study, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Study{}, err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return ReadStudy(name, data)
}

// ReadStudy liest ein Template aus dem Speicher, z.B. aus einem Upload.
func ReadStudy(name string, data []byte) (Study, error) {
	wb, err := spreadsheet.Read(name, bytes.NewReader(data))
	if err != nil {
		return Study{}, fmt.Errorf("template %s: %w", name, err)
	}
	return Study{Name: name, Workbook: wb, Source: data}, nil
}

// DiscoverStudies listet alle .xlsx-Dateien in dir, sortiert nach Namen.
// Temporäre Office-Dateien ("~$…") werden übersprungen.
func DiscoverStudies(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, "~$") || !strings.EqualFold(filepath.Ext(name), ".xlsx") {
			continue
		}
		paths = append(paths, filepath.Join(dir, name))
	}
	sort.Strings(paths)
	return paths, nil
}
