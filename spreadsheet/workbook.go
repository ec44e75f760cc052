// Package spreadsheet liest Curation-Templates (XLSX) in eine einfache Zeilen/Zellen-Struktur.
package spreadsheet

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Cell ist eine Zelle mit Rohtext; Numeric ist gesetzt, wenn die Zelle als Zahl gespeichert ist.
type Cell struct {
	Text    string
	Number  float64
	Numeric bool
}

// Text erzeugt eine Textzelle.
func Text(s string) Cell {
	return Cell{Text: s}
}

// Number erzeugt eine numerische Zelle.
func Number(f float64) Cell {
	return Cell{Text: strconv.FormatFloat(f, 'f', -1, 64), Number: f, Numeric: true}
}

// IsBlank meldet leere Zellen.
func (c Cell) IsBlank() bool {
	return !c.Numeric && strings.TrimSpace(c.Text) == ""
}

// Sheet ist ein Tabellenblatt als Liste von Zeilen.
type Sheet struct {
	Name string
	Rows [][]Cell
}

// Cell liefert die Zelle (row, col) oder eine leere Zelle außerhalb des Bereichs.
func (s *Sheet) Cell(row, col int) Cell {
	if row < 0 || row >= len(s.Rows) || col < 0 || col >= len(s.Rows[row]) {
		return Cell{}
	}
	return s.Rows[row][col]
}

// Width ist die größte Spaltenzahl über alle Zeilen.
func (s *Sheet) Width() int {
	w := 0
	for _, r := range s.Rows {
		if len(r) > w {
			w = len(r)
		}
	}
	return w
}

// Workbook ist eine Arbeitsmappe mit benannten Blättern.
type Workbook struct {
	Name   string
	sheets map[string]*Sheet
	order  []string
}

// NewWorkbook erstellt eine leere Arbeitsmappe.
func NewWorkbook(name string) *Workbook {
	return &Workbook{Name: name, sheets: make(map[string]*Sheet)}
}

// AddSheet fügt ein Blatt hinzu bzw. ersetzt ein gleichnamiges.
func (w *Workbook) AddSheet(name string, rows [][]Cell) *Sheet {
	if _, ok := w.sheets[name]; !ok {
		w.order = append(w.order, name)
	}
	s := &Sheet{Name: name, Rows: rows}
	w.sheets[name] = s
	return s
}

// Sheet sucht ein Blatt; Groß-/Kleinschreibung und Leerraum am Rand werden ignoriert.
func (w *Workbook) Sheet(name string) (*Sheet, bool) {
	if s, ok := w.sheets[name]; ok {
		return s, true
	}
	want := strings.ToLower(strings.TrimSpace(name))
	for _, n := range w.order {
		if strings.ToLower(strings.TrimSpace(n)) == want {
			return w.sheets[n], true
		}
	}
	return nil, false
}

// SheetNames gibt die Blattnamen in Dateireihenfolge zurück.
func (w *Workbook) SheetNames() []string {
	return append([]string(nil), w.order...)
}

// Open liest eine XLSX-Datei vom Dateisystem.
func Open(path string) (*Workbook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return Read(name, bytes.NewReader(data))
}

// Read liest eine XLSX-Arbeitsmappe aus r.
func Read(name string, r io.Reader) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("arbeitsmappe %s konnte nicht geöffnet werden: %w", name, err)
	}
	defer f.Close()

	wb := NewWorkbook(name)
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("blatt %q: %w", sheetName, err)
		}
		cells := make([][]Cell, len(rows))
		for i, row := range rows {
			cells[i] = make([]Cell, len(row))
			for j, raw := range row {
				cells[i][j] = readCell(f, sheetName, i, j, raw)
			}
		}
		wb.AddSheet(sheetName, cells)
	}
	return wb, nil
}

// readCell erkennt numerisch gespeicherte Zellen über den Zelltyp.
func readCell(f *excelize.File, sheet string, row, col int, raw string) Cell {
	if strings.TrimSpace(raw) == "" {
		return Cell{Text: raw}
	}
	axis, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return Cell{Text: raw}
	}
	typ, err := f.GetCellType(sheet, axis)
	if err != nil {
		return Cell{Text: raw}
	}
	if typ == excelize.CellTypeNumber || typ == excelize.CellTypeUnset {
		if n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
			return Cell{Text: raw, Number: n, Numeric: true}
		}
	}
	return Cell{Text: raw}
}
