// Package backup dumps the whole store to one portable JSON document and
// restores it by destructive replace.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"entregas/internal/core"
	"entregas/internal/log"
	"entregas/internal/storage"
)

// ErrImportFormat means the document does not have the expected shape. Nothing was written.
var ErrImportFormat = errors.New("invalid import document")

// Document is the export file layout: one array per collection.
type Document struct {
	Companies    []json.RawMessage     `json:"companies"`
	DailyEntries []json.RawMessage     `json:"dailyEntries"`
	Costs        []json.RawMessage     `json:"costs"`
	Refuels      []json.RawMessage     `json:"refuels"`
	Settings     []storage.ConfigEntry `json:"settings"`
}

// Warning describes one record skipped during import.
type Warning struct {
	Collection storage.Collection `json:"collection"`
	Index      int                `json:"index"`
	ID         string             `json:"id,omitempty"`
	Reason     string             `json:"reason"`
}

func (w Warning) Error() string {
	if w.ID != "" {
		return fmt.Sprintf("%s[%d] %s skipped: %s", w.Collection, w.Index, w.ID, w.Reason)
	}
	return fmt.Sprintf("%s[%d] skipped: %s", w.Collection, w.Index, w.Reason)
}

// Result summarizes an import.
type Result struct {
	Imported map[storage.Collection]int `json:"imported"`
	Warnings []Warning                  `json:"warnings"`
}

type Serializer struct {
	store  storage.Store
	logger *log.Logger
}

func New(store storage.Store, logger *log.Logger) *Serializer {
	return &Serializer{store: store, logger: logger.WithComponent(log.ComponentBackup)}
}

// Export snapshots every collection as stored.
func (s *Serializer) Export(ctx context.Context) (Document, error) {
	doc := Document{}
	for _, c := range storage.RecordCollections {
		recs, err := s.store.GetAll(ctx, c)
		if err != nil {
			return Document{}, fmt.Errorf("export %s: %w", c, err)
		}
		raw := make([]json.RawMessage, 0, len(recs))
		for _, r := range recs {
			raw = append(raw, r.Data)
		}
		*doc.collection(c) = raw
	}

	settings, err := s.store.ListConfig(ctx)
	if err != nil {
		return Document{}, fmt.Errorf("export settings: %w", err)
	}
	if settings == nil {
		settings = []storage.ConfigEntry{}
	}
	doc.Settings = settings

	s.logger.InfoContext(ctx, "Export completed",
		log.FieldOperation, log.OpExport,
		"companies", len(doc.Companies),
		"daily_entries", len(doc.DailyEntries),
		"costs", len(doc.Costs),
		"refuels", len(doc.Refuels))
	return doc, nil
}

// WriteExport encodes Export's document to w.
func (s *Serializer) WriteExport(ctx context.Context, w io.Writer) error {
	doc, err := s.Export(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func (d *Document) collection(c storage.Collection) *[]json.RawMessage {
	switch c {
	case storage.Companies:
		return &d.Companies
	case storage.DailyEntries:
		return &d.DailyEntries
	case storage.Costs:
		return &d.Costs
	case storage.Refuels:
		return &d.Refuels
	}
	panic(fmt.Sprintf("backup: no document field for collection %s", c))
}

// Import replaces the store content with the document read from r.
//
// The document shape is checked first; on failure ErrImportFormat is returned
// and the store is untouched. Malformed records, records failing validation
// and ids repeated within the document are skipped and reported in
// Result.Warnings. The surviving records
// are written in one ReplaceAll call.
func (s *Serializer) Import(ctx context.Context, r io.Reader) (Result, error) {
	doc, err := parse(r)
	if err != nil {
		return Result{}, err
	}

	res := Result{Imported: map[storage.Collection]int{}, Warnings: []Warning{}}
	snap := storage.Snapshot{Records: map[storage.Collection][]storage.Record{}}

	for _, c := range storage.RecordCollections {
		recs, warnings := decodeRecords(c, *doc.collection(c))
		snap.Records[c] = recs
		res.Imported[c] = len(recs)
		res.Warnings = append(res.Warnings, warnings...)
	}

	settings, warnings := decodeSettings(doc.Settings)
	snap.Settings = settings
	res.Imported[storage.Settings] = len(settings)
	res.Warnings = append(res.Warnings, warnings...)

	for _, w := range res.Warnings {
		s.logger.WarnContext(ctx, "Import record skipped",
			log.FieldCollection, string(w.Collection),
			log.FieldRecordID, w.ID,
			"index", w.Index,
			"reason", w.Reason)
	}

	if err := s.store.ReplaceAll(ctx, snap); err != nil {
		return Result{}, fmt.Errorf("import: %w", err)
	}

	s.logger.InfoContext(ctx, "Import completed",
		log.FieldOperation, log.OpImport,
		"skipped", len(res.Warnings))
	return res, nil
}

// rawDocument keeps settings entries raw so a malformed one can be skipped on its own.
type rawDocument struct {
	Companies    []json.RawMessage
	DailyEntries []json.RawMessage
	Costs        []json.RawMessage
	Refuels      []json.RawMessage
	Settings     []json.RawMessage
}

func (d *rawDocument) collection(c storage.Collection) *[]json.RawMessage {
	switch c {
	case storage.Companies:
		return &d.Companies
	case storage.DailyEntries:
		return &d.DailyEntries
	case storage.Costs:
		return &d.Costs
	case storage.Refuels:
		return &d.Refuels
	case storage.Settings:
		return &d.Settings
	}
	panic(fmt.Sprintf("backup: no document field for collection %s", c))
}

func parse(r io.Reader) (*rawDocument, error) {
	var top map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImportFormat, err)
	}
	if top == nil {
		return nil, fmt.Errorf("%w: document is not an object", ErrImportFormat)
	}

	doc := &rawDocument{}
	for _, c := range storage.AllCollections {
		raw, ok := top[string(c)]
		if !ok {
			return nil, fmt.Errorf("%w: missing %q", ErrImportFormat, c)
		}
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) == 0 || trimmed[0] != '[' {
			return nil, fmt.Errorf("%w: %q is not an array", ErrImportFormat, c)
		}
		if err := json.Unmarshal(trimmed, doc.collection(c)); err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrImportFormat, c, err)
		}
	}
	return doc, nil
}

var decoders = map[storage.Collection]func([]byte) error{
	storage.Companies:    decodeAs[core.Company],
	storage.DailyEntries: decodeAs[core.DailyEntry],
	storage.Costs:        decodeAs[core.Cost],
	storage.Refuels:      decodeAs[core.Refuel],
}

type validator interface {
	Validate() error
}

// decodeAs checks that data decodes into T and that the result validates.
func decodeAs[T validator](data []byte) error {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if err := v.Validate(); err != nil {
		return fmt.Errorf("invalid record: %w", err)
	}
	return nil
}

func decodeRecords(c storage.Collection, items []json.RawMessage) ([]storage.Record, []Warning) {
	recs := make([]storage.Record, 0, len(items))
	var warnings []Warning
	seen := map[string]bool{}

	for i, item := range items {
		var head struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(item, &head); err != nil {
			warnings = append(warnings, Warning{Collection: c, Index: i, Reason: "malformed record: " + err.Error()})
			continue
		}
		if head.ID == "" {
			warnings = append(warnings, Warning{Collection: c, Index: i, Reason: "missing id"})
			continue
		}
		if err := decoders[c](item); err != nil {
			warnings = append(warnings, Warning{Collection: c, Index: i, ID: head.ID, Reason: err.Error()})
			continue
		}
		if seen[head.ID] {
			warnings = append(warnings, Warning{Collection: c, Index: i, ID: head.ID, Reason: "duplicate id"})
			continue
		}
		seen[head.ID] = true
		recs = append(recs, storage.Record{ID: head.ID, Data: compact(item)})
	}
	return recs, warnings
}

func decodeSettings(items []json.RawMessage) ([]storage.ConfigEntry, []Warning) {
	entries := make([]storage.ConfigEntry, 0, len(items))
	var warnings []Warning
	seen := map[string]bool{}

	for i, item := range items {
		var e storage.ConfigEntry
		if err := json.Unmarshal(item, &e); err != nil {
			warnings = append(warnings, Warning{Collection: storage.Settings, Index: i, Reason: "malformed entry: " + err.Error()})
			continue
		}
		if e.Key == "" || len(e.Value) == 0 {
			warnings = append(warnings, Warning{Collection: storage.Settings, Index: i, ID: e.Key, Reason: "missing key or value"})
			continue
		}
		if e.Key == core.VehicleSettingsKey {
			if err := decodeAs[core.VehicleSettings](e.Value); err != nil {
				warnings = append(warnings, Warning{Collection: storage.Settings, Index: i, ID: e.Key, Reason: err.Error()})
				continue
			}
		}
		if seen[e.Key] {
			warnings = append(warnings, Warning{Collection: storage.Settings, Index: i, ID: e.Key, Reason: "duplicate key"})
			continue
		}
		seen[e.Key] = true
		e.Value = compact(e.Value)
		entries = append(entries, e)
	}
	return entries, warnings
}

// compact strips the indentation an exported file carries. Input is already valid JSON.
func compact(raw json.RawMessage) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}
