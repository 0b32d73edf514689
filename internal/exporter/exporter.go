package exporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/jsherman999/parknow/internal/catalog"
	"github.com/jsherman999/parknow/internal/parking"
)

type SnapshotExport struct {
	FacilityID string         `json:"facilityId"`
	Name       string         `json:"name"`
	TotalSlots int            `json:"totalSlots"`
	Available  int            `json:"available"`
	Occupied   int            `json:"occupied"`
	TakenAt    time.Time      `json:"takenAt"`
	Slots      []parking.Slot `json:"slots"`
}

func ExportSnapshotJSON(snap parking.Snapshot) ([]byte, string, error) {
	avail, occ := snap.Counts()
	b, err := json.MarshalIndent(SnapshotExport{
		FacilityID: snap.FacilityID,
		Name:       snap.Name,
		TotalSlots: snap.TotalSlots,
		Available:  avail,
		Occupied:   occ,
		TakenAt:    snap.TakenAt,
		Slots:      snap.Slots,
	}, "", "  ")
	if err != nil {
		return nil, "", err
	}
	return b, "application/json", nil
}

func ExportSnapshotCSV(snap parking.Snapshot) ([]byte, string, error) {
	buf := new(bytes.Buffer)
	w := csv.NewWriter(buf)
	_ = w.Write([]string{"facility_id", "slot_id", "status", "taken_at"})
	ts := snap.TakenAt.Format(time.RFC3339)
	for _, s := range snap.Slots {
		_ = w.Write([]string{snap.FacilityID, s.ID, string(s.Status), ts})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), "text/csv", nil
}

// ExportLocationsCSV writes one row per facility, sorted by id.
func ExportLocationsCSV(summaries map[string]catalog.Summary) ([]byte, string, error) {
	ids := make([]string, 0, len(summaries))
	for id := range summaries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	buf := new(bytes.Buffer)
	w := csv.NewWriter(buf)
	_ = w.Write([]string{"facility_id", "name", "total_slots", "available", "occupied"})
	for _, id := range ids {
		s := summaries[id]
		_ = w.Write([]string{id, s.Name, strconv.Itoa(s.TotalSlots), strconv.Itoa(s.Available), strconv.Itoa(s.Occupied)})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), "text/csv", nil
}

// Export renders snap in the named format (json or csv).
func Export(snap parking.Snapshot, format string) ([]byte, string, error) {
	switch format {
	case "", "json":
		return ExportSnapshotJSON(snap)
	case "csv":
		return ExportSnapshotCSV(snap)
	}
	return nil, "", fmt.Errorf("unknown format %q (use json|csv)", format)
}
