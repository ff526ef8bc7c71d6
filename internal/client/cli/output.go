package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/herpsync/internal/client/models"
	"github.com/dmitrijs2005/herpsync/internal/client/services"
	"github.com/dmitrijs2005/herpsync/internal/client/syncer"
	"github.com/dmitrijs2005/herpsync/internal/record"
	"golang.org/x/term"
)

// printer renders results as aligned tables for people and as JSON for
// pipes and scripts.
type printer struct {
	w    io.Writer
	json bool
}

func newPrinter(w io.Writer, format string) *printer {
	asJSON := format == FormatJSON
	if format == FormatAuto {
		asJSON = !isTerminal(w)
	}
	return &printer{w: w, json: asJSON}
}

var isTerminal = func(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (p *printer) writeJSON(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *printer) table(fn func(tw *tabwriter.Writer)) error {
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fn(tw)
	return tw.Flush()
}

func (p *printer) Records(kind models.Kind, list []*record.Record) error {
	if p.json {
		if list == nil {
			list = []*record.Record{}
		}
		return p.writeJSON(list)
	}
	if len(list) == 0 {
		_, err := fmt.Fprintf(p.w, "No %s found.\n", strings.ReplaceAll(kind.Table, "_", " "))
		return err
	}
	return p.table(func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "ID\tNAME\tUPDATED\tDELETED\tFIELDS")
		for _, r := range list {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				r.ID, r.Field(kind.NameField), formatTime(r.UpdatedAt), yesNo(r.Deleted), otherFields(r, kind.NameField))
		}
	})
}

func (p *printer) Record(r *record.Record) error {
	if p.json {
		return p.writeJSON(r)
	}
	return p.table(func(tw *tabwriter.Writer) {
		fmt.Fprintf(tw, "id\t%s\n", r.ID)
		fmt.Fprintf(tw, "owner\t%s\n", r.OwnerID)
		for _, k := range sortedKeys(r.Data) {
			fmt.Fprintf(tw, "%s\t%s\n", k, r.Field(k))
		}
		fmt.Fprintf(tw, "created\t%s\n", formatTime(r.CreatedAt))
		fmt.Fprintf(tw, "updated\t%s\n", formatTime(r.UpdatedAt))
		fmt.Fprintf(tw, "deleted\t%s\n", yesNo(r.Deleted))
	})
}

func (p *printer) Statistics(kind models.Kind, s *services.Statistics) error {
	if p.json {
		return p.writeJSON(s)
	}
	return p.table(func(tw *tabwriter.Writer) {
		fmt.Fprintf(tw, "%s\n", kind.Table)
		fmt.Fprintf(tw, "  total\t%d\n", s.Total)
		fmt.Fprintf(tw, "  deleted\t%d\n", s.Deleted)
		for _, field := range sortedKeys(s.By) {
			fmt.Fprintf(tw, "  by %s\t\n", field)
			for _, v := range sortedKeys(s.By[field]) {
				fmt.Fprintf(tw, "    %s\t%d\n", v, s.By[field][v])
			}
		}
		if len(s.Recent) > 0 {
			fmt.Fprintln(tw, "  recent\t")
			for _, a := range s.Recent {
				fmt.Fprintf(tw, "    %s\t%s %s\n", formatTime(a.At), a.Event, a.Name)
			}
		}
	})
}

func (p *printer) Status(s *syncer.Status) error {
	if p.json {
		return p.writeJSON(s)
	}
	return p.table(func(tw *tabwriter.Writer) {
		fmt.Fprintf(tw, "state\t%s\n", s.State)
		fmt.Fprintf(tw, "online\t%s\n", yesNo(s.Online))
		fmt.Fprintf(tw, "pending changes\t%d\n", s.PendingCount)
		fmt.Fprintf(tw, "last synced\t%s\n", formatTime(s.LastSyncAt))
		fmt.Fprintf(tw, "watermark\t%s\n", formatTime(s.Watermark))
		if s.LastError != "" {
			fmt.Fprintf(tw, "last error\t%s\n", s.LastError)
		}
		for _, table := range sortedKeys(s.LocalCounts) {
			fmt.Fprintf(tw, "%s\t%d\n", table, s.LocalCounts[table])
		}
	})
}

func (p *printer) Report(r syncer.Report) error {
	if p.json {
		return p.writeJSON(r)
	}
	_, err := fmt.Fprintf(p.w, "Sync complete: pushed %d, failed %d, dropped %d, pulled %d, skipped %d.\n",
		r.Pushed, r.Failed, r.Dropped, r.Pulled, r.Skipped)
	return err
}

func (p *printer) Device(d record.Device) error {
	if p.json {
		return p.writeJSON(d)
	}
	return p.table(func(tw *tabwriter.Writer) {
		fmt.Fprintf(tw, "device\t%s\n", d.DeviceID)
		fmt.Fprintf(tw, "owner\t%s\n", d.OwnerID)
		fmt.Fprintf(tw, "sync version\t%d\n", d.SyncVersion)
		fmt.Fprintf(tw, "last synced\t%s\n", formatTime(d.LastSyncAt))
	})
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format(time.DateTime)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func otherFields(r *record.Record, skip string) string {
	parts := make([]string, 0, len(r.Data))
	for _, k := range sortedKeys(r.Data) {
		if k == skip {
			continue
		}
		parts = append(parts, k+"="+r.Field(k))
	}
	return strings.Join(parts, " ")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
