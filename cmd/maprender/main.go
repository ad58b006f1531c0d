// Command maprender draws a stored map snapshot to a PNG or HTML file, lists
// the snapshots in a database, or prints the streets of one snapshot.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/banshee-data/gridrunner/internal/mapstore"
	"github.com/banshee-data/gridrunner/internal/streetmap"
	"github.com/banshee-data/gridrunner/internal/viz"
)

var (
	dbPath = flag.String("db", "gridrunner.db", "Map snapshot database")
	name   = flag.String("name", "", "Render the latest snapshot saved under this name")
	id     = flag.String("id", "", "Render the snapshot with this ID")
	out    = flag.String("out", "map.png", "Output file; a .html extension selects the interactive chart")
	list   = flag.Bool("list", false, "List stored snapshots and exit")
	at     = flag.String("at", "", "Print the streets of intersection x,y instead of rendering")
	status = flag.String("status", "", "Print only streets with this status (e.g. DEADEND) instead of rendering")
)

// load fetches a snapshot by ID when given, otherwise by name.
func load(ctx context.Context, s *mapstore.Store, name, id string) (streetmap.Snapshot, error) {
	switch {
	case id != "":
		return s.LoadID(ctx, id)
	case name != "":
		return s.Load(ctx, name)
	default:
		return streetmap.Snapshot{}, fmt.Errorf("one of -name or -id is required")
	}
}

// render writes snap to w in the format implied by path. The planned route
// is recomputed when the snapshot carries a goal.
func render(w io.Writer, path string, snap streetmap.Snapshot) error {
	m, err := streetmap.FromSnapshot(snap)
	if err != nil {
		return err
	}
	route := m.Route()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return viz.RenderHTML(w, snap, route)
	case ".png":
		return viz.RenderPNG(w, snap, route)
	default:
		return fmt.Errorf("unsupported output %q: want .png or .html", path)
	}
}

func printList(w io.Writer, infos []mapstore.Info) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTAKEN\tINTERSECTIONS\tPOSE\tGOAL\tREASON")
	for _, in := range infos {
		goal := in.Goal
		if goal == "" {
			goal = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			in.ID, in.Name, in.Taken.Format(time.RFC3339), in.Intersections, in.Pose, goal, in.Reason)
	}
	return tw.Flush()
}

// printStreets writes one row per street of snap, limited to the
// intersection named by at ("x,y") and to status when those are set.
func printStreets(w io.Writer, snap streetmap.Snapshot, at, status string) error {
	records := snap.Intersections
	if at != "" {
		var x, y int
		if _, err := fmt.Sscanf(at, "%d,%d", &x, &y); err != nil {
			return fmt.Errorf("invalid -at %q: want x,y", at)
		}
		r, ok := snap.Lookup(x, y)
		if !ok {
			return fmt.Errorf("no intersection at (%d,%d)", x, y)
		}
		records = []streetmap.IntersectionRecord{r}
	}
	var want *streetmap.StreetStatus
	if status != "" {
		st, err := streetmap.ParseStreetStatus(strings.ToUpper(status))
		if err != nil {
			return err
		}
		want = &st
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "X\tY\tHEADING\tSTATUS\tBLOCKED")
	for _, r := range records {
		for h, st := range r.Streets {
			if want != nil && st != *want {
				continue
			}
			fmt.Fprintf(tw, "%d\t%d\th%d\t%s\t%t\n", r.X, r.Y, h, st, r.Blocked[h])
		}
	}
	return tw.Flush()
}

func main() {
	flag.Parse()
	ctx := context.Background()

	store, err := mapstore.Open(*dbPath, nil)
	if err != nil {
		log.Fatalf("failed to open map store: %v", err)
	}
	defer store.Close()

	if *list {
		infos, err := store.List(ctx)
		if err != nil {
			log.Fatalf("failed to list snapshots: %v", err)
		}
		if err := printList(os.Stdout, infos); err != nil {
			log.Fatal(err)
		}
		return
	}

	snap, err := load(ctx, store, *name, *id)
	if err != nil {
		log.Fatalf("failed to load snapshot: %v", err)
	}

	if *at != "" || *status != "" {
		if err := printStreets(os.Stdout, snap, *at, *status); err != nil {
			log.Fatal(err)
		}
		return
	}

	f, err := os.Create(*out)
	if err != nil {
		log.Fatalf("failed to create %s: %v", *out, err)
	}
	if err := render(f, *out, snap); err != nil {
		f.Close()
		os.Remove(*out)
		log.Fatalf("failed to render: %v", err)
	}
	if err := f.Close(); err != nil {
		log.Fatalf("failed to write %s: %v", *out, err)
	}
	log.Printf("wrote %d intersections to %s", len(snap.Intersections), *out)
}
