package main

import (
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/mastercactapus/bedmesh/history"
	"github.com/mastercactapus/bedmesh/meshlevel"
	"github.com/mastercactapus/bedmesh/transport"
)

func runPorts(args []string) error {
	fs := flag.NewFlagSet("ports", flag.ExitOnError)
	fs.Parse(args)

	ports, err := transport.Ports()
	if err != nil {
		return err
	}
	for _, p := range ports {
		fmt.Println(p)
	}
	return nil
}

func runHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	db := fs.String("db", "history.db", "SQLite archive to read.")
	export := fs.String("export", "", "Run ID to export as a height map, \"latest\" for the newest.")
	out := fs.String("out", "-", "Height map output file for -export.")
	fs.Parse(args)

	store, err := history.Open(*db)
	if err != nil {
		return err
	}
	defer store.Close()

	if *export == "" {
		runs, err := store.Runs()
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tSOURCE\tGRID\tSAMPLES\tCREATED")
		for _, r := range runs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%dx%d\t%d\t%s\n", r.RunID, r.Name, r.Source, r.NX, r.NY, r.Samples,
				time.Unix(0, r.CreatedAt).Format(time.RFC3339))
		}
		return tw.Flush()
	}

	id := *export
	if id == "latest" {
		r, err := store.Latest()
		if err != nil {
			return err
		}
		id = r.RunID
	}
	samples, err := store.Load(id)
	if err != nil {
		return err
	}
	hm, err := meshlevel.New(samples)
	if err != nil {
		return err
	}
	return writeHeightMap(*out, hm)
}
