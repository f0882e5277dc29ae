package main

import (
	"fmt"
	"log"
	"os"
	"sort"
)

type command struct {
	usage string
	run   func(args []string) error
}

var commands = map[string]command{
	"plan":    {"write the probe sweep program without running it", runPlan},
	"probe":   {"probe the bed and save the height map", runProbe},
	"parse":   {"build a height map from a captured console log", runParse},
	"remap":   {"apply a height map to a toolpath", runRemap},
	"diff":    {"subtract one height map from another", runDiff},
	"history": {"list or export archived probe runs", runHistory},
	"ports":   {"list serial ports", runPorts},
	"serve":   {"run the HTTP API", runServe},
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [flags]\n\nCommands:\n", os.Args[0])
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %-8s %s\n", name, commands[name].usage)
	}
}

func main() {
	log.SetFlags(log.Lshortfile)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd, ok := commands[os.Args[1]]
	if !ok {
		usage()
		os.Exit(2)
	}

	err := cmd.run(os.Args[2:])
	if err != nil {
		log.Fatal(err)
	}
}
