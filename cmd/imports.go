package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

var (
	imports_command      = app.Command("imports", "Displays the import table of a PE file.")
	imports_command_file = imports_command.Arg("file", "").Required().
				OpenFile(os.O_RDONLY, 0600)
)

func doImports() {
	pe_file := openPEFile(*imports_command_file)

	heading := color.New(color.FgCyan, color.Bold)
	ordinal := color.New(color.FgMagenta)
	warning := color.New(color.FgYellow)
	fatal := color.New(color.FgRed, color.Bold)

	for _, library := range pe_file.ImportTable {
		heading.Printf("%s (%d)\n", library.Name, len(library.Entries))
		for _, entry := range library.Entries {
			if entry.ByOrdinal {
				ordinal.Printf("  %s\n", entry.Label())
			} else {
				fmt.Printf("  %s (hint %d)\n", entry.Name, entry.Hint)
			}
		}
	}

	if imphash := pe_file.ImpHash(); imphash != "" {
		fmt.Printf("\nimphash: %s\n", imphash)
	}

	for _, message := range pe_file.Warnings {
		warning.Printf("warning: %s\n", message)
	}

	if err := pe_file.ImportError(); err != nil {
		fatal.Printf("import parsing aborted: %v\n", err)
	}
}
