package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/JonMunkholm/importer/internal/pipeline"
)

// maxPrinted caps how many row errors and warnings the text output lists.
const maxPrinted = 20

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printWarnings(w io.Writer, warnings []pipeline.Warning) {
	if len(warnings) == 0 {
		return
	}
	fmt.Fprintf(w, "\nwarnings (%d):\n", len(warnings))
	for i, wn := range warnings {
		if i == maxPrinted {
			fmt.Fprintf(w, "  ... %d more\n", len(warnings)-maxPrinted)
			break
		}
		if wn.Row > 0 {
			fmt.Fprintf(w, "  row %d: %s\n", wn.Row, wn.Message)
		} else {
			fmt.Fprintf(w, "  %s\n", wn.Message)
		}
	}
}

func printRowErrors(w io.Writer, errs []pipeline.RowError) {
	if len(errs) == 0 {
		return
	}
	fmt.Fprintf(w, "\nerrors (%d):\n", len(errs))
	for i, e := range errs {
		if i == maxPrinted {
			fmt.Fprintf(w, "  ... %d more\n", len(errs)-maxPrinted)
			break
		}
		fmt.Fprintf(w, "  %s\n", e.Error())
	}
}
