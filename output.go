package main

import (
	"encoding/json"
	"fmt"
	"os"
)

// writeMeterList writes the meter inventory as indented JSON, to stdout
// when filename is "-" and to the named file otherwise. Logs go to
// stderr, so stdout stays clean for the document itself.
func writeMeterList(filename string, list *MeterList) error {
	out := os.Stdout
	if filename != "-" {
		file, err := os.Create(filename)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer file.Close()
		out = file
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(list); err != nil {
		return fmt.Errorf("encoding meter list: %w", err)
	}
	return nil
}
