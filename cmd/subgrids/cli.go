package main

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/subgrids/extension/pkg/core"
)

var commands = []string{"inspect", "export"}

func isCommand(arg string) bool {
	return slices.Contains(commands, strings.ToLower(arg))
}

// runCommand executes an offline command against the configured storage.
// The host storage type is not reachable offline.
func runCommand(a *app, command string, args []string) error {
	if err := a.openStore(); err != nil {
		return err
	}
	ctx := context.Background()

	switch command {
	case "inspect":
		if len(args) == 0 {
			return fmt.Errorf("no scene IDs provided")
		}
		for _, sceneID := range args {
			grids, err := a.store.LoadGrids(ctx, sceneID)
			if err != nil {
				return fmt.Errorf("loading scene %s: %w", sceneID, err)
			}
			printGrids(sceneID, grids)
		}
		return nil
	case "export":
		if len(args) != 2 {
			return fmt.Errorf("usage: export <sceneID> <file.json.gz>")
		}
		grids, err := a.store.LoadGrids(ctx, args[0])
		if err != nil {
			return fmt.Errorf("loading scene %s: %w", args[0], err)
		}
		if err := exportGrids(args[1], grids); err != nil {
			return err
		}
		a.logger.Info("Exported grids", "scene", args[0], "count", len(grids), "path", args[1])
		return nil
	}
	return fmt.Errorf("unknown command: %s", command)
}

func printGrids(sceneID string, grids core.Grids) {
	fmt.Printf("scene %s: %d grid(s)\n", sceneID, len(grids))
	names := make([]string, 0, len(grids))
	for name := range grids {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		rec := grids[name]
		fmt.Printf("  %-24s %dx%d cells at (%.1f, %.1f) %.1f deg, master %s %s, %d marker(s)\n",
			name, rec.Dimensions.CellWidth, rec.Dimensions.CellHeight,
			rec.Position.X, rec.Position.Y, rec.Position.Angle,
			rec.Master.Kind, rec.Master.ID, len(rec.Markers))
	}
}

// exportGrids writes the scene's records as gzipped JSON, the same shape
// the host keeps under the scene flag.
func exportGrids(path string, grids core.Grids) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	if err := json.NewEncoder(gz).Encode(grids); err != nil {
		return fmt.Errorf("encoding grids: %w", err)
	}
	return gz.Close()
}
